package domain

// DefaultUnit is the unit assigned when a line item names none
const DefaultUnit = "יחידה"

// ParsedLineItem is one purchase extracted from a free-text grocery list
type ParsedLineItem struct {
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"` // Parser confidence 0-1, independent of catalog matching
}

// CatalogProduct represents one sellable SKU from the product catalog.
// Zero values mean the attribute is unknown.
type CatalogProduct struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Brand       string  `json:"brand,omitempty"`
	SizeValue   float64 `json:"sizeValue,omitempty"`
	SizeUnit    string  `json:"sizeUnit,omitempty"`
	UnitMeasure string  `json:"unitMeasure,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category,omitempty"`
}

// MatchDetails keeps the sub-scores behind a candidate score
type MatchDetails struct {
	NameScore       float64 `json:"nameScore"`
	UnitMatch       bool    `json:"unitMatch"`
	PercentageMatch bool    `json:"percentageMatch"`
	BrandMatch      bool    `json:"brandMatch"`
	SizeMatch       bool    `json:"sizeMatch"`
	CategoryRule    string  `json:"categoryRule,omitempty"` // Set when a category override produced the candidate
}

// Candidate is a scored pairing of a line item to a catalog product
type Candidate struct {
	Product      CatalogProduct `json:"product"`
	Score        float64        `json:"score"` // 0-1, higher is better
	MatchDetails MatchDetails   `json:"matchDetails"`
}

// ResolutionStatus is the outcome class of resolving one line item
type ResolutionStatus string

const (
	StatusCertain        ResolutionStatus = "certain"
	StatusNeedsSelection ResolutionStatus = "needs_selection"
	StatusNotFound       ResolutionStatus = "not_found"
)

// ResolutionSource records which path produced a resolution
type ResolutionSource string

const (
	SourceFuzzy    ResolutionSource = "fuzzy"
	SourceOracle   ResolutionSource = "oracle"
	SourceFallback ResolutionSource = "fallback"
	SourceCategory ResolutionSource = "category"
)

// ResolutionResult is the decision for one line item
type ResolutionResult struct {
	Status        ResolutionStatus `json:"status"`
	ChosenProduct *CatalogProduct  `json:"chosenProduct,omitempty"` // Present iff Certain
	Options       []Candidate      `json:"options"`                 // Non-empty iff NeedsSelection
	Reasoning     string           `json:"reasoning,omitempty"`
	Confidence    float64          `json:"confidence"`
	Source        ResolutionSource `json:"source"`
}

// OracleVerdict is the validated answer of the selection oracle
type OracleVerdict struct {
	SelectedIndices []int   // 1-based, as returned by the oracle
	Confidence      float64 // 0-1
	Reasoning       string
	NoMatch         bool
}

// ItemOutcome pairs a parsed item with its resolution and rendered message
type ItemOutcome struct {
	Item    ParsedLineItem   `json:"item"`
	Result  ResolutionResult `json:"result"`
	Message string           `json:"message"`
}

// ListSummary counts outcomes of a processed list
type ListSummary struct {
	TotalItems    int `json:"totalItems"`
	CertainItems  int `json:"certainItems"`
	PendingItems  int `json:"pendingItems"`
	NotFoundItems int `json:"notFoundItems"`
}

// ProcessedList is the stateless result of processing one grocery list message
type ProcessedList struct {
	Items   []ItemOutcome `json:"items"`
	Summary ListSummary   `json:"summary"`
}

// Summarize counts certain, pending and not-found outcomes
func Summarize(outcomes []ItemOutcome) ListSummary {
	summary := ListSummary{TotalItems: len(outcomes)}
	for _, o := range outcomes {
		switch o.Result.Status {
		case StatusCertain:
			summary.CertainItems++
		case StatusNeedsSelection:
			summary.PendingItems++
		case StatusNotFound:
			summary.NotFoundItems++
		}
	}
	return summary
}
