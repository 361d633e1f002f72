package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/marketbuddy/backend/internal/domain"
)

// FallbackParseConfidence is assigned to items produced by the local parser
const FallbackParseConfidence = 0.85

// ListParsingInstructions is the fixed instruction template sent to the text oracle
const ListParsingInstructions = `You are a grocery shopping assistant that helps parse grocery lists in Hebrew.
For each item, extract the following:
- Quantity (default is 1 if not specified)
- Unit (e.g., גרם, ק"ג, יחידה, מ"ל, ליטר; default is יחידה)
- Product: the full product text, keeping brand, percentage and package size (e.g. "חלב תנובה 3% 1 ליטר")

Return only JSON with the following structure:
{
  "items": [
    {
      "quantity": number,
      "unit": string,
      "product": string,
      "confidence": number
    }
  ]
}`

var (
	// Splits a message into lines on commas, semicolons and newlines
	lineSplitPattern = regexp.MustCompile(`[,;\n\r]+`)

	// Matches a leading quantity like "2", "1.5"
	leadingQuantityPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*`)

	// Matches a unit keyword at the start of the remaining text
	leadingUnitPattern = regexp.MustCompile(`^(` + aliasAlternation(allUnitAliases()) + `)(?:\s+|$)`)

	// Trims punctuation left at the edges of a description
	edgePunctuationPattern = regexp.MustCompile(`^[\s\-.:]+|[\s\-.:]+$`)

	numericTokenPattern = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// ListParser converts a free-text message into parsed line items
type ListParser struct {
	oracle domain.TextOracle
	logger *zap.Logger
}

// NewListParser creates a parser. A nil oracle always uses the local parser.
func NewListParser(oracle domain.TextOracle, logger *zap.Logger) *ListParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListParser{oracle: oracle, logger: logger}
}

// Parse never fails: oracle errors and malformed responses fall back to local parsing
func (p *ListParser) Parse(ctx context.Context, message string) []domain.ParsedLineItem {
	if strings.TrimSpace(message) == "" {
		return []domain.ParsedLineItem{}
	}

	if p.oracle != nil {
		items, err := p.parseWithOracle(ctx, message)
		if err == nil {
			p.logger.Debug("list parsed by oracle", zap.Int("items", len(items)))
			return items
		}
		p.logger.Warn("list parsing oracle failed, using local parser", zap.Error(err))
	}

	items := parseLocally(message)
	p.logger.Debug("list parsed locally", zap.Int("items", len(items)))
	return items
}

func (p *ListParser) parseWithOracle(ctx context.Context, message string) (items []domain.ParsedLineItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: oracle panic: %v", domain.ErrOracleUnavailable, r)
		}
	}()

	raw, err := p.oracle.ParseFreeText(ctx, message, ListParsingInstructions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	return decodeParsedList(raw)
}

// oracleListItem is the wire shape of one parsed item; "description" is accepted
// as an alias of "product"
type oracleListItem struct {
	Quantity    *float64 `json:"quantity"`
	Unit        string   `json:"unit"`
	Product     string   `json:"product"`
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence"`
}

// decodeParsedList validates the text oracle response
func decodeParsedList(raw string) ([]domain.ParsedLineItem, error) {
	content, err := unwrapOracleJSON(raw)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Items []oracleListItem `json:"items"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		// Some responses are a bare array of items
		if arrErr := json.Unmarshal([]byte(content), &payload.Items); arrErr != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrOracleResponseMalformed, err)
		}
	}

	items := make([]domain.ParsedLineItem, 0, len(payload.Items))
	for _, raw := range payload.Items {
		description := strings.TrimSpace(raw.Product)
		if description == "" {
			description = strings.TrimSpace(raw.Description)
		}
		if description == "" {
			continue
		}

		quantity := 1.0
		if raw.Quantity != nil && *raw.Quantity > 0 {
			quantity = *raw.Quantity
		}

		unit := strings.TrimSpace(raw.Unit)
		if unit == "" {
			unit = domain.DefaultUnit
		}

		confidence := 1.0
		if raw.Confidence != nil {
			confidence = clampScore(*raw.Confidence)
		}

		items = append(items, domain.ParsedLineItem{
			Quantity:    quantity,
			Unit:        unit,
			Description: description,
			Confidence:  confidence,
		})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no usable items", domain.ErrOracleResponseMalformed)
	}
	return items, nil
}

// parseLocally is the deterministic fallback parser. Lines that leave no product
// text after quantity/unit extraction are dropped.
func parseLocally(message string) []domain.ParsedLineItem {
	items := []domain.ParsedLineItem{}

	for _, line := range lineSplitPattern.Split(message, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		quantity := 1.0
		rest := line
		if m := leadingQuantityPattern.FindStringSubmatch(line); m != nil && !strings.HasPrefix(line[len(m[0]):], "%") {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
				quantity = v
			}
			rest = line[len(m[0]):]
		}

		unit := domain.DefaultUnit
		if m := leadingUnitPattern.FindStringSubmatch(rest); m != nil {
			unit = CanonicalUnit(m[1])
			rest = rest[len(m[0]):]
		} else if u, remaining, ok := extractStandaloneUnit(rest); ok {
			unit = u
			rest = remaining
		}

		description := edgePunctuationPattern.ReplaceAllString(strings.Join(strings.Fields(rest), " "), "")
		if description == "" {
			continue
		}

		items = append(items, domain.ParsedLineItem{
			Quantity:    quantity,
			Unit:        unit,
			Description: description,
			Confidence:  FallbackParseConfidence,
		})
	}

	return items
}

// extractStandaloneUnit finds a unit keyword token that is not part of a
// "number unit" package size and removes it from the text
func extractStandaloneUnit(text string) (string, string, bool) {
	tokens := strings.Fields(text)
	aliases := allUnitAliases()

	for i, tok := range tokens {
		if _, ok := aliases[strings.ToLower(tok)]; !ok {
			continue
		}
		if i > 0 && numericTokenPattern.MatchString(tokens[i-1]) {
			continue
		}
		remaining := append(append([]string{}, tokens[:i]...), tokens[i+1:]...)
		return CanonicalUnit(tok), strings.Join(remaining, " "), true
	}
	return "", text, false
}

// allUnitAliases merges size and count unit spellings
func allUnitAliases() map[string]string {
	all := make(map[string]string, len(sizeUnitAliases)+len(countUnitAliases))
	for k, v := range sizeUnitAliases {
		all[k] = v
	}
	for k := range countUnitAliases {
		all[k] = domain.DefaultUnit
	}
	return all
}
