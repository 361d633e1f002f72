package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketbuddy/backend/internal/domain"
)

// Certainty defaults. The pre-oracle threshold must stay >= the oracle threshold.
const (
	DefaultPreOracleCertainty = 0.9
	DefaultOracleCertainty    = 0.8
)

// PolicyConfig holds configuration for the resolution policy
type PolicyConfig struct {
	PreOracleCertainty float64       // Single candidate above this skips the oracle
	OracleCertainty    float64       // Oracle confidence above this auto-accepts
	OracleTimeout      time.Duration // Zero means the caller's context governs
}

// ResolutionPolicy decides per item between Certain, NeedsSelection and NotFound
type ResolutionPolicy struct {
	oracle             domain.SelectionOracle
	preOracleCertainty float64
	oracleCertainty    float64
	oracleTimeout      time.Duration
	logger             *zap.Logger
}

// NewResolutionPolicy creates a policy. A nil oracle resolves ambiguous items via the
// deterministic fallback.
func NewResolutionPolicy(oracle domain.SelectionOracle, config PolicyConfig, logger *zap.Logger) *ResolutionPolicy {
	post := config.OracleCertainty
	if post <= 0 {
		post = DefaultOracleCertainty
	}

	pre := config.PreOracleCertainty
	if pre <= 0 {
		pre = DefaultPreOracleCertainty
	}
	if pre < post {
		pre = post
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResolutionPolicy{
		oracle:             oracle,
		preOracleCertainty: pre,
		oracleCertainty:    post,
		oracleTimeout:      config.OracleTimeout,
		logger:             logger,
	}
}

// Resolve always returns a result; oracle failures degrade to the top candidate.
func (p *ResolutionPolicy) Resolve(
	ctx context.Context,
	item domain.ParsedLineItem,
	candidates []domain.Candidate,
) domain.ResolutionResult {
	result := p.resolve(ctx, item, candidates)

	p.logger.Info("item resolved",
		zap.String("description", item.Description),
		zap.String("status", string(result.Status)),
		zap.String("source", string(result.Source)),
		zap.Int("candidates", len(candidates)),
		zap.Float64("confidence", result.Confidence))

	return result
}

func (p *ResolutionPolicy) resolve(
	ctx context.Context,
	item domain.ParsedLineItem,
	candidates []domain.Candidate,
) domain.ResolutionResult {
	if len(candidates) == 0 {
		return notFound("no product matches found", 0, domain.SourceFuzzy)
	}

	if hasCategoryOverride(candidates) {
		return needsSelection(candidates,
			"several products of this kind exist at the requested size; please choose one",
			candidates[0].Score, domain.SourceCategory)
	}

	if len(candidates) == 1 && candidates[0].Score > p.preOracleCertainty {
		return certain(candidates[0], "single high-confidence match found", candidates[0].Score, domain.SourceFuzzy)
	}

	verdict, err := p.askOracle(ctx, item, candidates)
	if err != nil {
		p.logger.Warn("selection oracle failed, using fallback",
			zap.String("description", item.Description),
			zap.Error(err))
		return p.fallback(candidates)
	}

	return p.applyVerdict(candidates, verdict)
}

// applyVerdict maps a validated oracle verdict onto the candidate list
func (p *ResolutionPolicy) applyVerdict(candidates []domain.Candidate, verdict domain.OracleVerdict) domain.ResolutionResult {
	selected := make([]domain.Candidate, 0, len(verdict.SelectedIndices))
	seen := make(map[int]bool)
	for _, idx := range verdict.SelectedIndices {
		if idx < 1 || idx > len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		selected = append(selected, candidates[idx-1])
	}

	reasoning := verdict.Reasoning

	switch {
	case len(selected) == 1 && verdict.Confidence > p.oracleCertainty:
		if reasoning == "" {
			reasoning = "selected the best product match"
		}
		return certain(selected[0], reasoning, verdict.Confidence, domain.SourceOracle)

	case len(selected) > 1:
		if reasoning == "" {
			reasoning = "several products match equally well"
		}
		return needsSelection(selected, reasoning, verdict.Confidence, domain.SourceOracle)

	case len(selected) == 1:
		if reasoning == "" {
			reasoning = "match confidence too low to add automatically"
		}
		return needsSelection(moveToFront(candidates, selected[0]), reasoning, verdict.Confidence, domain.SourceOracle)

	case verdict.NoMatch || verdict.Confidence == 0:
		if reasoning == "" {
			reasoning = "none of the products match"
		}
		return notFound(reasoning, verdict.Confidence, domain.SourceOracle)

	default:
		if reasoning == "" {
			reasoning = "no clear match; please choose"
		}
		return needsSelection(candidates, reasoning, verdict.Confidence, domain.SourceOracle)
	}
}

// askOracle calls the selection oracle and validates its verdict. Panics inside the
// oracle are converted to ErrOracleUnavailable.
func (p *ResolutionPolicy) askOracle(
	ctx context.Context,
	item domain.ParsedLineItem,
	candidates []domain.Candidate,
) (verdict domain.OracleVerdict, err error) {
	if p.oracle == nil {
		return domain.OracleVerdict{}, fmt.Errorf("%w: no selection oracle configured", domain.ErrOracleUnavailable)
	}

	if p.oracleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.oracleTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: oracle panic: %v", domain.ErrOracleUnavailable, r)
		}
	}()

	raw, err := p.oracle.SelectBest(ctx, BuildSelectionPrompt(item, candidates))
	if err != nil {
		return domain.OracleVerdict{}, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.OracleVerdict{}, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, ctxErr)
	}

	return ParseVerdict(raw)
}

// fallback treats the highest-scoring candidate as certain
func (p *ResolutionPolicy) fallback(candidates []domain.Candidate) domain.ResolutionResult {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return certain(best, "fallback to highest fuzzy match score", best.Score, domain.SourceFallback)
}

// BuildSelectionPrompt lists the original item and its candidates, 1-based
func BuildSelectionPrompt(item domain.ParsedLineItem, candidates []domain.Candidate) string {
	var b strings.Builder

	b.WriteString("I need to match a grocery item to the best product in a database.\n\n")
	fmt.Fprintf(&b, "Original item: %s %s %s\n\n", formatQuantity(item.Quantity), item.Unit, item.Description)
	b.WriteString("Candidate products:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, describeProduct(c.Product))
	}
	b.WriteString(`
Please analyze these candidates and select the best match for the original item. If several candidates are equally good, select all of them. Return only a JSON object with the following structure:
{
  "selectedIndices": number[], // 1-based indices of the best matching products (empty if none match)
  "confidence": number, // Your confidence in this selection from 0 to 1
  "reasoning": string, // Brief explanation
  "noMatch": boolean // true if none of the candidates fit the item
}`)

	return b.String()
}

func describeProduct(p domain.CatalogProduct) string {
	brand := p.Brand
	if brand == "" {
		brand = "No brand"
	}
	size := ""
	if p.SizeValue > 0 {
		size = fmt.Sprintf(", %s %s", formatQuantity(p.SizeValue), p.SizeUnit)
	}
	unit := ""
	if p.UnitMeasure != "" {
		unit = ", " + p.UnitMeasure
	}
	return fmt.Sprintf("%s (%s%s%s, %.2f ₪)", p.Name, brand, size, unit, p.Price)
}

func hasCategoryOverride(candidates []domain.Candidate) bool {
	for _, c := range candidates {
		if c.MatchDetails.CategoryRule != "" {
			return true
		}
	}
	return false
}

// moveToFront returns candidates with chosen first, keeping the others in order
func moveToFront(candidates []domain.Candidate, chosen domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(candidates))
	out = append(out, chosen)
	for _, c := range candidates {
		if c.Product.ID == chosen.Product.ID {
			continue
		}
		out = append(out, c)
	}
	return out
}

func certain(c domain.Candidate, reasoning string, confidence float64, source domain.ResolutionSource) domain.ResolutionResult {
	product := c.Product
	return domain.ResolutionResult{
		Status:        domain.StatusCertain,
		ChosenProduct: &product,
		Options:       []domain.Candidate{},
		Reasoning:     reasoning,
		Confidence:    confidence,
		Source:        source,
	}
}

func needsSelection(options []domain.Candidate, reasoning string, confidence float64, source domain.ResolutionSource) domain.ResolutionResult {
	return domain.ResolutionResult{
		Status:     domain.StatusNeedsSelection,
		Options:    append([]domain.Candidate{}, options...),
		Reasoning:  reasoning,
		Confidence: confidence,
		Source:     source,
	}
}

func notFound(reasoning string, confidence float64, source domain.ResolutionSource) domain.ResolutionResult {
	return domain.ResolutionResult{
		Status:     domain.StatusNotFound,
		Options:    []domain.Candidate{},
		Reasoning:  reasoning,
		Confidence: confidence,
		Source:     source,
	}
}
