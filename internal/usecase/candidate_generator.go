package usecase

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/marketbuddy/backend/internal/domain"
)

// Scoring bonuses added on top of the name similarity
const (
	unitMatchBonus       = 0.05 // Item unit equals product unit measure
	percentageMatchBonus = 0.15 // Same fat/content percentage
	brandMatchBonus      = 0.15 // Extracted brand matches product brand
	sizeMatchBonus       = 0.10 // Same package size after unit conversion
)

// Candidate generation defaults
const (
	DefaultAdmissionThreshold = 0.4
	DefaultMaxCandidates      = 5
	categoryOverrideScore     = 1.0
)

// CategoryStrategy produces candidates for a category override. Returning no
// candidates hands the item back to general scoring.
type CategoryStrategy func(item domain.ParsedLineItem, specs Specs, catalog []domain.CatalogProduct, engine *SimilarityEngine) []domain.Candidate

// CategoryRule binds a product category, recognized by marker terms, to an override strategy
type CategoryRule struct {
	Name     string
	Markers  []string
	Strategy CategoryStrategy
}

// DefaultCategoryRules lists categories with many co-existing SKUs at one size
var DefaultCategoryRules = []CategoryRule{
	{
		Name:     "cheese",
		Markers:  []string{"גבינה", "גבינת"},
		Strategy: SameSizeVariants([]string{"גבינה", "גבינת"}),
	},
}

// CandidateConfig holds configuration for candidate generation
type CandidateConfig struct {
	AdmissionThreshold float64
	MaxCandidates      int
	CategoryRules      []CategoryRule
	SimilarityRules    []SimilarityRule
}

// CandidateGenerator ranks catalog products against one parsed line item
type CandidateGenerator struct {
	admissionThreshold float64
	maxCandidates      int
	categoryRules      []CategoryRule
	engine             *SimilarityEngine
	logger             *zap.Logger
}

// NewCandidateGenerator creates a generator with the given configuration
func NewCandidateGenerator(config CandidateConfig, logger *zap.Logger) *CandidateGenerator {
	threshold := config.AdmissionThreshold
	if threshold <= 0 {
		threshold = DefaultAdmissionThreshold
	}

	maxCandidates := config.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}

	rules := config.CategoryRules
	if rules == nil {
		rules = DefaultCategoryRules
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CandidateGenerator{
		admissionThreshold: threshold,
		maxCandidates:      maxCandidates,
		categoryRules:      rules,
		engine:             NewSimilarityEngine(config.SimilarityRules),
		logger:             logger,
	}
}

// Generate returns up to maxCandidates candidates sorted by descending score.
// An empty result is a normal outcome, not an error.
func (g *CandidateGenerator) Generate(
	ctx context.Context,
	item domain.ParsedLineItem,
	catalog []domain.CatalogProduct,
) ([]domain.Candidate, error) {
	if len(catalog) == 0 || strings.TrimSpace(item.Description) == "" {
		return []domain.Candidate{}, nil
	}

	specs := ExtractSpecs(item.Description)
	description := normalizeText(item.Description)

	for _, rule := range g.categoryRules {
		if !containsAnyMarker(description, rule.Markers) {
			continue
		}
		candidates := rule.Strategy(item, specs, catalog, g.engine)
		if len(candidates) == 0 {
			continue
		}
		for i := range candidates {
			candidates[i].MatchDetails.CategoryRule = rule.Name
		}
		g.logger.Debug("category override applied",
			zap.String("rule", rule.Name),
			zap.String("description", item.Description),
			zap.Int("candidates", len(candidates)))
		return g.truncate(candidates), nil
	}

	var admitted []domain.Candidate
	for _, product := range catalog {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		candidate := g.score(item, specs, product)

		g.logger.Debug("scored product",
			zap.String("description", item.Description),
			zap.String("product", product.Name),
			zap.Float64("score", candidate.Score),
			zap.Float64("name_score", candidate.MatchDetails.NameScore))

		if candidate.Score >= g.admissionThreshold {
			admitted = append(admitted, candidate)
		}
	}

	sort.SliceStable(admitted, func(i, j int) bool {
		return admitted[i].Score > admitted[j].Score
	})

	return g.truncate(admitted), nil
}

// score computes the name similarity plus attribute bonuses, clamped to 1.0
func (g *CandidateGenerator) score(item domain.ParsedLineItem, specs Specs, product domain.CatalogProduct) domain.Candidate {
	nameScore := g.engine.Similarity(product.Name, item.Description)
	details := domain.MatchDetails{NameScore: nameScore}
	score := nameScore

	if item.Unit != "" && product.UnitMeasure != "" && CanonicalUnit(item.Unit) == CanonicalUnit(product.UnitMeasure) {
		details.UnitMatch = true
		score += unitMatchBonus
	}

	productSpecs := ExtractSpecs(product.Name)

	if specs.HasPercentage && productSpecs.HasPercentage && floatEquals(specs.Percentage, productSpecs.Percentage) {
		details.PercentageMatch = true
		score += percentageMatchBonus
	}

	if specs.Brand != "" && productHasBrand(product, specs.Brand) {
		details.BrandMatch = true
		score += brandMatchBonus
	}

	if size, unit := productSize(product, productSpecs); specs.SameSize(size, unit) {
		details.SizeMatch = true
		score += sizeMatchBonus
	}

	return domain.Candidate{
		Product:      product,
		Score:        clampScore(score),
		MatchDetails: details,
	}
}

func (g *CandidateGenerator) truncate(candidates []domain.Candidate) []domain.Candidate {
	if candidates == nil {
		return []domain.Candidate{}
	}
	if len(candidates) > g.maxCandidates {
		return candidates[:g.maxCandidates]
	}
	return candidates
}

// SameSizeVariants surfaces every product carrying one of the markers whose size
// equals the requested size, each with a flat score of 1.0
func SameSizeVariants(markers []string) CategoryStrategy {
	return func(item domain.ParsedLineItem, specs Specs, catalog []domain.CatalogProduct, engine *SimilarityEngine) []domain.Candidate {
		if !specs.HasSize() {
			return nil
		}

		var candidates []domain.Candidate
		for _, product := range catalog {
			if !containsAnyMarker(normalizeText(product.Name), markers) {
				continue
			}
			size, unit := productSize(product, ExtractSpecs(product.Name))
			if !specs.SameSize(size, unit) {
				continue
			}
			candidates = append(candidates, domain.Candidate{
				Product: product,
				Score:   categoryOverrideScore,
				MatchDetails: domain.MatchDetails{
					NameScore: engine.Similarity(product.Name, item.Description),
					SizeMatch: true,
				},
			})
		}
		return candidates
	}
}

// productSize prefers the catalog size columns and falls back to a size in the name
func productSize(product domain.CatalogProduct, nameSpecs Specs) (float64, string) {
	if product.SizeValue > 0 && product.SizeUnit != "" {
		return product.SizeValue, product.SizeUnit
	}
	return nameSpecs.Size, nameSpecs.SizeUnit
}

func productHasBrand(product domain.CatalogProduct, brand string) bool {
	if product.Brand != "" && strings.Contains(normalizeText(product.Brand), brand) {
		return true
	}
	return strings.Contains(normalizeText(product.Name), brand)
}
