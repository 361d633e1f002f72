package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketbuddy/backend/internal/domain"
)

func milkCatalog() []domain.CatalogProduct {
	return []domain.CatalogProduct{
		{ID: "p1", Name: "חלב תנובה 3% 1 ליטר", Brand: "תנובה", SizeValue: 1, SizeUnit: UnitLiter, UnitMeasure: domain.DefaultUnit, Price: 6.5, Category: "dairy"},
		{ID: "p2", Name: "חלב טרה 3% 1 ליטר", Brand: "טרה", SizeValue: 1, SizeUnit: UnitLiter, UnitMeasure: domain.DefaultUnit, Price: 6.3, Category: "dairy"},
		{ID: "p3", Name: "במבה", Brand: "אסם", Price: 4.9, Category: "snacks"},
	}
}

func cheeseCatalog() []domain.CatalogProduct {
	return []domain.CatalogProduct{
		{ID: "c1", Name: "גבינה לבנה 5% 250 גרם", Brand: "תנובה", SizeValue: 250, SizeUnit: UnitGram, Price: 5.9},
		{ID: "c2", Name: "גבינת שמנת 250 גרם", Brand: "שטראוס", Price: 8.9},
		{ID: "c3", Name: "גבינה צהובה 200 גרם", Brand: "תנובה", SizeValue: 200, SizeUnit: UnitGram, Price: 12.9},
		{ID: "c4", Name: "חלב תנובה 3% 1 ליטר", Brand: "תנובה", SizeValue: 1, SizeUnit: UnitLiter, Price: 6.5},
	}
}

func TestNewCandidateGenerator(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		g := NewCandidateGenerator(CandidateConfig{}, nil)
		assert.Equal(t, DefaultAdmissionThreshold, g.admissionThreshold)
		assert.Equal(t, DefaultMaxCandidates, g.maxCandidates)
		assert.Len(t, g.categoryRules, len(DefaultCategoryRules))
		assert.NotNil(t, g.logger)
	})

	t.Run("keeps custom values", func(t *testing.T) {
		g := NewCandidateGenerator(CandidateConfig{AdmissionThreshold: 0.6, MaxCandidates: 3, CategoryRules: []CategoryRule{}}, nil)
		assert.Equal(t, 0.6, g.admissionThreshold)
		assert.Equal(t, 3, g.maxCandidates)
		assert.Empty(t, g.categoryRules)
	})
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	g := NewCandidateGenerator(CandidateConfig{}, nil)

	t.Run("ranks exact match first and drops weak products", func(t *testing.T) {
		item := domain.ParsedLineItem{Quantity: 2, Unit: domain.DefaultUnit, Description: "חלב תנובה 3% 1 ליטר"}

		candidates, err := g.Generate(ctx, item, milkCatalog())
		require.NoError(t, err)
		require.NotEmpty(t, candidates)

		assert.Equal(t, "p1", candidates[0].Product.ID)
		assert.Equal(t, 1.0, candidates[0].Score)
		assert.True(t, candidates[0].MatchDetails.BrandMatch)
		assert.True(t, candidates[0].MatchDetails.PercentageMatch)
		assert.True(t, candidates[0].MatchDetails.SizeMatch)
		assert.True(t, candidates[0].MatchDetails.UnitMatch)

		for i, c := range candidates {
			assert.NotEqual(t, "p3", c.Product.ID)
			assert.GreaterOrEqual(t, c.Score, DefaultAdmissionThreshold)
			assert.LessOrEqual(t, c.Score, 1.0)
			if i > 0 {
				assert.GreaterOrEqual(t, candidates[i-1].Score, c.Score)
			}
		}
	})

	t.Run("bonuses lift competitor above name score", func(t *testing.T) {
		item := domain.ParsedLineItem{Quantity: 1, Description: "חלב תנובה 3% 1 ליטר"}

		candidates, err := g.Generate(ctx, item, milkCatalog())
		require.NoError(t, err)

		var found bool
		for _, c := range candidates {
			if c.Product.ID != "p2" {
				continue
			}
			found = true
			assert.False(t, c.MatchDetails.BrandMatch)
			assert.True(t, c.MatchDetails.PercentageMatch)
			assert.Greater(t, c.Score, c.MatchDetails.NameScore)
		}
		assert.True(t, found, "expected p2 among candidates")
	})

	t.Run("caps result at max candidates", func(t *testing.T) {
		var catalog []domain.CatalogProduct
		for i := 1; i <= 8; i++ {
			catalog = append(catalog, domain.CatalogProduct{ID: fmt.Sprintf("m%d", i), Name: fmt.Sprintf("חלב %d", i), Price: 5})
		}

		candidates, err := g.Generate(ctx, domain.ParsedLineItem{Quantity: 1, Description: "חלב"}, catalog)
		require.NoError(t, err)
		assert.Len(t, candidates, DefaultMaxCandidates)

		small := NewCandidateGenerator(CandidateConfig{MaxCandidates: 2}, nil)
		candidates, err = small.Generate(ctx, domain.ParsedLineItem{Quantity: 1, Description: "חלב"}, catalog)
		require.NoError(t, err)
		assert.Len(t, candidates, 2)
	})

	t.Run("ties keep catalog order", func(t *testing.T) {
		catalog := []domain.CatalogProduct{
			{ID: "a", Name: "לחם 1"},
			{ID: "b", Name: "לחם 2"},
			{ID: "c", Name: "לחם 3"},
		}

		candidates, err := g.Generate(ctx, domain.ParsedLineItem{Quantity: 1, Description: "לחם"}, catalog)
		require.NoError(t, err)
		require.Len(t, candidates, 3)
		assert.Equal(t, "a", candidates[0].Product.ID)
		assert.Equal(t, "b", candidates[1].Product.ID)
		assert.Equal(t, "c", candidates[2].Product.ID)
	})

	t.Run("empty catalog returns empty list", func(t *testing.T) {
		candidates, err := g.Generate(ctx, domain.ParsedLineItem{Quantity: 1, Description: "חלב"}, nil)
		require.NoError(t, err)
		assert.NotNil(t, candidates)
		assert.Empty(t, candidates)
	})

	t.Run("no match returns empty list", func(t *testing.T) {
		candidates, err := g.Generate(ctx, domain.ParsedLineItem{Quantity: 1, Description: "xyz"}, milkCatalog())
		require.NoError(t, err)
		assert.NotNil(t, candidates)
		assert.Empty(t, candidates)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := g.Generate(cancelled, domain.ParsedLineItem{Quantity: 1, Description: "חלב"}, milkCatalog())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGenerateCheeseOverride(t *testing.T) {
	ctx := context.Background()
	g := NewCandidateGenerator(CandidateConfig{}, nil)

	t.Run("lists every cheese of the requested size", func(t *testing.T) {
		item := domain.ParsedLineItem{Quantity: 1, Description: "גבינה לבנה 250 גרם"}

		candidates, err := g.Generate(ctx, item, cheeseCatalog())
		require.NoError(t, err)
		require.Len(t, candidates, 2)

		ids := []string{candidates[0].Product.ID, candidates[1].Product.ID}
		assert.ElementsMatch(t, []string{"c1", "c2"}, ids)
		for _, c := range candidates {
			assert.Equal(t, 1.0, c.Score)
			assert.Equal(t, "cheese", c.MatchDetails.CategoryRule)
			assert.True(t, c.MatchDetails.SizeMatch)
		}
	})

	t.Run("size in kilograms matches grams", func(t *testing.T) {
		item := domain.ParsedLineItem{Quantity: 1, Description: "גבינה צהובה 0.2 ק\"ג"}

		candidates, err := g.Generate(ctx, item, cheeseCatalog())
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, "c3", candidates[0].Product.ID)
	})

	t.Run("without size falls back to general scoring", func(t *testing.T) {
		item := domain.ParsedLineItem{Quantity: 1, Description: "גבינה צהובה"}

		candidates, err := g.Generate(ctx, item, cheeseCatalog())
		require.NoError(t, err)
		require.NotEmpty(t, candidates)
		assert.Equal(t, "c3", candidates[0].Product.ID)
		for _, c := range candidates {
			assert.Empty(t, c.MatchDetails.CategoryRule)
		}
	})

	t.Run("override capped at max candidates", func(t *testing.T) {
		var catalog []domain.CatalogProduct
		for i := 0; i < 7; i++ {
			catalog = append(catalog, domain.CatalogProduct{ID: fmt.Sprintf("g%d", i), Name: fmt.Sprintf("גבינה סוג %d 250 גרם", i)})
		}

		candidates, err := g.Generate(ctx, domain.ParsedLineItem{Quantity: 1, Description: "גבינה 250 גרם"}, catalog)
		require.NoError(t, err)
		assert.Len(t, candidates, DefaultMaxCandidates)
	})
}
