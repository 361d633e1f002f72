package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketbuddy/backend/internal/domain"
)

const sampleCSV = `id,name,brand,size_value,size_unit,unit_measure,price,category
1001,חלב תנובה 3% 1 ליטר,תנובה,1,ליטר,יחידה,6.50,dairy
1014,עגבניות,,,,ק"ג,7.90,vegetables
`

func writeCatalog(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadProducts(t *testing.T) {
	t.Run("maps columns by header", func(t *testing.T) {
		products, skipped, err := ReadProducts(strings.NewReader(sampleCSV))
		require.NoError(t, err)
		assert.Zero(t, skipped)
		require.Len(t, products, 2)

		assert.Equal(t, domain.CatalogProduct{
			ID:          "1001",
			Name:        "חלב תנובה 3% 1 ליטר",
			Brand:       "תנובה",
			SizeValue:   1,
			SizeUnit:    "ליטר",
			UnitMeasure: "יחידה",
			Price:       6.5,
			Category:    "dairy",
		}, products[0])

		assert.Equal(t, `ק"ג`, products[1].UnitMeasure)
		assert.Zero(t, products[1].SizeValue)
		assert.Empty(t, products[1].Brand)
	})

	t.Run("accepts aliases in any order", func(t *testing.T) {
		csv := "Price,Product,Brand\n4.90,במבה,אסם\n"

		products, _, err := ReadProducts(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "במבה", products[0].Name)
		assert.Equal(t, "אסם", products[0].Brand)
		assert.Equal(t, 4.9, products[0].Price)
		assert.Equal(t, "row-2", products[0].ID)
	})

	t.Run("strips byte order mark", func(t *testing.T) {
		csv := "\ufeffname,price\nלחם,7.40\n"

		products, _, err := ReadProducts(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, products, 1)
	})

	t.Run("skips rows without name or valid price", func(t *testing.T) {
		csv := "name,price\n,5\nחלב,abc\nלחם,0\nביצים,-1\nקמח,5.40\n"

		products, skipped, err := ReadProducts(strings.NewReader(csv))
		require.NoError(t, err)
		assert.Equal(t, 4, skipped)
		require.Len(t, products, 1)
		assert.Equal(t, "קמח", products[0].Name)
	})

	t.Run("short rows are tolerated", func(t *testing.T) {
		csv := "name,price,brand,category\nחלב,6.5\n"

		products, _, err := ReadProducts(strings.NewReader(csv))
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Empty(t, products[0].Category)
	})

	t.Run("empty input is an empty catalog", func(t *testing.T) {
		products, _, err := ReadProducts(strings.NewReader(""))
		require.NoError(t, err)
		assert.NotNil(t, products)
		assert.Empty(t, products)
	})

	t.Run("missing required columns", func(t *testing.T) {
		_, _, err := ReadProducts(strings.NewReader("name,brand\nחלב,תנובה\n"))
		assert.Error(t, err)

		_, _, err = ReadProducts(strings.NewReader("price,brand\n5,תנובה\n"))
		assert.Error(t, err)
	})
}

func TestCSVStore(t *testing.T) {
	ctx := context.Background()

	t.Run("lazy loads on first list", func(t *testing.T) {
		store := NewCSVStore(writeCatalog(t, t.TempDir(), sampleCSV), nil)
		assert.Zero(t, store.Size())

		products, err := store.ListProducts(ctx)
		require.NoError(t, err)
		assert.Len(t, products, 2)
		assert.Equal(t, 2, store.Size())
	})

	t.Run("returns a copy", func(t *testing.T) {
		store := NewCSVStore(writeCatalog(t, t.TempDir(), sampleCSV), nil)

		products, err := store.ListProducts(ctx)
		require.NoError(t, err)
		products[0].Name = "changed"

		again, err := store.ListProducts(ctx)
		require.NoError(t, err)
		assert.Equal(t, "חלב תנובה 3% 1 ליטר", again[0].Name)
	})

	t.Run("reloads when the file changes", func(t *testing.T) {
		path := writeCatalog(t, t.TempDir(), sampleCSV)
		store := NewCSVStore(path, nil)
		require.NoError(t, store.Load(ctx))

		require.NoError(t, os.WriteFile(path, []byte(sampleCSV+"1017,במבה 80 גרם,אסם,80,גרם,יחידה,4.90,snacks\n"), 0o644))
		future := time.Now().Add(time.Minute)
		require.NoError(t, os.Chtimes(path, future, future))

		products, err := store.ListProducts(ctx)
		require.NoError(t, err)
		assert.Len(t, products, 3)
	})

	t.Run("keeps cached copy when reload fails", func(t *testing.T) {
		path := writeCatalog(t, t.TempDir(), sampleCSV)
		store := NewCSVStore(path, nil)
		require.NoError(t, store.Load(ctx))

		require.NoError(t, os.WriteFile(path, []byte("brand\nx\n"), 0o644))
		future := time.Now().Add(time.Minute)
		require.NoError(t, os.Chtimes(path, future, future))

		products, err := store.ListProducts(ctx)
		require.NoError(t, err)
		assert.Len(t, products, 2)
	})

	t.Run("missing file fails", func(t *testing.T) {
		store := NewCSVStore(filepath.Join(t.TempDir(), "missing.csv"), nil)

		_, err := store.ListProducts(ctx)
		assert.Error(t, err)
	})

	t.Run("sample catalog parses", func(t *testing.T) {
		store := NewCSVStore(filepath.Join("..", "..", "..", "data", "catalog.csv"), nil)

		products, err := store.ListProducts(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, products)
		for _, p := range products {
			assert.NotEmpty(t, p.ID)
			assert.Greater(t, p.Price, 0.0)
		}
	})
}
