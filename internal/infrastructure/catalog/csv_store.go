package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketbuddy/backend/internal/domain"
)

// Column aliases accepted in the header row (lower-cased)
var columnAliases = map[string][]string{
	"id":          {"id", "product_id", "sku", "barcode"},
	"name":        {"name", "product", "product_name"},
	"brand":       {"brand", "manufacturer"},
	"sizeValue":   {"size_value", "size", "quantity"},
	"sizeUnit":    {"size_unit"},
	"unitMeasure": {"unit_measure", "unit"},
	"price":       {"price"},
	"category":    {"category"},
}

// CSVStore serves the product catalog from a CSV file. The file is re-read
// when its modification time changes.
type CSVStore struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	products []domain.CatalogProduct
	modTime  time.Time
	loaded   bool
}

// NewCSVStore creates a store for the CSV file at path. Nothing is read until
// Load or ListProducts is called.
func NewCSVStore(path string, logger *zap.Logger) *CSVStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVStore{path: path, logger: logger}
}

// Load reads the catalog file, replacing the cached products
func (s *CSVStore) Load(ctx context.Context) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat catalog: %w", err)
	}

	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()

	products, skipped, err := ReadProducts(file)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.products = products
	s.modTime = info.ModTime()
	s.loaded = true
	s.mu.Unlock()

	s.logger.Info("catalog loaded",
		zap.String("path", s.path),
		zap.Int("products", len(products)),
		zap.Int("skipped_rows", skipped))
	return nil
}

// ListProducts returns a copy of the full catalog, reloading it if the file changed
func (s *CSVStore) ListProducts(ctx context.Context) ([]domain.CatalogProduct, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.stale() {
		if err := s.Load(ctx); err != nil {
			s.mu.RLock()
			loaded := s.loaded
			s.mu.RUnlock()
			if !loaded {
				return nil, err
			}
			s.logger.Warn("catalog reload failed, serving cached copy", zap.Error(err))
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CatalogProduct{}, s.products...), nil
}

// Size returns the number of cached products
func (s *CSVStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

func (s *CSVStore) stale() bool {
	s.mu.RLock()
	loaded, modTime := s.loaded, s.modTime
	s.mu.RUnlock()

	if !loaded {
		return true
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return false
	}
	return !info.ModTime().Equal(modTime)
}

// ReadProducts parses catalog rows from CSV. The first row is the header; name and
// price columns are required. Rows without a name or with a non-positive price are
// skipped and counted.
func ReadProducts(r io.Reader) ([]domain.CatalogProduct, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	// Hebrew abbreviations such as ק"ג carry bare quotes
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []domain.CatalogProduct{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read catalog header: %w", err)
	}

	columns := mapColumns(header)
	if _, ok := columns["name"]; !ok {
		return nil, 0, errors.New("catalog header has no name column")
	}
	if _, ok := columns["price"]; !ok {
		return nil, 0, errors.New("catalog header has no price column")
	}

	products := []domain.CatalogProduct{}
	skipped := 0
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read catalog line %d: %w", line, err)
		}

		product, ok := rowToProduct(row, columns)
		if !ok {
			skipped++
			continue
		}
		if product.ID == "" {
			product.ID = fmt.Sprintf("row-%d", line)
		}
		products = append(products, product)
	}

	return products, skipped, nil
}

// mapColumns maps logical fields to header indices
func mapColumns(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}

	columns := make(map[string]int)
	for field, aliases := range columnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				columns[field] = i
				break
			}
		}
	}
	return columns
}

func rowToProduct(row []string, columns map[string]int) (domain.CatalogProduct, bool) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	name := field("name")
	price, err := strconv.ParseFloat(field("price"), 64)
	if name == "" || err != nil || price <= 0 {
		return domain.CatalogProduct{}, false
	}

	var sizeValue float64
	if v, err := strconv.ParseFloat(field("sizeValue"), 64); err == nil && v > 0 {
		sizeValue = v
	}

	return domain.CatalogProduct{
		ID:          field("id"),
		Name:        name,
		Brand:       field("brand"),
		SizeValue:   sizeValue,
		SizeUnit:    field("sizeUnit"),
		UnitMeasure: field("unitMeasure"),
		Price:       price,
		Category:    field("category"),
	}, true
}
