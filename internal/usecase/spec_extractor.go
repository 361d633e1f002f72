package usecase

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/marketbuddy/backend/internal/domain"
)

// Canonical unit labels
const (
	UnitGram       = "גרם"
	UnitKilogram   = `ק"ג`
	UnitMilliliter = `מ"ל`
	UnitLiter      = "ליטר"
)

// sizeUnitAliases maps every accepted size unit spelling to its canonical label
var sizeUnitAliases = map[string]string{
	"גרם": UnitGram, "גר'": UnitGram, "גר": UnitGram, "ג'": UnitGram, "gram": UnitGram, "gr": UnitGram,
	`ק"ג`: UnitKilogram, "ק״ג": UnitKilogram, "קג": UnitKilogram, "קילו": UnitKilogram, "קילוגרם": UnitKilogram, "kg": UnitKilogram,
	`מ"ל`: UnitMilliliter, "מ״ל": UnitMilliliter, "מל": UnitMilliliter, "מיליליטר": UnitMilliliter, "ml": UnitMilliliter,
	"ליטר": UnitLiter, "ליטרים": UnitLiter, "ל'": UnitLiter, "liter": UnitLiter,
}

// countUnitAliases are spellings of the default piece unit
var countUnitAliases = map[string]bool{
	"יחידה": true, "יחידות": true, "יח'": true, "יח": true,
}

// baseUnits converts canonical size units to a shared base for comparison
var baseUnits = map[string]struct {
	base   string
	factor float64
}{
	UnitGram:       {UnitGram, 1},
	UnitKilogram:   {UnitGram, 1000},
	UnitMilliliter: {UnitMilliliter, 1},
	UnitLiter:      {UnitMilliliter, 1000},
}

// KnownBrands is checked in order; the first brand found in a description wins
var KnownBrands = []string{
	"תנובה", "שטראוס", "טרה", "יטבתה", "שופרסל", "אסם", "עלית", "תלמה",
	"נסטלה", "זוגלובק", "מאמא עוף", "עוף טוב", "טירת צבי", "ויסוצקי", "פרי ניר",
	"סוגת", "וילי פוד", "אנג'ל", "ברמן", "מחלבות רמת הגולן", "גלעם",
}

var (
	// Matches "3%", "1.5 %"
	percentagePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

	// Matches a number followed by a size unit that is not the prefix of a longer Hebrew word
	sizePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(` + aliasAlternation(sizeUnitAliases) + `)(?:$|[^\p{Hebrew}a-z])`)
)

// Specs holds attributes extracted from a free-text description
type Specs struct {
	Percentage    float64
	HasPercentage bool
	Size          float64 // 0 when absent
	SizeUnit      string  // Canonical label
	Brand         string
}

// HasSize reports whether a size+unit was extracted
func (s Specs) HasSize() bool {
	return s.Size > 0 && s.SizeUnit != ""
}

// SameSize compares the extracted size to value/unit after base-unit conversion
func (s Specs) SameSize(value float64, unit string) bool {
	if !s.HasSize() || value <= 0 || unit == "" {
		return false
	}
	a, okA := toBaseUnit(s.Size, s.SizeUnit)
	b, okB := toBaseUnit(value, CanonicalUnit(unit))
	if !okA || !okB || a.unit != b.unit {
		return false
	}
	return floatEquals(a.value, b.value)
}

// ExtractSpecs pulls percentage, size+unit and brand out of a description.
// Missing attributes are left at their zero values.
func ExtractSpecs(description string) Specs {
	var specs Specs
	text := normalizeText(description)
	if text == "" {
		return specs
	}

	if m := percentagePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			specs.Percentage = v
			specs.HasPercentage = true
		}
	}

	if m := sizePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			specs.Size = v
			specs.SizeUnit = sizeUnitAliases[m[2]]
		}
	}

	for _, brand := range KnownBrands {
		if strings.Contains(text, brand) {
			specs.Brand = brand
			break
		}
	}

	return specs
}

// CanonicalUnit maps a unit spelling to its canonical label.
// Unknown units come back normalized but otherwise unchanged.
func CanonicalUnit(unit string) string {
	u := normalizeText(unit)
	if canonical, ok := sizeUnitAliases[u]; ok {
		return canonical
	}
	if countUnitAliases[u] {
		return domain.DefaultUnit
	}
	return u
}

type baseQuantity struct {
	value float64
	unit  string
}

func toBaseUnit(value float64, canonical string) (baseQuantity, bool) {
	b, ok := baseUnits[canonical]
	if !ok {
		return baseQuantity{}, false
	}
	return baseQuantity{value: value * b.factor, unit: b.base}, true
}

func floatEquals(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}

// aliasAlternation builds a regex alternation with longer aliases first so that
// leftmost-first matching prefers "גרם" over "גר"
func aliasAlternation(aliases map[string]string) string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := len([]rune(keys[i])), len([]rune(keys[j]))
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return strings.Join(quoted, "|")
}
