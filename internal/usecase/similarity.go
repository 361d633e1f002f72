package usecase

import (
	"strings"
)

// Similarity scoring constants
const (
	substringMatchBonus  = 0.2 // One normalized string fully contains the other
	wordContainmentScore = 0.9 // Fixed score when a word-containment rule is satisfied
)

// SimilarityRule short-circuits edit distance for a family of product names.
// Apply returns the score and true when the rule decides the pair.
type SimilarityRule struct {
	Name    string
	Markers []string
	Apply   func(a, b string) (float64, bool)
}

// poultryMarkers name meat/poultry products whose titles vary in word order and suffixes
var poultryMarkers = []string{
	"עוף", "פרגית", "פרגיות", "בשר", "הודו", "שניצל", "כנפיים", "שוקיים", "חזה",
}

// DefaultSimilarityRules is the rule table consulted before edit distance
var DefaultSimilarityRules = []SimilarityRule{
	{
		Name:    "poultry",
		Markers: poultryMarkers,
		Apply: func(a, b string) (float64, bool) {
			if wordsContained(a, b) {
				return wordContainmentScore, true
			}
			return 0, false
		},
	},
}

// SimilarityEngine scores free-text descriptions against catalog names
type SimilarityEngine struct {
	rules []SimilarityRule
}

// NewSimilarityEngine creates an engine with the given rule table (nil uses the defaults)
func NewSimilarityEngine(rules []SimilarityRule) *SimilarityEngine {
	if rules == nil {
		rules = DefaultSimilarityRules
	}
	return &SimilarityEngine{rules: rules}
}

// Similarity returns a score in [0,1] between two strings.
// Every step is order-independent, so Similarity(a, b) == Similarity(b, a).
func (e *SimilarityEngine) Similarity(a, b string) float64 {
	na := normalizeText(a)
	nb := normalizeText(b)

	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	for _, rule := range e.rules {
		if !containsAnyMarker(na, rule.Markers) && !containsAnyMarker(nb, rule.Markers) {
			continue
		}
		if score, ok := rule.Apply(na, nb); ok {
			return score
		}
	}

	ra := []rune(na)
	rb := []rune(nb)
	maxLen := max(len(ra), len(rb))
	score := 1 - float64(levenshteinDistance(na, nb))/float64(maxLen)

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		score += substringMatchBonus
	}

	return clampScore(score)
}

// normalizeText lowercases, trims and collapses whitespace
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// containsAnyMarker checks whether s contains one of the marker terms
func containsAnyMarker(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// wordsContained checks that every token of the shorter string is a substring of
// some token of the longer one. Equal lengths are checked in both directions.
func wordsContained(a, b string) bool {
	la := len([]rune(a))
	lb := len([]rune(b))
	switch {
	case la < lb:
		return tokensContainedIn(a, b)
	case lb < la:
		return tokensContainedIn(b, a)
	default:
		return tokensContainedIn(a, b) || tokensContainedIn(b, a)
	}
}

func tokensContainedIn(shorter, longer string) bool {
	shortTokens := strings.Fields(shorter)
	longTokens := strings.Fields(longer)
	if len(shortTokens) == 0 {
		return false
	}

	for _, st := range shortTokens {
		found := false
		for _, lt := range longTokens {
			if strings.Contains(lt, st) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// Use two rows instead of full matrix for space efficiency
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

func clampScore(score float64) float64 {
	if score > 1.0 {
		return 1.0
	}
	if score < 0 {
		return 0
	}
	return score
}
