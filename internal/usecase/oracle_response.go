package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/marketbuddy/backend/internal/domain"
)

var (
	// Matches ```json ... ``` and ``` ... ``` blocks
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\n?(.*?)\\n?[ \\t]*```")

	// Matches the outermost {...} block in free text
	bareObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// unwrapOracleJSON strips code fences or surrounding prose from an oracle response
func unwrapOracleJSON(raw string) (string, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", fmt.Errorf("%w: empty response", domain.ErrOracleResponseMalformed)
	}

	if m := fencedJSONPattern.FindStringSubmatch(content); m != nil {
		content = strings.TrimSpace(m[1])
	}

	if !json.Valid([]byte(content)) {
		if obj := bareObjectPattern.FindString(content); obj != "" {
			content = obj
		}
	}

	if !json.Valid([]byte(content)) {
		return "", fmt.Errorf("%w: response is not JSON", domain.ErrOracleResponseMalformed)
	}
	return content, nil
}

// verdictPayload is the wire shape of the selection oracle's answer.
// Indices are decoded as floats because models sometimes emit 1.0.
type verdictPayload struct {
	SelectedIndices *[]float64 `json:"selectedIndices"`
	SelectedIndex   *float64   `json:"selectedIndex"`
	Confidence      *float64   `json:"confidence"`
	Reasoning       string     `json:"reasoning"`
	NoMatch         bool       `json:"noMatch"`
}

// ParseVerdict validates a raw selection oracle response. Any shape problem is
// reported as ErrOracleResponseMalformed; untyped data never leaves this function.
func ParseVerdict(raw string) (domain.OracleVerdict, error) {
	content, err := unwrapOracleJSON(raw)
	if err != nil {
		return domain.OracleVerdict{}, err
	}

	var payload verdictPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return domain.OracleVerdict{}, fmt.Errorf("%w: %v", domain.ErrOracleResponseMalformed, err)
	}

	if payload.Confidence == nil {
		return domain.OracleVerdict{}, fmt.Errorf("%w: missing confidence", domain.ErrOracleResponseMalformed)
	}
	if payload.SelectedIndices == nil && payload.SelectedIndex == nil && !payload.NoMatch {
		return domain.OracleVerdict{}, fmt.Errorf("%w: missing selectedIndices", domain.ErrOracleResponseMalformed)
	}

	var raws []float64
	if payload.SelectedIndices != nil {
		raws = *payload.SelectedIndices
	} else if payload.SelectedIndex != nil {
		raws = []float64{*payload.SelectedIndex}
	}

	indices := make([]int, 0, len(raws))
	for _, v := range raws {
		if v != math.Trunc(v) {
			return domain.OracleVerdict{}, fmt.Errorf("%w: non-integer index %v", domain.ErrOracleResponseMalformed, v)
		}
		// 0 is the "no match" index
		if v == 0 {
			continue
		}
		indices = append(indices, int(v))
	}

	return domain.OracleVerdict{
		SelectedIndices: indices,
		Confidence:      clampScore(*payload.Confidence),
		Reasoning:       strings.TrimSpace(payload.Reasoning),
		NoMatch:         payload.NoMatch,
	}, nil
}
