package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marketbuddy/backend/internal/domain"
)

// DefaultMaxOptionsShown caps the options listed in a multiple-choice prompt
const DefaultMaxOptionsShown = 5

// Renderer turns resolution results into user-facing Hebrew messages
type Renderer struct {
	maxOptions int
}

// NewRenderer creates a renderer listing at most maxOptions options (3-5)
func NewRenderer(maxOptions int) *Renderer {
	if maxOptions < 3 || maxOptions > 5 {
		maxOptions = DefaultMaxOptionsShown
	}
	return &Renderer{maxOptions: maxOptions}
}

// Render returns a confirmation line, a multiple-choice prompt or a not-found notice
func (r *Renderer) Render(item domain.ParsedLineItem, result domain.ResolutionResult) string {
	switch result.Status {
	case domain.StatusCertain:
		if result.ChosenProduct == nil {
			return r.notFound(item)
		}
		p := result.ChosenProduct
		return fmt.Sprintf("נוסף לעגלה: %s %s %s (%s ₪)",
			formatQuantity(item.Quantity), item.Unit, p.Name, formatPrice(p.Price))

	case domain.StatusNeedsSelection:
		var b strings.Builder
		fmt.Fprintf(&b, "מצאנו כמה אפשרויות עבור \"%s\", בחרו אחת:", item.Description)
		for i, c := range result.Options {
			if i >= r.maxOptions {
				break
			}
			fmt.Fprintf(&b, "\n%d. %s", i+1, optionLabel(c.Product))
		}
		return b.String()

	default:
		return r.notFound(item)
	}
}

func (r *Renderer) notFound(item domain.ParsedLineItem) string {
	return fmt.Sprintf("לא מצאנו את \"%s\". נסו לנסח מחדש.", item.Description)
}

func optionLabel(p domain.CatalogProduct) string {
	var details []string
	if p.Brand != "" {
		details = append(details, p.Brand)
	}
	if p.SizeValue > 0 {
		details = append(details, strings.TrimSpace(formatQuantity(p.SizeValue)+" "+p.SizeUnit))
	}

	label := p.Name
	if len(details) > 0 {
		label += " (" + strings.Join(details, ", ") + ")"
	}
	return label + " - " + formatPrice(p.Price) + " ₪"
}

func formatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
