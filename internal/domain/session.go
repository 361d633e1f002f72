package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of an order session
type SessionState string

const (
	StateCollecting        SessionState = "collecting"
	StateAwaitingSelection SessionState = "awaiting_selection"
	StateFinalizing        SessionState = "finalizing"
	StateClosed            SessionState = "closed"
)

// OrderLineItem is a confirmed cart line
type OrderLineItem struct {
	ID          string  `json:"id"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	UnitPrice   float64 `json:"unitPrice"`
	LineTotal   float64 `json:"lineTotal"`
}

// PendingChoice is a line item awaiting a user decision among Options
type PendingChoice struct {
	ID        string         `json:"id"`
	Item      ParsedLineItem `json:"item"`
	Options   []Candidate    `json:"options"`
	Reasoning string         `json:"reasoning,omitempty"`
}

// UnresolvedItem is a line item for which no viable candidate was found
type UnresolvedItem struct {
	ID   string         `json:"id"`
	Item ParsedLineItem `json:"item"`
}

// OrderCart is the aggregate handed to order persistence
type OrderCart struct {
	SessionID         string           `json:"sessionId"`
	ResolvedItems     []OrderLineItem  `json:"resolvedItems"`
	PendingSelections []PendingChoice  `json:"pendingSelections"`
	UnresolvedItems   []UnresolvedItem `json:"unresolvedItems"`
	Subtotal          float64          `json:"subtotal"`
}

// OrderSession tracks one list-building conversation.
// A session is owned by one caller at a time; see SessionRepository.Update.
type OrderSession struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	ResolvedItems     []OrderLineItem  `json:"resolvedItems"`
	PendingSelections []PendingChoice  `json:"pendingSelections"`
	UnresolvedItems   []UnresolvedItem `json:"unresolvedItems"`
}

// NewOrderSession creates a session in the Collecting state with empty lists
func NewOrderSession() *OrderSession {
	now := time.Now()
	return &OrderSession{
		ID:                uuid.NewString(),
		State:             StateCollecting,
		CreatedAt:         now,
		UpdatedAt:         now,
		ResolvedItems:     []OrderLineItem{},
		PendingSelections: []PendingChoice{},
		UnresolvedItems:   []UnresolvedItem{},
	}
}

// IsOpen reports whether the session still accepts list mutations
func (s *OrderSession) IsOpen() bool {
	return s.State == StateCollecting || s.State == StateAwaitingSelection
}

// Record appends resolved outcomes of one message to the matching list:
// Certain to resolved, NeedsSelection to pending, NotFound to unresolved.
func (s *OrderSession) Record(outcomes []ItemOutcome) error {
	if !s.IsOpen() {
		return ErrSessionFinalized
	}

	for _, o := range outcomes {
		id := uuid.NewString()
		switch o.Result.Status {
		case StatusCertain:
			if o.Result.ChosenProduct == nil {
				s.UnresolvedItems = append(s.UnresolvedItems, UnresolvedItem{ID: id, Item: o.Item})
				continue
			}
			s.ResolvedItems = append(s.ResolvedItems, newLineItem(id, o.Item, *o.Result.ChosenProduct))
		case StatusNeedsSelection:
			options := make([]Candidate, len(o.Result.Options))
			copy(options, o.Result.Options)
			s.PendingSelections = append(s.PendingSelections, PendingChoice{
				ID:        id,
				Item:      o.Item,
				Options:   options,
				Reasoning: o.Result.Reasoning,
			})
		default:
			s.UnresolvedItems = append(s.UnresolvedItems, UnresolvedItem{ID: id, Item: o.Item})
		}
	}

	s.syncState()
	return nil
}

// SelectOption resolves a pending choice with the option at optionIndex (0-based).
// The pending id becomes the resolved item id.
func (s *OrderSession) SelectOption(pendingID string, optionIndex int) (*OrderLineItem, error) {
	if !s.IsOpen() {
		return nil, ErrSessionFinalized
	}

	for i, pending := range s.PendingSelections {
		if pending.ID != pendingID {
			continue
		}
		if optionIndex < 0 || optionIndex >= len(pending.Options) {
			return nil, fmt.Errorf("%w: option %d out of range (0-%d)", ErrInvalidSelection, optionIndex, len(pending.Options)-1)
		}

		line := newLineItem(pending.ID, pending.Item, pending.Options[optionIndex].Product)
		s.ResolvedItems = append(s.ResolvedItems, line)
		s.PendingSelections = append(s.PendingSelections[:i], s.PendingSelections[i+1:]...)
		s.syncState()
		return &line, nil
	}

	return nil, fmt.Errorf("%w: unknown pending id %q", ErrInvalidSelection, pendingID)
}

// RemoveResolvedItem drops a resolved line. Unknown ids are ignored.
func (s *OrderSession) RemoveResolvedItem(itemID string) (bool, error) {
	if !s.IsOpen() {
		return false, ErrSessionFinalized
	}

	for i, line := range s.ResolvedItems {
		if line.ID == itemID {
			s.ResolvedItems = append(s.ResolvedItems[:i], s.ResolvedItems[i+1:]...)
			s.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

// Finalize moves the session to Finalizing and returns the cart snapshot.
// Fails with ErrPendingSelectionsRemain while choices are outstanding.
func (s *OrderSession) Finalize() (OrderCart, error) {
	switch s.State {
	case StateFinalizing:
		return s.Cart(), nil
	case StateClosed:
		return OrderCart{}, ErrSessionFinalized
	}

	if len(s.PendingSelections) > 0 {
		return OrderCart{}, fmt.Errorf("%w: %d pending", ErrPendingSelectionsRemain, len(s.PendingSelections))
	}

	s.State = StateFinalizing
	s.UpdatedAt = time.Now()
	return s.Cart(), nil
}

// Close marks a finalizing session as handed off to order persistence
func (s *OrderSession) Close() error {
	if s.State != StateFinalizing {
		return fmt.Errorf("cannot close session in state %s", s.State)
	}
	s.State = StateClosed
	s.UpdatedAt = time.Now()
	return nil
}

// Cart returns a deep copy of the session lists as an OrderCart
func (s *OrderSession) Cart() OrderCart {
	clone := s.Clone()
	return OrderCart{
		SessionID:         clone.ID,
		ResolvedItems:     clone.ResolvedItems,
		PendingSelections: clone.PendingSelections,
		UnresolvedItems:   clone.UnresolvedItems,
		Subtotal:          s.Subtotal(),
	}
}

// Subtotal sums resolved line totals
func (s *OrderSession) Subtotal() float64 {
	var subtotal float64
	for _, line := range s.ResolvedItems {
		subtotal += line.LineTotal
	}
	return roundPrice(subtotal)
}

// Clone returns a deep copy safe to hand to readers
func (s *OrderSession) Clone() *OrderSession {
	clone := *s
	clone.ResolvedItems = append([]OrderLineItem{}, s.ResolvedItems...)
	clone.UnresolvedItems = append([]UnresolvedItem{}, s.UnresolvedItems...)
	clone.PendingSelections = make([]PendingChoice, len(s.PendingSelections))
	for i, p := range s.PendingSelections {
		p.Options = append([]Candidate{}, p.Options...)
		clone.PendingSelections[i] = p
	}
	return &clone
}

func (s *OrderSession) syncState() {
	if len(s.PendingSelections) > 0 {
		s.State = StateAwaitingSelection
	} else {
		s.State = StateCollecting
	}
	s.UpdatedAt = time.Now()
}

func newLineItem(id string, item ParsedLineItem, product CatalogProduct) OrderLineItem {
	quantity := item.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	unit := item.Unit
	if unit == "" {
		unit = DefaultUnit
	}
	return OrderLineItem{
		ID:          id,
		Quantity:    quantity,
		Unit:        unit,
		ProductID:   product.ID,
		ProductName: product.Name,
		UnitPrice:   product.Price,
		LineTotal:   roundPrice(quantity * product.Price),
	}
}

func roundPrice(v float64) float64 {
	return math.Round(v*100) / 100
}
