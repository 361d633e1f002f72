package domain

import "context"

// CatalogStore provides the full product catalog; no filtering is pushed down
type CatalogStore interface {
	ListProducts(ctx context.Context) ([]CatalogProduct, error)
}

// TextOracle turns a free-text message into a raw (possibly fenced) JSON response
type TextOracle interface {
	ParseFreeText(ctx context.Context, message, instructions string) (string, error)
}

// SelectionOracle picks the best candidates for a disambiguation prompt
type SelectionOracle interface {
	SelectBest(ctx context.Context, prompt string) (string, error)
}

// SessionRepository stores order sessions. Update runs fn with exclusive access to
// the stored session; at most one Update per session id is in flight.
type SessionRepository interface {
	Create(ctx context.Context, session *OrderSession) error
	Get(ctx context.Context, id string) (*OrderSession, error)
	Update(ctx context.Context, id string, fn func(*OrderSession) error) error
	Delete(ctx context.Context, id string) error
}

// OrderRepository accepts finalized carts for persistence
type OrderRepository interface {
	Save(ctx context.Context, cart OrderCart) (string, error)
	Get(ctx context.Context, orderID string) (*OrderCart, error)
}
