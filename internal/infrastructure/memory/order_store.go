package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/marketbuddy/backend/internal/domain"
)

// ErrOrderNotFound is returned for unknown order ids
var ErrOrderNotFound = errors.New("order not found")

// OrderStore keeps finalized carts in memory
type OrderStore struct {
	orders map[string]domain.OrderCart
	mutex  sync.RWMutex
}

// NewOrderStore creates an empty order store
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.OrderCart)}
}

// Save stores a copy of the cart under a new order id
func (s *OrderStore) Save(ctx context.Context, cart domain.OrderCart) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.orders[id] = copyCart(cart)
	return id, nil
}

// Get returns a copy of a stored cart
func (s *OrderStore) Get(ctx context.Context, orderID string) (*domain.OrderCart, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	cart, ok := s.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	c := copyCart(cart)
	return &c, nil
}

// Size returns the number of stored orders
func (s *OrderStore) Size() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.orders)
}

func copyCart(cart domain.OrderCart) domain.OrderCart {
	cart.ResolvedItems = append([]domain.OrderLineItem{}, cart.ResolvedItems...)
	cart.UnresolvedItems = append([]domain.UnresolvedItem{}, cart.UnresolvedItems...)
	pending := make([]domain.PendingChoice, len(cart.PendingSelections))
	for i, p := range cart.PendingSelections {
		p.Options = append([]domain.Candidate{}, p.Options...)
		pending[i] = p
	}
	cart.PendingSelections = pending
	return cart
}
