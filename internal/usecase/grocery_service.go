package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/marketbuddy/backend/internal/domain"
)

// GroceryServiceConfig holds configuration for the grocery service
type GroceryServiceConfig struct {
	Candidates      CandidateConfig
	Policy          PolicyConfig
	MaxOptionsShown int
}

// MessageOutcome is the result of adding one message to a session
type MessageOutcome struct {
	Session *domain.OrderSession `json:"session"`
	Items   []domain.ItemOutcome `json:"items"`
	Summary domain.ListSummary   `json:"summary"`
}

// FinalizedOrder is a cart handed off to order persistence
type FinalizedOrder struct {
	OrderID string               `json:"orderId"`
	Session *domain.OrderSession `json:"session"`
	Cart    domain.OrderCart     `json:"cart"`
}

// GroceryService runs the list matching pipeline and the session operations
type GroceryService struct {
	catalog   domain.CatalogStore
	parser    *ListParser
	generator *CandidateGenerator
	policy    *ResolutionPolicy
	renderer  *Renderer
	sessions  domain.SessionRepository
	orders    domain.OrderRepository
	logger    *zap.Logger
}

// NewGroceryService creates a grocery service with dependencies. Either oracle may
// be nil, in which case the local fallbacks are used.
func NewGroceryService(
	catalog domain.CatalogStore,
	textOracle domain.TextOracle,
	selectionOracle domain.SelectionOracle,
	sessions domain.SessionRepository,
	orders domain.OrderRepository,
	config GroceryServiceConfig,
	logger *zap.Logger,
) *GroceryService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GroceryService{
		catalog:   catalog,
		parser:    NewListParser(textOracle, logger.Named("parser")),
		generator: NewCandidateGenerator(config.Candidates, logger.Named("candidates")),
		policy:    NewResolutionPolicy(selectionOracle, config.Policy, logger.Named("policy")),
		renderer:  NewRenderer(config.MaxOptionsShown),
		sessions:  sessions,
		orders:    orders,
		logger:    logger,
	}
}

// ProcessList parses and resolves a message without touching any session.
// Flow: parse -> load catalog -> per item (in order): candidates -> resolve -> render
func (s *GroceryService) ProcessList(ctx context.Context, message string) (*domain.ProcessedList, error) {
	if strings.TrimSpace(message) == "" {
		return nil, domain.ErrInvalidRequest
	}

	outcomes, err := s.processMessage(ctx, message)
	if err != nil {
		return nil, err
	}

	return &domain.ProcessedList{
		Items:   outcomes,
		Summary: domain.Summarize(outcomes),
	}, nil
}

// StartSession creates an empty session in the Collecting state
func (s *GroceryService) StartSession(ctx context.Context) (*domain.OrderSession, error) {
	session := domain.NewOrderSession()
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session started", zap.String("session_id", session.ID))
	return session.Clone(), nil
}

// GetSession returns a snapshot of a session
func (s *GroceryService) GetSession(ctx context.Context, sessionID string) (*domain.OrderSession, error) {
	return s.sessions.Get(ctx, sessionID)
}

// AddMessage runs the pipeline for one message and records every outcome in the session
func (s *GroceryService) AddMessage(ctx context.Context, sessionID, message string) (*MessageOutcome, error) {
	if strings.TrimSpace(message) == "" {
		return nil, domain.ErrInvalidRequest
	}

	var outcome MessageOutcome
	err := s.sessions.Update(ctx, sessionID, func(session *domain.OrderSession) error {
		if !session.IsOpen() {
			return domain.ErrSessionFinalized
		}

		outcomes, err := s.processMessage(ctx, message)
		if err != nil {
			return err
		}
		if err := session.Record(outcomes); err != nil {
			return err
		}

		outcome = MessageOutcome{
			Session: session.Clone(),
			Items:   outcomes,
			Summary: domain.Summarize(outcomes),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("message added",
		zap.String("session_id", sessionID),
		zap.Int("items", outcome.Summary.TotalItems),
		zap.Int("certain", outcome.Summary.CertainItems),
		zap.Int("pending", outcome.Summary.PendingItems),
		zap.Int("not_found", outcome.Summary.NotFoundItems))

	return &outcome, nil
}

// SelectOption resolves a pending choice with the option at optionIndex (0-based)
func (s *GroceryService) SelectOption(ctx context.Context, sessionID, pendingID string, optionIndex int) (*domain.OrderSession, error) {
	var snapshot *domain.OrderSession
	err := s.sessions.Update(ctx, sessionID, func(session *domain.OrderSession) error {
		if _, err := session.SelectOption(pendingID, optionIndex); err != nil {
			return err
		}
		snapshot = session.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("option selected",
		zap.String("session_id", sessionID),
		zap.String("pending_id", pendingID),
		zap.Int("option_index", optionIndex))

	return snapshot, nil
}

// RemoveResolvedItem drops a resolved line; unknown item ids are ignored
func (s *GroceryService) RemoveResolvedItem(ctx context.Context, sessionID, itemID string) (*domain.OrderSession, error) {
	var snapshot *domain.OrderSession
	err := s.sessions.Update(ctx, sessionID, func(session *domain.OrderSession) error {
		removed, err := session.RemoveResolvedItem(itemID)
		if err != nil {
			return err
		}
		if removed {
			s.logger.Info("item removed", zap.String("session_id", sessionID), zap.String("item_id", itemID))
		}
		snapshot = session.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Finalize hands the cart to order persistence and closes the session.
// If saving fails the session is left as it was and finalize may be retried.
func (s *GroceryService) Finalize(ctx context.Context, sessionID string) (*FinalizedOrder, error) {
	var finalized FinalizedOrder
	err := s.sessions.Update(ctx, sessionID, func(session *domain.OrderSession) error {
		cart, err := session.Finalize()
		if err != nil {
			return err
		}

		orderID, err := s.orders.Save(ctx, cart)
		if err != nil {
			return fmt.Errorf("failed to save order: %w", err)
		}

		if err := session.Close(); err != nil {
			return err
		}

		finalized = FinalizedOrder{
			OrderID: orderID,
			Session: session.Clone(),
			Cart:    cart,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("session finalized",
		zap.String("session_id", sessionID),
		zap.String("order_id", finalized.OrderID),
		zap.Int("lines", len(finalized.Cart.ResolvedItems)),
		zap.Float64("subtotal", finalized.Cart.Subtotal))

	return &finalized, nil
}

// processMessage parses a message and resolves its items one at a time, in order.
// Items are never resolved concurrently so oracle calls stay sequential.
func (s *GroceryService) processMessage(ctx context.Context, message string) ([]domain.ItemOutcome, error) {
	items := s.parser.Parse(ctx, message)
	if len(items) == 0 {
		return []domain.ItemOutcome{}, nil
	}

	catalog, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCatalogUnavailable, err)
	}

	outcomes := make([]domain.ItemOutcome, 0, len(items))
	for _, item := range items {
		candidates, err := s.generator.Generate(ctx, item, catalog)
		if err != nil {
			return nil, err
		}

		result := s.policy.Resolve(ctx, item, candidates)
		outcomes = append(outcomes, domain.ItemOutcome{
			Item:    item,
			Result:  result,
			Message: s.renderer.Render(item, result),
		})
	}

	return outcomes, nil
}
