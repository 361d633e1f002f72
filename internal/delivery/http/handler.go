package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marketbuddy/backend/internal/domain"
	"github.com/marketbuddy/backend/internal/usecase"
)

// GroceryUsecase is the application surface the handlers drive
type GroceryUsecase interface {
	ProcessList(ctx context.Context, message string) (*domain.ProcessedList, error)
	StartSession(ctx context.Context) (*domain.OrderSession, error)
	GetSession(ctx context.Context, sessionID string) (*domain.OrderSession, error)
	AddMessage(ctx context.Context, sessionID, message string) (*usecase.MessageOutcome, error)
	SelectOption(ctx context.Context, sessionID, pendingID string, optionIndex int) (*domain.OrderSession, error)
	RemoveResolvedItem(ctx context.Context, sessionID, itemID string) (*domain.OrderSession, error)
	Finalize(ctx context.Context, sessionID string) (*usecase.FinalizedOrder, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service GroceryUsecase
	logger  *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service GroceryUsecase, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

type messageRequest struct {
	Message string `json:"message" binding:"required"`
}

type selectionRequest struct {
	PendingID   string `json:"pendingId" binding:"required"`
	OptionIndex *int   `json:"optionIndex" binding:"required"` // 0-based index into the pending options
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "marketbuddy-backend",
		"version": "1.0.0",
	})
}

// ProcessList matches a grocery list message without creating a session
func (h *Handler) ProcessList(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.service.ProcessList(c.Request.Context(), req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// StartSession opens a new order session
func (h *Handler) StartSession(c *gin.Context) {
	if !h.available(c) {
		return
	}

	session, err := h.service.StartSession(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// GetSession returns the current state of a session
func (h *Handler) GetSession(c *gin.Context) {
	if !h.available(c) {
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// AddMessage processes a message into an existing session
func (h *Handler) AddMessage(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	outcome, err := h.service.AddMessage(c.Request.Context(), c.Param("sessionId"), req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// SelectOption resolves a pending choice
func (h *Handler) SelectOption(c *gin.Context) {
	if !h.available(c) {
		return
	}

	var req selectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	session, err := h.service.SelectOption(c.Request.Context(), c.Param("sessionId"), req.PendingID, *req.OptionIndex)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// RemoveItem drops a resolved line from a session
func (h *Handler) RemoveItem(c *gin.Context) {
	if !h.available(c) {
		return
	}

	session, err := h.service.RemoveResolvedItem(c.Request.Context(), c.Param("sessionId"), c.Param("itemId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Finalize hands the session cart to order persistence
func (h *Handler) Finalize(c *gin.Context) {
	if !h.available(c) {
		return
	}

	order, err := h.service.Finalize(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) available(c *gin.Context) bool {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Grocery service not configured",
		})
		return false
	}
	return true
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   domain.ErrInvalidRequest.Error(),
		"details": err.Error(),
	})
}

// writeError maps domain errors to HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSelection):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPendingSelectionsRemain), errors.Is(err, domain.ErrSessionFinalized):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrCatalogUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
