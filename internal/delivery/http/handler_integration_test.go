package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/marketbuddy/backend/config"
	"github.com/marketbuddy/backend/internal/domain"
	"github.com/marketbuddy/backend/internal/infrastructure/catalog"
	"github.com/marketbuddy/backend/internal/infrastructure/memory"
	"github.com/marketbuddy/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)

	os.Exit(m.Run())
}

const testCatalog = `id,name,brand,price
p1,חלב תנובה 3%,תנובה,6.5
p2,חלב טרה 3%,טרה,6.3
`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"http://localhost:*"},
		},
	}
}

// setupTestRouter wires the real pipeline with memory stores, a temp CSV
// catalog and no oracles, so the local fallbacks are used
func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.csv")
	if err := os.WriteFile(path, []byte(testCatalog), 0o600); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	sessions := memory.NewSessionStore(0, 0)
	t.Cleanup(sessions.Close)

	svc := usecase.NewGroceryService(
		catalog.NewCSVStore(path, nil),
		nil,
		nil,
		sessions,
		memory.NewOrderStore(),
		usecase.GroceryServiceConfig{},
		nil,
	)

	return SetupRouter(testConfig(), NewHandler(svc, nil), nil)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return v
}

// TestHealthCheckEndpoint tests the health check endpoint
func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		router := setupTestRouter(t)

		w := doJSON(t, router, "GET", "/health", nil)
		if w.Code != http.StatusOK {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
		}

		response := decode[map[string]any](t, w)
		if response["status"] != "healthy" {
			t.Errorf("status = %v, want healthy", response["status"])
		}
		if response["service"] != "marketbuddy-backend" {
			t.Errorf("service = %v, want marketbuddy-backend", response["service"])
		}
	})

	t.Run("is not rate limited", func(t *testing.T) {
		cfg := testConfig()
		cfg.RateLimit = config.RateLimitConfig{PerIP: 1, Burst: 1}
		router := SetupRouter(cfg, NewHandler(nil, nil), nil)

		for i := 0; i < 5; i++ {
			if w := doJSON(t, router, "GET", "/health", nil); w.Code != http.StatusOK {
				t.Fatalf("request %d: Status = %d, want %d", i, w.Code, http.StatusOK)
			}
		}
	})
}

func TestProcessListEndpoint(t *testing.T) {
	t.Run("resolves a list", func(t *testing.T) {
		router := setupTestRouter(t)

		w := doJSON(t, router, "POST", "/api/v1/lists/process", map[string]string{
			"message": "2 חלב תנובה 3%\nבמבה",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}

		list := decode[domain.ProcessedList](t, w)
		if len(list.Items) != 2 {
			t.Fatalf("Items = %d, want 2", len(list.Items))
		}
		if list.Items[0].Result.Status != domain.StatusCertain {
			t.Errorf("first status = %s, want certain", list.Items[0].Result.Status)
		}
		if list.Items[1].Result.Status != domain.StatusNotFound {
			t.Errorf("second status = %s, want not_found", list.Items[1].Result.Status)
		}
		if list.Summary.CertainItems != 1 || list.Summary.NotFoundItems != 1 {
			t.Errorf("Summary = %+v, want 1 certain and 1 not found", list.Summary)
		}
	})

	t.Run("rejects missing message", func(t *testing.T) {
		router := setupTestRouter(t)

		w := doJSON(t, router, "POST", "/api/v1/lists/process", map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("rejects blank message", func(t *testing.T) {
		router := setupTestRouter(t)

		w := doJSON(t, router, "POST", "/api/v1/lists/process", map[string]string{"message": "   "})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("validates HTTP method", func(t *testing.T) {
		router := setupTestRouter(t)

		w := doJSON(t, router, "GET", "/api/v1/lists/process", nil)
		if w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
			t.Errorf("Status = %d, want 404 or 405", w.Code)
		}
	})
}

func TestSessionEndpoints(t *testing.T) {
	t.Run("full session flow", func(t *testing.T) {
		router := setupTestRouter(t)

		w := doJSON(t, router, "POST", "/api/v1/sessions", nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("start Status = %d, want %d", w.Code, http.StatusCreated)
		}
		session := decode[domain.OrderSession](t, w)
		if session.State != domain.StateCollecting {
			t.Errorf("State = %s, want collecting", session.State)
		}
		base := "/api/v1/sessions/" + session.ID

		w = doJSON(t, router, "POST", base+"/messages", map[string]string{"message": "חלב תנובה 3%\nבמבה"})
		if w.Code != http.StatusOK {
			t.Fatalf("message Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		outcome := decode[usecase.MessageOutcome](t, w)
		if len(outcome.Session.ResolvedItems) != 1 || len(outcome.Session.UnresolvedItems) != 1 {
			t.Fatalf("session lists = %d resolved / %d unresolved, want 1/1",
				len(outcome.Session.ResolvedItems), len(outcome.Session.UnresolvedItems))
		}

		w = doJSON(t, router, "GET", base, nil)
		if w.Code != http.StatusOK {
			t.Errorf("get Status = %d, want %d", w.Code, http.StatusOK)
		}

		w = doJSON(t, router, "POST", base+"/selections", map[string]any{"pendingId": "missing", "optionIndex": 0})
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("selection Status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
		}

		w = doJSON(t, router, "POST", base+"/finalize", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("finalize Status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
		}
		order := decode[usecase.FinalizedOrder](t, w)
		if order.OrderID == "" {
			t.Error("OrderID is empty")
		}
		if order.Cart.Subtotal != 6.5 {
			t.Errorf("Subtotal = %v, want 6.5", order.Cart.Subtotal)
		}

		w = doJSON(t, router, "POST", base+"/messages", map[string]string{"message": "חלב"})
		if w.Code != http.StatusConflict {
			t.Errorf("message after finalize Status = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("remove item", func(t *testing.T) {
		router := setupTestRouter(t)

		session := decode[domain.OrderSession](t, doJSON(t, router, "POST", "/api/v1/sessions", nil))
		base := "/api/v1/sessions/" + session.ID

		outcome := decode[usecase.MessageOutcome](t, doJSON(t, router, "POST", base+"/messages",
			map[string]string{"message": "חלב תנובה 3%"}))
		if len(outcome.Session.ResolvedItems) != 1 {
			t.Fatalf("ResolvedItems = %d, want 1", len(outcome.Session.ResolvedItems))
		}

		w := doJSON(t, router, "DELETE", base+"/items/"+outcome.Session.ResolvedItems[0].ID, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
		}
		updated := decode[domain.OrderSession](t, w)
		if len(updated.ResolvedItems) != 0 {
			t.Errorf("ResolvedItems = %d, want 0", len(updated.ResolvedItems))
		}
	})

	t.Run("unknown session returns 404", func(t *testing.T) {
		router := setupTestRouter(t)

		for _, tc := range []struct{ method, path string }{
			{"GET", "/api/v1/sessions/missing"},
			{"POST", "/api/v1/sessions/missing/finalize"},
			{"DELETE", "/api/v1/sessions/missing/items/x"},
		} {
			w := doJSON(t, router, tc.method, tc.path, nil)
			if w.Code != http.StatusNotFound {
				t.Errorf("%s %s Status = %d, want %d", tc.method, tc.path, w.Code, http.StatusNotFound)
			}
		}
	})

	t.Run("selection requires option index", func(t *testing.T) {
		router := setupTestRouter(t)

		session := decode[domain.OrderSession](t, doJSON(t, router, "POST", "/api/v1/sessions", nil))
		w := doJSON(t, router, "POST", "/api/v1/sessions/"+session.ID+"/selections",
			map[string]any{"pendingId": "p"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// stubUsecase returns a fixed error from every operation
type stubUsecase struct {
	err error
}

func (s *stubUsecase) ProcessList(context.Context, string) (*domain.ProcessedList, error) {
	return nil, s.err
}
func (s *stubUsecase) StartSession(context.Context) (*domain.OrderSession, error) { return nil, s.err }
func (s *stubUsecase) GetSession(context.Context, string) (*domain.OrderSession, error) {
	return nil, s.err
}
func (s *stubUsecase) AddMessage(context.Context, string, string) (*usecase.MessageOutcome, error) {
	return nil, s.err
}
func (s *stubUsecase) SelectOption(context.Context, string, string, int) (*domain.OrderSession, error) {
	return nil, s.err
}
func (s *stubUsecase) RemoveResolvedItem(context.Context, string, string) (*domain.OrderSession, error) {
	return nil, s.err
}
func (s *stubUsecase) Finalize(context.Context, string) (*usecase.FinalizedOrder, error) {
	return nil, s.err
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidRequest, http.StatusBadRequest},
		{domain.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrInvalidSelection, http.StatusUnprocessableEntity},
		{domain.ErrPendingSelectionsRemain, http.StatusConflict},
		{domain.ErrSessionFinalized, http.StatusConflict},
		{fmt.Errorf("%w: csv unreadable", domain.ErrCatalogUnavailable), http.StatusServiceUnavailable},
		{domain.ErrRateLimited, http.StatusTooManyRequests},
		{fmt.Errorf("failed to save order: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("failed to save order: disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			router := SetupRouter(testConfig(), NewHandler(&stubUsecase{err: tt.err}, nil), nil)

			w := doJSON(t, router, "POST", "/api/v1/sessions/s1/finalize", nil)
			if w.Code != tt.want {
				t.Errorf("Status = %d, want %d", w.Code, tt.want)
			}
			body := decode[map[string]string](t, w)
			if !strings.Contains(body["error"], tt.err.Error()) {
				t.Errorf("error = %q, want it to contain %q", body["error"], tt.err.Error())
			}
		})
	}
}

func TestServiceNotConfigured(t *testing.T) {
	router := SetupRouter(testConfig(), NewHandler(nil, nil), nil)

	w := doJSON(t, router, "POST", "/api/v1/sessions", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

// TestCORSIntegration tests CORS headers on real routes
func TestCORSIntegration(t *testing.T) {
	router := setupTestRouter(t)

	req, _ := http.NewRequest("OPTIONS", "/api/v1/lists/process", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want http://localhost:3000", got)
	}
}

// TestRecoveryMiddleware checks panics become 500 responses
func TestRecoveryMiddleware(t *testing.T) {
	t.Run("recovers from panic without crashing server", func(t *testing.T) {
		router := gin.New()
		router.Use(RecoveryMiddleware(nopLogger()))
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		w := doJSON(t, router, "GET", "/panic", nil)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})
}

// TestAPIVersioning tests routes live under /api/v1
func TestAPIVersioning(t *testing.T) {
	router := setupTestRouter(t)

	w := doJSON(t, router, "POST", "/sessions", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
