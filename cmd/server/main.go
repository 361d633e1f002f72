package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/marketbuddy/backend/config"
	httpDelivery "github.com/marketbuddy/backend/internal/delivery/http"
	"github.com/marketbuddy/backend/internal/domain"
	"github.com/marketbuddy/backend/internal/infrastructure/catalog"
	"github.com/marketbuddy/backend/internal/infrastructure/memory"
	"github.com/marketbuddy/backend/internal/infrastructure/openai"
	"github.com/marketbuddy/backend/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting MarketBuddy backend",
		zap.String("version", "1.0.0"),
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port))

	// Initialize infrastructure dependencies
	catalogStore := catalog.NewCSVStore(cfg.Catalog.Path, logger.Named("catalog"))
	if err := catalogStore.Load(context.Background()); err != nil {
		logger.Warn("catalog not loaded at startup, will retry on first request",
			zap.String("path", cfg.Catalog.Path),
			zap.Error(err))
	}

	var (
		textOracle      domain.TextOracle
		selectionOracle domain.SelectionOracle
	)
	if cfg.OpenAI.Enabled() {
		client := openai.NewClient(openai.Config{
			Endpoint:          cfg.OpenAI.Endpoint,
			APIKey:            cfg.OpenAI.APIKey,
			Deployment:        cfg.OpenAI.Deployment,
			APIVersion:        cfg.OpenAI.APIVersion,
			Timeout:           cfg.OpenAI.Timeout,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
			Burst:             cfg.OpenAI.Burst,
		}, logger.Named("openai"))

		// Enable debug mode in development environment
		if cfg.OpenAI.Debug || cfg.Server.Environment == "development" {
			client.SetDebug(true)
		}

		textOracle, selectionOracle = client, client
		logger.Info("OpenAI oracles configured",
			zap.String("endpoint", cfg.OpenAI.Endpoint),
			zap.String("deployment", cfg.OpenAI.Deployment))
	} else {
		logger.Warn("OpenAI API key not configured, using local parsing and selection fallbacks")
	}

	sessionStore := memory.NewSessionStore(cfg.Session.TTL, cfg.Session.CleanupInterval)
	defer sessionStore.Close()
	orderStore := memory.NewOrderStore()

	// Initialize usecase layer
	groceryService := usecase.NewGroceryService(
		catalogStore,
		textOracle,
		selectionOracle,
		sessionStore,
		orderStore,
		usecase.GroceryServiceConfig{
			Candidates: usecase.CandidateConfig{
				AdmissionThreshold: cfg.Matching.AdmissionThreshold,
				MaxCandidates:      cfg.Matching.MaxCandidates,
			},
			Policy: usecase.PolicyConfig{
				PreOracleCertainty: cfg.Matching.PreOracleCertainty,
				OracleCertainty:    cfg.Matching.OracleCertainty,
				OracleTimeout:      cfg.Matching.OracleTimeout,
			},
			MaxOptionsShown: cfg.Matching.MaxOptionsShown,
		},
		logger.Named("grocery"),
	)

	logger.Info("matching configured",
		zap.Float64("admission_threshold", cfg.Matching.AdmissionThreshold),
		zap.Int("max_candidates", cfg.Matching.MaxCandidates),
		zap.Float64("pre_oracle_certainty", cfg.Matching.PreOracleCertainty),
		zap.Float64("oracle_certainty", cfg.Matching.OracleCertainty))

	// Create HTTP handler and router
	handler := httpDelivery.NewHandler(groceryService, logger.Named("http"))
	router := httpDelivery.SetupRouter(cfg, handler, logger.Named("http"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return
	}
	logger.Info("server shutdown complete")
}

// newLogger builds a development logger outside production and applies the configured level
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Server.Environment != "production" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

func init() {
	// Set log flags for startup failures before the zap logger exists
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
