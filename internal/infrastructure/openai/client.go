package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketbuddy/backend/internal/domain"
)

const (
	// DefaultAPIVersion is the Azure OpenAI REST API version
	DefaultAPIVersion = "2023-05-15"

	maxAttempts = 3
)

// Config holds Azure OpenAI connection settings
type Config struct {
	Endpoint          string
	APIKey            string
	Deployment        string
	APIVersion        string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client calls Azure OpenAI chat completions. It implements both
// domain.TextOracle and domain.SelectionOracle.
type Client struct {
	httpClient  *http.Client
	apiKey      string
	endpoint    string
	deployment  string
	apiVersion  string
	rateLimiter *rate.Limiter
	backoff     func(attempt int) time.Duration
	logger      *zap.Logger
	debug       bool
}

// NewClient creates a new Azure OpenAI client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.APIVersion == "" {
		config.APIVersion = DefaultAPIVersion
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 5
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		apiKey:      config.APIKey,
		endpoint:    strings.TrimRight(config.Endpoint, "/"),
		deployment:  config.Deployment,
		apiVersion:  config.APIVersion,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		backoff:     exponentialBackoff,
		logger:      logger,
	}
}

// SetDebug enables logging of request and response bodies
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// ParseFreeText sends a grocery message with the parsing instructions and returns the raw reply
func (c *Client) ParseFreeText(ctx context.Context, message, instructions string) (string, error) {
	return c.complete(ctx, "parse", NewParseRequest(message, instructions))
}

// SelectBest sends a candidate selection prompt and returns the raw reply
func (c *Client) SelectBest(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "select", NewSelectRequest(prompt))
}

// completionsURL builds {endpoint}/openai/deployments/{deployment}/chat/completions?api-version=...
func (c *Client) completionsURL() string {
	params := url.Values{}
	params.Add("api-version", c.apiVersion)
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s",
		c.endpoint, url.PathEscape(c.deployment), params.Encode())
}

// complete runs one chat completion with rate limiting and up to three attempts.
// Transport errors, 429 and 5xx are retried; other non-2xx statuses fail at once.
func (c *Client) complete(ctx context.Context, kind string, request ChatRequest) (string, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	if c.debug {
		c.logger.Debug("openai request", zap.String("kind", kind), zap.ByteString("body", body))
	}

	reqURL := c.completionsURL()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %v", domain.ErrOracleUnavailable, err)
		}

		content, retry, err := c.doRequest(ctx, reqURL, body)
		if err == nil {
			c.logger.Debug("openai call succeeded", zap.String("kind", kind), zap.Int("attempt", attempt))
			return content, nil
		}

		lastErr = err
		c.logger.Warn("openai call failed",
			zap.String("kind", kind),
			zap.Int("attempt", attempt),
			zap.Bool("retryable", retry),
			zap.Error(err))

		if !retry || attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, ctx.Err())
		case <-time.After(c.backoff(attempt)):
		}
	}

	return "", lastErr
}

// doRequest executes one POST and reports whether a failure is worth retrying
func (c *Client) doRequest(ctx context.Context, reqURL string, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("User-Agent", "MarketBuddy/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("%w: read body: %v", domain.ErrOracleUnavailable, err)
	}

	if c.debug {
		c.logger.Debug("openai response", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retry, fmt.Errorf("%w: status %d: %s", domain.ErrOracleUnavailable, resp.StatusCode, truncateBody(respBody))
	}

	var chat ChatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return "", false, fmt.Errorf("%w: decode response: %v", domain.ErrOracleResponseMalformed, err)
	}

	content, err := ExtractContent(&chat)
	if err != nil {
		return "", false, err
	}
	return content, false, nil
}

// exponentialBackoff returns 500ms, 1s, 2s, ... for attempts 1, 2, 3, ...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

func truncateBody(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
