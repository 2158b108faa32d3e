// Package llm provides the HTTP client for the local inference sidecar.
//
// The client owns all sidecar communication: health probing, request
// formatting, retry with capped exponential backoff, and response
// extraction. Transport failures never escape as raw errors; they are
// retried here and converted to typed results.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// EmptyResponseNotice is appended in place of model output when the
	// sidecar replies without any completion choices. The exchange is
	// still a success: the user always gets something back.
	EmptyResponseNotice = "The model returned an empty response. Please try rephrasing your message."

	maxErrorBodyBytes = 2048
)

// Config holds client configuration. Zero-value fields fall back to the
// documented defaults.
type Config struct {
	BaseURL        string
	Model          string
	RequestTimeout time.Duration // per-attempt, default 30s
	HealthTimeout  time.Duration // default 5s
	MaxRetries     int           // total attempts, default 3
	BackoffBase    time.Duration // default 1s
	BackoffCap     time.Duration // default 5s
}

func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 5 * time.Second
	}
}

// Client talks to the inference sidecar. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a sidecar client. It fails only on configuration errors
// such as a malformed base URL; an unreachable sidecar is not an error
// here (it may still be loading a model).
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sidecar URL %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("invalid sidecar URL %q: expected http(s)://host", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(base.String(), "/")

	return &Client{
		cfg: cfg,
		// Per-attempt deadlines come from the request context; the
		// transport itself carries no global timeout.
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

// HealthCheck issues a lightweight list-models probe. A normal unhealthy
// sidecar is reported in the result, not as an error.
func (c *Client) HealthCheck(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		c.logger.Error("failed to build health probe", "error", err)
		return Health{}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("sidecar health probe failed", "error", err)
		return Health{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("sidecar health probe returned non-OK status", "status", resp.StatusCode)
		return Health{}
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		c.logger.Warn("sidecar health probe returned undecodable body", "error", err)
		return Health{}
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return Health{Healthy: true, Models: models}
}

// Complete sends the formatted conversation to the sidecar, retrying
// transient failures with capped exponential backoff. It returns
// ErrInvalidRequest for caller errors and *UnavailableError once the
// retry budget is exhausted.
func (c *Client) Complete(ctx context.Context, req Request) (*Result, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: no messages", ErrInvalidRequest)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			delay := c.backoffDelay(attempt)
			c.logger.Info("retrying sidecar request",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return nil, &UnavailableError{Attempts: attempt - 1, LastErr: ctx.Err()}
			case <-time.After(delay):
			}
		}

		result, err := c.attempt(ctx, req, attempt)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		lastErr = err
	}

	c.logger.Error("sidecar request failed after all attempts",
		"attempts", c.cfg.MaxRetries,
		"error", lastErr)
	return nil, &UnavailableError{Attempts: c.cfg.MaxRetries, LastErr: lastErr}
}

// backoffDelay returns the wait before the given attempt (attempt >= 2):
// min(base * 2^(attempt-2), cap). Jitter-free by design; the cap bounds
// total retry time while giving the sidecar room to finish loading.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.BackoffBase << (attempt - 2)
	if delay > c.cfg.BackoffCap || delay <= 0 {
		delay = c.cfg.BackoffCap
	}
	return delay
}

func (c *Client) attempt(ctx context.Context, req Request, attempt int) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("sidecar attempt failed",
			"attempt", attempt,
			"latency", time.Since(start),
			"error", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		statusErr := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
		c.logger.Warn("sidecar attempt returned error status",
			"attempt", attempt,
			"status", resp.StatusCode,
			"latency", time.Since(start))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, statusErr)
		}
		return nil, statusErr
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		// A half-loaded sidecar can emit truncated bodies; treat as transient.
		return nil, fmt.Errorf("undecodable sidecar response: %w", err)
	}
	latency := time.Since(start)

	tokens := payload.EvalCount
	if tokens == 0 {
		tokens = payload.Usage.CompletionTokens
	}

	if len(payload.Choices) == 0 {
		c.logger.Warn("sidecar returned no completion choices",
			"attempt", attempt,
			"latency", latency,
			"model", payload.Model)
		return &Result{
			Content: EmptyResponseNotice,
			Model:   payload.Model,
			Tokens:  tokens,
			Latency: latency,
			Empty:   true,
		}, nil
	}

	c.logger.Info("sidecar request succeeded",
		"attempt", attempt,
		"latency", latency,
		"model", payload.Model,
		"tokens", tokens)

	return &Result{
		Content: payload.Choices[0].Message.Content,
		Model:   payload.Model,
		Tokens:  tokens,
		Latency: latency,
	}, nil
}
