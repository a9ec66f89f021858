// internal/llmclient/transport.go
package llmclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultTimeout    = 120 * time.Second
	maxErrorBodyBytes = 500
)

// retrier runs provider calls with exponential backoff. Only errors that are
// not wrapped with backoff.Permanent are retried.
type retrier struct {
	logger     *zap.Logger
	maxRetries int
	// initialInterval is the first wait; tests shorten it.
	initialInterval time.Duration
}

func newRetrier(logger *zap.Logger, maxRetries int) retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retrier{logger: logger, maxRetries: maxRetries, initialInterval: time.Second}
}

func (r retrier) do(ctx context.Context, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute

	policy := backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(r.maxRetries))
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		r.logger.Warn("LLM request failed, retrying.", zap.Error(err), zap.Duration("wait", wait))
	})
}

// httpTransport posts JSON to a provider endpoint and decodes the reply.
type httpTransport struct {
	provider string
	client   *http.Client
	logger   *zap.Logger
	retry    retrier
}

func newHTTPTransport(provider string, timeout time.Duration, maxRetries int, logger *zap.Logger) *httpTransport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &httpTransport{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		retry:    newRetrier(logger, maxRetries),
	}
}

func (t *httpTransport) postJSON(ctx context.Context, url string, headers http.Header, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	return t.retry.do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		start := time.Now()
		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Provider: t.provider, StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
			t.logger.Error("LLM API returned error status.",
				zap.Int("status", resp.StatusCode),
				zap.String("message", apiErr.Message),
			)
			if apiErr.Retryable() {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		t.logger.Debug("LLM request complete.", zap.Duration("duration", time.Since(start)))
		return nil
	})
}

// errorMessage pulls the message out of the {"error":{"message":...}} shape
// OpenAI and Anthropic share, falling back to the truncated body.
func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBodyBytes {
		msg = msg[:maxErrorBodyBytes]
	}
	return msg
}

// IsRetryable reports whether err came from a transient provider failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}
