package chainrpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Config configures a Client.
type Config struct {
	Endpoint          string
	RequestTimeout    time.Duration
	MaxInFlight       int // concurrent submissions admitted at once
	CircuitBreaker    CircuitBreakerConfig
	Retry             RetryConfig
}

// CircuitBreakerConfig configures the Client's breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// DefaultConfig mirrors the defaults called out in the dispatch path's
// shared-resource section: a concurrency cap of 10 in-flight submissions,
// tripping the breaker after 5 consecutive failures.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		RequestTimeout: 30 * time.Second,
		MaxInFlight:    10,
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
		Retry: DefaultRetryConfig(),
	}
}

// Client is a JSON-RPC client for the settlement chain's validator API. A
// buffered channel of Config.MaxInFlight tokens acts as a FIFO-fair
// admission gate: once every token is taken, goroutines block on a send
// into the full channel and are admitted in the order the Go runtime
// wakes them as tokens are released, so no single
// subscription's dispatch can starve another once it is behind a full
// queue of concurrent attempts.
type Client struct {
	endpoint string
	http     *http.Client
	sem      chan struct{}
	breaker  *CircuitBreaker
	retry    RetryConfig
	stats    *Stats
	logger   *zap.Logger

	nextID atomic.Int64
}

// New builds a Client from cfg.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	return &Client{
		endpoint: cfg.Endpoint,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		sem:      make(chan struct{}, maxInFlight),
		breaker: NewCircuitBreaker(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.SuccessThreshold,
			cfg.CircuitBreaker.Timeout,
		),
		retry:  cfg.Retry,
		stats:  NewStats(),
		logger: logger,
	}
}

// Stats returns the client's internal statistics recorder.
func (c *Client) Stats() *Stats { return c.stats }

// BreakerState reports the circuit breaker's current state, consumed by
// libs/health's RPC checker.
func (c *Client) BreakerState() CircuitState { return c.breaker.State() }

// SendTransaction submits a base64-encoded, already-signed transaction and
// returns the transaction signature the chain assigned it. It blocks for an
// admission slot, then runs the call through the circuit breaker and the
// retry policy.
func (c *Client) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	var signature string
	err := c.withSlot(ctx, func() error {
		return c.breaker.Call(func() error {
			return RetryWithBackoff(ctx, c.retry, func() error {
				result, callErr := c.call(ctx, "sendTransaction", []interface{}{
					signedTxBase64,
					map[string]interface{}{"encoding": "base64", "skipPreflight": false},
				})
				if callErr != nil {
					return callErr
				}
				return json.Unmarshal(result, &signature)
			})
		})
	})
	if err != nil {
		if c.breaker.State() == CircuitOpen {
			c.stats.RecordCircuitBreakerTrip()
		}
		return "", err
	}
	return signature, nil
}

// GetSignatureStatuses polls the confirmation status of a batch of
// transaction signatures.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error) {
	var out struct {
		Value []*SignatureStatus `json:"value"`
	}
	err := c.withSlot(ctx, func() error {
		return c.breaker.Call(func() error {
			return RetryWithBackoff(ctx, c.retry, func() error {
				result, callErr := c.call(ctx, "getSignatureStatuses", []interface{}{
					signatures,
					map[string]interface{}{"searchTransactionHistory": true},
				})
				if callErr != nil {
					return callErr
				}
				return json.Unmarshal(result, &out)
			})
		})
	})
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// withSlot acquires an admission slot before running fn, releasing it
// afterward regardless of outcome. It gives up and returns ctx.Err() if the
// context is cancelled before a slot frees up.
func (c *Client) withSlot(ctx context.Context, fn func() error) error {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.sem }()
	return fn()
}

// call performs one JSON-RPC round trip, recording its outcome in Stats.
func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	start := time.Now()
	result, err := c.doCall(ctx, method, params)
	c.stats.RecordRequest(method, time.Since(start), err)
	if err != nil {
		c.logger.Warn("chainrpc call failed",
			zap.String("method", method),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
	return result, err
}

func (c *Client) doCall(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := int(c.nextID.Add(1))

	reqBody, err := json.Marshal(Request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("chainrpc: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("chainrpc: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chainrpc: %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("chainrpc: read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("chainrpc: decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("chainrpc: %s: rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

// EncodeTransaction base64-encodes a raw signed-transaction wire payload
// for SendTransaction.
func EncodeTransaction(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
