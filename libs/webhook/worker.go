// Package webhook delivers scheduler lifecycle events to an optional,
// operator-configured HTTP sink. Delivery is best-effort: a bounded number
// of retries, dropped (and logged) if the queue backs up, and never on the
// scheduler's own goroutine.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/solsub/scheduler/libs/scheduler"
	"go.uber.org/zap"
)

const (
	defaultQueueSize  = 256
	defaultMaxRetries = 3
	defaultRetryBase  = 500 * time.Millisecond
	defaultTimeout    = 10 * time.Second
)

// Envelope is the JSON body POSTed to the sink URL.
type Envelope struct {
	Event        string `json:"event"`
	SubID        string `json:"sub_id"`
	Ts           int64  `json:"ts"`
	TriggerCount uint64 `json:"trigger_count"`
	FailedCount  int    `json:"failed_count"`
	LastError    string `json:"last_error,omitempty"`
	TxID         string `json:"tx_id,omitempty"`
}

// Config tunes the worker's delivery policy.
type Config struct {
	SinkURL    string
	QueueSize  int
	MaxRetries int
	RetryBase  time.Duration
	Timeout    time.Duration
}

// Worker satisfies scheduler.EventSink: Publish enqueues and returns
// immediately, never blocking the caller even if the sink is slow or down.
// An empty SinkURL makes every Publish a silent no-op, so a deployment can
// run with webhooks disabled entirely.
type Worker struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	queue  chan scheduler.Event
	done   chan struct{}
	cancel context.CancelFunc
}

var _ scheduler.EventSink = (*Worker)(nil)

// NewWorker builds a Worker and starts its background delivery goroutine.
// Call Stop to shut it down.
func NewWorker(cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaultRetryBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		queue:      make(chan scheduler.Event, cfg.QueueSize),
		done:       make(chan struct{}),
		cancel:     cancel,
	}
	go w.run(ctx)
	return w
}

// Publish enqueues event for best-effort delivery. If the queue is full the
// event is dropped and logged — a slow or dead sink must never apply
// backpressure to the scheduler.
func (w *Worker) Publish(event scheduler.Event) {
	if w.cfg.SinkURL == "" {
		return
	}
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("webhook queue full, dropping event",
			zap.String("event", event.Type), zap.String("sub_id", event.SubID))
	}
}

// Stop cancels the delivery goroutine and waits for it to exit. Events still
// queued are not delivered, and a delivery in progress is abandoned.
func (w *Worker) Stop() {
	w.cancel()
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case event := <-w.queue:
			w.deliver(ctx, event)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event scheduler.Event) {
	envelope := Envelope{
		Event:        event.Type,
		SubID:        event.SubID,
		Ts:           event.Ts,
		TriggerCount: event.TriggerCount,
		FailedCount:  event.FailedCount,
		LastError:    event.LastError,
		TxID:         event.TxID,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		w.logger.Error("failed to marshal webhook envelope", zap.Error(err), zap.String("sub_id", event.SubID))
		return
	}

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * w.cfg.RetryBase
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
		}

		if err := w.post(ctx, body); err != nil {
			lastErr = err
			continue
		}
		return
	}

	w.logger.Warn("webhook delivery exhausted retries",
		zap.String("event", event.Type), zap.String("sub_id", event.SubID),
		zap.Int("attempts", w.cfg.MaxRetries+1), zap.Error(lastErr))
}

func (w *Worker) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.SinkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: sink returned status %d", resp.StatusCode)
	}
	return nil
}
