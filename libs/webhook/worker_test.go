package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/solsub/scheduler/libs/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func waitForCondition(t *testing.T, cond func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", msg)
}

func TestWorker_DeliversEnvelopeFields(t *testing.T) {
	var mu sync.Mutex
	var received Envelope

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env Envelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		mu.Lock()
		received = env
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	worker := NewWorker(Config{SinkURL: srv.URL}, zap.NewNop())
	defer worker.Stop()

	worker.Publish(scheduler.Event{
		Type:         scheduler.EventPaymentSuccess,
		SubID:        "sub-1",
		Ts:           1000,
		TriggerCount: 5,
		FailedCount:  0,
		TxID:         "tx-abc",
	})

	waitForCondition(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return received.SubID == "sub-1"
	}, time.Second, "envelope delivered")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, scheduler.EventPaymentSuccess, received.Event)
	assert.Equal(t, uint64(5), received.TriggerCount)
	assert.Equal(t, "tx-abc", received.TxID)
}

func TestWorker_NilSinkURLIsNoOp(t *testing.T) {
	worker := NewWorker(Config{}, zap.NewNop())
	defer worker.Stop()

	// Must not panic or block even with no sink configured.
	worker.Publish(scheduler.Event{Type: scheduler.EventPaymentSuccess, SubID: "sub-1"})
	time.Sleep(20 * time.Millisecond)
}

func TestWorker_RetriesThenGivesUp(t *testing.T) {
	var calls int
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	worker := NewWorker(Config{SinkURL: srv.URL, MaxRetries: 2, RetryBase: time.Millisecond}, zap.NewNop())
	defer worker.Stop()

	worker.Publish(scheduler.Event{Type: scheduler.EventPaymentFailureClassified, SubID: "sub-2"})

	waitForCondition(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 3 // initial attempt + 2 retries
	}, time.Second, "all retry attempts exhausted")
}

func TestWorker_QueueFullDropsEventWithoutBlocking(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(block)

	worker := NewWorker(Config{SinkURL: srv.URL, QueueSize: 1, MaxRetries: 0}, zap.NewNop())
	defer worker.Stop()

	// First event occupies the single in-flight delivery slot; enough
	// further publishes must not block the caller even though the sink
	// never responds until the test closes `block`.
	for i := 0; i < 10; i++ {
		done := make(chan struct{})
		go func() {
			worker.Publish(scheduler.Event{Type: scheduler.EventSubscriptionAutoPaused, SubID: "sub-3"})
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(200 * time.Millisecond):
			t.Fatal("Publish blocked despite a full queue")
		}
	}
}
