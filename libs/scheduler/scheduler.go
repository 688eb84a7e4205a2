// Package scheduler arms and fires per-subscription timers, applying the
// backoff/auto-pause state machine on top of whatever Outcome the
// dispatcher returns. It is the only package that mutates a
// Subscription's lifecycle fields.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/solsub/scheduler/libs/dispatcher"
	"github.com/solsub/scheduler/libs/store"
	"go.uber.org/zap"
)

// SubscriptionStore is the slice of store.Store the scheduler needs.
// Satisfied by *store.Store.
type SubscriptionStore interface {
	Get(subID string) (*store.Subscription, error)
	Update(ctx context.Context, sub *store.Subscription) error
	Overdue(now int64) []string
	NextDue(limit int) []string
}

// Dispatch is the slice of dispatcher.Dispatcher the scheduler needs.
type Dispatch interface {
	Dispatch(ctx context.Context, subID string, opcode dispatcher.Opcode) dispatcher.Outcome
}

// Config tunes the scheduler's own bookkeeping. The backoff formula itself
// is not configurable — it is a wire-level agreement with how merchants and
// payers reason about retry timing.
type Config struct {
	// MaxConsecutiveFailures is the failure count at which a subscription
	// is auto-paused.
	MaxConsecutiveFailures int
	// RearmBatchSize bounds how many subscriptions Start pulls from
	// Store.NextDue during boot rearm. Store.Overdue is not bounded.
	RearmBatchSize int
}

// DefaultConfig mirrors the store's own MaxConsecutiveFailures constant.
func DefaultConfig() Config {
	return Config{
		MaxConsecutiveFailures: store.MaxConsecutiveFailures,
		RearmBatchSize:         1_000,
	}
}

// Scheduler owns every armed timer and the coarse mutex serializing the
// load -> dispatch-decision -> store-write sequence described for the
// domain core. Dispatch itself (Signer.Sign, RPC submit/status) happens
// outside the mutex; the mutex is re-acquired before any write-back, and
// the subscription's status is re-validated at that point.
type Scheduler struct {
	mu sync.Mutex

	store      SubscriptionStore
	dispatcher Dispatch
	sink       EventSink
	cfg        Config
	logger     *zap.Logger

	armed  *armedIndex
	timers map[armedKey]*time.Timer

	// inFlight holds the sub_id of every subscription currently inside a
	// dispatch call, for any kind. Guards against two concurrent
	// dispatches for the same subscription.
	inFlight map[string]struct{}
	// pending coalesces a fire that arrived while its subscription was
	// already in-flight: it is re-examined the instant the in-flight
	// dispatch completes, rather than being dropped.
	pending map[string]map[tickKind]struct{}

	stopped bool
}

// New builds a Scheduler. sink may be nil.
func New(st SubscriptionStore, disp Dispatch, sink EventSink, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:      st,
		dispatcher: disp,
		sink:       sink,
		cfg:        cfg,
		logger:     logger,
		armed:      newArmedIndex(),
		timers:     make(map[armedKey]*time.Timer),
		inFlight:   make(map[string]struct{}),
		pending:    make(map[string]map[tickKind]struct{}),
	}
}

// Start rearms every overdue and upcoming Active subscription. Overdue
// subscriptions fire immediately; duplicate dispatch on boot is prevented
// by the same in-flight guard used at steady state.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	for _, subID := range s.store.Overdue(now) {
		sub, err := s.store.Get(subID)
		if err != nil {
			continue
		}
		s.armLocked(sub, now)
	}
	for _, subID := range s.store.NextDue(s.cfg.RearmBatchSize) {
		sub, err := s.store.Get(subID)
		if err != nil {
			continue
		}
		s.armLocked(sub, now)
	}
	s.logger.Info("scheduler started", zap.Int("armed_timers", s.armed.Len()))
	return nil
}

// Stop cancels every armed timer. In-flight dispatches run to completion;
// their write-back will still observe whatever status the store holds.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	s.logger.Info("scheduler stopped")
}

// Arm (re)arms the payment timer for sub at its current next_execution_at,
// and the reminder timer if one is due to be armed. Callers use this after
// CreateSubscription, ResumeSubscription, and ResumeOperations.
func (s *Scheduler) Arm(sub *store.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(sub, time.Now().Unix())
}

func (s *Scheduler) armLocked(sub *store.Subscription, now int64) {
	if sub.Status != store.StatusActive {
		return
	}
	s.scheduleTimer(armedKey{subID: sub.SubID, kind: tickPayment}, sub.NextExecutionAt)

	if reminderAt, ok := sub.ReminderAt(); ok && reminderAt > now {
		s.scheduleTimer(armedKey{subID: sub.SubID, kind: tickReminder}, reminderAt)
	}
}

// scheduleTimer arms (or re-arms) one timer slot, replacing any existing
// time.Timer for the same key.
func (s *Scheduler) scheduleTimer(key armedKey, fireAt int64) {
	if old, ok := s.timers[key]; ok {
		old.Stop()
		delete(s.timers, key)
	}
	s.armed.Upsert(key, fireAt)

	delay := time.Until(time.Unix(fireAt, 0))
	if delay < 0 {
		delay = 0
	}
	s.timers[key] = time.AfterFunc(delay, func() { s.fire(key) })
}

// Cancel disarms every timer for subID. Used by CancelSubscription,
// PauseSubscription, and EmergencyPauseAll.
func (s *Scheduler) Cancel(subID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(subID)
}

func (s *Scheduler) cancelLocked(subID string) {
	for _, kind := range []tickKind{tickPayment, tickReminder} {
		key := armedKey{subID: subID, kind: kind}
		if t, ok := s.timers[key]; ok {
			t.Stop()
			delete(s.timers, key)
		}
	}
	s.armed.CancelSub(subID)
	delete(s.pending, subID)
}

// fire is the time.AfterFunc callback for one armed timer. It applies the
// in-flight guard and coalescing rule before spawning the dispatch.
func (s *Scheduler) fire(key armedKey) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.armed.Cancel(key)

	if _, busy := s.inFlight[key.subID]; busy {
		if s.pending[key.subID] == nil {
			s.pending[key.subID] = make(map[tickKind]struct{})
		}
		s.pending[key.subID][key.kind] = struct{}{}
		s.mu.Unlock()
		return
	}
	s.inFlight[key.subID] = struct{}{}
	s.mu.Unlock()

	s.runDispatch(key)
}

// runDispatch executes one dispatch outside the domain mutex (the dispatch
// call itself suspends inside Signer.Sign and the RPC client), then
// re-acquires the mutex to apply the outcome and re-checks coalesced
// fires.
func (s *Scheduler) runDispatch(key armedKey) {
	opcode := dispatcher.OpcodePayment
	if key.kind == tickReminder {
		opcode = dispatcher.OpcodeReminder
	}

	ctx := context.Background()
	outcome := s.dispatcher.Dispatch(ctx, key.subID, opcode)

	s.mu.Lock()
	s.applyOutcomeLocked(key, outcome)
	delete(s.inFlight, key.subID)

	coalesced := s.pending[key.subID]
	delete(s.pending, key.subID)
	for kind := range coalesced {
		if _, rearmed := s.timers[armedKey{subID: key.subID, kind: kind}]; rearmed {
			delete(coalesced, kind)
		}
	}
	s.mu.Unlock()

	// A coalesced fire arrived while this dispatch was in flight; the
	// subscription may have just been rescheduled above, so it is re-examined
	// rather than trusting the stale fire time it carried: if the outcome
	// re-armed that timer, the fresh timer stands and the stale fire is
	// dropped; otherwise it fires now.
	for kind := range coalesced {
		s.fire(armedKey{subID: key.subID, kind: kind})
	}
}

// applyOutcomeLocked is the sole place Subscription lifecycle fields
// mutate. Called with s.mu held; re-reads the subscription to honor the
// "abandon the write if status changed while suspended" rule.
func (s *Scheduler) applyOutcomeLocked(key armedKey, outcome dispatcher.Outcome) {
	sub, err := s.store.Get(key.subID)
	if err != nil {
		return
	}
	if sub.Status != store.StatusActive {
		// Cancelled or paused while the dispatch was in flight; abandon.
		return
	}

	if key.kind == tickReminder {
		s.logger.Info("reminder tick resolved",
			zap.String("sub_id", key.subID),
			zap.String("outcome", string(outcome.Kind)),
		)
		return
	}

	now := time.Now().Unix()

	switch outcome.Kind {
	case dispatcher.OutcomeSuccess:
		sub.NextExecutionAt += int64(sub.IntervalSeconds)
		sub.FailedPaymentCount = 0
		sub.TriggerCount++
		sub.LastTriggeredAt = &now
		sub.LastError = ""

		if err := s.store.Update(context.Background(), sub); err != nil {
			s.logger.Error("failed to persist successful dispatch", zap.String("sub_id", sub.SubID), zap.Error(err))
			return
		}
		s.armLocked(sub, now)
		publish(s.sink, Event{Type: EventPaymentSuccess, SubID: sub.SubID, Ts: now, TriggerCount: sub.TriggerCount, TxID: outcome.TxID})

	case dispatcher.OutcomeChainReject, dispatcher.OutcomeTransient:
		sub.FailedPaymentCount++
		sub.LastFailureAt = &now
		sub.LastError = outcome.Reason

		if sub.FailedPaymentCount >= s.cfg.MaxConsecutiveFailures {
			sub.Status = store.StatusPaused
			if err := s.store.Update(context.Background(), sub); err != nil {
				s.logger.Error("failed to persist auto-pause", zap.String("sub_id", sub.SubID), zap.Error(err))
				return
			}
			s.cancelLocked(sub.SubID)
			publish(s.sink, Event{Type: EventPaymentFailureClassified, SubID: sub.SubID, Ts: now, FailedCount: sub.FailedPaymentCount, LastError: sub.LastError})
			publish(s.sink, Event{Type: EventSubscriptionAutoPaused, SubID: sub.SubID, Ts: now, FailedCount: sub.FailedPaymentCount, LastError: sub.LastError})
			s.logger.Warn("subscription auto-paused", zap.String("sub_id", sub.SubID), zap.Int("failed_count", sub.FailedPaymentCount))
			return
		}

		if err := s.store.Update(context.Background(), sub); err != nil {
			s.logger.Error("failed to persist failed dispatch", zap.String("sub_id", sub.SubID), zap.Error(err))
			return
		}
		fireAt := nextBackoffFireAt(sub, sub.FailedPaymentCount, now)
		s.scheduleTimer(armedKey{subID: sub.SubID, kind: tickPayment}, fireAt)
		publish(s.sink, Event{Type: EventPaymentFailureClassified, SubID: sub.SubID, Ts: now, FailedCount: sub.FailedPaymentCount, LastError: sub.LastError})

	case dispatcher.OutcomeSkipped:
		// The subscription was not Active when the dispatcher loaded it;
		// nothing to persist, nothing to rearm.
	}
}

// ArmedCount reports how many timers are currently armed, for tests and
// health reporting.
func (s *Scheduler) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed.Len()
}
