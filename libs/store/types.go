// Package store implements the persistent subscription store: the ordered
// mapping from SubId to Subscription, its secondary indices, and the
// durability layer backing them.
package store

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a Subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	// StatusExpired is reserved for future bounded-duration subscriptions.
	// Nothing in this service ever sets it; it is accepted on input and
	// treated exactly like StatusCancelled everywhere (no timers, eligible
	// for cleanup).
	StatusExpired Status = "expired"
)

// Bounds enforced by the Validator before a Subscription ever reaches the
// store; repeated here as named constants because the Scheduler and Admin
// packages also need them (e.g. to recompute backoff bases or report quota).
const (
	MinSubIDLen           = 1
	MaxSubIDLen           = 64
	MinIntervalSeconds    = 3_600
	MaxIntervalSeconds    = 31_536_000
	MaxAmountHint         = 1_000_000_000_000
	MaxReminderDaysBefore = 30
	MaxPerPrincipal       = 100
	MaxTotalActive        = 10_000
	MaxConsecutiveFailures = 10
)

// Subscription is the primary entity: one recurring payment schedule
// between a payer and a merchant on the settlement chain.
type Subscription struct {
	SubID               string
	SettlementContract  string
	TokenMint           string
	Payer               string
	Merchant            string
	AmountHint          uint64
	IntervalSeconds     uint64
	ReminderDaysBefore  int
	Status              Status
	NextExecutionAt     int64
	LastTriggeredAt     *int64
	TriggerCount        uint64
	FailedPaymentCount  int
	LastFailureAt       *int64
	LastError           string
	CreatedAt           int64
	UpdatedAt           int64
	OwnerPrincipal      string
}

// ReminderAt returns the instant the reminder opcode should fire for this
// subscription, and whether reminders are enabled at all.
func (s *Subscription) ReminderAt() (int64, bool) {
	if s.ReminderDaysBefore <= 0 {
		return 0, false
	}
	return s.NextExecutionAt - int64(s.ReminderDaysBefore)*86_400, true
}

var (
	// ErrNotFound is returned when a SubId is not present in the store.
	ErrNotFound = errors.New("store: subscription not found")
	// ErrAlreadyExists is returned by Put when the SubId is already taken.
	ErrAlreadyExists = errors.New("store: subscription already exists")
)

// Cursor paginates ListByPrincipal; it is opaque to callers but is simply
// the CreatedAt/SubID of the last row returned, ascending.
type Cursor struct {
	CreatedAt int64
	SubID     string
}

func nowUnix() int64 { return time.Now().Unix() }
