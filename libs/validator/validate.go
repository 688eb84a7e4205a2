// Package validator checks a proposed subscription against its bounds,
// charset, per-principal and global active-count caps, and the
// license-registry quota before the core ever writes it to the store.
package validator

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"github.com/solsub/scheduler/libs/store"
	"go.uber.org/zap"
)

const (
	minAddressLen = 32
	maxAddressLen = 44
)

// Errors returned by Validate. All are terminal: the caller must not
// write the subscription to the store or arm a timer.
var (
	ErrDuplicateSubID     = errors.New("validator: sub_id already exists")
	ErrInvalidSubID       = errors.New("validator: sub_id has invalid length or charset")
	ErrIntervalOutOfRange = errors.New("validator: interval_seconds out of range")
	ErrAmountOutOfRange   = errors.New("validator: amount_hint out of range")
	ErrReminderOutOfRange = errors.New("validator: reminder_days_before out of range")
	ErrInvalidAddress     = errors.New("validator: address has invalid length")
	ErrLicenseInvalid     = errors.New("validator: license is invalid or out of quota")
	ErrPerPrincipalQuota  = errors.New("validator: principal has reached its active subscription limit")
	ErrGlobalQuota        = errors.New("validator: global active subscription limit reached")
)

// Existence reports whether a sub_id is already taken, and ActiveCount
// reports the per-principal and global active-subscription counts — the
// same slice of store.Store the Validator needs, kept narrow so it can be
// faked in tests without a real store.
type Existence interface {
	Exists(subID string) bool
	ActiveCount(principal string) (perPrincipal, total int)
}

// LicenseChecker is the slice of LicenseClient Validate needs, narrowed so
// tests don't need a live HTTP server.
type LicenseChecker interface {
	ValidateLicense(ctx context.Context, apiKey string) (LicenseStatus, error)
	ConsumeLicenseUsage(ctx context.Context, apiKey string) error
}

// Validator checks subscription-creation requests.
type Validator struct {
	existence Existence
	license   LicenseChecker
	logger    *zap.Logger
}

// New builds a Validator.
func New(existence Existence, license LicenseChecker, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{existence: existence, license: license, logger: logger}
}

// CreateRequest mirrors the fields a CreateSubscription call supplies;
// everything else (status, counters, timestamps) is the core's to set.
type CreateRequest struct {
	SubID              string
	OwnerPrincipal     string
	SettlementContract string
	TokenMint          string
	Payer              string
	Merchant           string
	AmountHint         uint64
	IntervalSeconds    uint64
	ReminderDaysBefore int
	APIKey             string
}

// Validate runs every check in a fixed order, stopping at the first failure.
// ConsumeLicenseUsage is called exactly once, only after every other check
// has already passed — a failed quota/bounds check never consumes a
// license use.
func (v *Validator) Validate(ctx context.Context, req CreateRequest) error {
	if err := validSubID(req.SubID); err != nil {
		return err
	}
	if v.existence.Exists(req.SubID) {
		return ErrDuplicateSubID
	}
	if req.IntervalSeconds < store.MinIntervalSeconds || req.IntervalSeconds > store.MaxIntervalSeconds {
		return ErrIntervalOutOfRange
	}
	if req.AmountHint == 0 || req.AmountHint > store.MaxAmountHint {
		return ErrAmountOutOfRange
	}
	if req.ReminderDaysBefore < 0 || req.ReminderDaysBefore > store.MaxReminderDaysBefore {
		return ErrReminderOutOfRange
	}
	if !validAddress(req.SettlementContract) || !validAddress(req.TokenMint) ||
		!validAddress(req.Payer) || !validAddress(req.Merchant) {
		return ErrInvalidAddress
	}

	perPrincipal, total := v.existence.ActiveCount(req.OwnerPrincipal)
	if perPrincipal >= store.MaxPerPrincipal {
		return ErrPerPrincipalQuota
	}
	if total >= store.MaxTotalActive {
		return ErrGlobalQuota
	}

	status, err := v.license.ValidateLicense(ctx, req.APIKey)
	if err != nil {
		return fmt.Errorf("validator: license check failed: %w", err)
	}
	if !status.IsValid || status.RateLimitRemaining <= 0 {
		return ErrLicenseInvalid
	}

	if err := v.license.ConsumeLicenseUsage(ctx, req.APIKey); err != nil {
		v.logger.Error("failed to consume license usage after validation passed",
			zap.String("sub_id", req.SubID), zap.Error(err))
		return fmt.Errorf("validator: failed to consume license usage: %w", err)
	}
	return nil
}

func validSubID(subID string) error {
	if len(subID) < store.MinSubIDLen || len(subID) > store.MaxSubIDLen {
		return ErrInvalidSubID
	}
	for _, r := range subID {
		if r < 0x20 || r > 0x7e {
			return ErrInvalidSubID
		}
	}
	return nil
}

func validAddress(addr string) bool {
	if len(addr) < minAddressLen || len(addr) > maxAddressLen {
		return false
	}
	for _, r := range addr {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
