package admin

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CycleStatus is a snapshot of the service's operating-cost balance — the
// "cycles" this canister-flavored language borrows from, funded out of the
// protocol fees this service collects and spent down as it signs and
// submits transactions.
type CycleStatus struct {
	Current           uint64
	Threshold         uint64
	AutoRefillEnabled bool
	TotalConsumed     uint64
	TotalRefilled     uint64
	LastRefill        *int64
}

// GetCycleStatus returns a copy of the current cycle snapshot.
func (s *Service) GetCycleStatus(caller string) (CycleStatus, error) {
	if err := s.requireReader(caller); err != nil {
		return CycleStatus{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle, nil
}

// SetCycleThreshold changes the balance below which the service is
// reported unhealthy and, if auto-refill is enabled, eligible for a
// RefillCyclesFromFees run.
func (s *Service) SetCycleThreshold(caller string, threshold uint64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle.Threshold = threshold
	s.logger.Info("cycle threshold updated", zap.Uint64("threshold", threshold), callerField(caller))
	return nil
}

// EnableAutoRefill records the auto-refill flag in the cycle snapshot. The
// flag is bookkeeping only: nothing in this package refills automatically,
// and RefillCyclesFromFees runs only when an admin calls it.
func (s *Service) EnableAutoRefill(caller string, enabled bool) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle.AutoRefillEnabled = enabled
	s.logger.Info("cycle auto-refill toggled", zap.Bool("enabled", enabled), callerField(caller))
	return nil
}

// RefillCyclesFromFees credits the cycle balance from collected protocol
// fees. It does not itself move any funds on-chain — fee collection
// happens as part of normal dispatch — it only accounts for cycles that
// collection has already made available.
func (s *Service) RefillCyclesFromFees(ctx context.Context, caller string, amount uint64) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycle.Current += amount
	s.cycle.TotalRefilled += amount
	now := time.Now().Unix()
	s.cycle.LastRefill = &now

	s.logger.Info("cycles refilled from fees",
		zap.Uint64("amount", amount), zap.Uint64("new_balance", s.cycle.Current), callerField(caller))
	return nil
}

// consumeCyclesLocked must be called with s.mu held. It is the
// bookkeeping counterpart to RefillCyclesFromFees: it debits the balance
// (never below zero) and adds to TotalConsumed. No operation in this
// package calls it; AdminWithdraw* does not debit the balance.
func (s *Service) consumeCyclesLocked(amount uint64) {
	if amount > s.cycle.Current {
		s.cycle.Current = 0
	} else {
		s.cycle.Current -= amount
	}
	s.cycle.TotalConsumed += amount
}
