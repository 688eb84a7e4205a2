package admin

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultFeeProposalMinAgeSeconds int64 = 7 * 24 * 60 * 60

var (
	// ErrProposalExists is returned by ProposeFeeAddressChange when one is
	// already pending — exactly one proposal is allowed at a time.
	ErrProposalExists = errors.New("admin: a fee address proposal is already pending")
	// ErrNoProposal is returned by ExecuteFeeAddressChange/CancelFeeAddressProposal
	// when nothing is pending.
	ErrNoProposal = errors.New("admin: no fee address proposal is pending")
	// ErrProposalTooYoung is returned by ExecuteFeeAddressChange before the
	// minimum wait has elapsed.
	ErrProposalTooYoung = errors.New("admin: fee address proposal has not reached its minimum age")
)

// FeeAddressProposal is the single pending change to the fee-collection
// address, if any.
type FeeAddressProposal struct {
	Address     string
	ProposedAt  int64
	ProposedBy  string
}

// ProposeFeeAddressChange opens a two-stage change to the fee-collection
// address. Fails if one is already pending.
func (s *Service) ProposeFeeAddressChange(caller, newAddress string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feeProposal != nil {
		return ErrProposalExists
	}
	s.feeProposal = &FeeAddressProposal{
		Address:    newAddress,
		ProposedAt: time.Now().Unix(),
		ProposedBy: caller,
	}
	s.logger.Info("fee address change proposed",
		zap.String("new_address", newAddress),
		callerField(caller),
	)
	return nil
}

// ExecuteFeeAddressChange commits the pending proposal, provided it is at
// least FeeProposalMinAgeSeconds old.
func (s *Service) ExecuteFeeAddressChange(caller string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feeProposal == nil {
		return ErrNoProposal
	}
	age := time.Now().Unix() - s.feeProposal.ProposedAt
	if age < s.cfg.FeeProposalMinAgeSeconds {
		return ErrProposalTooYoung
	}

	old := s.feeAddress
	s.feeAddress = s.feeProposal.Address
	s.logger.Info("fee address change executed",
		zap.String("old_address", old),
		zap.String("new_address", s.feeAddress),
		callerField(caller),
	)
	s.feeProposal = nil
	return nil
}

// CancelFeeAddressProposal discards the pending proposal without applying
// it.
func (s *Service) CancelFeeAddressProposal(caller string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feeProposal == nil {
		return ErrNoProposal
	}
	s.logger.Info("fee address proposal cancelled",
		zap.String("address", s.feeProposal.Address),
		callerField(caller),
	)
	s.feeProposal = nil
	return nil
}

// CurrentFeeAddress returns the active fee-collection address.
func (s *Service) CurrentFeeAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feeAddress
}

// PendingFeeProposal returns a copy of the pending proposal, if any.
func (s *Service) PendingFeeProposal() (FeeAddressProposal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.feeProposal == nil {
		return FeeAddressProposal{}, false
	}
	return *s.feeProposal, true
}
