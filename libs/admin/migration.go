package admin

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// UpdateSubscriptionAddresses repoints a subscription at a different
// settlement contract and/or token mint. It exists for the rare case of a
// contract redeployment or mint migration and is never called by any
// normal lifecycle path — the subscription otherwise keeps its schedule,
// status, and counters untouched.
func (s *Service) UpdateSubscriptionAddresses(ctx context.Context, caller, subID, newSettlementContract, newTokenMint string) error {
	if err := s.requireAdmin(caller); err != nil {
		return err
	}

	sub, err := s.store.Get(subID)
	if err != nil {
		return fmt.Errorf("admin: migration: %w", err)
	}

	oldContract, oldMint := sub.SettlementContract, sub.TokenMint
	sub.SettlementContract = newSettlementContract
	sub.TokenMint = newTokenMint

	if err := s.store.Update(ctx, sub); err != nil {
		return fmt.Errorf("admin: migration: failed to persist %s: %w", subID, err)
	}

	s.logger.Warn("subscription addresses migrated",
		zap.String("sub_id", subID),
		zap.String("old_settlement_contract", oldContract),
		zap.String("new_settlement_contract", newSettlementContract),
		zap.String("old_token_mint", oldMint),
		zap.String("new_token_mint", newTokenMint),
		callerField(caller),
	)
	return nil
}
