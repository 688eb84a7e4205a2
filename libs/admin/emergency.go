package admin

import (
	"context"

	"github.com/solsub/scheduler/libs/store"
	"go.uber.org/zap"
)

// EmergencyPauseAll atomically pauses every currently Active subscription
// and cancels their timers. It remembers exactly which subscriptions it
// paused, so a later ResumeOperations call resumes only those — not every
// Paused subscription that might exist for other reasons.
func (s *Service) EmergencyPauseAll(ctx context.Context, caller string) (int, error) {
	if err := s.requireAdmin(caller); err != nil {
		return 0, err
	}

	actives := s.store.ListAllActive()

	s.mu.Lock()
	defer s.mu.Unlock()

	paused := make([]string, 0, len(actives))
	for _, sub := range actives {
		sub.Status = store.StatusPaused
		if err := s.store.Update(ctx, sub); err != nil {
			s.logger.Error("emergency pause: failed to persist", zap.String("sub_id", sub.SubID), zap.Error(err))
			continue
		}
		s.timers.Cancel(sub.SubID)
		paused = append(paused, sub.SubID)
	}

	s.lastEmergencyPaused = paused
	s.logger.Warn("emergency pause executed", zap.Int("paused_count", len(paused)), callerField(caller))
	return len(paused), nil
}

// ResumeOperations resumes every subscription the most recent
// EmergencyPauseAll affected, rearming timers. Subscriptions paused for
// any other reason (auto-pause, manual PauseSubscription) are untouched.
func (s *Service) ResumeOperations(ctx context.Context, caller string) (int, error) {
	if err := s.requireAdmin(caller); err != nil {
		return 0, err
	}

	s.mu.Lock()
	subIDs := s.lastEmergencyPaused
	s.lastEmergencyPaused = nil
	s.mu.Unlock()

	resumed := 0
	for _, subID := range subIDs {
		sub, err := s.store.Get(subID)
		if err != nil {
			continue
		}
		if sub.Status != store.StatusPaused {
			// Something else already changed its status (e.g. it was
			// cancelled while paused); leave it alone.
			continue
		}
		sub.Status = store.StatusActive
		if err := s.store.Update(ctx, sub); err != nil {
			s.logger.Error("resume operations: failed to persist", zap.String("sub_id", subID), zap.Error(err))
			continue
		}
		s.timers.Arm(sub)
		resumed++
	}

	s.logger.Info("resume operations executed", zap.Int("resumed_count", resumed), callerField(caller))
	return resumed, nil
}
