package admin

import (
	"context"

	"github.com/solsub/scheduler/libs/chainrpc"
	"github.com/solsub/scheduler/libs/health"
)

// HealthLevel is the coarse three-level health summary GetCanisterHealth
// reports, folded down from the finer-grained health.Status the
// individual checkers produce.
type HealthLevel string

const (
	HealthHealthy  HealthLevel = "healthy"
	HealthDegraded HealthLevel = "degraded"
	HealthCritical HealthLevel = "critical"
)

// CanisterHealth is the aggregate health snapshot surfaced to operators:
// overall level plus the per-component detail it was derived from.
type CanisterHealth struct {
	Level      HealthLevel
	Components map[string]health.CheckResult
}

// GetCanisterHealth runs every registered component checker — the RPC
// circuit-breaker state and cycle balance that RegisterHealthCheckers adds;
// store and signer reachability are not checked — and folds the result
// down to a single level an operator can act on without reading every
// component. Unlike every other query on
// Service, it takes no principal: it's one of the two operations an
// anonymous caller can reach (the other is Ping).
func (s *Service) GetCanisterHealth(ctx context.Context) (CanisterHealth, error) {
	results := s.health.Check(ctx)
	status := s.health.GetStatus(ctx)

	level := HealthHealthy
	switch status {
	case health.StatusUnhealthy:
		level = HealthCritical
	case health.StatusDegraded:
		level = HealthDegraded
	}

	return CanisterHealth{Level: level, Components: results}, nil
}

// circuitStateToHealth converts a chainrpc.CircuitState into the
// health.CircuitState the RPCBreakerChecker expects, so admin doesn't need
// to duplicate chainrpc's breaker logic and health doesn't need to import
// chainrpc.
func circuitStateToHealth(cs chainrpc.CircuitState) health.CircuitState {
	switch cs {
	case chainrpc.CircuitOpen:
		return health.CircuitOpen
	case chainrpc.CircuitHalfOpen:
		return health.CircuitHalfOpen
	default:
		return health.CircuitClosed
	}
}

// RegisterHealthCheckers wires the standard set of checks into h —
// RPC breaker state and cycle balance, the two components only admin
// knows how to observe through its Submitter and CycleStatus. The cycle
// thresholds are read on every check, so SetCycleThreshold takes effect
// without re-registering.
func (s *Service) RegisterHealthCheckers() {
	s.health.Register("chain_rpc_breaker", health.RPCBreakerChecker(func() health.CircuitState {
		return circuitStateToHealth(s.rpc.BreakerState())
	}))
	s.health.Register("cycle_balance", health.CheckerFunc(func(ctx context.Context) health.CheckResult {
		return health.CycleBalanceChecker(func() float64 {
			s.mu.RLock()
			defer s.mu.RUnlock()
			return float64(s.cycle.Current)
		}, float64(s.cycleWarnThreshold()), float64(s.cycleCriticalThreshold())).Check(ctx)
	}))
}

// cycleWarnThreshold and cycleCriticalThreshold derive CycleBalanceChecker's
// two thresholds from the single operator-set CycleStatus.Threshold: warn
// at 2x threshold, critical at the threshold itself.
func (s *Service) cycleWarnThreshold() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle.Threshold * 2
}

func (s *Service) cycleCriticalThreshold() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycle.Threshold
}
