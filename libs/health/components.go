package health

import (
	"context"
	"fmt"
)

// CircuitState mirrors libs/chainrpc.CircuitState without importing that
// package (which would pull the RPC client's HTTP/retry stack into health,
// a package every other component depends on). Callers pass the breaker's
// current state through the getState closure below.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitHalfOpen CircuitState = "half-open"
	CircuitOpen     CircuitState = "open"
)

// RPCBreakerChecker reports the settlement-chain RPC client's circuit
// breaker state: closed is healthy, half-open is degraded (recovering),
// open is unhealthy (the RPC client is refusing calls outright).
func RPCBreakerChecker(getState func() CircuitState) Checker {
	return &rpcBreakerChecker{getState: getState}
}

type rpcBreakerChecker struct {
	getState func() CircuitState
}

func (c *rpcBreakerChecker) Name() string { return "rpc_client" }

func (c *rpcBreakerChecker) Check(ctx context.Context) CheckResult {
	state := c.getState()
	switch state {
	case CircuitOpen:
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "settlement RPC circuit breaker is open",
			Metadata: map[string]interface{}{
				"breaker_state": string(state),
			},
		}
	case CircuitHalfOpen:
		return CheckResult{
			Status:  StatusDegraded,
			Message: "settlement RPC circuit breaker is half-open, probing recovery",
			Metadata: map[string]interface{}{
				"breaker_state": string(state),
			},
		}
	default:
		return CheckResult{
			Status:  StatusHealthy,
			Message: "settlement RPC circuit breaker is closed",
			Metadata: map[string]interface{}{
				"breaker_state": string(state),
			},
		}
	}
}

// CycleBalanceChecker reports the service's operating-cycle balance
// against its configured refill thresholds: a balance reads unhealthy when
// it drops too low, the inverse of ThresholdChecker's "too high is bad"
// shape, so it gets its own small checker rather than reusing that one.
func CycleBalanceChecker(getBalance func() float64, warnBelow, criticalBelow float64) Checker {
	return &cycleBalanceChecker{
		getBalance:    getBalance,
		warnBelow:     warnBelow,
		criticalBelow: criticalBelow,
	}
}

type cycleBalanceChecker struct {
	getBalance    func() float64
	warnBelow     float64
	criticalBelow float64
}

func (c *cycleBalanceChecker) Name() string { return "cycle_balance" }

func (c *cycleBalanceChecker) Check(ctx context.Context) CheckResult {
	balance := c.getBalance()

	if balance <= c.criticalBelow {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("cycle balance %.0f at or below critical floor %.0f", balance, c.criticalBelow),
			Metadata: map[string]interface{}{
				"balance":        balance,
				"critical_floor": c.criticalBelow,
			},
		}
	}
	if balance <= c.warnBelow {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("cycle balance %.0f at or below warning floor %.0f", balance, c.warnBelow),
			Metadata: map[string]interface{}{
				"balance":    balance,
				"warn_floor": c.warnBelow,
			},
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("cycle balance %.0f", balance),
		Metadata: map[string]interface{}{
			"balance": balance,
		},
	}
}
