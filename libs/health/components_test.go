package health

import (
	"context"
	"testing"
)

func TestRPCBreakerChecker_MapsStatesToHealth(t *testing.T) {
	cases := []struct {
		state CircuitState
		want  Status
	}{
		{CircuitClosed, StatusHealthy},
		{CircuitHalfOpen, StatusDegraded},
		{CircuitOpen, StatusUnhealthy},
	}
	for _, tc := range cases {
		checker := RPCBreakerChecker(func() CircuitState { return tc.state })
		result := checker.Check(context.Background())
		if result.Status != tc.want {
			t.Errorf("state %s: got %s, want %s", tc.state, result.Status, tc.want)
		}
	}
}

func TestCycleBalanceChecker_FlagsLowBalance(t *testing.T) {
	checker := CycleBalanceChecker(func() float64 { return 40 }, 50, 10)
	result := checker.Check(context.Background())
	if result.Status != StatusDegraded {
		t.Errorf("got %s, want degraded", result.Status)
	}

	checker = CycleBalanceChecker(func() float64 { return 5 }, 50, 10)
	result = checker.Check(context.Background())
	if result.Status != StatusUnhealthy {
		t.Errorf("got %s, want unhealthy", result.Status)
	}

	checker = CycleBalanceChecker(func() float64 { return 1000 }, 50, 10)
	result = checker.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("got %s, want healthy", result.Status)
	}
}
