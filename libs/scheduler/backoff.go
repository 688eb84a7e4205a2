package scheduler

import "github.com/solsub/scheduler/libs/store"

const (
	minBackoffBase int64 = 60
	maxBackoffBase int64 = 3_600
	maxBackoffMult int64 = 16
)

// backoffBase returns interval_seconds/16 clamped into [60s, 3600s].
func backoffBase(intervalSeconds uint64) int64 {
	base := int64(intervalSeconds) / 16
	if base < minBackoffBase {
		return minBackoffBase
	}
	if base > maxBackoffBase {
		return maxBackoffBase
	}
	return base
}

// nextBackoffFireAt computes the fire time for the k-th consecutive failure
// (k >= 1): now + min(base * 2^(k-1), base * 16), never past
// next_execution_at + interval_seconds.
func nextBackoffFireAt(sub *store.Subscription, k int, now int64) int64 {
	if k < 1 {
		k = 1
	}
	base := backoffBase(sub.IntervalSeconds)

	mult := int64(1) << uint(k-1)
	if k-1 >= 4 || mult > maxBackoffMult {
		mult = maxBackoffMult
	}

	fireAt := now + base*mult

	periodBoundary := sub.NextExecutionAt + int64(sub.IntervalSeconds)
	if fireAt > periodBoundary {
		fireAt = periodBoundary
	}
	return fireAt
}
