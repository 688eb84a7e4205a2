package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscription_ReminderAtDisabledWhenZero(t *testing.T) {
	sub := &Subscription{NextExecutionAt: 10_000, ReminderDaysBefore: 0}
	_, ok := sub.ReminderAt()
	assert.False(t, ok)
}

func TestSubscription_ReminderAtSubtractsDays(t *testing.T) {
	sub := &Subscription{NextExecutionAt: 1_000_000, ReminderDaysBefore: 2}
	at, ok := sub.ReminderAt()
	assert.True(t, ok)
	assert.Equal(t, int64(1_000_000-2*86_400), at)
}
