package subscription

import (
	"testing"
	"time"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestTransitions(t *testing.T) {
	cases := []struct {
		from    types.SubscriptionStatus
		to      types.SubscriptionStatus
		allowed bool
	}{
		{types.SubscriptionStatusActive, types.SubscriptionStatusCancelled, true},
		{types.SubscriptionStatusActive, types.SubscriptionStatusSuspended, true},
		{types.SubscriptionStatusActive, types.SubscriptionStatusExpired, true},
		{types.SubscriptionStatusCancelled, types.SubscriptionStatusActive, true},
		{types.SubscriptionStatusSuspended, types.SubscriptionStatusActive, true},
		{types.SubscriptionStatusSuspended, types.SubscriptionStatusExpired, true},
		{types.SubscriptionStatusCancelled, types.SubscriptionStatusSuspended, false},
		{types.SubscriptionStatusExpired, types.SubscriptionStatusActive, false},
		{types.SubscriptionStatusSuspended, types.SubscriptionStatusCancelled, false},
	}

	for _, tc := range cases {
		sub := &Subscription{SubscriptionStatus: tc.from}
		err := sub.Transition(tc.to)
		if tc.allowed {
			assert.NoError(t, err, "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.to, sub.SubscriptionStatus)
		} else {
			assert.True(t, ierr.IsInvalidTransition(err), "%s -> %s", tc.from, tc.to)
			assert.Equal(t, tc.from, sub.SubscriptionStatus)
		}
	}
}

func TestRemainingDays(t *testing.T) {
	now := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	sub := &Subscription{EndDate: now.Add(10 * 24 * time.Hour)}

	assert.Equal(t, 10, sub.RemainingDays(now))

	// Partial days round up.
	assert.Equal(t, 11, sub.RemainingDays(now.Add(-30*time.Minute)))
	assert.Equal(t, 10, sub.RemainingDays(now.Add(30*time.Minute)))

	assert.Zero(t, sub.RemainingDays(sub.EndDate))
	assert.Zero(t, sub.RemainingDays(sub.EndDate.Add(time.Hour)))
}

func TestInGracePeriod(t *testing.T) {
	now := time.Now().UTC()
	sub := &Subscription{}
	assert.False(t, sub.InGracePeriod(now))

	end := now.Add(time.Hour)
	sub.GracePeriodEnd = &end
	assert.True(t, sub.InGracePeriod(now))
	assert.False(t, sub.InGracePeriod(end))
}
