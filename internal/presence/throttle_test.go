package presence_test

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/presence"
	"github.com/stretchr/testify/assert"
)

func TestThrottleAllow(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	throttle := presence.NewThrottle(clock)
	groupID := uuid.New()

	assert.True(t, throttle.Allow(groupID), "first write should pass")
	assert.False(t, throttle.Allow(groupID), "immediate retry should be denied")

	clock.Advance(presence.UpdateThrottle - time.Second)
	assert.False(t, throttle.Allow(groupID), "write inside the window should be denied")

	clock.Advance(time.Second)
	assert.True(t, throttle.Allow(groupID), "write at the full window should pass")
}

func TestThrottlePerGroup(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	throttle := presence.NewThrottle(clock)
	first := uuid.New()
	second := uuid.New()

	assert.True(t, throttle.Allow(first))
	assert.True(t, throttle.Allow(second), "groups are throttled independently")
	assert.False(t, throttle.Allow(first))
	assert.False(t, throttle.Allow(second))
}

func TestThrottleRecord(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	throttle := presence.NewThrottle(clock)
	groupID := uuid.New()

	assert.True(t, throttle.Allow(groupID))

	// A bypassing write restarts the window from its own timestamp
	clock.Advance(20 * time.Second)
	throttle.Record(groupID)

	clock.Advance(20 * time.Second)
	assert.False(t, throttle.Allow(groupID), "window should measure from the recorded write")

	clock.Advance(10 * time.Second)
	assert.True(t, throttle.Allow(groupID))
}

func TestThrottleForget(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	throttle := presence.NewThrottle(clock)
	groupID := uuid.New()

	assert.True(t, throttle.Allow(groupID))
	throttle.Forget(groupID)
	assert.True(t, throttle.Allow(groupID), "forgotten group starts a fresh window")
}
