package presence_test

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTimerManagerStart(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	tm := presence.NewTimerManager(clock, zap.NewNop())
	groupID := uuid.New()

	fired := make(chan struct{}, 1)
	tm.Start(groupID, time.Hour, func() { fired <- struct{}{} })

	require.True(t, tm.Pending(groupID))
	remaining, ok := tm.Remaining(groupID)
	require.True(t, ok)
	assert.Equal(t, time.Hour, remaining)

	clock.Advance(time.Hour).MustWait(t.Context())

	select {
	case <-fired:
	default:
		t.Fatal("timer did not fire")
	}

	assert.False(t, tm.Pending(groupID))
	_, ok = tm.Remaining(groupID)
	assert.False(t, ok)
}

func TestTimerManagerReplace(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	tm := presence.NewTimerManager(clock, zap.NewNop())
	groupID := uuid.New()

	fired := make(chan int, 2)
	tm.Start(groupID, time.Hour, func() { fired <- 1 })

	clock.Advance(30 * time.Minute).MustWait(t.Context())

	// Replacing restarts the full duration
	tm.Start(groupID, time.Hour, func() { fired <- 2 })
	remaining, ok := tm.Remaining(groupID)
	require.True(t, ok)
	assert.Equal(t, time.Hour, remaining)

	// The first timer's original deadline passes without firing
	clock.Advance(30 * time.Minute).MustWait(t.Context())
	select {
	case n := <-fired:
		t.Fatalf("timer %d fired early", n)
	default:
	}

	clock.Advance(30 * time.Minute).MustWait(t.Context())
	select {
	case n := <-fired:
		assert.Equal(t, 2, n)
	default:
		t.Fatal("replacement timer did not fire")
	}
	assert.Empty(t, fired)
}

func TestTimerManagerCancel(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	tm := presence.NewTimerManager(clock, zap.NewNop())
	groupID := uuid.New()

	fired := make(chan struct{}, 1)
	tm.Start(groupID, time.Hour, func() { fired <- struct{}{} })

	tm.Cancel(groupID)
	assert.False(t, tm.Pending(groupID))

	// Cancelling again is a no-op
	tm.Cancel(groupID)

	clock.Advance(2 * time.Hour).MustWait(t.Context())
	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	default:
	}
}

func TestTimerManagerRemaining(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	tm := presence.NewTimerManager(clock, zap.NewNop())
	groupID := uuid.New()

	_, ok := tm.Remaining(groupID)
	assert.False(t, ok)

	tm.Start(groupID, time.Hour, func() {})

	clock.Advance(45 * time.Minute).MustWait(t.Context())
	remaining, ok := tm.Remaining(groupID)
	require.True(t, ok)
	assert.Equal(t, 15*time.Minute, remaining)
}

func TestTimerManagerCancelAll(t *testing.T) {
	t.Parallel()

	clock := quartz.NewMock(t)
	tm := presence.NewTimerManager(clock, zap.NewNop())

	first := uuid.New()
	second := uuid.New()
	tm.Start(first, time.Hour, func() { t.Error("first timer fired") })
	tm.Start(second, 2*time.Hour, func() { t.Error("second timer fired") })

	tm.CancelAll()
	assert.False(t, tm.Pending(first))
	assert.False(t, tm.Pending(second))

	clock.Advance(3 * time.Hour).MustWait(t.Context())
}
