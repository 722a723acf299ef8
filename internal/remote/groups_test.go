package remote_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/roostlabs/roost/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type groupEventLog struct {
	mu     sync.Mutex
	events []remote.GroupEvent
}

func (l *groupEventLog) record(event remote.GroupEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *groupEventLog) first() (remote.GroupEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) == 0 {
		return remote.GroupEvent{}, false
	}
	return l.events[0], true
}

func (l *groupEventLog) has(action remote.GroupAction, groupID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, event := range l.events {
		if event.Action == action && event.GroupID == groupID {
			return true
		}
	}
	return false
}

func TestSubscribeGroupEventsSyncsOnConnect(t *testing.T) {
	t.Parallel()
	syncer, _, _, cleanup := setupTest(t)
	defer cleanup()

	log := &groupEventLog{}
	sub := syncer.SubscribeGroupEvents(t.Context(), log.record)
	defer sub.Close()

	// Connecting synthesizes a sync event before anything is published
	require.Eventually(t, func() bool {
		_, ok := log.first()
		return ok
	}, 3*time.Second, 25*time.Millisecond)

	first, _ := log.first()
	assert.Equal(t, remote.GroupsSynced, first.Action)
	assert.Equal(t, uuid.Nil, first.GroupID)
}

func TestSubscribeGroupEventsDeliversPublished(t *testing.T) {
	t.Parallel()
	syncer, _, client, cleanup := setupTest(t)
	defer cleanup()

	ctx := t.Context()
	groupID := uuid.New()

	log := &groupEventLog{}
	sub := syncer.SubscribeGroupEvents(ctx, log.record)
	defer sub.Close()

	require.Eventually(t, func() bool {
		_, ok := log.first()
		return ok
	}, 3*time.Second, 25*time.Millisecond)

	require.Eventually(t, func() bool {
		err := remote.PublishGroupEvent(ctx, client, remote.GroupEvent{
			GroupID: groupID,
			Action:  remote.GroupCreated,
		})
		require.NoError(t, err)
		return log.has(remote.GroupCreated, groupID)
	}, 3*time.Second, 50*time.Millisecond)
}
