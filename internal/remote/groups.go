package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// GroupsChannel carries group directory change events.
const GroupsChannel = "groups:events"

// GroupAction identifies what changed about a group.
type GroupAction string

const (
	GroupCreated        GroupAction = "created"
	GroupUpdated        GroupAction = "updated"
	GroupDeleted        GroupAction = "deleted"
	GroupMembersChanged GroupAction = "members_changed"

	// GroupsSynced is synthesized locally on every (re)connect so handlers
	// reload whatever they missed while disconnected. It never crosses the
	// wire and carries no group ID.
	GroupsSynced GroupAction = "synced"
)

// GroupEvent notifies agents that the group directory changed.
type GroupEvent struct {
	GroupID uuid.UUID   `json:"groupId"`
	Action  GroupAction `json:"action"`
	At      time.Time   `json:"at"`
}

// PublishGroupEvent announces a directory change to running agents.
func PublishGroupEvent(ctx context.Context, client rueidis.Client, event GroupEvent) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	payload, err := sonic.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal group event: %w", err)
	}

	cmd := client.B().Publish().Channel(GroupsChannel).Message(string(payload)).Build()
	if err := client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to publish group event: %w", err)
	}
	return nil
}

// SubscribeGroupEvents delivers group directory events to onEvent until the
// subscription is closed. A synthetic GroupsSynced event is delivered on
// every (re)connect. onEvent runs on the subscription's goroutine.
func (s *Synchronizer) SubscribeGroupEvents(ctx context.Context, onEvent func(GroupEvent)) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go s.runGroupEvents(subCtx, onEvent, sub.done)
	return sub
}

func (s *Synchronizer) runGroupEvents(ctx context.Context, onEvent func(GroupEvent), done chan struct{}) {
	defer close(done)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = reconnectInitialInterval
	policy.MaxInterval = reconnectMaxInterval
	policy.MaxElapsedTime = 0

	for {
		onEvent(GroupEvent{Action: GroupsSynced, At: time.Now()})

		err := s.client.Receive(ctx, s.client.B().Subscribe().Channel(GroupsChannel).Build(),
			func(msg rueidis.PubSubMessage) {
				var event GroupEvent
				if err := sonic.Unmarshal([]byte(msg.Message), &event); err != nil {
					s.logger.Warn("Dropping unparseable group event", zap.Error(err))
					return
				}
				onEvent(event)
			})
		if ctx.Err() != nil {
			return
		}

		wait := policy.NextBackOff()
		s.logger.Warn("Group event subscription dropped, reconnecting",
			zap.Error(err),
			zap.Duration("retryIn", wait))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
