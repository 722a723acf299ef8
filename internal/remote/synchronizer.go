// Package remote persists presence writes to the shared store and fans
// change notifications out to other members over Redis pub/sub.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"github.com/roostlabs/roost/internal/database/types"
	"go.uber.org/zap"
)

const (
	presenceChannelPrefix = "presence:events:"

	reconnectInitialInterval = 500 * time.Millisecond
	reconnectMaxInterval     = 30 * time.Second
)

// ChangeEvent notifies subscribers that a group's presence set changed.
// Subscribers re-query the full present list rather than applying events
// incrementally, so dropped or duplicated events are harmless.
type ChangeEvent struct {
	GroupID uuid.UUID `json:"groupId"`
	UserID  string    `json:"userId"`
	At      time.Time `json:"at"`
}

// PresenceStore is the durable side of the synchronizer.
type PresenceStore interface {
	Upsert(ctx context.Context, record *types.PresenceRecord) error
	GetPresentMembers(ctx context.Context, groupID uuid.UUID) ([]*types.PresenceRecord, error)
}

// Synchronizer writes the local user's presence to the shared store and
// keeps subscribers supplied with the current present-member list.
type Synchronizer struct {
	store       PresenceStore
	client      rueidis.Client
	userID      string
	displayName string
	logger      *zap.Logger
}

// NewSynchronizer creates a synchronizer writing as the given user.
func NewSynchronizer(
	store PresenceStore, client rueidis.Client, userID string, displayName string, logger *zap.Logger,
) *Synchronizer {
	return &Synchronizer{
		store:       store,
		client:      client,
		userID:      userID,
		displayName: displayName,
		logger:      logger.Named("remote_sync"),
	}
}

// Write upserts the user's presence record for the group and notifies
// subscribers. The notification is best-effort once the record is durable.
func (s *Synchronizer) Write(ctx context.Context, groupID uuid.UUID, isPresent bool, isManual bool) error {
	record := &types.PresenceRecord{
		UserID:      s.userID,
		GroupID:     groupID,
		IsPresent:   isPresent,
		IsManual:    isManual,
		LastUpdated: time.Now(),
		DisplayName: s.displayName,
	}
	if err := s.store.Upsert(ctx, record); err != nil {
		return fmt.Errorf("failed to write presence record: %w", err)
	}

	s.publishChange(ctx, groupID)
	return nil
}

// PresentMembers returns the current present-member records for a group.
func (s *Synchronizer) PresentMembers(ctx context.Context, groupID uuid.UUID) ([]*types.PresenceRecord, error) {
	return s.store.GetPresentMembers(ctx, groupID)
}

// Subscribe delivers the group's full present-member list to onChange now
// and again after every change until the subscription is closed. onChange
// runs on the subscription's goroutine.
func (s *Synchronizer) Subscribe(ctx context.Context, groupID uuid.UUID, onChange func([]*types.PresenceRecord)) *Subscription {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go s.run(subCtx, groupID, onChange, sub.done)
	return sub
}

func (s *Synchronizer) run(ctx context.Context, groupID uuid.UUID, onChange func([]*types.PresenceRecord), done chan struct{}) {
	defer close(done)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = reconnectInitialInterval
	policy.MaxInterval = reconnectMaxInterval
	policy.MaxElapsedTime = 0

	channel := presenceChannel(groupID)
	for {
		// Deliver the current list on every (re)connect so events missed
		// while disconnected never strand the cache
		if s.deliver(ctx, groupID, onChange) {
			policy.Reset()
		}

		err := s.client.Receive(ctx, s.client.B().Subscribe().Channel(channel).Build(),
			func(msg rueidis.PubSubMessage) {
				var event ChangeEvent
				if err := sonic.Unmarshal([]byte(msg.Message), &event); err != nil {
					s.logger.Debug("Unparseable presence event, re-querying anyway",
						zap.Error(err),
						zap.String("groupId", groupID.String()))
				}
				s.deliver(ctx, groupID, onChange)
			})
		if ctx.Err() != nil {
			return
		}

		wait := policy.NextBackOff()
		s.logger.Warn("Presence subscription dropped, reconnecting",
			zap.Error(err),
			zap.String("groupId", groupID.String()),
			zap.Duration("retryIn", wait))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *Synchronizer) deliver(ctx context.Context, groupID uuid.UUID, onChange func([]*types.PresenceRecord)) bool {
	records, err := s.store.GetPresentMembers(ctx, groupID)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Failed to query present members",
				zap.Error(err),
				zap.String("groupId", groupID.String()))
		}
		return false
	}

	onChange(records)
	return true
}

func (s *Synchronizer) publishChange(ctx context.Context, groupID uuid.UUID) {
	PublishChange(ctx, s.client, ChangeEvent{GroupID: groupID, UserID: s.userID}, s.logger)
}

// PublishChange announces that a group's presence set changed. Failures are
// logged only since the durable write has already happened and subscribers
// re-sync on reconnect.
func PublishChange(ctx context.Context, client rueidis.Client, event ChangeEvent, logger *zap.Logger) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	payload, err := sonic.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal presence event", zap.Error(err))
		return
	}

	cmd := client.B().Publish().Channel(presenceChannel(event.GroupID)).Message(string(payload)).Build()
	if err := client.Do(ctx, cmd).Error(); err != nil {
		logger.Warn("Failed to publish presence event",
			zap.Error(err),
			zap.String("groupId", event.GroupID.String()))
	}
}

// Subscription is a live per-group presence subscription.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func presenceChannel(groupID uuid.UUID) string {
	return presenceChannelPrefix + groupID.String()
}
