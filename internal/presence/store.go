package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Member is one present member inside a group summary.
type Member struct {
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Summary describes who is present in a group right now. The member count
// is always derived from the member list, never stored separately.
type Summary struct {
	GroupID uuid.UUID `json:"groupId"`
	Members []Member  `json:"members"`
}

// Count returns how many members are present.
func (s Summary) Count() int {
	return len(s.Members)
}

// Contains reports whether the given user is present in the summary.
func (s Summary) Contains(userID string) bool {
	for _, m := range s.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// Store caches per-group presence summaries assembled from remote
// deliveries. Each delivery replaces the previous summary wholesale, so
// duplicate deliveries are harmless.
type Store struct {
	mu        sync.RWMutex
	summaries map[uuid.UUID]Summary
}

// NewStore creates an empty summary cache.
func NewStore() *Store {
	return &Store{summaries: make(map[uuid.UUID]Summary)}
}

// SetSummary replaces the summary for a group.
func (s *Store) SetSummary(groupID uuid.UUID, members []Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[groupID] = Summary{GroupID: groupID, Members: members}
}

// Summary returns a copy of the group's summary. The second return reports
// whether any delivery has arrived for the group yet.
func (s *Store) Summary(groupID uuid.UUID) (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[groupID]
	if !ok {
		return Summary{GroupID: groupID}, false
	}

	out := Summary{GroupID: groupID, Members: make([]Member, len(summary.Members))}
	copy(out.Members, summary.Members)
	return out, true
}

// IsPresent reports whether a user appears in the group's summary.
func (s *Store) IsPresent(groupID uuid.UUID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries[groupID].Contains(userID)
}

// Remove drops the summary for a group.
func (s *Store) Remove(groupID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.summaries, groupID)
}
