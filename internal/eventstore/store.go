// Package eventstore keeps normalized events per owner in process memory.
// It stands in for a real persistence layer; the analysis pipeline only
// requires that List returns every not-yet-removed event for an owner.
package eventstore

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lvonguyen/threatlens/internal/logparse"
)

// StoredEvent wraps a normalized event with its storage identity.
type StoredEvent struct {
	ID       string          `json:"id"`
	OwnerID  string          `json:"owner_id"`
	Event    *logparse.Event `json:"event"`
	StoredAt time.Time       `json:"stored_at"`
}

// Store is an in-memory, owner-scoped event store safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	events map[string][]*StoredEvent
	now    func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		events: make(map[string][]*StoredEvent),
		now:    time.Now,
	}
}

// Append stores events for an owner and returns them with assigned IDs.
func (s *Store) Append(ownerID string, events []*logparse.Event) []*StoredEvent {
	stored := make([]*StoredEvent, 0, len(events))
	now := s.now()
	for _, ev := range events {
		if ev == nil {
			continue
		}
		stored = append(stored, &StoredEvent{
			ID:       uuid.NewString(),
			OwnerID:  ownerID,
			Event:    ev,
			StoredAt: now,
		})
	}

	s.mu.Lock()
	s.events[ownerID] = append(s.events[ownerID], stored...)
	s.mu.Unlock()

	return stored
}

// List returns all events stored for an owner, in no guaranteed order.
func (s *Store) List(ownerID string) []*logparse.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[ownerID]
	events := make([]*logparse.Event, 0, len(stored))
	for _, se := range stored {
		events = append(events, se.Event)
	}
	return events
}

// ListStored returns the stored wrappers for an owner, including IDs.
func (s *Store) ListStored(ownerID string) []*StoredEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.events[ownerID]
	out := make([]*StoredEvent, len(stored))
	copy(out, stored)
	return out
}

// Remove deletes one event by ID and reports whether it existed.
func (s *Store) Remove(ownerID, eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.events[ownerID]
	for i, se := range stored {
		if se.ID == eventID {
			s.events[ownerID] = append(stored[:i], stored[i+1:]...)
			return true
		}
	}
	return false
}

// Count returns the number of events stored for an owner.
func (s *Store) Count(ownerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events[ownerID])
}
