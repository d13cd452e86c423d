package storage

import (
	"fmt"
	"sort"

	"github.com/liveopshq/opscal/internal/event"
)

// Store is the in-memory event collection backed by a snapshot DB.
// It is the sole owner of event identity. Events keep their insertion
// order; the (date, title) pair is unique across the store.
//
// Store is not safe for concurrent use; callers serialize access.
type Store struct {
	db     *DB
	events []event.Event
	byKey  map[event.DedupKey]struct{}
	byID   map[string]int
	fairs  []string
}

// NewStore loads the persisted snapshot into a Store.
func NewStore(db *DB) (*Store, error) {
	events, err := db.ReadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	s := &Store{db: db}
	s.reindex(events)
	return s, nil
}

// reindex rebuilds the lookup maps and derived fair vocabulary.
func (s *Store) reindex(events []event.Event) {
	s.events = events
	s.byKey = make(map[event.DedupKey]struct{}, len(events))
	s.byID = make(map[string]int, len(events))
	for i, ev := range events {
		s.byKey[ev.Key()] = struct{}{}
		s.byID[ev.ID] = i
	}
	s.fairs = deriveFairs(events)
}

// Add appends events and persists one snapshot before returning.
// Callers are expected to have deduplicated already; a key collision
// here is a bug and the whole add is rejected with nothing applied.
func (s *Store) Add(events ...event.Event) error {
	seen := make(map[event.DedupKey]struct{}, len(events))
	for _, ev := range events {
		key := ev.Key()
		if _, dup := s.byKey[key]; dup {
			return fmt.Errorf("duplicate event %s %q", ev.Date, ev.Title)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate event %s %q in batch", ev.Date, ev.Title)
		}
		seen[key] = struct{}{}
	}

	next := append(append([]event.Event{}, s.events...), events...)
	if err := s.db.WriteSnapshot(next); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	s.reindex(next)
	return nil
}

// Remove deletes one event by id and persists. It reports whether the
// id existed.
func (s *Store) Remove(id string) (bool, error) {
	i, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	next := append(append([]event.Event{}, s.events[:i]...), s.events[i+1:]...)
	if err := s.db.WriteSnapshot(next); err != nil {
		return false, fmt.Errorf("persist snapshot: %w", err)
	}
	s.reindex(next)
	return true, nil
}

// RemoveAll deletes every event and persists an empty snapshot.
func (s *Store) RemoveAll() error {
	if err := s.db.WriteSnapshot(nil); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	s.reindex(nil)
	return nil
}

// All returns a copy of the events in insertion order.
func (s *Store) All() []event.Event {
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Get returns the event with the given id, if present.
func (s *Store) Get(id string) (event.Event, bool) {
	i, ok := s.byID[id]
	if !ok {
		return event.Event{}, false
	}
	return s.events[i], true
}

// Contains reports whether an event with the given dedup key exists.
func (s *Store) Contains(key event.DedupKey) bool {
	_, ok := s.byKey[key]
	return ok
}

// Count returns the number of events.
func (s *Store) Count() int {
	return len(s.events)
}

// Fairs returns the sorted distinct non-empty fair tags across the
// store. Recomputed on every mutation; this copy is the caller's.
func (s *Store) Fairs() []string {
	out := make([]string, len(s.fairs))
	copy(out, s.fairs)
	return out
}

func deriveFairs(events []event.Event) []string {
	set := make(map[string]struct{})
	for _, ev := range events {
		if ev.Fair != "" {
			set[ev.Fair] = struct{}{}
		}
	}
	fairs := make([]string, 0, len(set))
	for fair := range set {
		fairs = append(fairs, fair)
	}
	sort.Strings(fairs)
	return fairs
}
