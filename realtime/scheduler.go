package realtime

import (
	"log"
	"sync"
	"time"
)

// FieldKind identifies which note field a pending save belongs to.
type FieldKind string

const (
	FieldContent FieldKind = "content"
	FieldTitle   FieldKind = "title"
)

// SaveFunc persists the latest value of one note field. Failures must be
// handled (logged) by the implementation; the scheduler does not retry.
type SaveFunc func(noteID string, field FieldKind, value string)

// saveKey identifies at most one outstanding timer per (note, field).
type saveKey struct {
	noteID string
	field  FieldKind
}

// pendingSave holds the latest value waiting for its quiet period to elapse.
type pendingSave struct {
	value string
	timer *time.Timer
}

// Scheduler coalesces rapid edits to the same note field into a single
// persisted write. Each Schedule call replaces the pending value and resets
// the deadline, so a continuous edit stream is flushed only once input
// pauses for the full delay.
//
// Pending saves belong to the note, not to the editing session: a session
// disconnecting does not cancel them.
type Scheduler struct {
	mu      sync.Mutex
	pending map[saveKey]*pendingSave
	save    SaveFunc
}

// NewScheduler creates a scheduler that persists values through save.
func NewScheduler(save SaveFunc) *Scheduler {
	return &Scheduler{
		pending: make(map[saveKey]*pendingSave),
		save:    save,
	}
}

// Schedule records value as the latest state of (noteID, field) and arranges
// for it to be persisted after delay. A delay of zero or less persists
// synchronously, replacing any pending timer for the same key; back-to-back
// immediate saves therefore land in call order, and the last caller's value
// is the one that endures.
func (s *Scheduler) Schedule(noteID string, field FieldKind, value string, delay time.Duration) {
	key := saveKey{noteID: noteID, field: field}

	if delay <= 0 {
		s.mu.Lock()
		if existing, ok := s.pending[key]; ok {
			existing.timer.Stop()
			delete(s.pending, key)
		}
		s.mu.Unlock()
		s.save(noteID, field, value)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.pending[key]; ok {
		existing.timer.Stop()
	}

	p := &pendingSave{value: value}
	p.timer = time.AfterFunc(delay, func() {
		s.fire(key)
	})
	s.pending[key] = p
}

// fire persists and removes the pending save for key, if it still exists.
// A timer that lost the race against Flush/FlushAll or a newer Schedule
// finds nothing and does nothing.
func (s *Scheduler) fire(key saveKey) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if ok {
		s.save(key.noteID, key.field, p.value)
	}
}

// Flush persists the pending save for (noteID, field) right away, if one
// exists.
func (s *Scheduler) Flush(noteID string, field FieldKind) {
	key := saveKey{noteID: noteID, field: field}

	s.mu.Lock()
	p, ok := s.pending[key]
	if ok {
		p.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()

	if ok {
		s.save(noteID, field, p.value)
	}
}

// FlushAll fires every pending save immediately. Called on shutdown so the
// last edits before the process exits are not lost.
func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	flushing := make(map[saveKey]string, len(s.pending))
	for key, p := range s.pending {
		p.timer.Stop()
		flushing[key] = p.value
	}
	s.pending = make(map[saveKey]*pendingSave)
	s.mu.Unlock()

	if len(flushing) > 0 {
		log.Printf("INFO: Flushing %d pending save(s) on shutdown", len(flushing))
	}
	for key, value := range flushing {
		s.save(key.noteID, key.field, value)
	}
}

// PendingCount returns the number of outstanding save timers.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
