package save

import (
	"sync"

	"github.com/hollowpoint/aplink/pkg/log"
)

// Store owns the progress record for the currently loaded save. Its
// lifecycle follows the host's save/load cycle: Load on save load,
// Save on save write, Clear when the player leaves the game.
//
// Access is gated on a host liveness probe so the record is only
// reachable while a game session is actually active. The lock exists
// for interface safety; in practice every caller is the host's single
// game-logic thread.
type Store struct {
	mu     sync.RWMutex
	record *Record

	// probe reports whether the host currently has a game session
	// loaded.
	probe func() bool
}

// NewStore creates a store gated on the given liveness probe.
func NewStore(probe func() bool) *Store {
	return &Store{
		record: NewRecord(),
		probe:  probe,
	}
}

// Load replaces the record with one decoded from the host's save-file
// bytes. Corrupt data is logged and replaced with an empty record:
// save corruption must never crash or interrupt the host's load cycle.
func (s *Store) Load(data []byte) {
	record, err := DecodeRecord(data)
	if err != nil {
		log.Warn("Failed to load save record, starting fresh: %v", err)
		record = NewRecord()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = record
}

// Clear resets the record, for when the host loads a save with no
// record attached or leaves the game entirely.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = NewRecord()
}

// Save encodes the current record for the host's save file. Returns
// false when no game session is active, in which case nothing should
// be written.
func (s *Store) Save() ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.probe() {
		return nil, false
	}
	data, err := s.record.Encode()
	if err != nil {
		// Losing one save of progress is recoverable; failing the
		// host's save pipeline is not.
		log.Warn("Failed to encode save record: %v", err)
		return nil, false
	}
	return data, true
}

// Current returns the active record, or nil when no game session is
// loaded. The record must only be mutated from the game-logic thread.
func (s *Store) Current() *Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.probe() {
		return nil
	}
	return s.record
}
