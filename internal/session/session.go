// Package session tracks which fragments a generation run has consumed,
// enforcing the rule that no quote appears twice in one scene.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Usage records one consumed fragment for later inspection.
type Usage struct {
	FragmentID string    `json:"fragment_id"`
	Character  string    `json:"character"`
	Speech     int       `json:"speech"`
	UsedAt     time.Time `json:"used_at"`
}

// Session is the per-generation exclusion set. The scene orchestrator is
// single-goroutine, but the CLI may inspect a session from another goroutine
// while generation runs, so all access is mutex-guarded.
type Session struct {
	mu      sync.Mutex
	id      string
	started time.Time
	used    map[string]bool
	history []Usage
}

// New creates an empty session with a fresh random id.
func New() *Session {
	return &Session{
		id:      uuid.NewString(),
		started: time.Now().UTC(),
		used:    make(map[string]bool),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// MarkUsed records a fragment as consumed. Marking an already-used fragment
// is a no-op for the exclusion set but still appends to the history, which
// makes double-accepts visible in statistics.
func (s *Session) MarkUsed(fragmentID, character string, speech int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used[fragmentID] = true
	s.history = append(s.history, Usage{
		FragmentID: fragmentID,
		Character:  character,
		Speech:     speech,
		UsedAt:     time.Now().UTC(),
	})
}

// IsUsed reports whether a fragment was already consumed this session.
func (s *Session) IsUsed(fragmentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[fragmentID]
}

// ExclusionList returns the consumed fragment ids in sorted order, ready to
// pass as a retrieval query's exclusion set.
func (s *Session) ExclusionList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.used))
	for id := range s.used {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of distinct fragments consumed.
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}

// Reset clears the exclusion set and history, keeping the session id.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used = make(map[string]bool)
	s.history = nil
}

// Merge folds another session's usage into this one, so a scene can extend
// the exclusion set of an earlier run.
func (s *Session) Merge(other *Session) {
	if other == nil {
		return
	}
	other.mu.Lock()
	history := make([]Usage, len(other.history))
	copy(history, other.history)
	other.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range history {
		if !s.used[u.FragmentID] {
			s.used[u.FragmentID] = true
			s.history = append(s.history, u)
		}
	}
}

// Statistics summarizes consumption per character.
func (s *Session) Statistics() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make(map[string]int)
	for _, u := range s.history {
		stats[u.Character]++
	}
	return stats
}

// snapshot is the serialized form of a session.
type snapshot struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`
	History []Usage   `json:"history"`
}

// Save writes the session to a JSON file.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	snap := snapshot{ID: s.id, Started: s.started, History: s.history}
	s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Load reads a previously saved session. The exclusion set is rebuilt from
// the usage history.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}

	s := &Session{
		id:      snap.ID,
		started: snap.Started,
		used:    make(map[string]bool, len(snap.History)),
		history: snap.History,
	}
	for _, u := range snap.History {
		s.used[u.FragmentID] = true
	}
	return s, nil
}
