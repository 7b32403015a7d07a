// Package review implements the review session state machine and the
// manager that serializes reviewer mutations against the audit ledger.
package review

import (
	"sort"
	"sync"
	"time"

	"github.com/daybooklabs/daybook/pkg/models"
)

// State is the lifecycle state of a review session.
type State string

const (
	StateInitializing State = "initializing"
	StateParsing      State = "parsing"
	StateReviewing    State = "reviewing"
	StateConfirmed    State = "confirmed"   // terminal
	StateAbandoned    State = "abandoned"   // terminal
	StateParseFailed  State = "parse_failed" // retryable terminal
)

// active reports whether the state still blocks a new session for the
// same note.
func (s State) active() bool {
	return s == StateInitializing || s == StateParsing || s == StateReviewing
}

// deletedEntry buffers a deleted item for the undo window. Once the
// window expires the payload is purged and only the tombstone remains,
// so a late restore fails loudly instead of silently succeeding.
type deletedEntry struct {
	item         *models.CandidateItem // nil once purged
	deletedAt    time.Time
	auditEntryID string // the item_deleted entry a restore compensates
}

// Session is the working set for one source note's review. All field
// access goes through the session mutex; the manager additionally keeps
// at most one live session per note.
type Session struct {
	mu sync.Mutex

	note     *models.SourceNote
	state    State
	items    []*models.CandidateItem // active items in document order
	selected map[string]bool
	deleted  map[string]*deletedEntry
	version  int64
	parsedAt time.Time
	closedAt time.Time // set on entering a terminal state
}

func newSession(note *models.SourceNote) *Session {
	return &Session{
		note:     note,
		state:    StateInitializing,
		selected: make(map[string]bool),
		deleted:  make(map[string]*deletedEntry),
	}
}

// findItem returns the active item with the given ID, or nil.
// Caller holds s.mu.
func (s *Session) findItem(itemID string) *models.CandidateItem {
	for _, item := range s.items {
		if item.ID == itemID {
			return item
		}
	}
	return nil
}

// removeItem drops an active item. Caller holds s.mu.
func (s *Session) removeItem(itemID string) {
	for i, item := range s.items {
		if item.ID == itemID {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// insertItem re-inserts a restored item, keeping document order by source
// span so provenance reads top to bottom for the reviewer.
// Caller holds s.mu.
func (s *Session) insertItem(item *models.CandidateItem) {
	s.items = append(s.items, item)
	sort.SliceStable(s.items, func(i, j int) bool {
		return s.items[i].SourceSpan.Start < s.items[j].SourceSpan.Start
	})
}

// purgeExpired drops payloads of deleted items whose undo window has
// passed. Caller holds s.mu.
func (s *Session) purgeExpired(window time.Duration, now time.Time) {
	for _, entry := range s.deleted {
		if entry.item != nil && now.Sub(entry.deletedAt) > window {
			entry.item = nil
		}
	}
}

// Snapshot is the caller-visible view of a session, returned by every
// mutation so clients never observe intermediate state.
type Snapshot struct {
	SourceNoteID string                  `json:"source_note_id"`
	ProjectID    string                  `json:"project_id"`
	State        State                   `json:"state"`
	Items        []*models.CandidateItem `json:"items"`
	Selected     []string                `json:"selected"`
	DeletedCount int                     `json:"deleted_count"`
	Version      int64                   `json:"version"`
}

// snapshot deep-copies the session view. Caller holds s.mu.
func (s *Session) snapshot() *Snapshot {
	snap := &Snapshot{
		SourceNoteID: s.note.ID,
		ProjectID:    s.note.ProjectID,
		State:        s.state,
		Items:        make([]*models.CandidateItem, 0, len(s.items)),
		Version:      s.version,
	}
	for _, item := range s.items {
		snap.Items = append(snap.Items, item.Clone())
		if s.selected[item.ID] {
			snap.Selected = append(snap.Selected, item.ID)
		}
	}
	for _, entry := range s.deleted {
		if entry.item != nil {
			snap.DeletedCount++
		}
	}
	return snap
}
