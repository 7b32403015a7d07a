package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntryType enumerates the lifecycle events recorded in the ledger.
type AuditEntryType string

const (
	AuditLogCreated     AuditEntryType = "log_created"
	AuditParseInitiated AuditEntryType = "parse_initiated"
	AuditParseCompleted AuditEntryType = "parse_completed"
	AuditItemExtracted  AuditEntryType = "item_extracted"
	AuditItemEdited     AuditEntryType = "item_edited"
	AuditItemDeleted    AuditEntryType = "item_deleted"
	AuditItemRestored   AuditEntryType = "item_restored"
	AuditLogConfirmed   AuditEntryType = "log_confirmed"
)

// ActorType distinguishes user-initiated entries from pipeline entries.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorSystem ActorType = "system"
)

// AuditMetadata is the free-form payload attached to an entry. Enough
// state is snapshotted here (item text, before/after values) that any
// candidate can be reconstructed from the ledger alone.
type AuditMetadata map[string]any

// AuditEntry is one append-only ledger record for a source note. Entries
// are never mutated or removed; the ledger is the sole historical truth,
// independent of the candidate set's mutable state.
type AuditEntry struct {
	ID           string         `json:"id"`
	SourceNoteID string         `json:"source_note_id"`
	EntryType    AuditEntryType `json:"entry_type"`
	ActorType    ActorType      `json:"actor_type"`
	ActorID      string         `json:"actor_id,omitempty"` // set iff ActorType == user
	Description  string         `json:"description"`
	Metadata     AuditMetadata  `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewSystemEntry builds a pipeline-authored ledger entry.
func NewSystemEntry(noteID string, entryType AuditEntryType, description string, meta AuditMetadata) *AuditEntry {
	return &AuditEntry{
		ID:           uuid.NewString(),
		SourceNoteID: noteID,
		EntryType:    entryType,
		ActorType:    ActorSystem,
		Description:  description,
		Metadata:     meta,
		CreatedAt:    time.Now().UTC(),
	}
}

// NewUserEntry builds a reviewer-authored ledger entry.
func NewUserEntry(noteID, actorID string, entryType AuditEntryType, description string, meta AuditMetadata) *AuditEntry {
	e := NewSystemEntry(noteID, entryType, description, meta)
	e.ActorType = ActorUser
	e.ActorID = actorID
	return e
}
