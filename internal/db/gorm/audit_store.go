package gorm

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/daybooklabs/daybook/pkg/models"
)

const (
	// epochPruneThreshold is the map size that triggers pruning of stale
	// per-note epochs.
	epochPruneThreshold = 1024

	// epochRetentionMillis keeps a note's last epoch long enough that a
	// fresh wall-clock read cannot collide with it.
	epochRetentionMillis = 60_000
)

// AuditStore provides the append-only review ledger. Entries are only
// ever inserted; per-note timestamps are strictly increasing so the
// ledger retains a total order even when mutations land within the same
// millisecond.
type AuditStore struct {
	store *Store

	mu        sync.Mutex
	lastEpoch map[string]int64 // sourceNoteID -> last issued epoch millis
}

// NewAuditStore creates a new audit store.
func NewAuditStore(store *Store) *AuditStore {
	return &AuditStore{
		store:     store,
		lastEpoch: make(map[string]int64),
	}
}

// Append inserts one ledger entry. Never reorders and never mutates
// existing rows. Callers must not make a state change visible unless
// Append returned nil.
func (s *AuditStore) Append(ctx context.Context, e *models.AuditEntry) error {
	row := s.prepare(e)
	return s.store.DB.WithContext(ctx).Create(row).Error
}

// AppendTx inserts a ledger entry inside an existing transaction, for
// mutations that must commit atomically with their audit record.
func (s *AuditStore) AppendTx(tx *gorm.DB, e *models.AuditEntry) error {
	row := s.prepare(e)
	return tx.Create(row).Error
}

// prepare assigns a strictly increasing per-note epoch and converts the
// entry to its row form.
func (s *AuditStore) prepare(e *models.AuditEntry) *AuditEntry {
	s.mu.Lock()
	now := time.Now().UnixMilli()
	epoch := now
	if last := s.lastEpoch[e.SourceNoteID]; epoch <= last {
		epoch = last + 1
	}
	s.lastEpoch[e.SourceNoteID] = epoch
	if len(s.lastEpoch) > epochPruneThreshold {
		s.pruneEpochsLocked(now)
	}
	s.mu.Unlock()

	e.CreatedAt = time.UnixMilli(epoch).UTC()

	return &AuditEntry{
		ID:             e.ID,
		SourceNoteID:   e.SourceNoteID,
		EntryType:      string(e.EntryType),
		ActorType:      string(e.ActorType),
		ActorID:        nullString(e.ActorID),
		Description:    e.Description,
		Metadata:       e.Metadata,
		CreatedAt:      e.CreatedAt.Format(time.RFC3339Nano),
		CreatedAtEpoch: epoch,
	}
}

// pruneEpochsLocked drops notes whose ledger has been quiet past the
// retention window, keeping the map bounded by active notes. Caller
// holds s.mu.
func (s *AuditStore) pruneEpochsLocked(now int64) {
	for id, last := range s.lastEpoch {
		if now-last > epochRetentionMillis {
			delete(s.lastEpoch, id)
		}
	}
}

// EntriesFor returns the full ledger for a note in append order.
func (s *AuditStore) EntriesFor(ctx context.Context, sourceNoteID string) ([]*models.AuditEntry, error) {
	var rows []AuditEntry
	err := s.store.DB.WithContext(ctx).
		Where("source_note_id = ?", sourceNoteID).
		Order("created_at_epoch ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	entries := make([]*models.AuditEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, auditFromRow(&rows[i]))
	}
	return entries, nil
}

// CountFor returns the number of ledger entries for a note.
func (s *AuditStore) CountFor(ctx context.Context, sourceNoteID string) (int64, error) {
	var count int64
	err := s.store.DB.WithContext(ctx).
		Model(&AuditEntry{}).
		Where("source_note_id = ?", sourceNoteID).
		Count(&count).Error
	return count, err
}

func auditFromRow(row *AuditEntry) *models.AuditEntry {
	e := &models.AuditEntry{
		ID:           row.ID,
		SourceNoteID: row.SourceNoteID,
		EntryType:    models.AuditEntryType(row.EntryType),
		ActorType:    models.ActorType(row.ActorType),
		Description:  row.Description,
		Metadata:     row.Metadata,
		CreatedAt:    time.UnixMilli(row.CreatedAtEpoch).UTC(),
	}
	if row.ActorID.Valid {
		e.ActorID = row.ActorID.String
	}
	return e
}
