package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/daybooklabs/daybook/pkg/models"
)

// NoteStore provides source-note database operations. Notes are immutable
// once created; there are deliberately no update methods here.
type NoteStore struct {
	store *Store
}

// NewNoteStore creates a new note store.
func NewNoteStore(store *Store) *NoteStore {
	return &NoteStore{store: store}
}

// CreateNote persists a new source note.
func (s *NoteStore) CreateNote(ctx context.Context, n *models.SourceNote) error {
	return s.store.DB.WithContext(ctx).Create(noteToRow(n)).Error
}

// CreateNoteTx persists a note inside an existing transaction so the
// submission and its log_created ledger entry commit together.
func (s *NoteStore) CreateNoteTx(tx *gorm.DB, n *models.SourceNote) error {
	return tx.Create(noteToRow(n)).Error
}

func noteToRow(n *models.SourceNote) *SourceNote {
	createdAt, epoch := formatTime(n.CreatedAt)
	return &SourceNote{
		ID:             n.ID,
		OwnerID:        n.OwnerID,
		ProjectID:      n.ProjectID,
		Date:           n.Date,
		RawText:        n.RawText,
		CreatedAt:      createdAt,
		CreatedAtEpoch: epoch,
	}
}

// GetNote retrieves a note by ID. Returns (nil, nil) when absent.
func (s *NoteStore) GetNote(ctx context.Context, id string) (*models.SourceNote, error) {
	var row SourceNote
	err := s.store.DB.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return noteFromRow(&row), nil
}

// ListNotesForProject returns a project's notes, newest first.
func (s *NoteStore) ListNotesForProject(ctx context.Context, projectID string, limit int) ([]*models.SourceNote, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []SourceNote
	err := s.store.DB.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at_epoch DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	notes := make([]*models.SourceNote, 0, len(rows))
	for i := range rows {
		notes = append(notes, noteFromRow(&rows[i]))
	}
	return notes, nil
}

func noteFromRow(row *SourceNote) *models.SourceNote {
	return &models.SourceNote{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		ProjectID: row.ProjectID,
		Date:      row.Date,
		RawText:   row.RawText,
		CreatedAt: parseRFC3339(row.CreatedAt),
	}
}
