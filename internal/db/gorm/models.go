package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/daybooklabs/daybook/pkg/models"
)

// GORM row models. Timestamps are stored twice, RFC3339 for humans poking
// at the database and epoch millis for ordering and range queries.

// Project groups notes and tasks under one owner.
type Project struct {
	ID             string `gorm:"primaryKey"`
	OwnerID        string `gorm:"index;not null"`
	Name           string `gorm:"not null"`
	Status         string `gorm:"type:text;check:status IN ('active', 'archived');default:'active';index"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_projects_created,sort:desc;not null"`
}

func (Project) TableName() string { return "projects" }

// BeforeCreate hook to ensure timestamps are set.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.CreatedAtEpoch == 0 {
		p.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if p.CreatedAt == "" {
		p.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// SourceNote is one immutable raw-text submission.
type SourceNote struct {
	ID             string `gorm:"primaryKey"`
	OwnerID        string `gorm:"index;not null"`
	ProjectID      string `gorm:"index;not null"`
	Date           string `gorm:"index;not null"` // YYYY-MM-DD
	RawText        string `gorm:"type:text;not null"`
	CreatedAt      string `gorm:"not null"`
	CreatedAtEpoch int64  `gorm:"index:idx_notes_created,sort:desc;not null"`
}

func (SourceNote) TableName() string { return "source_notes" }

// BeforeCreate hook to ensure timestamps are set.
func (n *SourceNote) BeforeCreate(tx *gorm.DB) error {
	if n.CreatedAtEpoch == 0 {
		n.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if n.CreatedAt == "" {
		n.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// Task is a committed task produced by a confirmed review session.
type Task struct {
	ID               string              `gorm:"primaryKey"`
	Text             string              `gorm:"type:text;not null"`
	Category         string              `gorm:"index;not null"`
	ProjectID        string              `gorm:"index;not null"`
	SourceNoteID     string              `gorm:"index;not null"`
	SpanStart        int                 `gorm:"not null"`
	SpanEnd          int                 `gorm:"not null"`
	Source           string              `gorm:"type:text"`
	Confidence       int                 `gorm:"not null"`
	Metadata         models.ItemMetadata `gorm:"type:text"` // JSON
	Status           string              `gorm:"type:text;check:status IN ('open', 'completed');default:'open';index"`
	CreatedAt        string              `gorm:"not null"`
	CreatedAtEpoch   int64               `gorm:"index:idx_tasks_created,sort:desc;not null"`
	CompletedAt      sql.NullString
	CompletedAtEpoch sql.NullInt64
}

func (Task) TableName() string { return "tasks" }

// BeforeCreate hook to ensure timestamps are set.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.CreatedAtEpoch == 0 {
		t.CreatedAtEpoch = time.Now().UnixMilli()
	}
	if t.CreatedAt == "" {
		t.CreatedAt = time.Now().Format(time.RFC3339)
	}
	return nil
}

// AuditEntry is one append-only ledger record. Rows are only ever
// inserted; no store method updates or deletes them.
type AuditEntry struct {
	ID             string               `gorm:"primaryKey"`
	SourceNoteID   string               `gorm:"index:idx_audit_note,priority:1;not null"`
	EntryType      string               `gorm:"type:text;check:entry_type IN ('log_created', 'parse_initiated', 'parse_completed', 'item_extracted', 'item_edited', 'item_deleted', 'item_restored', 'log_confirmed');not null"`
	ActorType      string               `gorm:"type:text;check:actor_type IN ('user', 'system');not null"`
	ActorID        sql.NullString       `gorm:"type:text"`
	Description    string               `gorm:"type:text;not null"`
	Metadata       models.AuditMetadata `gorm:"type:text"` // JSON
	CreatedAt      string               `gorm:"not null"`
	CreatedAtEpoch int64                `gorm:"index:idx_audit_note,priority:2;not null"`
}

func (AuditEntry) TableName() string { return "audit_entries" }
