package models

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxNoteRunes bounds the raw text of a single note submission.
const MaxNoteRunes = 10000

// SourceNote is one submission of raw free-text notes for a project/date.
// Immutable once created; superseded only by a new note.
type SourceNote struct {
	ID        string    `db:"id" json:"id"`
	OwnerID   string    `db:"owner_id" json:"owner_id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Date      string    `db:"date" json:"date"` // YYYY-MM-DD
	RawText   string    `db:"raw_text" json:"raw_text"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// NewSourceNote validates and builds a note. Empty or oversize text and a
// malformed date fail with a ValidationError.
func NewSourceNote(ownerID, projectID, date, rawText string) (*SourceNote, error) {
	if ownerID == "" {
		return nil, &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if projectID == "" {
		return nil, &ValidationError{Field: "project_id", Reason: "required"}
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	if rawText == "" {
		return nil, &ValidationError{Field: "raw_text", Reason: "required"}
	}
	if n := utf8.RuneCountInString(rawText); n > MaxNoteRunes {
		return nil, &ValidationError{Field: "raw_text", Reason: "exceeds maximum length"}
	}
	return &SourceNote{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		ProjectID: projectID,
		Date:      date,
		RawText:   rawText,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SourceSpan locates an extracted statement inside the note's raw text.
// Offsets are byte offsets; RawText[Start:End] is the exact source snippet.
type SourceSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Snippet returns the quoted source text for the span, or "" if the span
// does not lie within rawText.
func (sp SourceSpan) Snippet(rawText string) string {
	if sp.Start < 0 || sp.End > len(rawText) || sp.Start > sp.End {
		return ""
	}
	return rawText[sp.Start:sp.End]
}
