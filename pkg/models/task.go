package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle status of a committed task.
type TaskStatus string

const (
	TaskOpen      TaskStatus = "open"
	TaskCompleted TaskStatus = "completed"
)

// Task is the committed output of a confirmed review session. Tasks are
// created only by session confirmation, never directly by the pipeline.
type Task struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Category     Category     `json:"category"`
	ProjectID    string       `json:"project_id"`
	SourceNoteID string       `json:"source_note_id"`
	SourceSpan   SourceSpan   `json:"source_span"`
	Source       string       `json:"source,omitempty"`
	Confidence   int          `json:"confidence"`
	Metadata     ItemMetadata `json:"metadata"`
	Status       TaskStatus   `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// TaskFromCandidate converts an accepted candidate into a task, copying
// span and confidence unchanged.
func TaskFromCandidate(item *CandidateItem, projectID string) *Task {
	return &Task{
		ID:           uuid.NewString(),
		Text:         item.Text,
		Category:     item.Category,
		ProjectID:    projectID,
		SourceNoteID: item.SourceNoteID,
		SourceSpan:   item.SourceSpan,
		Source:       item.Source,
		Confidence:   item.Confidence,
		Metadata:     item.Metadata,
		Status:       TaskOpen,
		CreatedAt:    time.Now().UTC(),
	}
}
