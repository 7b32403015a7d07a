package gorm

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/daybooklabs/daybook/pkg/models"
)

// TaskStore provides committed-task database operations.
type TaskStore struct {
	store *Store
}

// NewTaskStore creates a new task store.
func NewTaskStore(store *Store) *TaskStore {
	return &TaskStore{store: store}
}

// CreateTasksTx inserts the committed tasks inside an existing
// transaction so confirmation and its log_confirmed entry land together.
func (s *TaskStore) CreateTasksTx(tx *gorm.DB, tasks []*models.Task) error {
	for _, t := range tasks {
		if err := tx.Create(taskToRow(t)).Error; err != nil {
			return err
		}
	}
	return nil
}

// GetTask retrieves a task by ID. Returns (nil, nil) when absent.
func (s *TaskStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var row Task
	err := s.store.DB.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return taskFromRow(&row), nil
}

// GetTasksForNote returns the tasks committed from one source note in
// creation order.
func (s *TaskStore) GetTasksForNote(ctx context.Context, sourceNoteID string) ([]*models.Task, error) {
	var rows []Task
	err := s.store.DB.WithContext(ctx).
		Where("source_note_id = ?", sourceNoteID).
		Order("created_at_epoch ASC, span_start ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return tasksFromRows(rows), nil
}

// TaskFilter narrows ListTasks results. Zero values mean "any".
type TaskFilter struct {
	ProjectID string
	Category  models.Category
	Status    models.TaskStatus
	Limit     int
}

// ListTasks returns tasks matching the filter, newest first.
func (s *TaskStore) ListTasks(ctx context.Context, f TaskFilter) ([]*models.Task, error) {
	q := s.store.DB.WithContext(ctx).Model(&Task{})
	if f.ProjectID != "" {
		q = q.Where("project_id = ?", f.ProjectID)
	}
	if f.Category != "" {
		q = q.Where("category = ?", string(f.Category))
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	var rows []Task
	if err := q.Order("created_at_epoch DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return tasksFromRows(rows), nil
}

// ToggleTask flips a task between open and completed, stamping or
// clearing completed_at. Returns the updated task.
func (s *TaskStore) ToggleTask(ctx context.Context, id string) (*models.Task, error) {
	var out *models.Task
	err := s.store.Transaction(func(tx *gorm.DB) error {
		var row Task
		err := tx.First(&row, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &models.NotFoundError{Kind: "task", ID: id}
		}
		if err != nil {
			return err
		}

		now := time.Now()
		if row.Status == string(models.TaskOpen) {
			row.Status = string(models.TaskCompleted)
			row.CompletedAt = nullString(now.Format(time.RFC3339))
			row.CompletedAtEpoch = sql.NullInt64{Int64: now.UnixMilli(), Valid: true}
		} else {
			row.Status = string(models.TaskOpen)
			row.CompletedAt = sql.NullString{}
			row.CompletedAtEpoch = sql.NullInt64{}
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		out = taskFromRow(&row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OpenTaskCountsByCategory returns open-task counts grouped by category
// for a project, for dashboard consumers.
func (s *TaskStore) OpenTaskCountsByCategory(ctx context.Context, projectID string) (map[models.Category]int, error) {
	type bucket struct {
		Category string
		Count    int
	}
	var buckets []bucket
	err := s.store.DB.WithContext(ctx).
		Model(&Task{}).
		Select("category, COUNT(*) as count").
		Where("project_id = ? AND status = ?", projectID, string(models.TaskOpen)).
		Group("category").
		Find(&buckets).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.Category]int, len(buckets))
	for _, b := range buckets {
		counts[models.Category(b.Category)] = b.Count
	}
	return counts, nil
}

// SearchTasksFTS performs full-text search over task text and source
// snippets, falling back to LIKE when FTS5 is unavailable or empty.
func (s *TaskStore) SearchTasksFTS(ctx context.Context, query, projectID string, limit int) ([]*models.Task, error) {
	if limit <= 0 {
		limit = 10
	}
	terms := ftsTerms(query)
	if terms == "" {
		return nil, nil
	}

	const ftsQuery = `
		SELECT t.id
		FROM tasks t
		JOIN tasks_fts fts ON t.rowid = fts.rowid
		WHERE tasks_fts MATCH ?
		  AND (? = '' OR t.project_id = ?)
		ORDER BY rank
		LIMIT ?
	`

	rows, err := s.store.sqlDB.QueryContext(ctx, ftsQuery, terms, projectID, projectID, limit)
	if err != nil {
		return s.searchTasksLike(ctx, query, projectID, limit)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return s.searchTasksLike(ctx, query, projectID, limit)
	}

	var taskRows []Task
	if err := s.store.DB.WithContext(ctx).Where("id IN ?", ids).Find(&taskRows).Error; err != nil {
		return nil, err
	}
	// Re-apply FTS rank order lost by the IN query.
	byID := make(map[string]*Task, len(taskRows))
	for i := range taskRows {
		byID[taskRows[i].ID] = &taskRows[i]
	}
	out := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			out = append(out, taskFromRow(row))
		}
	}
	return out, nil
}

// searchTasksLike is the LIKE fallback search.
func (s *TaskStore) searchTasksLike(ctx context.Context, query, projectID string, limit int) ([]*models.Task, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	q := s.store.DB.WithContext(ctx).
		Where("text LIKE ? OR source LIKE ?", pattern, pattern)
	if projectID != "" {
		q = q.Where("project_id = ?", projectID)
	}
	var rows []Task
	if err := q.Order("created_at_epoch DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return tasksFromRows(rows), nil
}

// ftsTerms converts a free-form query into an OR'd FTS5 match expression,
// quoting each term to avoid FTS syntax injection.
func ftsTerms(query string) string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f != "" {
			terms = append(terms, `"`+f+`"`)
		}
	}
	return strings.Join(terms, " OR ")
}

func taskToRow(t *models.Task) *Task {
	createdAt, epoch := formatTime(t.CreatedAt)
	row := &Task{
		ID:             t.ID,
		Text:           t.Text,
		Category:       string(t.Category),
		ProjectID:      t.ProjectID,
		SourceNoteID:   t.SourceNoteID,
		SpanStart:      t.SourceSpan.Start,
		SpanEnd:        t.SourceSpan.End,
		Source:         t.Source,
		Confidence:     t.Confidence,
		Metadata:       t.Metadata,
		Status:         string(t.Status),
		CreatedAt:      createdAt,
		CreatedAtEpoch: epoch,
	}
	if t.CompletedAt != nil {
		row.CompletedAt = nullString(t.CompletedAt.Format(time.RFC3339))
		row.CompletedAtEpoch = sql.NullInt64{Int64: t.CompletedAt.UnixMilli(), Valid: true}
	}
	return row
}

func taskFromRow(row *Task) *models.Task {
	t := &models.Task{
		ID:           row.ID,
		Text:         row.Text,
		Category:     models.Category(row.Category),
		ProjectID:    row.ProjectID,
		SourceNoteID: row.SourceNoteID,
		SourceSpan:   models.SourceSpan{Start: row.SpanStart, End: row.SpanEnd},
		Source:       row.Source,
		Confidence:   row.Confidence,
		Metadata:     row.Metadata,
		Status:       models.TaskStatus(row.Status),
		CreatedAt:    parseRFC3339(row.CreatedAt),
	}
	if row.CompletedAtEpoch.Valid {
		done := time.UnixMilli(row.CompletedAtEpoch.Int64).UTC()
		t.CompletedAt = &done
	}
	return t
}

func tasksFromRows(rows []Task) []*models.Task {
	tasks := make([]*models.Task, 0, len(rows))
	for i := range rows {
		tasks = append(tasks, taskFromRow(&rows[i]))
	}
	return tasks
}
