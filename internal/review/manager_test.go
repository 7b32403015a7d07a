//go:build fts5

package review

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	db "github.com/daybooklabs/daybook/internal/db/gorm"
	"github.com/daybooklabs/daybook/internal/extract"
	"github.com/daybooklabs/daybook/pkg/models"
)

func testManager(t *testing.T, cfg Config) (*Manager, *db.Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "daybook-review-test-*")
	require.NoError(t, err)

	store, err := db.NewStore(db.Config{
		Path:     filepath.Join(tmpDir, "test.db"),
		MaxConns: 4,
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)

	m := NewManager(store, cfg)
	return m, store, func() {
		m.Close()
		store.Close()
		os.RemoveAll(tmpDir)
	}
}

// seedNote creates a project and a submitted note, returning the note.
func seedNote(t *testing.T, m *Manager, rawText string) *models.SourceNote {
	t.Helper()
	ctx := context.Background()

	project, err := models.NewProject("owner-1", "Apollo")
	require.NoError(t, err)
	require.NoError(t, m.projects.CreateProject(ctx, project))

	note, err := m.SubmitNote(ctx, "owner-1", project.ID, "2026-09-01", rawText)
	require.NoError(t, err)
	return note
}

func entryTypes(t *testing.T, m *Manager, noteID string) []models.AuditEntryType {
	t.Helper()
	entries, err := m.audit.EntriesFor(context.Background(), noteID)
	require.NoError(t, err)
	types := make([]models.AuditEntryType, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.EntryType)
	}
	return types
}

const sampleNote = "Blocked on legal sign-off for contract\n" +
	"Need to draft the launch memo\n" +
	"Ping Sarah about the renewal"

func TestSubmitNote_Validation(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	project, err := models.NewProject("owner-1", "Apollo")
	require.NoError(t, err)
	require.NoError(t, m.projects.CreateProject(ctx, project))

	// Unknown project
	_, err = m.SubmitNote(ctx, "owner-1", "nope", "2026-09-01", "text here")
	assert.True(t, models.IsNotFound(err))

	// Wrong owner
	_, err = m.SubmitNote(ctx, "owner-2", project.ID, "2026-09-01", "text here")
	assert.True(t, models.IsValidation(err))

	// Bad date
	_, err = m.SubmitNote(ctx, "owner-1", project.ID, "Sept 1", "text here")
	assert.True(t, models.IsValidation(err))

	// Archived project
	require.NoError(t, m.projects.ArchiveProject(ctx, project.ID))
	_, err = m.SubmitNote(ctx, "owner-1", project.ID, "2026-09-01", "text here")
	assert.True(t, models.IsValidation(err))
}

func TestSubmitNote_WritesLedgerEntry(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()

	note := seedNote(t, m, sampleNote)
	types := entryTypes(t, m, note.ID)
	assert.Equal(t, []models.AuditEntryType{models.AuditLogCreated}, types)
}

func TestStartReview_FullParse(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, sampleNote)
	snap, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)

	assert.Equal(t, StateReviewing, snap.State)
	require.Len(t, snap.Items, 3)
	// Everything is selected until the reviewer deselects.
	assert.Len(t, snap.Selected, 3)
	assert.Equal(t, models.CategoryBlocker, snap.Items[0].Category)

	// Ledger: log_created, parse_initiated, one item_extracted per item,
	// parse_completed, in that order.
	types := entryTypes(t, m, note.ID)
	expected := []models.AuditEntryType{
		models.AuditLogCreated,
		models.AuditParseInitiated,
		models.AuditItemExtracted,
		models.AuditItemExtracted,
		models.AuditItemExtracted,
		models.AuditParseCompleted,
	}
	assert.Equal(t, expected, types)

	// Every item_extracted entry carries the rule version and the parse
	// elapsed time alongside the item payload.
	entries, err := m.audit.EntriesFor(ctx, note.ID)
	require.NoError(t, err)
	for _, e := range entries {
		if e.EntryType != models.AuditItemExtracted {
			continue
		}
		assert.Equal(t, extract.RulesVersion, e.Metadata["rules_version"])
		assert.Contains(t, e.Metadata, "elapsed_ms")
		assert.Contains(t, e.Metadata, "item_id")
	}
}

func TestStartReview_SingleActiveSession(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, sampleNote)
	_, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)

	_, err = m.StartReview(ctx, note.ID, "owner-1")
	assert.True(t, models.IsConflict(err))

	// Abandoned sessions may be replaced.
	_, err = m.Abandon(note.ID)
	require.NoError(t, err)
	_, err = m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)
}

func TestStartReview_UnknownNote(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()

	_, err := m.StartReview(context.Background(), "nope", "owner-1")
	assert.True(t, models.IsNotFound(err))
}

func TestEditItem(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, sampleNote)
	snap, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)
	item := snap.Items[1]

	edited, err := m.EditItem(ctx, note.ID, item.ID, "Draft the launch memo for Q4", "owner-1")
	require.NoError(t, err)

	got := edited.Items[1]
	assert.Equal(t, "Draft the launch memo for Q4", got.Text)
	require.Len(t, got.EditHistory, 1)
	assert.Equal(t, item.Text, got.EditHistory[0].OriginalText)
	// Provenance is untouched by edits.
	assert.Equal(t, item.SourceSpan, got.SourceSpan)
	assert.Equal(t, item.Source, got.Source)

	// Empty text is rejected before anything is written.
	before := len(entryTypes(t, m, note.ID))
	_, err = m.EditItem(ctx, note.ID, item.ID, "   ", "owner-1")
	assert.True(t, models.IsValidation(err))
	assert.Len(t, entryTypes(t, m, note.ID), before)

	_, err = m.EditItem(ctx, note.ID, "nope", "new text", "owner-1")
	assert.True(t, models.IsNotFound(err))

	types := entryTypes(t, m, note.ID)
	assert.Equal(t, models.AuditItemEdited, types[len(types)-1])
}

func TestDeleteRestoreRoundTrip(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, sampleNote)
	snap, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)
	victim := snap.Items[1]

	afterDelete, err := m.DeleteItem(ctx, note.ID, victim.ID, "owner-1")
	require.NoError(t, err)
	assert.Len(t, afterDelete.Items, 2)
	assert.Equal(t, 1, afterDelete.DeletedCount)
	assert.NotContains(t, afterDelete.Selected, victim.ID)

	// Deleting again: the item is no longer active.
	_, err = m.DeleteItem(ctx, note.ID, victim.ID, "owner-1")
	assert.True(t, models.IsNotFound(err))

	afterRestore, err := m.RestoreItem(ctx, note.ID, victim.ID, "owner-1")
	require.NoError(t, err)
	require.Len(t, afterRestore.Items, 3)

	// Restored into document order with provenance intact.
	restored := afterRestore.Items[1]
	assert.Equal(t, victim.ID, restored.ID)
	assert.Equal(t, victim.SourceSpan, restored.SourceSpan)
	assert.Equal(t, models.ItemPending, restored.Status)
	assert.Contains(t, afterRestore.Selected, victim.ID)

	// The ledger keeps both the delete and the restore.
	types := entryTypes(t, m, note.ID)
	assert.Equal(t, models.AuditItemDeleted, types[len(types)-2])
	assert.Equal(t, models.AuditItemRestored, types[len(types)-1])
}

func TestRestore_AfterUndoWindowExpires(t *testing.T) {
	m, _, cleanup := testManager(t, Config{UndoWindow: 50 * time.Millisecond})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, sampleNote)
	snap, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)
	victim := snap.Items[0]

	_, err = m.DeleteItem(ctx, note.ID, victim.ID, "owner-1")
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = m.RestoreItem(ctx, note.ID, victim.ID, "owner-1")
	require.Error(t, err)
	assert.True(t, models.IsConflict(err))
	assert.Contains(t, err.Error(), "undo window expired")
}

func TestToggleSelect_NoLedgerEntry(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, sampleNote)
	snap, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)
	item := snap.Items[0]

	before := entryTypes(t, m, note.ID)

	deselected, err := m.ToggleSelect(note.ID, item.ID)
	require.NoError(t, err)
	assert.NotContains(t, deselected.Selected, item.ID)

	reselected, err := m.ToggleSelect(note.ID, item.ID)
	require.NoError(t, err)
	assert.Contains(t, reselected.Selected, item.ID)

	// Selection is working state, never history.
	assert.Equal(t, before, entryTypes(t, m, note.ID))
}

func TestConfirm(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, sampleNote)
	snap, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)

	// Deselect the follow-up so only two items commit.
	_, err = m.ToggleSelect(note.ID, snap.Items[2].ID)
	require.NoError(t, err)

	confirmed, tasks, err := m.Confirm(ctx, note.ID, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, confirmed.State)
	require.Len(t, tasks, 2)

	for _, task := range tasks {
		assert.Equal(t, note.ID, task.SourceNoteID)
		assert.Equal(t, models.TaskOpen, task.Status)
	}

	// Tasks are durable and carry span and confidence unchanged.
	stored, err := m.tasks.GetTasksForNote(ctx, note.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, snap.Items[0].SourceSpan, stored[0].SourceSpan)
	assert.Equal(t, snap.Items[0].Confidence, stored[0].Confidence)

	types := entryTypes(t, m, note.ID)
	assert.Equal(t, models.AuditLogConfirmed, types[len(types)-1])

	// Closed sessions reject further mutation.
	_, err = m.EditItem(ctx, note.ID, snap.Items[0].ID, "too late", "owner-1")
	assert.True(t, models.IsConflict(err))
	_, _, err = m.Confirm(ctx, note.ID, "owner-1")
	assert.True(t, models.IsConflict(err))

	// And a confirmed note cannot start a second session.
	_, err = m.StartReview(ctx, note.ID, "owner-1")
	assert.True(t, models.IsConflict(err))
}

func TestConfirm_EmptySelection(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, "Need to draft the launch memo")
	snap, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)
	_, err = m.ToggleSelect(note.ID, snap.Items[0].ID)
	require.NoError(t, err)

	before := entryTypes(t, m, note.ID)
	_, _, err = m.Confirm(ctx, note.ID, "owner-1")
	assert.True(t, models.IsValidation(err))
	// A failed confirm leaves no ledger entry and no tasks.
	assert.Equal(t, before, entryTypes(t, m, note.ID))

	tasks, err := m.tasks.GetTasksForNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// The session is still open for review.
	got, err := m.GetSnapshot(note.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReviewing, got.State)
}

func TestParseTimeout(t *testing.T) {
	m, _, cleanup := testManager(t, Config{ParseTimeout: time.Nanosecond})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, sampleNote)
	_, err := m.StartReview(ctx, note.ID, "owner-1")
	require.Error(t, err)
	assert.True(t, models.IsTimeout(err))

	// A failed parse may be retried once the session is replaceable.
	snap, err := m.GetSnapshot(note.ID)
	require.NoError(t, err)
	assert.Equal(t, StateParseFailed, snap.State)
	assert.Empty(t, snap.Items)
}

func TestSettingsResolvedPerOperation(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	live := Config{}
	m.Settings = func() Config { return live }

	note := seedNote(t, m, sampleNote)

	// Shrinking the parse timeout after construction affects the very
	// next parse.
	live.ParseTimeout = time.Nanosecond
	_, err := m.StartReview(ctx, note.ID, "owner-1")
	require.Error(t, err)
	assert.True(t, models.IsTimeout(err))

	// Reverting to defaults makes the retry succeed.
	live.ParseTimeout = 0
	snap, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)

	// The undo window is re-read on restore as well.
	live.UndoWindow = 10 * time.Millisecond
	_, err = m.DeleteItem(ctx, note.ID, snap.Items[0].ID, "owner-1")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = m.RestoreItem(ctx, note.ID, snap.Items[0].ID, "owner-1")
	require.Error(t, err)
	assert.True(t, models.IsConflict(err))
}

func TestClosedSessionEviction(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	note := seedNote(t, m, "Need to draft the launch memo")
	_, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)
	_, _, err = m.Confirm(ctx, note.ID, "owner-1")
	require.NoError(t, err)

	// An open session survives eviction passes.
	other := seedNote(t, m, "Ping Sarah about the renewal")
	_, err = m.StartReview(ctx, other.ID, "owner-1")
	require.NoError(t, err)

	m.evictClosed(time.Now().Add(sessionRetention + time.Minute))

	_, err = m.GetSnapshot(other.ID)
	require.NoError(t, err)

	// The confirmed session's working set is gone...
	_, err = m.GetSnapshot(note.ID)
	assert.True(t, models.IsNotFound(err))

	// ...but the confirmation still blocks a second review, through the
	// committed tasks.
	_, err = m.StartReview(ctx, note.ID, "owner-1")
	assert.True(t, models.IsConflict(err))
}

func TestManager_Events(t *testing.T) {
	m, _, cleanup := testManager(t, Config{})
	defer cleanup()
	ctx := context.Background()

	var events []string
	m.OnEvent = func(e Event) { events = append(events, e.Type) }

	note := seedNote(t, m, "Need to draft the launch memo")
	_, err := m.StartReview(ctx, note.ID, "owner-1")
	require.NoError(t, err)
	_, _, err = m.Confirm(ctx, note.ID, "owner-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"note_created", "parse_completed", "session_confirmed"}, events)
}
