package review

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	db "github.com/daybooklabs/daybook/internal/db/gorm"
	"github.com/daybooklabs/daybook/internal/extract"
	"github.com/daybooklabs/daybook/pkg/models"
)

const (
	// DefaultUndoWindow is how long a deleted item stays restorable.
	DefaultUndoWindow = 30 * time.Second

	// DefaultParseTimeout bounds one extraction run.
	DefaultParseTimeout = 10 * time.Second

	janitorInterval = 5 * time.Second

	// sessionRetention is how long a terminal session stays queryable
	// before the janitor evicts it. Confirmation stays enforceable after
	// eviction through the committed tasks.
	sessionRetention = 15 * time.Minute
)

// Event is a session lifecycle notification for streaming consumers.
type Event struct {
	Type         string `json:"type"`
	SourceNoteID string `json:"source_note_id"`
	Payload      any    `json:"payload,omitempty"`
}

// Config tunes a Manager. Zero values fall back to defaults.
type Config struct {
	UndoWindow   time.Duration
	ParseTimeout time.Duration
	Categories   *models.CategorySet
}

// Manager owns review sessions: one live session per note, every
// successful mutation preceded by exactly one ledger append. A state
// change is never made visible unless its audit entry committed first.
type Manager struct {
	store    *db.Store
	notes    *db.NoteStore
	projects *db.ProjectStore
	tasks    *db.TaskStore
	audit    *db.AuditStore

	classifier   extract.Classifier
	categories   *models.CategorySet
	undoWindow   time.Duration
	parseTimeout time.Duration

	// OnEvent, when set, receives session lifecycle events. Called
	// synchronously; handlers must not block.
	OnEvent func(Event)

	// Settings, when set, is consulted before each operation so that
	// configuration changes take effect without a restart. Zero fields
	// fall back to the construction-time values.
	Settings func() Config

	mu       sync.Mutex
	sessions map[string]*Session // sourceNoteID -> session

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// NewManager creates a session manager over the given store.
func NewManager(store *db.Store, cfg Config) *Manager {
	if cfg.UndoWindow <= 0 {
		cfg.UndoWindow = DefaultUndoWindow
	}
	if cfg.ParseTimeout <= 0 {
		cfg.ParseTimeout = DefaultParseTimeout
	}
	if cfg.Categories == nil {
		cfg.Categories = models.NewCategorySet()
	}
	return &Manager{
		store:        store,
		notes:        db.NewNoteStore(store),
		projects:     db.NewProjectStore(store),
		tasks:        db.NewTaskStore(store),
		audit:        db.NewAuditStore(store),
		classifier:   extract.NewRuleClassifier(),
		categories:   cfg.Categories,
		undoWindow:   cfg.UndoWindow,
		parseTimeout: cfg.ParseTimeout,
		sessions:     make(map[string]*Session),
		stopJanitor:  make(chan struct{}),
	}
}

// effective resolves the config for one operation, preferring live
// settings over the construction-time values.
func (m *Manager) effective() Config {
	cfg := Config{
		UndoWindow:   m.undoWindow,
		ParseTimeout: m.parseTimeout,
		Categories:   m.categories,
	}
	if m.Settings == nil {
		return cfg
	}
	live := m.Settings()
	if live.UndoWindow > 0 {
		cfg.UndoWindow = live.UndoWindow
	}
	if live.ParseTimeout > 0 {
		cfg.ParseTimeout = live.ParseTimeout
	}
	if live.Categories != nil {
		cfg.Categories = live.Categories
	}
	return cfg
}

// Start launches the background janitor that expires undo buffers.
func (m *Manager) Start() {
	go m.janitor()
}

// Close stops the janitor.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopJanitor) })
}

func (m *Manager) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopJanitor:
			return
		case now := <-ticker.C:
			window := m.effective().UndoWindow
			m.mu.Lock()
			sessions := make([]*Session, 0, len(m.sessions))
			for _, s := range m.sessions {
				sessions = append(sessions, s)
			}
			m.mu.Unlock()
			for _, s := range sessions {
				s.mu.Lock()
				s.purgeExpired(window, now)
				s.mu.Unlock()
			}
			m.evictClosed(now)
		}
	}
}

func (m *Manager) emit(eventType, noteID string, payload any) {
	if m.OnEvent != nil {
		m.OnEvent(Event{Type: eventType, SourceNoteID: noteID, Payload: payload})
	}
}

// SubmitNote validates and persists a new source note together with its
// log_created ledger entry.
func (m *Manager) SubmitNote(ctx context.Context, ownerID, projectID, date, rawText string) (*models.SourceNote, error) {
	note, err := models.NewSourceNote(ownerID, projectID, date, rawText)
	if err != nil {
		return nil, err
	}

	project, err := m.projects.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, &models.NotFoundError{Kind: "project", ID: projectID}
	}
	if project.OwnerID != ownerID {
		return nil, &models.ValidationError{Field: "project_id", Reason: "project belongs to a different owner"}
	}
	if project.Status == models.ProjectArchived {
		return nil, &models.ValidationError{Field: "project_id", Reason: "project is archived"}
	}

	entry := models.NewUserEntry(note.ID, ownerID, models.AuditLogCreated, "Log created", models.AuditMetadata{
		"project_id": projectID,
		"date":       date,
		"length":     len(rawText),
	})
	err = m.store.Transaction(func(tx *gorm.DB) error {
		if err := m.notes.CreateNoteTx(tx, note); err != nil {
			return err
		}
		return m.audit.AppendTx(tx, entry)
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("note_id", note.ID).Str("project_id", projectID).Msg("Note submitted")
	m.emit("note_created", note.ID, note)
	return note, nil
}

// StartReview opens a review session for a note and runs the extraction
// pipeline. A second call while a session is active or confirmed fails
// with a ConflictError; a failed or abandoned session may be replaced.
func (m *Manager) StartReview(ctx context.Context, noteID, actorID string) (*Snapshot, error) {
	note, err := m.notes.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if note == nil {
		return nil, &models.NotFoundError{Kind: "note", ID: noteID}
	}

	// Confirmation outlives the in-memory session: committed tasks block
	// a re-parse even after the session has been evicted.
	committed, err := m.tasks.GetTasksForNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	if len(committed) > 0 {
		return nil, &models.ConflictError{Reason: "review session already confirmed for this note"}
	}

	cfg := m.effective()

	sess, err := m.claimSession(note)
	if err != nil {
		return nil, err
	}

	if err := m.audit.Append(ctx, models.NewSystemEntry(noteID, models.AuditParseInitiated, "Parse initiated", models.AuditMetadata{
		"rules_version": extract.RulesVersion,
	})); err != nil {
		m.releaseSession(noteID, sess)
		return nil, err
	}

	sess.mu.Lock()
	sess.state = StateParsing
	sess.mu.Unlock()

	pctx, cancel := context.WithTimeout(ctx, cfg.ParseTimeout)
	defer cancel()

	res, err := extract.NewPipeline(m.classifier, cfg.Categories).Run(pctx, note)
	if err != nil {
		sess.mu.Lock()
		sess.state = StateParseFailed
		sess.closedAt = time.Now()
		snapErr := sess.snapshot()
		sess.mu.Unlock()
		log.Warn().Err(err).Str("note_id", noteID).Msg("Parse failed")
		m.emit("parse_failed", noteID, snapErr)
		return nil, err
	}

	if err := m.appendExtractionEntries(ctx, noteID, res); err != nil {
		sess.mu.Lock()
		sess.state = StateParseFailed
		sess.closedAt = time.Now()
		sess.mu.Unlock()
		return nil, err
	}

	sess.mu.Lock()
	sess.items = res.Items
	for _, item := range res.Items {
		sess.selected[item.ID] = true
	}
	sess.state = StateReviewing
	sess.parsedAt = time.Now().UTC()
	sess.version = 1
	snap := sess.snapshot()
	sess.mu.Unlock()

	log.Info().
		Str("note_id", noteID).
		Int("items", len(res.Items)).
		Int("segments", res.SegmentCount).
		Dur("elapsed", res.Elapsed).
		Msg("Parse completed")
	m.emit("parse_completed", noteID, snap)
	return snap, nil
}

// claimSession registers a fresh session for the note, enforcing the
// single-live-session invariant.
func (m *Manager) claimSession(note *models.SourceNote) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing := m.sessions[note.ID]; existing != nil {
		existing.mu.Lock()
		state := existing.state
		existing.mu.Unlock()
		switch {
		case state.active():
			return nil, &models.ConflictError{Reason: "review session already active for this note"}
		case state == StateConfirmed:
			return nil, &models.ConflictError{Reason: "review session already confirmed for this note"}
		}
	}

	sess := newSession(note)
	m.sessions[note.ID] = sess
	return sess, nil
}

// releaseSession removes a session only if it is still the registered
// one, for unwinding a failed start.
func (m *Manager) releaseSession(noteID string, sess *Session) {
	m.mu.Lock()
	if m.sessions[noteID] == sess {
		delete(m.sessions, noteID)
	}
	m.mu.Unlock()
}

// evictClosed drops terminal sessions whose retention has passed, so the
// session map stays bounded by live reviews.
func (m *Manager) evictClosed(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sess := range m.sessions {
		sess.mu.Lock()
		state, closedAt := sess.state, sess.closedAt
		sess.mu.Unlock()
		if !state.active() && !closedAt.IsZero() && now.Sub(closedAt) > sessionRetention {
			delete(m.sessions, id)
		}
	}
}

// appendExtractionEntries records one item_extracted entry per candidate
// followed by parse_completed, all before the session becomes visible.
func (m *Manager) appendExtractionEntries(ctx context.Context, noteID string, res *extract.Result) error {
	for _, item := range res.Items {
		entry := models.NewSystemEntry(noteID, models.AuditItemExtracted,
			fmt.Sprintf("Item extracted: %q", item.Text),
			models.AuditMetadata{
				"item_id":       item.ID,
				"text":          item.Text,
				"category":      string(item.Category),
				"confidence":    item.Confidence,
				"rules_version": extract.RulesVersion,
				"elapsed_ms":    res.Elapsed.Milliseconds(),
			})
		if err := m.audit.Append(ctx, entry); err != nil {
			return err
		}
	}
	entry := models.NewSystemEntry(noteID, models.AuditParseCompleted,
		fmt.Sprintf("Parse completed: %d items from %d segments", len(res.Items), res.SegmentCount),
		models.AuditMetadata{
			"item_count":    len(res.Items),
			"segment_count": res.SegmentCount,
			"elapsed_ms":    res.Elapsed.Milliseconds(),
			"rules_version": extract.RulesVersion,
		})
	return m.audit.Append(ctx, entry)
}

// getSession returns the live session for a note.
func (m *Manager) getSession(noteID string) (*Session, error) {
	m.mu.Lock()
	sess := m.sessions[noteID]
	m.mu.Unlock()
	if sess == nil {
		return nil, &models.NotFoundError{Kind: "session", ID: noteID}
	}
	return sess, nil
}

// requireReviewing guards mutations. Caller holds sess.mu.
func requireReviewing(sess *Session) error {
	switch sess.state {
	case StateReviewing:
		return nil
	case StateConfirmed:
		return &models.ConflictError{Reason: "review session already confirmed"}
	case StateAbandoned:
		return &models.ConflictError{Reason: "review session abandoned"}
	default:
		return &models.ConflictError{Reason: "review session not open for mutation"}
	}
}

// EditItem replaces a candidate's text, keeping the original in the edit
// history. The ledger entry is appended before the text changes.
func (m *Manager) EditItem(ctx context.Context, noteID, itemID, newText, actorID string) (*Snapshot, error) {
	if strings.TrimSpace(newText) == "" {
		return nil, &models.ValidationError{Field: "text", Reason: "required"}
	}

	sess, err := m.getSession(noteID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := requireReviewing(sess); err != nil {
		return nil, err
	}
	item := sess.findItem(itemID)
	if item == nil {
		return nil, &models.NotFoundError{Kind: "item", ID: itemID}
	}

	entry := models.NewUserEntry(noteID, actorID, models.AuditItemEdited,
		fmt.Sprintf("Item edited: %q", newText),
		models.AuditMetadata{
			"item_id":       itemID,
			"original_text": item.Text,
			"new_text":      newText,
		})
	if err := m.audit.Append(ctx, entry); err != nil {
		return nil, err
	}

	item.EditHistory = append(item.EditHistory, models.EditRecord{
		OriginalText: item.Text,
		EditedText:   newText,
		EditedAt:     time.Now().UTC(),
	})
	item.Text = newText
	sess.version++

	snap := sess.snapshot()
	m.emit("item_edited", noteID, snap)
	return snap, nil
}

// DeleteItem removes a candidate from the active set into the undo
// buffer. The item stays restorable until the undo window expires.
func (m *Manager) DeleteItem(ctx context.Context, noteID, itemID, actorID string) (*Snapshot, error) {
	sess, err := m.getSession(noteID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := requireReviewing(sess); err != nil {
		return nil, err
	}
	item := sess.findItem(itemID)
	if item == nil {
		return nil, &models.NotFoundError{Kind: "item", ID: itemID}
	}

	entry := models.NewUserEntry(noteID, actorID, models.AuditItemDeleted,
		fmt.Sprintf("Item deleted: %q", item.Text),
		models.AuditMetadata{
			"item_id":  itemID,
			"text":     item.Text,
			"category": string(item.Category),
		})
	if err := m.audit.Append(ctx, entry); err != nil {
		return nil, err
	}

	buffered := item.Clone()
	buffered.Status = models.ItemDeleted
	sess.deleted[itemID] = &deletedEntry{
		item:         buffered,
		deletedAt:    time.Now(),
		auditEntryID: entry.ID,
	}
	sess.removeItem(itemID)
	delete(sess.selected, itemID)
	sess.version++

	snap := sess.snapshot()
	m.emit("item_deleted", noteID, snap)
	return snap, nil
}

// RestoreItem undoes a delete within the undo window. The restore entry
// references the delete entry it compensates; the delete itself stays in
// the ledger untouched.
func (m *Manager) RestoreItem(ctx context.Context, noteID, itemID, actorID string) (*Snapshot, error) {
	sess, err := m.getSession(noteID)
	if err != nil {
		return nil, err
	}
	window := m.effective().UndoWindow

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := requireReviewing(sess); err != nil {
		return nil, err
	}

	buffered, ok := sess.deleted[itemID]
	if !ok {
		if sess.findItem(itemID) != nil {
			return nil, &models.ConflictError{Reason: "item is not deleted"}
		}
		return nil, &models.NotFoundError{Kind: "item", ID: itemID}
	}
	if buffered.item == nil || time.Since(buffered.deletedAt) > window {
		return nil, &models.ConflictError{Reason: "undo window expired"}
	}

	entry := models.NewUserEntry(noteID, actorID, models.AuditItemRestored,
		fmt.Sprintf("Item restored: %q", buffered.item.Text),
		models.AuditMetadata{
			"item_id":     itemID,
			"compensates": buffered.auditEntryID,
		})
	if err := m.audit.Append(ctx, entry); err != nil {
		return nil, err
	}

	restored := buffered.item
	restored.Status = models.ItemPending
	sess.insertItem(restored)
	sess.selected[itemID] = true
	delete(sess.deleted, itemID)
	sess.version++

	snap := sess.snapshot()
	m.emit("item_restored", noteID, snap)
	return snap, nil
}

// ToggleSelect flips whether a candidate is included in confirmation.
// Selection is working state, not history, so no ledger entry is written.
func (m *Manager) ToggleSelect(noteID, itemID string) (*Snapshot, error) {
	sess, err := m.getSession(noteID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := requireReviewing(sess); err != nil {
		return nil, err
	}
	if sess.findItem(itemID) == nil {
		return nil, &models.NotFoundError{Kind: "item", ID: itemID}
	}

	if sess.selected[itemID] {
		delete(sess.selected, itemID)
	} else {
		sess.selected[itemID] = true
	}
	sess.version++
	return sess.snapshot(), nil
}

// Confirm commits the selected candidates as tasks. Task rows and the
// log_confirmed entry land in one transaction; if either fails the
// session stays open and no tasks exist.
func (m *Manager) Confirm(ctx context.Context, noteID, actorID string) (*Snapshot, []*models.Task, error) {
	sess, err := m.getSession(noteID)
	if err != nil {
		return nil, nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := requireReviewing(sess); err != nil {
		return nil, nil, err
	}

	var chosen []*models.CandidateItem
	for _, item := range sess.items {
		if sess.selected[item.ID] {
			chosen = append(chosen, item)
		}
	}
	if len(chosen) == 0 {
		return nil, nil, &models.ValidationError{Field: "selection", Reason: "no items selected"}
	}

	tasks := make([]*models.Task, 0, len(chosen))
	taskIDs := make([]string, 0, len(chosen))
	for _, item := range chosen {
		t := models.TaskFromCandidate(item, sess.note.ProjectID)
		tasks = append(tasks, t)
		taskIDs = append(taskIDs, t.ID)
	}

	entry := models.NewUserEntry(noteID, actorID, models.AuditLogConfirmed,
		fmt.Sprintf("Log confirmed: %d tasks created", len(tasks)),
		models.AuditMetadata{
			"task_count": len(tasks),
			"task_ids":   taskIDs,
		})
	err = m.store.Transaction(func(tx *gorm.DB) error {
		if err := m.tasks.CreateTasksTx(tx, tasks); err != nil {
			return err
		}
		return m.audit.AppendTx(tx, entry)
	})
	if err != nil {
		return nil, nil, err
	}

	for _, item := range chosen {
		item.Status = models.ItemAccepted
	}
	sess.state = StateConfirmed
	sess.closedAt = time.Now()
	sess.version++

	snap := sess.snapshot()
	log.Info().Str("note_id", noteID).Int("tasks", len(tasks)).Msg("Session confirmed")
	m.emit("session_confirmed", noteID, snap)
	return snap, tasks, nil
}

// Abandon closes the session without committing anything. The ledger
// keeps whatever entries accrued; no abandonment entry is written.
func (m *Manager) Abandon(noteID string) (*Snapshot, error) {
	sess, err := m.getSession(noteID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := requireReviewing(sess); err != nil {
		return nil, err
	}

	sess.state = StateAbandoned
	sess.closedAt = time.Now()
	sess.deleted = make(map[string]*deletedEntry)
	sess.version++

	snap := sess.snapshot()
	m.emit("session_abandoned", noteID, snap)
	return snap, nil
}

// GetSnapshot returns the current view of a session.
func (m *Manager) GetSnapshot(noteID string) (*Snapshot, error) {
	sess, err := m.getSession(noteID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(), nil
}
