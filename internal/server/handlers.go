package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	db "github.com/daybooklabs/daybook/internal/db/gorm"
	"github.com/daybooklabs/daybook/pkg/models"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case models.IsValidation(err):
		status = http.StatusBadRequest
	case models.IsNotFound(err):
		status = http.StatusNotFound
	case models.IsConflict(err):
		status = http.StatusConflict
	case models.IsTimeout(err):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &models.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	return nil
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.store.Ping(); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"version":        s.version,
		"ready":          s.ready.Load(),
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"sse_clients":    s.sseBroadcaster.ClientCount(),
	})
}

func (s *Service) handleListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": s.settings().CategorySet().All(),
	})
}

type createProjectRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

func (s *Service) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	project, err := models.NewProject(req.OwnerID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.projectStore.CreateProject(r.Context(), project); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (s *Service) handleListProjects(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, &models.ValidationError{Field: "owner_id", Reason: "required"})
		return
	}
	projects, err := s.projectStore.ListProjectsByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Service) handleArchiveProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if err := s.projectStore.ArchiveProject(r.Context(), projectID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}

func (s *Service) handleListProjectNotes(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	notes, err := s.noteStore.ListNotesForProject(r.Context(), projectID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func (s *Service) handleTaskCounts(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	counts, err := s.taskStore.OpenTaskCountsByCategory(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"open_counts": counts})
}

type submitNoteRequest struct {
	OwnerID   string `json:"owner_id"`
	ProjectID string `json:"project_id"`
	Date      string `json:"date"`
	RawText   string `json:"raw_text"`
}

func (s *Service) handleSubmitNote(w http.ResponseWriter, r *http.Request) {
	var req submitNoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	note, err := s.manager.SubmitNote(r.Context(), req.OwnerID, req.ProjectID, req.Date, req.RawText)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

func (s *Service) handleGetNote(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	note, err := s.noteStore.GetNote(r.Context(), noteID)
	if err != nil {
		writeError(w, err)
		return
	}
	if note == nil {
		writeError(w, &models.NotFoundError{Kind: "note", ID: noteID})
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// actorRequest carries the reviewer identity on mutating session calls.
type actorRequest struct {
	ActorID string `json:"actor_id"`
}

// decodeActor reads the actor from the body, tolerating an empty body.
func decodeActor(r *http.Request) (string, error) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return "", &models.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	if req.ActorID == "" {
		return "", &models.ValidationError{Field: "actor_id", Reason: "required"}
	}
	return req.ActorID, nil
}

func (s *Service) handleParse(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	actorID, err := decodeActor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := s.manager.StartReview(r.Context(), noteID, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.GetSnapshot(chi.URLParam(r, "noteID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type editItemRequest struct {
	ActorID string `json:"actor_id"`
	Text    string `json:"text"`
}

func (s *Service) handleEditItem(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	itemID := chi.URLParam(r, "itemID")

	var req editItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ActorID == "" {
		writeError(w, &models.ValidationError{Field: "actor_id", Reason: "required"})
		return
	}

	snap, err := s.manager.EditItem(r.Context(), noteID, itemID, req.Text, req.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	itemID := chi.URLParam(r, "itemID")
	actorID, err := decodeActor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := s.manager.DeleteItem(r.Context(), noteID, itemID, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleRestoreItem(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	itemID := chi.URLParam(r, "itemID")
	actorID, err := decodeActor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := s.manager.RestoreItem(r.Context(), noteID, itemID, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleToggleSelect(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	itemID := chi.URLParam(r, "itemID")

	snap, err := s.manager.ToggleSelect(noteID, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleConfirm(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	actorID, err := decodeActor(r)
	if err != nil {
		writeError(w, err)
		return
	}

	snap, tasks, err := s.manager.Confirm(r.Context(), noteID, actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": snap,
		"tasks":   tasks,
	})
}

func (s *Service) handleAbandon(w http.ResponseWriter, r *http.Request) {
	snap, err := s.manager.Abandon(chi.URLParam(r, "noteID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	entries, err := s.auditStore.EntriesFor(r.Context(), noteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Service) handleNoteTasks(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "noteID")
	tasks, err := s.taskStore.GetTasksForNote(r.Context(), noteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Service) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := db.TaskFilter{
		ProjectID: q.Get("project_id"),
		Category:  models.Category(q.Get("category")),
		Status:    models.TaskStatus(q.Get("status")),
		Limit:     limit,
	}
	tasks, err := s.taskStore.ListTasks(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Service) handleSearchTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, &models.ValidationError{Field: "q", Reason: "required"})
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	tasks, err := s.taskStore.SearchTasksFTS(r.Context(), query, q.Get("project_id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Service) handleToggleTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	task, err := s.taskStore.ToggleTask(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
