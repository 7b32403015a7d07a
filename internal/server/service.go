// Package server provides the daybook HTTP service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/daybooklabs/daybook/internal/config"
	db "github.com/daybooklabs/daybook/internal/db/gorm"
	"github.com/daybooklabs/daybook/internal/review"
	"github.com/daybooklabs/daybook/internal/server/sse"
)

// Service is the daybook HTTP service: REST endpoints for notes, review
// sessions, and tasks, plus an SSE stream of session events.
type Service struct {
	version  string
	settings func() *config.Config

	store        *db.Store
	projectStore *db.ProjectStore
	noteStore    *db.NoteStore
	taskStore    *db.TaskStore
	auditStore   *db.AuditStore

	manager        *review.Manager
	sseBroadcaster *sse.Broadcaster

	router    chi.Router
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	ready     atomic.Bool
}

// NewService wires the service from an open store. The settings provider
// is consulted per request, so edits to the settings file apply without a
// restart.
func NewService(store *db.Store, settings func() *config.Config, version string) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	manager := review.NewManager(store, reviewConfig(settings()))
	manager.Settings = func() review.Config { return reviewConfig(settings()) }
	broadcaster := sse.NewBroadcaster()
	manager.OnEvent = func(e review.Event) {
		broadcaster.Broadcast(e)
	}

	svc := &Service{
		version:        version,
		settings:       settings,
		store:          store,
		projectStore:   db.NewProjectStore(store),
		noteStore:      db.NewNoteStore(store),
		taskStore:      db.NewTaskStore(store),
		auditStore:     db.NewAuditStore(store),
		manager:        manager,
		sseBroadcaster: broadcaster,
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}
	svc.setupRoutes()
	return svc
}

// reviewConfig maps file settings onto the session manager's config.
func reviewConfig(c *config.Config) review.Config {
	return review.Config{
		UndoWindow:   time.Duration(c.UndoWindowSeconds) * time.Second,
		ParseTimeout: time.Duration(c.ParseTimeoutSeconds) * time.Second,
		Categories:   c.CategorySet(),
	}
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/categories", s.handleListCategories)
		r.Get("/events", s.sseBroadcaster.ServeHTTP)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", s.handleCreateProject)
			r.Get("/", s.handleListProjects)
			r.Post("/{projectID}/archive", s.handleArchiveProject)
			r.Get("/{projectID}/notes", s.handleListProjectNotes)
			r.Get("/{projectID}/task-counts", s.handleTaskCounts)
		})

		r.Route("/notes", func(r chi.Router) {
			r.Post("/", s.handleSubmitNote)
			r.Get("/{noteID}", s.handleGetNote)
			r.Post("/{noteID}/parse", s.handleParse)
			r.Get("/{noteID}/audit", s.handleAuditTrail)
			r.Get("/{noteID}/tasks", s.handleNoteTasks)

			r.Route("/{noteID}/session", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Post("/confirm", s.handleConfirm)
				r.Post("/abandon", s.handleAbandon)
				r.Post("/items/{itemID}/edit", s.handleEditItem)
				r.Post("/items/{itemID}/delete", s.handleDeleteItem)
				r.Post("/items/{itemID}/restore", s.handleRestoreItem)
				r.Post("/items/{itemID}/select", s.handleToggleSelect)
			})
		})

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Get("/search", s.handleSearchTasks)
			r.Post("/{taskID}/toggle", s.handleToggleTask)
		})
	})
}

// Run starts the janitor and the HTTP listener, blocking until the
// context is cancelled or the listener fails.
func (s *Service) Run() error {
	s.manager.Start()
	s.ready.Store(true)

	port := s.settings().Port
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", port).Str("version", s.version).Msg("HTTP server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-s.ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop requests shutdown.
func (s *Service) Stop() {
	s.cancel()
}

func (s *Service) shutdown() error {
	s.ready.Store(false)
	s.manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}
