package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the lifecycle status of a project.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "active"
	ProjectArchived ProjectStatus = "archived"
)

// Project groups notes and tasks under one owner.
type Project struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Name      string        `json:"name"`
	Status    ProjectStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewProject validates and builds an active project.
func NewProject(ownerID, name string) (*Project, error) {
	if ownerID == "" {
		return nil, &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	return &Project{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Status:    ProjectActive,
		CreatedAt: time.Now().UTC(),
	}, nil
}
