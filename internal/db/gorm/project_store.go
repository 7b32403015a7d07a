package gorm

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/daybooklabs/daybook/pkg/models"
)

// ProjectStore provides project-related database operations.
type ProjectStore struct {
	store *Store
}

// NewProjectStore creates a new project store.
func NewProjectStore(store *Store) *ProjectStore {
	return &ProjectStore{store: store}
}

// CreateProject persists a new project.
func (s *ProjectStore) CreateProject(ctx context.Context, p *models.Project) error {
	createdAt, epoch := formatTime(p.CreatedAt)
	row := Project{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		Name:           p.Name,
		Status:         string(p.Status),
		CreatedAt:      createdAt,
		CreatedAtEpoch: epoch,
	}
	return s.store.DB.WithContext(ctx).Create(&row).Error
}

// GetProject retrieves a project by ID. Returns (nil, nil) when absent.
func (s *ProjectStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var row Project
	err := s.store.DB.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return projectFromRow(&row), nil
}

// ListProjectsByOwner returns the owner's projects, newest first.
func (s *ProjectStore) ListProjectsByOwner(ctx context.Context, ownerID string) ([]*models.Project, error) {
	var rows []Project
	err := s.store.DB.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at_epoch DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	projects := make([]*models.Project, 0, len(rows))
	for i := range rows {
		projects = append(projects, projectFromRow(&rows[i]))
	}
	return projects, nil
}

// ArchiveProject marks a project archived.
func (s *ProjectStore) ArchiveProject(ctx context.Context, id string) error {
	res := s.store.DB.WithContext(ctx).
		Model(&Project{}).
		Where("id = ?", id).
		Update("status", string(models.ProjectArchived))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Kind: "project", ID: id}
	}
	return nil
}

func projectFromRow(row *Project) *models.Project {
	return &models.Project{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Name:      row.Name,
		Status:    models.ProjectStatus(row.Status),
		CreatedAt: parseRFC3339(row.CreatedAt),
	}
}
