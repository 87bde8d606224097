package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/pregram/pregram/models"
	"github.com/pregram/pregram/store"
)

func (s *Service) CreateProject(ctx context.Context, user models.User, name string, kind models.ProjectKind) (models.Project, error) {
	if err := ValidateProjectName(name); err != nil {
		return models.Project{}, err
	}

	projectId, err := uuid.NewV4()
	if err != nil {
		return models.Project{}, err
	}

	now := time.Now().UnixMilli()
	project := models.Project{
		Id:        projectId.String(),
		OwnerId:   user.Id,
		Name:      name,
		Kind:      kind,
		Images:    []models.ImageRecord{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Store.PutProject(ctx, project); err != nil {
		return models.Project{}, err
	}

	return project, nil
}

func (s *Service) GetProject(ctx context.Context, user models.User, projectId string) (models.Project, error) {
	return s.Store.GetProject(ctx, user.Id, projectId)
}

func (s *Service) ListProjects(ctx context.Context, user models.User) ([]models.Project, error) {
	return s.Store.ListProjects(ctx, user.Id)
}

// recoverProject re-creates a project under a known id. Used when a
// caller references a project that no longer exists: validated images
// must never be dropped because of a dangling pointer.
func (s *Service) recoverProject(ctx context.Context, user models.User, projectId string, images []models.ImageRecord) (models.Project, error) {
	now := time.Now().UnixMilli()
	project := models.Project{
		Id:        projectId,
		OwnerId:   user.Id,
		Name:      "Recovered Project",
		Kind:      models.KindFeed,
		Images:    images,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if images == nil {
		project.Images = []models.ImageRecord{}
	}

	if err := s.Store.PutProject(ctx, project); err != nil {
		return models.Project{}, err
	}
	log.Printf("Recovered missing project %s for user %s", projectId, user.Id)

	return project, nil
}

// AddImages validates and prepends. Invalid records are dropped with a
// diagnostic rather than failing the batch.
func (s *Service) AddImages(ctx context.Context, user models.User, projectId string, images []models.ImageRecord) (models.Project, []string, error) {
	valid, rejected := FilterValidImages(images)

	project, err := s.Store.GetProject(ctx, user.Id, projectId)
	if errors.Is(err, store.ErrItemNotFound) {
		project, err = s.recoverProject(ctx, user, projectId, valid)
		return project, rejected, err
	}
	if err != nil {
		return models.Project{}, rejected, err
	}

	if len(valid) == 0 {
		return project, rejected, nil
	}

	project.Images = append(append([]models.ImageRecord{}, valid...), project.Images...)
	project.UpdatedAt = time.Now().UnixMilli()

	if err := s.Store.PutProject(ctx, project); err != nil {
		return models.Project{}, rejected, err
	}

	return project, rejected, nil
}

// ReorderImages replaces the image list verbatim with what the client sent.
func (s *Service) ReorderImages(ctx context.Context, user models.User, projectId string, images []models.ImageRecord) (models.Project, error) {
	project, err := s.Store.GetProject(ctx, user.Id, projectId)
	if err != nil {
		return models.Project{}, err
	}

	project.Images = images
	project.UpdatedAt = time.Now().UnixMilli()

	if err := s.Store.PutProject(ctx, project); err != nil {
		return models.Project{}, err
	}

	return project, nil
}

// RemoveImage is a no-op when the image is not in the project.
func (s *Service) RemoveImage(ctx context.Context, user models.User, projectId string, imageId string) (models.Project, error) {
	project, err := s.Store.GetProject(ctx, user.Id, projectId)
	if err != nil {
		return models.Project{}, err
	}

	kept := make([]models.ImageRecord, 0, len(project.Images))
	for _, img := range project.Images {
		if img.Id != imageId {
			kept = append(kept, img)
		}
	}

	if len(kept) == len(project.Images) {
		return project, nil
	}

	project.Images = kept
	project.UpdatedAt = time.Now().UnixMilli()

	if err := s.Store.PutProject(ctx, project); err != nil {
		return models.Project{}, err
	}

	return project, nil
}

// DuplicateProject copies metadata and the image list. The records keep
// their ids: the copy references the same images, no new binary handles
// are created.
func (s *Service) DuplicateProject(ctx context.Context, user models.User, projectId string) (models.Project, error) {
	source, err := s.Store.GetProject(ctx, user.Id, projectId)
	if err != nil {
		return models.Project{}, err
	}

	copyId, err := uuid.NewV4()
	if err != nil {
		return models.Project{}, err
	}

	now := time.Now().UnixMilli()
	duplicate := models.Project{
		Id:        copyId.String(),
		OwnerId:   user.Id,
		Name:      source.Name + " (Copy)",
		Kind:      source.Kind,
		Images:    append([]models.ImageRecord{}, source.Images...),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.Store.PutProject(ctx, duplicate); err != nil {
		return models.Project{}, err
	}

	return duplicate, nil
}
