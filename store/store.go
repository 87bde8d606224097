package store

import (
	"context"
	"errors"

	"github.com/pregram/pregram/models"
)

type PregramStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, provider string, providerId string) (models.User, error)
	IncrementMaxAccountSlots(ctx context.Context, provider string, providerId string, delta int) error

	PutProject(ctx context.Context, project models.Project) error
	GetProject(ctx context.Context, ownerId string, projectId string) (models.Project, error)
	ListProjects(ctx context.Context, ownerId string) ([]models.Project, error)

	PutAccount(ctx context.Context, account models.Account) error
	ListAccounts(ctx context.Context, ownerId string) ([]models.Account, error)
	DeleteAccount(ctx context.Context, ownerId string, accountId string) error
	GetCurrentAccount(ctx context.Context, ownerId string) (string, error)
	SetCurrentAccount(ctx context.Context, ownerId string, accountId string) error

	GetBoardSet(ctx context.Context, accountId string) (models.BoardSet, error)
	WriteBoardSets(ctx context.Context, sets []models.BoardSet) ([]models.BoardSet, error)
	DeleteBoardSet(ctx context.Context, accountId string) error
}

// Custom error types for clarity
var (
	ErrItemNotFound    = errors.New("item does not exist")
	ErrConditionFailed = errors.New("condition not met")
)
