package mocks

import (
	"context"

	"github.com/pregram/pregram/models"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) GetUser(ctx context.Context, provider string, providerId string) (models.User, error) {
	args := m.Called(ctx, provider, providerId)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockStore) IncrementMaxAccountSlots(ctx context.Context, provider string, providerId string, delta int) error {
	args := m.Called(ctx, provider, providerId, delta)
	return args.Error(0)
}

func (m *MockStore) PutProject(ctx context.Context, project models.Project) error {
	args := m.Called(ctx, project)
	return args.Error(0)
}

func (m *MockStore) GetProject(ctx context.Context, ownerId string, projectId string) (models.Project, error) {
	args := m.Called(ctx, ownerId, projectId)
	return args.Get(0).(models.Project), args.Error(1)
}

func (m *MockStore) ListProjects(ctx context.Context, ownerId string) ([]models.Project, error) {
	args := m.Called(ctx, ownerId)
	return args.Get(0).([]models.Project), args.Error(1)
}

func (m *MockStore) PutAccount(ctx context.Context, account models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockStore) ListAccounts(ctx context.Context, ownerId string) ([]models.Account, error) {
	args := m.Called(ctx, ownerId)
	return args.Get(0).([]models.Account), args.Error(1)
}

func (m *MockStore) DeleteAccount(ctx context.Context, ownerId string, accountId string) error {
	args := m.Called(ctx, ownerId, accountId)
	return args.Error(0)
}

func (m *MockStore) GetCurrentAccount(ctx context.Context, ownerId string) (string, error) {
	args := m.Called(ctx, ownerId)
	return args.String(0), args.Error(1)
}

func (m *MockStore) SetCurrentAccount(ctx context.Context, ownerId string, accountId string) error {
	args := m.Called(ctx, ownerId, accountId)
	return args.Error(0)
}

func (m *MockStore) GetBoardSet(ctx context.Context, accountId string) (models.BoardSet, error) {
	args := m.Called(ctx, accountId)
	return args.Get(0).(models.BoardSet), args.Error(1)
}

func (m *MockStore) WriteBoardSets(ctx context.Context, sets []models.BoardSet) ([]models.BoardSet, error) {
	args := m.Called(ctx, sets)
	return args.Get(0).([]models.BoardSet), args.Error(1)
}

func (m *MockStore) DeleteBoardSet(ctx context.Context, accountId string) error {
	args := m.Called(ctx, accountId)
	return args.Error(0)
}
