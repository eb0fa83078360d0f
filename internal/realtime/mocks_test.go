package realtime

import (
	"context"

	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockDirectory mocks the project.Directory interface
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Project), args.Error(1)
}

func (m *MockDirectory) SaveFileTree(ctx context.Context, projectID string, tree domain.FileTree) error {
	args := m.Called(ctx, projectID, tree)
	return args.Error(0)
}

// MockRevocation mocks the RevocationChecker interface
type MockRevocation struct {
	mock.Mock
}

func (m *MockRevocation) IsRevoked(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

// MockLimiter mocks the HandshakeLimiter interface
type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}
