package workspace

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
