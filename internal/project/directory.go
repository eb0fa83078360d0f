// Package project gives the session engine its narrow view of the
// collaborator service that owns project and user persistence. The engine
// reads a project seed at admission time and writes file tree snapshots
// back on explicit save; everything else about that service is out of
// scope here.
package project

import (
	"context"

	"github.com/devroom-sh/devroom/internal/domain"
)

// Directory resolves project identities and persists file tree snapshots
type Directory interface {
	// Get returns the current persisted project, including the file
	// tree seed. A nil project with nil error means the id resolved to
	// nothing.
	Get(ctx context.Context, projectID string) (*domain.Project, error)

	// SaveFileTree persists the given snapshot as the project's file
	// tree. Last saved snapshot wins; there is no versioning.
	SaveFileTree(ctx context.Context, projectID string, tree domain.FileTree) error
}
