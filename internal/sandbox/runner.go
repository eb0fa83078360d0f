// Package sandbox supervises the disposable execution environment for a
// session: mounting the file tree, installing dependencies, running the
// program, and exposing the preview origin once the server is reachable.
package sandbox

import (
	"context"

	"github.com/devroom-sh/devroom/internal/domain"
)

// Process is one spawned command inside the sandbox
type Process interface {
	// Output streams text chunks from the process; the channel is
	// closed after the process exits.
	Output() <-chan string

	// Done delivers the exit code exactly once.
	Done() <-chan int

	// Ready delivers the preview origin once the served program is
	// reachable. Processes that never serve anything simply never
	// deliver.
	Ready() <-chan string

	// Kill requests termination. The context bounds how long to wait
	// for the process to die.
	Kill(ctx context.Context) error
}

// Runner is the sandbox boundary: a filesystem view to mount trees into
// and commands to spawn against it.
type Runner interface {
	// Mount writes the tree into the sandbox's filesystem view,
	// replacing whatever was mounted before.
	Mount(ctx context.Context, tree domain.FileTree) error

	// Install runs the dependency-install step.
	Install(ctx context.Context) (Process, error)

	// Start runs the program.
	Start(ctx context.Context) (Process, error)

	// Close releases the sandbox's resources.
	Close() error
}
