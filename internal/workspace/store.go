// Package workspace holds the shared file tree document for each
// project and the merge rules applied when it changes: wholesale
// replacement with repair-then-commit for AI deltas, single-leaf patches
// for local edits, and a debounce buffer so autosave does not thrash
// consumers on every keystroke.
package workspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/devroom-sh/devroom/internal/project"
	"github.com/rs/zerolog"
)

// CommitHook observes committed trees. The hook runs outside the store
// lock and must not call back into the store.
type CommitHook func(projectID string, tree domain.FileTree)

// Store is the file tree store: one root tree per project. All commits
// to a project's tree are serialized; readers always get deep copies, so
// a replacement is atomic from a consumer's perspective.
type Store struct {
	mu       sync.Mutex
	projects map[string]*entry

	directory project.Directory
	debounce  time.Duration
	onCommit  CommitHook
	logger    zerolog.Logger
}

type entry struct {
	tree    domain.FileTree
	pending map[string]string
	order   []string
	timer   *time.Timer
}

// NewStore creates a file tree store backed by the collaborator directory
func NewStore(directory project.Directory, debounce time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		projects:  make(map[string]*entry),
		directory: directory,
		debounce:  debounce,
		logger:    logger.With().Str("component", "workspace").Logger(),
	}
}

// OnCommit registers the hook invoked after every committed change
func (s *Store) OnCommit(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCommit = hook
}

// Seed initializes a project's tree from its persisted snapshot. An
// already-seeded project keeps its live tree; a later join must observe
// the same document as everyone else, not the stale persisted copy.
func (s *Store) Seed(projectID string, tree domain.FileTree) domain.FileTree {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.projects[projectID]; ok {
		return e.tree.Clone()
	}

	repaired, result := Repair(tree)
	s.logRepair(projectID, result)
	s.projects[projectID] = &entry{tree: repaired, pending: make(map[string]string)}
	return repaired.Clone()
}

// Replace swaps in a whole new tree after repair, discarding the old one.
// Returns the repaired tree as committed.
func (s *Store) Replace(projectID string, tree domain.FileTree) (domain.FileTree, error) {
	s.mu.Lock()
	e, ok := s.projects[projectID]
	if !ok {
		e = &entry{pending: make(map[string]string)}
		s.projects[projectID] = e
	}

	repaired, result := Repair(tree)
	s.logRepair(projectID, result)
	e.tree = repaired

	snapshot := repaired.Clone()
	hook := s.onCommit
	s.mu.Unlock()

	if hook != nil {
		hook(projectID, snapshot)
	}
	return snapshot, nil
}

// Get returns a deep copy of the project's current tree
func (s *Store) Get(projectID string) (domain.FileTree, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.projects[projectID]
	if !ok {
		return nil, false
	}
	return e.tree.Clone(), true
}

// Patch mutates exactly one file leaf's contents, leaving the rest of
// the tree untouched.
func (s *Store) Patch(projectID, path, contents string) error {
	s.mu.Lock()
	e, ok := s.projects[projectID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown project %q", projectID)
	}

	if err := e.tree.SetFile(path, contents); err != nil {
		s.mu.Unlock()
		return err
	}

	snapshot := e.tree.Clone()
	hook := s.onCommit
	s.mu.Unlock()

	if hook != nil {
		hook(projectID, snapshot)
	}
	return nil
}

// QueuePatch buffers a local edit and commits it after the debounce
// quiet period. Edits to the same path within the window coalesce to the
// latest contents; distinct paths are applied in arrival order. A
// replacement landing mid-window wins over the buffered edit if it
// removes the edited path (last-call-wins, no merge).
func (s *Store) QueuePatch(projectID, path, contents string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.projects[projectID]
	if !ok {
		s.logger.Warn().Str("project", projectID).Msg("dropping edit for unknown project")
		return
	}

	if _, queued := e.pending[path]; !queued {
		e.order = append(e.order, path)
	}
	e.pending[path] = contents

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(s.debounce, func() {
		s.Flush(projectID)
	})
}

// Flush commits any buffered local edits immediately
func (s *Store) Flush(projectID string) {
	s.mu.Lock()
	e, ok := s.projects[projectID]
	if !ok || len(e.pending) == 0 {
		s.mu.Unlock()
		return
	}

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	for _, path := range e.order {
		contents := e.pending[path]
		if err := e.tree.SetFile(path, contents); err != nil {
			// The path vanished under a concurrent replacement; the
			// replacement won.
			s.logger.Warn().Str("project", projectID).Str("path", path).
				Err(err).Msg("discarding buffered edit")
		}
	}
	e.pending = make(map[string]string)
	e.order = nil

	snapshot := e.tree.Clone()
	hook := s.onCommit
	s.mu.Unlock()

	if hook != nil {
		hook(projectID, snapshot)
	}
}

// Save persists the current snapshot through the collaborator. Buffered
// edits are flushed first so the saved tree matches what members see.
func (s *Store) Save(ctx context.Context, projectID string) error {
	s.Flush(projectID)

	tree, ok := s.Get(projectID)
	if !ok {
		return fmt.Errorf("unknown project %q", projectID)
	}
	if err := s.directory.SaveFileTree(ctx, projectID, tree); err != nil {
		return fmt.Errorf("failed to persist file tree: %w", err)
	}
	return nil
}

// Forget drops a project's in-memory tree, e.g. when its room empties
func (s *Store) Forget(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.projects[projectID]; ok && e.timer != nil {
		e.timer.Stop()
	}
	delete(s.projects, projectID)
}

func (s *Store) logRepair(projectID string, result RepairResult) {
	if result.ManifestReplaced {
		s.logger.Info().Str("project", projectID).Msg("replaced invalid manifest with default")
	}
	if result.EntrySynthesized {
		s.logger.Info().Str("project", projectID).Msg("synthesized missing entry file")
	}
}
