package workspace

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, debounce time.Duration) (*Store, *MockDirectory) {
	t.Helper()
	dir := new(MockDirectory)
	return NewStore(dir, debounce, zerolog.Nop()), dir
}

func TestRepair_BrokenTree(t *testing.T) {
	tree := domain.FileTree{
		"package.json": domain.NewFile("{not json"),
	}

	repaired, result := Repair(tree)

	assert.True(t, result.ManifestReplaced)
	assert.True(t, result.EntrySynthesized)

	manifest, ok := repaired.Lookup("package.json")
	require.True(t, ok)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(manifest.Contents), &parsed))
	assert.Equal(t, "app.js", parsed["main"])

	entry, ok := repaired.Lookup("app.js")
	require.True(t, ok)
	assert.Equal(t, domain.NodeFile, entry.Kind)

	// Input not mutated
	_, ok = tree.Lookup("app.js")
	assert.False(t, ok)
}

func TestRepair_FixedPoint(t *testing.T) {
	repaired, _ := Repair(domain.FileTree{})
	again, result := Repair(repaired)

	assert.False(t, result.ManifestReplaced)
	assert.False(t, result.EntrySynthesized)
	assert.Equal(t, repaired.Paths(), again.Paths())

	a, _ := repaired.Lookup("package.json")
	b, _ := again.Lookup("package.json")
	assert.Equal(t, a.Contents, b.Contents)
}

func TestRepair_Deterministic(t *testing.T) {
	tree := domain.FileTree{"readme.md": domain.NewFile("hi")}

	first, _ := Repair(tree)
	second, _ := Repair(tree)

	assert.Equal(t, first, second)
}

func TestStore_ReplaceThenGet(t *testing.T) {
	store, _ := newTestStore(t, time.Millisecond)

	tree := domain.FileTree{
		"app.js":       domain.NewFile(`console.log(1)`),
		"package.json": domain.NewFile(`{"name":"demo"}`),
	}

	committed, err := store.Replace("p1", tree)
	require.NoError(t, err)

	got, ok := store.Get("p1")
	require.True(t, ok)
	assert.Equal(t, committed, got)

	// Mutating the returned copy must not touch the store
	got["app.js"].Contents = "mutated"
	again, _ := store.Get("p1")
	node, _ := again.Lookup("app.js")
	assert.Equal(t, `console.log(1)`, node.Contents)
}

func TestStore_PatchSingleLeaf(t *testing.T) {
	store, _ := newTestStore(t, time.Millisecond)

	_, err := store.Replace("p1", domain.FileTree{
		"app.js":       domain.NewFile("old"),
		"package.json": domain.NewFile(`{"name":"demo"}`),
		"lib":          domain.NewDirectory(map[string]*domain.FileTreeNode{"util.js": domain.NewFile("u")}),
	})
	require.NoError(t, err)

	require.NoError(t, store.Patch("p1", "lib/util.js", "v2"))

	tree, _ := store.Get("p1")
	node, ok := tree.Lookup("lib/util.js")
	require.True(t, ok)
	assert.Equal(t, "v2", node.Contents)

	other, _ := tree.Lookup("app.js")
	assert.Equal(t, "old", other.Contents)

	assert.Error(t, store.Patch("p1", "missing.js", "x"))
	assert.Error(t, store.Patch("p1", "lib", "x"))
	assert.Error(t, store.Patch("nope", "app.js", "x"))
}

func TestStore_QueuePatchDebounce(t *testing.T) {
	store, _ := newTestStore(t, 20*time.Millisecond)
	store.Seed("p1", domain.FileTree{"app.js": domain.NewFile("v0")})

	store.QueuePatch("p1", "app.js", "v1")
	store.QueuePatch("p1", "app.js", "v2")

	// Inside the quiet period nothing is committed yet
	tree, _ := store.Get("p1")
	node, _ := tree.Lookup("app.js")
	assert.Equal(t, "v0", node.Contents)

	assert.Eventually(t, func() bool {
		tree, _ := store.Get("p1")
		node, _ := tree.Lookup("app.js")
		return node.Contents == "v2"
	}, time.Second, 5*time.Millisecond)
}

func TestStore_ReplaceWinsOverBufferedEdit(t *testing.T) {
	store, _ := newTestStore(t, 20*time.Millisecond)
	store.Seed("p1", domain.FileTree{"notes.txt": domain.NewFile("draft")})

	store.QueuePatch("p1", "notes.txt", "edited mid-flight")

	// An AI replacement lands before the debounce fires and removes the
	// edited path. Last call wins; the edit is discarded.
	_, err := store.Replace("p1", domain.FileTree{"app.js": domain.NewFile("x")})
	require.NoError(t, err)

	store.Flush("p1")

	tree, _ := store.Get("p1")
	_, ok := tree.Lookup("notes.txt")
	assert.False(t, ok)
}

func TestStore_CommitHookObservesEveryCommit(t *testing.T) {
	store, _ := newTestStore(t, time.Millisecond)
	store.Seed("p1", domain.FileTree{"app.js": domain.NewFile("v0")})

	var commits []domain.FileTree
	store.OnCommit(func(projectID string, tree domain.FileTree) {
		commits = append(commits, tree)
	})

	_, err := store.Replace("p1", domain.FileTree{"app.js": domain.NewFile("v1")})
	require.NoError(t, err)
	require.NoError(t, store.Patch("p1", "app.js", "v2"))

	require.Len(t, commits, 2)
	node, _ := commits[1].Lookup("app.js")
	assert.Equal(t, "v2", node.Contents)
}

func TestStore_SaveFlushesAndPersists(t *testing.T) {
	store, dir := newTestStore(t, time.Hour)
	store.Seed("p1", domain.FileTree{"app.js": domain.NewFile("v0")})
	store.QueuePatch("p1", "app.js", "v1")

	dir.On("SaveFileTree", mock.Anything, "p1", mock.MatchedBy(func(tree domain.FileTree) bool {
		node, ok := tree.Lookup("app.js")
		return ok && node.Contents == "v1"
	})).Return(nil)

	require.NoError(t, store.Save(context.Background(), "p1"))
	dir.AssertExpectations(t)

	assert.Error(t, store.Save(context.Background(), "unknown"))
}

func TestStore_SeedKeepsLiveTree(t *testing.T) {
	store, _ := newTestStore(t, time.Millisecond)
	store.Seed("p1", domain.FileTree{"app.js": domain.NewFile("live")})

	// A second member joining with a stale persisted seed must observe
	// the live document.
	seeded := store.Seed("p1", domain.FileTree{"app.js": domain.NewFile("stale")})
	node, _ := seeded.Lookup("app.js")
	assert.Equal(t, "live", node.Contents)
}
