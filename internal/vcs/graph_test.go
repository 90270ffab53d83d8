package vcs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/types"
)

// seedGraph inserts a small commit graph without moving any branch head:
//
//	c1 <- c2 <- c3        (first-parent chain)
//	       \
//	        c4            (divergent child of c2)
//	m has parents [c4, c3] (merge commit)
func seedGraph(t *testing.T) storage.Store {
	t.Helper()

	store := storage.NewMemoryStore(storage.Options{})
	ctx := context.Background()
	require.NoError(t, store.CreateRepository(ctx, types.Repository{ID: "r1", OwnerID: "alice", Name: "prompts"}))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	commits := []types.Commit{
		{ID: "c1", Content: "one"},
		{ID: "c2", Content: "two", ParentIDs: []string{"c1"}},
		{ID: "c3", Content: "three", ParentIDs: []string{"c2"}},
		{ID: "c4", Content: "four", ParentIDs: []string{"c2"}},
		{ID: "m", Content: "merged", ParentIDs: []string{"c4", "c3"}},
	}
	for i, c := range commits {
		c.RepoID = "r1"
		c.AuthorID = "alice"
		c.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.PutCommit(ctx, c))
	}
	return store
}

func TestAncestorsFollowsFirstParentChain(t *testing.T) {
	nav := NewNavigator(seedGraph(t))
	ctx := context.Background()

	chain, err := nav.Ancestors(ctx, "r1", "c3")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	require.Equal(t, "c3", chain[0].ID)
	require.Equal(t, "c2", chain[1].ID)
	require.Equal(t, "c1", chain[2].ID)

	// Merge commits contribute only their first parent.
	chain, err = nav.Ancestors(ctx, "r1", "m")
	require.NoError(t, err)
	require.Len(t, chain, 4)
	require.Equal(t, []string{"m", "c4", "c2", "c1"}, commitIDs(chain))
}

func TestCommonAncestor(t *testing.T) {
	nav := NewNavigator(seedGraph(t))
	ctx := context.Background()

	ancestor, found, err := nav.CommonAncestor(ctx, "r1", "c3", "c4")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "c2", ancestor.ID)

	// A commit is its own ancestor.
	ancestor, found, err = nav.CommonAncestor(ctx, "r1", "c3", "c2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "c2", ancestor.ID)
}

func TestCommonAncestorUnrelatedHistories(t *testing.T) {
	store := seedGraph(t)
	ctx := context.Background()
	require.NoError(t, store.PutCommit(ctx, types.Commit{ID: "lone", RepoID: "r1", Content: "island", AuthorID: "alice", Timestamp: time.Now()}))

	nav := NewNavigator(store)
	_, found, err := nav.CommonAncestor(ctx, "r1", "c3", "lone")
	require.NoError(t, err)
	require.False(t, found)
}

func TestReachableCoversAllParents(t *testing.T) {
	nav := NewNavigator(seedGraph(t))
	ctx := context.Background()

	reachable, err := nav.Reachable(ctx, "r1", "m")
	require.NoError(t, err)
	require.Len(t, reachable, 5)
	for _, id := range []string{"m", "c4", "c3", "c2", "c1"} {
		require.Contains(t, reachable, id)
	}

	reachable, err = nav.Reachable(ctx, "r1", "c4")
	require.NoError(t, err)
	require.Len(t, reachable, 3)
	require.NotContains(t, reachable, "c3")
}

func TestReachableSkipsMissingParents(t *testing.T) {
	store := seedGraph(t)
	ctx := context.Background()
	require.NoError(t, store.PutCommit(ctx, types.Commit{ID: "orphan", RepoID: "r1", Content: "x", ParentIDs: []string{"ghost"}, AuthorID: "alice", Timestamp: time.Now()}))

	nav := NewNavigator(store)
	reachable, err := nav.Reachable(ctx, "r1", "orphan")
	require.NoError(t, err)
	require.Len(t, reachable, 1)
	require.Contains(t, reachable, "orphan")
}

func TestTraversalTerminatesOnCyclicParents(t *testing.T) {
	store := storage.NewMemoryStore(storage.Options{})
	ctx := context.Background()
	require.NoError(t, store.CreateRepository(ctx, types.Repository{ID: "r1", OwnerID: "alice", Name: "prompts"}))
	require.NoError(t, store.PutCommit(ctx, types.Commit{ID: "x", RepoID: "r1", Content: "x", ParentIDs: []string{"y"}, AuthorID: "alice", Timestamp: time.Now()}))
	require.NoError(t, store.PutCommit(ctx, types.Commit{ID: "y", RepoID: "r1", Content: "y", ParentIDs: []string{"x"}, AuthorID: "alice", Timestamp: time.Now()}))

	nav := NewNavigator(store)

	chain, err := nav.Ancestors(ctx, "r1", "x")
	require.NoError(t, err)
	require.Len(t, chain, 2)

	reachable, err := nav.Reachable(ctx, "r1", "x")
	require.NoError(t, err)
	require.Len(t, reachable, 2)
}

func commitIDs(commits []types.Commit) []string {
	ids := make([]string, 0, len(commits))
	for _, c := range commits {
		ids = append(ids, c.ID)
	}
	return ids
}
