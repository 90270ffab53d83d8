package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"github.com/promptforge/promptforge/internal/types"
)

func newTestKeyDBStore(t *testing.T, opts Options) Store {
	t.Helper()

	addr := os.Getenv("TEST_KEYDB_ADDR")
	if addr == "" {
		mini, err := miniredis.Run()
		if err != nil {
			t.Fatalf("start miniredis: %v", err)
		}
		t.Cleanup(mini.Close)
		store, err := NewKeyDBStore(Config{Addr: mini.Addr()}, opts)
		if err != nil {
			t.Fatalf("create store: %v", err)
		}
		return store
	}

	// Use the externally provided KeyDB instance.
	t.Cleanup(func() {
		client := redis.NewClient(&redis.Options{Addr: addr})
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	store, err := NewKeyDBStore(Config{Addr: addr}, opts)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if ks, ok := store.(*keydbStore); ok {
		_ = ks.client.FlushDB(context.Background()).Err()
	}
	return store
}

func TestKeyDBStoreCommitFlow(t *testing.T) {
	store := newTestKeyDBStore(t, Options{Archive: NewMemoryArchive()})
	ctx := context.Background()

	if err := store.CreateRepository(ctx, types.Repository{ID: "r1", OwnerID: "alice", Name: "prompts", DefaultBranch: "main"}); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	var conflict *ConflictError
	if err := store.CreateRepository(ctx, types.Repository{ID: "r1", OwnerID: "alice", Name: "prompts"}); !errors.As(err, &conflict) {
		t.Fatalf("expected repository conflict, got %v", err)
	}

	if err := store.CreateBranch(ctx, types.Branch{RepoID: "r1", Name: "main", Protected: true}); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := types.Commit{ID: "c1", RepoID: "r1", Hash: "h1", Content: "line one\nline two", AuthorID: "alice", Message: "init", Timestamp: base}
	if err := store.CommitAndAdvance(ctx, first, "main", ""); err != nil {
		t.Fatalf("CommitAndAdvance: %v", err)
	}

	branch, err := store.GetBranch(ctx, "r1", "main")
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	if branch.HeadCommitID != "c1" {
		t.Fatalf("expected head c1, got %s", branch.HeadCommitID)
	}

	var concurrent *ConcurrentModificationError
	stale := types.Commit{ID: "c2", RepoID: "r1", Content: "other", AuthorID: "bob", Timestamp: base.Add(time.Second)}
	if err := store.CommitAndAdvance(ctx, stale, "main", ""); !errors.As(err, &concurrent) {
		t.Fatalf("expected concurrent modification error, got %v", err)
	}

	second := types.Commit{ID: "c2", RepoID: "r1", Hash: "h2", Content: "line one\nline two updated", ParentIDs: []string{"c1"}, AuthorID: "alice", Message: "update", Timestamp: base.Add(time.Second)}
	if err := store.CommitAndAdvance(ctx, second, "main", "c1"); err != nil {
		t.Fatalf("second CommitAndAdvance: %v", err)
	}

	got, err := store.GetCommit(ctx, "r1", "c2")
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if got.Content != second.Content {
		t.Fatalf("unexpected content: %s", got.Content)
	}
	if len(got.ParentIDs) != 1 || got.ParentIDs[0] != "c1" {
		t.Fatalf("unexpected parents: %v", got.ParentIDs)
	}

	commits, err := store.ListCommits(ctx, ListCommitsOptions{RepoID: "r1", Descending: true})
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	if len(commits) != 2 || commits[0].ID != "c2" {
		t.Fatalf("expected newest commit first, got %+v", commits)
	}

	page, err := store.ListCommits(ctx, ListCommitsOptions{RepoID: "r1", Descending: true, Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("ListCommits paged: %v", err)
	}
	if len(page) != 1 || page[0].ID != "c1" {
		t.Fatalf("unexpected page: %+v", page)
	}

	third := types.Commit{ID: "c3", RepoID: "r1", Hash: "h3", Content: "line one\nline two updated\nline three", ParentIDs: []string{"c2"}, AuthorID: "alice", Message: "extend", Timestamp: base.Add(2 * time.Second)}
	if err := store.CommitAndAdvance(ctx, third, "main", "c2"); err != nil {
		t.Fatalf("third CommitAndAdvance: %v", err)
	}

	if err := store.CreateTag(ctx, types.Tag{ID: "t1", RepoID: "r1", Name: "v1", CommitID: "c2", CreatorID: "alice"}); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if err := store.CreateTag(ctx, types.Tag{ID: "t2", RepoID: "r1", Name: "v1", CommitID: "c1"}); !errors.As(err, &conflict) {
		t.Fatalf("expected tag conflict, got %v", err)
	}

	tags, err := store.ListTags(ctx, "r1")
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 1 || tags[0].CommitID != "c2" {
		t.Fatalf("unexpected tags: %+v", tags)
	}

	policy, err := store.SetPolicy(ctx, RetentionPolicy{RepoID: "r1", HotCommitLimit: 1})
	if err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}
	if !policy.Locked || policy.HotCommitLimit != 1 {
		t.Fatalf("unexpected policy response: %+v", policy)
	}
	if _, err := store.SetPolicy(ctx, RetentionPolicy{RepoID: "r1", HotCommitLimit: 9}); !errors.As(err, &conflict) {
		t.Fatalf("expected locked policy conflict, got %v", err)
	}

	// The head stays hot; the older commit's content moves to the archive
	// and is read back through the fallback.
	older, err := store.GetCommit(ctx, "r1", "c1")
	if err != nil {
		t.Fatalf("GetCommit archived: %v", err)
	}
	if older.Content != first.Content {
		t.Fatalf("unexpected archived content: %s", older.Content)
	}
	meta, err := store.ListCommits(ctx, ListCommitsOptions{RepoID: "r1"})
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	for _, c := range meta {
		if c.ID == "c1" && !c.Archived {
			t.Fatalf("expected c1 archived")
		}
		if c.ID != "c1" && c.Archived {
			t.Fatalf("%s must stay hot", c.ID)
		}
	}

	if err := store.DeleteRepository(ctx, "r1"); err != nil {
		t.Fatalf("DeleteRepository: %v", err)
	}
	var notFound *NotFoundError
	if _, err := store.GetRepository(ctx, "r1"); !errors.As(err, &notFound) {
		t.Fatalf("expected repository gone, got %v", err)
	}
	if _, err := store.GetBranch(ctx, "r1", "main"); !errors.As(err, &notFound) {
		t.Fatalf("expected branch gone, got %v", err)
	}
	if _, err := store.GetCommit(ctx, "r1", "c2"); !errors.As(err, &notFound) {
		t.Fatalf("expected commit gone, got %v", err)
	}
}

func TestKeyDBStorePutCommitDoesNotMoveHeads(t *testing.T) {
	store := newTestKeyDBStore(t, Options{})
	ctx := context.Background()

	if err := store.CreateRepository(ctx, types.Repository{ID: "r1", OwnerID: "alice", Name: "prompts"}); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	if err := store.CreateBranch(ctx, types.Branch{RepoID: "r1", Name: "main"}); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	commit := types.Commit{ID: "c1", RepoID: "r1", Content: "imported", AuthorID: "alice", Timestamp: time.Now()}
	if err := store.PutCommit(ctx, commit); err != nil {
		t.Fatalf("PutCommit: %v", err)
	}

	branch, err := store.GetBranch(ctx, "r1", "main")
	if err != nil {
		t.Fatalf("GetBranch: %v", err)
	}
	if branch.HeadCommitID != "" {
		t.Fatalf("expected head untouched, got %s", branch.HeadCommitID)
	}

	var conflict *ConflictError
	if err := store.PutCommit(ctx, commit); !errors.As(err, &conflict) {
		t.Fatalf("expected commit conflict, got %v", err)
	}
}
