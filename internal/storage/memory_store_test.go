package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/promptforge/promptforge/internal/types"
)

func TestMemoryStoreCommitFlow(t *testing.T) {
	store := NewMemoryStore(Options{Archive: NewMemoryArchive()})
	ctx := context.Background()

	repo := types.Repository{ID: "r1", OwnerID: "alice", Name: "prompts", DefaultBranch: "main"}
	if err := store.CreateRepository(ctx, repo); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	var conflict *ConflictError
	if err := store.CreateRepository(ctx, repo); !errors.As(err, &conflict) {
		t.Fatalf("expected conflict on duplicate repository, got %v", err)
	}

	if err := store.CreateBranch(ctx, types.Branch{RepoID: "r1", Name: "main", Protected: true}); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := store.CreateBranch(ctx, types.Branch{RepoID: "r1", Name: "main"}); !errors.As(err, &conflict) {
		t.Fatalf("expected conflict on duplicate branch, got %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := types.Commit{ID: "c1", RepoID: "r1", Hash: "h1", Content: "hello", AuthorID: "alice", Message: "init", Timestamp: base}
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

	// Stale expected head must be rejected without writing anything.
	stale := types.Commit{ID: "c2", RepoID: "r1", Content: "other", AuthorID: "bob", Timestamp: base.Add(time.Second)}
	var concurrent *ConcurrentModificationError
	if err := store.CommitAndAdvance(ctx, stale, "main", ""); !errors.As(err, &concurrent) {
		t.Fatalf("expected concurrent modification error, got %v", err)
	}
	if _, err := store.GetCommit(ctx, "r1", "c2"); err == nil {
		t.Fatalf("expected rejected commit to be absent")
	}

	second := types.Commit{ID: "c2", RepoID: "r1", Hash: "h2", Content: "hello world", AuthorID: "alice", Message: "update", Timestamp: base.Add(time.Second)}
	if err := store.CommitAndAdvance(ctx, second, "main", "c1"); err != nil {
		t.Fatalf("second CommitAndAdvance: %v", err)
	}

	got, err := store.GetCommit(ctx, "r1", "c2")
	if err != nil {
		t.Fatalf("GetCommit: %v", err)
	}
	if got.Content != "hello world" || got.AuthorID != "alice" {
		t.Fatalf("unexpected commit: %+v", got)
	}

	commits, err := store.ListCommits(ctx, ListCommitsOptions{RepoID: "r1", Descending: true, Limit: 1})
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	if len(commits) != 1 || commits[0].ID != "c2" {
		t.Fatalf("expected newest commit first, got %+v", commits)
	}

	count, err := store.CountCommits(ctx, "r1")
	if err != nil {
		t.Fatalf("CountCommits: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 commits, got %d", count)
	}

	if err := store.CreateTag(ctx, types.Tag{ID: "t1", RepoID: "r1", Name: "v1", CommitID: "c2", CreatorID: "alice"}); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if err := store.CreateTag(ctx, types.Tag{ID: "t2", RepoID: "r1", Name: "v1", CommitID: "c1"}); !errors.As(err, &conflict) {
		t.Fatalf("expected tag conflict, got %v", err)
	}
	var notFound *NotFoundError
	if err := store.CreateTag(ctx, types.Tag{ID: "t3", RepoID: "r1", Name: "v2", CommitID: "missing"}); !errors.As(err, &notFound) {
		t.Fatalf("expected not found for dangling tag target, got %v", err)
	}

	tags, err := store.ListTags(ctx, "r1")
	if err != nil {
		t.Fatalf("ListTags: %v", err)
	}
	if len(tags) != 1 || tags[0].CommitID != "c2" {
		t.Fatalf("unexpected tags: %+v", tags)
	}
}

func TestMemoryStoreRetentionArchivesColdCommits(t *testing.T) {
	archive := NewMemoryArchive()
	store := NewMemoryStore(Options{Archive: archive})
	ctx := context.Background()

	if err := store.CreateRepository(ctx, types.Repository{ID: "r1", OwnerID: "alice", Name: "prompts"}); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	if err := store.CreateBranch(ctx, types.Branch{RepoID: "r1", Name: "main"}); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	head := ""
	for i, content := range []string{"one", "two", "three"} {
		id := []string{"c1", "c2", "c3"}[i]
		commit := types.Commit{ID: id, RepoID: "r1", Content: content, AuthorID: "alice", Timestamp: base.Add(time.Duration(i) * time.Second)}
		if err := store.CommitAndAdvance(ctx, commit, "main", head); err != nil {
			t.Fatalf("CommitAndAdvance %s: %v", id, err)
		}
		head = id
	}

	if _, err := store.SetPolicy(ctx, RetentionPolicy{RepoID: "r1", HotCommitLimit: 1}); err != nil {
		t.Fatalf("SetPolicy: %v", err)
	}

	commits, err := store.ListCommits(ctx, ListCommitsOptions{RepoID: "r1"})
	if err != nil {
		t.Fatalf("ListCommits: %v", err)
	}
	archived := 0
	for _, c := range commits {
		if c.Archived {
			archived++
		}
		if c.ID == "c3" && c.Archived {
			t.Fatalf("branch head must stay hot")
		}
	}
	if archived != 1 {
		t.Fatalf("expected 1 archived commit, got %d", archived)
	}

	// Archived content is still readable through the archive fallback.
	oldest, err := store.GetCommit(ctx, "r1", "c1")
	if err != nil {
		t.Fatalf("GetCommit archived: %v", err)
	}
	if oldest.Content != "one" {
		t.Fatalf("unexpected archived content: %s", oldest.Content)
	}

	// A locked policy rejects a different configuration.
	var conflict *ConflictError
	if _, err := store.SetPolicy(ctx, RetentionPolicy{RepoID: "r1", HotCommitLimit: 5}); !errors.As(err, &conflict) {
		t.Fatalf("expected locked policy conflict, got %v", err)
	}

	defaultPolicy, err := store.GetPolicy(ctx, "unconfigured")
	if err != nil {
		t.Fatalf("GetPolicy (default): %v", err)
	}
	if defaultPolicy.RepoID != "unconfigured" || defaultPolicy.Locked {
		t.Fatalf("unexpected default policy: %+v", defaultPolicy)
	}
}

func TestMemoryStoreDeleteRepositoryCascades(t *testing.T) {
	store := NewMemoryStore(Options{})
	ctx := context.Background()

	if err := store.CreateRepository(ctx, types.Repository{ID: "r1", OwnerID: "alice", Name: "prompts"}); err != nil {
		t.Fatalf("CreateRepository: %v", err)
	}
	if err := store.CreateBranch(ctx, types.Branch{RepoID: "r1", Name: "main"}); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	commit := types.Commit{ID: "c1", RepoID: "r1", Content: "hello", AuthorID: "alice", Timestamp: time.Now()}
	if err := store.CommitAndAdvance(ctx, commit, "main", ""); err != nil {
		t.Fatalf("CommitAndAdvance: %v", err)
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
	if _, err := store.GetCommit(ctx, "r1", "c1"); !errors.As(err, &notFound) {
		t.Fatalf("expected commit gone, got %v", err)
	}
}
