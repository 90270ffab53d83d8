package storage

import (
	"context"

	"github.com/promptforge/promptforge/internal/types"
)

// Store defines the record-store operations the versioning engine is
// written against. Implementations must provide atomic branch-head
// advancement: CommitAndAdvance persists the commit and moves the head
// together, or not at all.
type Store interface {
	CreateRepository(ctx context.Context, repo types.Repository) error
	GetRepository(ctx context.Context, id string) (types.Repository, error)
	UpdateRepository(ctx context.Context, repo types.Repository) error
	DeleteRepository(ctx context.Context, id string) error

	CreateBranch(ctx context.Context, branch types.Branch) error
	GetBranch(ctx context.Context, repoID, name string) (types.Branch, error)
	ListBranches(ctx context.Context, repoID string) ([]types.Branch, error)
	DeleteBranch(ctx context.Context, repoID, name string) error

	// CommitAndAdvance writes the commit and repoints the branch head in a
	// single atomic step. The head is advanced only if it still equals
	// expectedHead; otherwise ConcurrentModificationError is returned and
	// nothing is written.
	CommitAndAdvance(ctx context.Context, commit types.Commit, branchName, expectedHead string) error
	// PutCommit writes a commit without touching any branch. Used when
	// deep-copying history into a fork.
	PutCommit(ctx context.Context, commit types.Commit) error
	GetCommit(ctx context.Context, repoID, id string) (types.Commit, error)
	ListCommits(ctx context.Context, opts ListCommitsOptions) ([]types.Commit, error)
	CountCommits(ctx context.Context, repoID string) (int, error)

	CreateTag(ctx context.Context, tag types.Tag) error
	GetTag(ctx context.Context, repoID, name string) (types.Tag, error)
	ListTags(ctx context.Context, repoID string) ([]types.Tag, error)

	SetPolicy(ctx context.Context, policy RetentionPolicy) (RetentionPolicy, error)
	GetPolicy(ctx context.Context, repoID string) (RetentionPolicy, error)
}

// ListCommitsOptions controls history retrieval. Commits are ordered by
// creation time; Offset is applied before Limit.
type ListCommitsOptions struct {
	RepoID     string
	Descending bool
	Limit      int
	Offset     int
}

// NotFoundError signals missing records.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " " + e.Key + " not found"
}

// ConflictError signals duplicate creation attempts.
type ConflictError struct {
	Resource string
	Key      string
}

func (e *ConflictError) Error() string {
	return e.Resource + " " + e.Key + " conflicts with existing state"
}

// ValidationError represents invalid input supplied by clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConcurrentModificationError is returned when a branch head moved between
// the caller's read and its conditional write.
type ConcurrentModificationError struct {
	RepoID string
	Branch string
}

func (e *ConcurrentModificationError) Error() string {
	return "branch " + e.Branch + " in repository " + e.RepoID + " was modified concurrently"
}
