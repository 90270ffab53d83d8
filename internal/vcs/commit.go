package vcs

import (
	"context"
	"fmt"

	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/types"
)

// CommitInput carries the caller-supplied fields of a new commit.
type CommitInput struct {
	Message  string
	Content  string
	AuthorID string
}

// Commit records new content on a branch. The commit's parent is the
// branch head read at the start of the operation; the head is advanced
// under compare-and-set so concurrent committers never overwrite each
// other silently.
func (e *Engine) Commit(ctx context.Context, repoID, branchName string, in CommitInput) (types.Commit, error) {
	if in.Content == "" {
		return types.Commit{}, &storage.ValidationError{Message: "content is required"}
	}
	if in.AuthorID == "" {
		return types.Commit{}, &storage.ValidationError{Message: "author id is required"}
	}

	return e.writeCommit(ctx, repoID, branchName, in.AuthorID, in.Message,
		func(branch types.Branch, headContent string) (string, []string, string, error) {
			var parents []string
			if branch.HeadCommitID != "" {
				parents = []string{branch.HeadCommitID}
			}
			return in.Content, parents, headContent, nil
		})
}

// CherryPick replays one commit's change onto another branch without
// merging histories: the commit's diff against its first parent is applied
// as a patch on top of the target branch's head content.
func (e *Engine) CherryPick(ctx context.Context, repoID, commitID, targetBranch, authorID string) (types.Commit, error) {
	if authorID == "" {
		return types.Commit{}, &storage.ValidationError{Message: "author id is required"}
	}

	source, err := e.store.GetCommit(ctx, repoID, commitID)
	if err != nil {
		return types.Commit{}, err
	}

	parentContent := ""
	if len(source.ParentIDs) > 0 {
		parent, err := e.store.GetCommit(ctx, repoID, source.ParentIDs[0])
		if err != nil {
			return types.Commit{}, err
		}
		parentContent = parent.Content
	}
	change := ComputeDiff(parentContent, source.Content)

	message := "Cherry-pick: " + source.Message
	return e.writeCommit(ctx, repoID, targetBranch, authorID, message,
		func(branch types.Branch, headContent string) (string, []string, string, error) {
			var parents []string
			if branch.HeadCommitID != "" {
				parents = []string{branch.HeadCommitID}
			}
			return ApplyDiff(headContent, change), parents, headContent, nil
		})
}

// Revert commits the first parent's content verbatim, undoing the named
// commit without rewriting history. Root commits cannot be reverted.
func (e *Engine) Revert(ctx context.Context, repoID, commitID, branchName, authorID string) (types.Commit, error) {
	if authorID == "" {
		return types.Commit{}, &storage.ValidationError{Message: "author id is required"}
	}

	target, err := e.store.GetCommit(ctx, repoID, commitID)
	if err != nil {
		return types.Commit{}, err
	}
	if len(target.ParentIDs) == 0 {
		return types.Commit{}, &InvalidOperationError{Reason: "cannot revert a root commit"}
	}

	parent, err := e.store.GetCommit(ctx, repoID, target.ParentIDs[0])
	if err != nil {
		return types.Commit{}, err
	}

	message := fmt.Sprintf("Revert %q", target.Message)
	return e.writeCommit(ctx, repoID, branchName, authorID, message,
		func(branch types.Branch, headContent string) (string, []string, string, error) {
			var parents []string
			if branch.HeadCommitID != "" {
				parents = []string{branch.HeadCommitID}
			}
			return parent.Content, parents, headContent, nil
		})
}

// GetCommit returns one commit with its full content.
func (e *Engine) GetCommit(ctx context.Context, repoID, commitID string) (types.Commit, error) {
	return e.store.GetCommit(ctx, repoID, commitID)
}

// GetDiff computes the structured diff between two commits. With an empty
// second id the commit is diffed against its first parent (empty content
// for a root commit).
func (e *Engine) GetDiff(ctx context.Context, repoID, commitIDA, commitIDB string) (Diff, error) {
	a, err := e.store.GetCommit(ctx, repoID, commitIDA)
	if err != nil {
		return Diff{}, err
	}

	if commitIDB == "" {
		parentContent := ""
		if len(a.ParentIDs) > 0 {
			parent, err := e.store.GetCommit(ctx, repoID, a.ParentIDs[0])
			if err != nil {
				return Diff{}, err
			}
			parentContent = parent.Content
		}
		return ComputeDiff(parentContent, a.Content), nil
	}

	b, err := e.store.GetCommit(ctx, repoID, commitIDB)
	if err != nil {
		return Diff{}, err
	}
	return ComputeDiff(a.Content, b.Content), nil
}

// History lists commits in reverse chronological order. When a branch is
// named, the listing is scoped to the commits reachable from its head over
// all parent links; otherwise the whole repository's history is returned.
func (e *Engine) History(ctx context.Context, repoID, branchName string, limit, offset int) ([]types.Commit, error) {
	if branchName == "" {
		return e.store.ListCommits(ctx, storage.ListCommitsOptions{
			RepoID:     repoID,
			Descending: true,
			Limit:      limit,
			Offset:     offset,
		})
	}

	branch, err := e.store.GetBranch(ctx, repoID, branchName)
	if err != nil {
		return nil, err
	}
	if branch.HeadCommitID == "" {
		return []types.Commit{}, nil
	}

	reachable, err := e.nav.Reachable(ctx, repoID, branch.HeadCommitID)
	if err != nil {
		return nil, err
	}

	all, err := e.store.ListCommits(ctx, storage.ListCommitsOptions{RepoID: repoID, Descending: true})
	if err != nil {
		return nil, err
	}

	result := make([]types.Commit, 0, len(all))
	skipped := 0
	for _, commit := range all {
		if _, ok := reachable[commit.ID]; !ok {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, commit)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}
