package vcs

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/types"
)

// DefaultBranchName is used when a repository is created without naming
// its default branch.
const DefaultBranchName = "main"

// CreateRepositoryInput carries the caller-supplied repository fields.
type CreateRepositoryInput struct {
	OwnerID        string
	Name           string
	Description    string
	IsPublic       bool
	DefaultBranch  string
	InitialContent string
}

// CreateRepository creates a repository with exactly one protected branch,
// the default, and optionally seeds it with an initial commit.
func (e *Engine) CreateRepository(ctx context.Context, in CreateRepositoryInput) (types.Repository, error) {
	if in.OwnerID == "" {
		return types.Repository{}, &storage.ValidationError{Message: "owner id is required"}
	}
	if in.Name == "" {
		return types.Repository{}, &storage.ValidationError{Message: "repository name is required"}
	}

	branchName := in.DefaultBranch
	if branchName == "" {
		branchName = DefaultBranchName
	}

	now := e.clock().UTC()
	repo := types.Repository{
		ID:            e.newID(),
		OwnerID:       in.OwnerID,
		Name:          in.Name,
		Description:   in.Description,
		IsPublic:      in.IsPublic,
		DefaultBranch: branchName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.store.CreateRepository(ctx, repo); err != nil {
		return types.Repository{}, err
	}
	if err := e.store.CreateBranch(ctx, types.Branch{
		RepoID:    repo.ID,
		Name:      branchName,
		Protected: true,
	}); err != nil {
		return types.Repository{}, err
	}

	if in.InitialContent != "" {
		commit, err := e.Commit(ctx, repo.ID, branchName, CommitInput{
			Message:  "Initial commit",
			Content:  in.InitialContent,
			AuthorID: in.OwnerID,
		})
		if err != nil {
			return types.Repository{}, err
		}
		repo.CommitCount = 1
		e.log.WithFields(logrus.Fields{"repo": repo.ID, "commit": commit.ID}).Debug("repository seeded")
	}

	e.log.WithFields(logrus.Fields{"repo": repo.ID, "owner": in.OwnerID}).Info("repository created")
	return repo, nil
}

// GetRepository returns a repository with its live commit count. Private
// repositories are visible to their owner only.
func (e *Engine) GetRepository(ctx context.Context, repoID, viewerID string) (types.Repository, error) {
	repo, err := e.store.GetRepository(ctx, repoID)
	if err != nil {
		return types.Repository{}, err
	}
	if !repo.IsPublic && repo.OwnerID != viewerID {
		return types.Repository{}, &AccessDeniedError{RepoID: repoID}
	}

	count, err := e.store.CountCommits(ctx, repoID)
	if err != nil {
		return types.Repository{}, err
	}
	repo.CommitCount = count
	return repo, nil
}

// DeleteRepository removes the repository and cascades to its branches,
// commits, and tags. Only the owner may delete.
func (e *Engine) DeleteRepository(ctx context.Context, repoID, callerID string) error {
	repo, err := e.store.GetRepository(ctx, repoID)
	if err != nil {
		return err
	}
	if repo.OwnerID != callerID {
		return &AccessDeniedError{RepoID: repoID}
	}
	if err := e.store.DeleteRepository(ctx, repoID); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"repo": repoID}).Info("repository deleted")
	return nil
}

// ForkRepository copies a repository's full commit graph and branches into
// a new repository owned by the requester. The fork shares no rows with
// the original, so later commits on either side never touch the other.
func (e *Engine) ForkRepository(ctx context.Context, repoID, newOwnerID, newName string) (types.Repository, error) {
	if newOwnerID == "" {
		return types.Repository{}, &storage.ValidationError{Message: "owner id is required"}
	}

	orig, err := e.store.GetRepository(ctx, repoID)
	if err != nil {
		return types.Repository{}, err
	}
	if !orig.IsPublic && orig.OwnerID != newOwnerID {
		return types.Repository{}, &AccessDeniedError{RepoID: repoID}
	}

	name := newName
	if name == "" {
		name = orig.Name
	}

	now := e.clock().UTC()
	fork := types.Repository{
		ID:            e.newID(),
		OwnerID:       newOwnerID,
		Name:          name,
		Description:   orig.Description,
		IsPublic:      orig.IsPublic,
		DefaultBranch: orig.DefaultBranch,
		ParentID:      orig.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateRepository(ctx, fork); err != nil {
		return types.Repository{}, err
	}

	// Copy commits in creation order so every parent is remapped before
	// its children reference it.
	commits, err := e.store.ListCommits(ctx, storage.ListCommitsOptions{RepoID: repoID})
	if err != nil {
		return types.Repository{}, err
	}
	idMap := make(map[string]string, len(commits))
	for _, meta := range commits {
		full, err := e.store.GetCommit(ctx, repoID, meta.ID)
		if err != nil {
			return types.Repository{}, err
		}

		copied := full
		copied.ID = e.newID()
		copied.RepoID = fork.ID
		copied.Archived = false
		copied.ParentIDs = nil
		for _, parent := range full.ParentIDs {
			if mapped, ok := idMap[parent]; ok {
				copied.ParentIDs = append(copied.ParentIDs, mapped)
			}
		}
		idMap[full.ID] = copied.ID

		if err := e.store.PutCommit(ctx, copied); err != nil {
			return types.Repository{}, err
		}
	}

	branches, err := e.store.ListBranches(ctx, repoID)
	if err != nil {
		return types.Repository{}, err
	}
	for _, branch := range branches {
		if err := e.store.CreateBranch(ctx, types.Branch{
			RepoID:       fork.ID,
			Name:         branch.Name,
			HeadCommitID: idMap[branch.HeadCommitID],
			Protected:    branch.Protected,
			Description:  branch.Description,
		}); err != nil {
			return types.Repository{}, err
		}
	}

	orig.ForkCount++
	orig.UpdatedAt = now
	if err := e.store.UpdateRepository(ctx, orig); err != nil {
		return types.Repository{}, err
	}

	fork.CommitCount = len(commits)
	e.log.WithFields(logrus.Fields{
		"repo":    repoID,
		"fork":    fork.ID,
		"commits": len(commits),
	}).Info("repository forked")
	return fork, nil
}

// CreateBranch creates a branch pointing at the source branch's head. The
// source defaults to the repository's default branch. Branches share the
// commit graph; nothing is copied.
func (e *Engine) CreateBranch(ctx context.Context, repoID, callerID, name, sourceBranch, description string) (types.Branch, error) {
	if name == "" {
		return types.Branch{}, &storage.ValidationError{Message: "branch name is required"}
	}

	repo, err := e.store.GetRepository(ctx, repoID)
	if err != nil {
		return types.Branch{}, err
	}
	if !repo.IsPublic && repo.OwnerID != callerID {
		return types.Branch{}, &AccessDeniedError{RepoID: repoID}
	}

	source := sourceBranch
	if source == "" {
		source = repo.DefaultBranch
	}
	src, err := e.store.GetBranch(ctx, repoID, source)
	if err != nil {
		return types.Branch{}, err
	}

	branch := types.Branch{
		RepoID:       repoID,
		Name:         name,
		HeadCommitID: src.HeadCommitID,
		Description:  description,
	}
	if err := e.store.CreateBranch(ctx, branch); err != nil {
		return types.Branch{}, err
	}

	e.log.WithFields(logrus.Fields{"repo": repoID, "branch": name, "source": source}).Info("branch created")
	return e.store.GetBranch(ctx, repoID, name)
}

// DeleteBranch removes a branch pointer. Its commits remain reachable via
// other branches or tags. Protected branches cannot be deleted.
func (e *Engine) DeleteBranch(ctx context.Context, repoID, branchName, callerID string) error {
	repo, err := e.store.GetRepository(ctx, repoID)
	if err != nil {
		return err
	}
	if !repo.IsPublic && repo.OwnerID != callerID {
		return &AccessDeniedError{RepoID: repoID}
	}

	branch, err := e.store.GetBranch(ctx, repoID, branchName)
	if err != nil {
		return err
	}
	if branch.Protected {
		return &InvalidOperationError{Reason: "cannot delete protected branch " + branchName}
	}
	if branchName == repo.DefaultBranch {
		return &InvalidOperationError{Reason: "cannot delete the default branch"}
	}

	if err := e.store.DeleteBranch(ctx, repoID, branchName); err != nil {
		return err
	}
	e.cache.invalidate(repoID, branchName)
	e.log.WithFields(logrus.Fields{"repo": repoID, "branch": branchName}).Info("branch deleted")
	return nil
}

// ListBranches returns a repository's branches sorted by name.
func (e *Engine) ListBranches(ctx context.Context, repoID string) ([]types.Branch, error) {
	return e.store.ListBranches(ctx, repoID)
}

// CreateTag labels a commit. Tags are immutable once created.
func (e *Engine) CreateTag(ctx context.Context, repoID, name, commitID, callerID, message string) (types.Tag, error) {
	if name == "" || commitID == "" {
		return types.Tag{}, &storage.ValidationError{Message: "tag name and commit id are required"}
	}

	tag := types.Tag{
		ID:        e.newID(),
		RepoID:    repoID,
		Name:      name,
		CommitID:  commitID,
		Message:   message,
		CreatorID: callerID,
	}
	if err := e.store.CreateTag(ctx, tag); err != nil {
		return types.Tag{}, err
	}
	return e.store.GetTag(ctx, repoID, name)
}

// ListTags returns a repository's tags sorted by name.
func (e *Engine) ListTags(ctx context.Context, repoID string) ([]types.Tag, error) {
	return e.store.ListTags(ctx, repoID)
}
