package vcs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/types"
)

// Engine implements the prompt versioning operations over a record store.
// All mutating operations follow read-modify-write with an atomic
// compare-and-set on the branch head; one bounded retry is performed on
// concurrent modification before the error surfaces to the caller.
type Engine struct {
	store storage.Store
	nav   *Navigator
	cache *headCache
	log   logrus.FieldLogger
	clock func() time.Time
	newID func() string
}

// EngineOptions tune engine construction. Zero values select defaults.
type EngineOptions struct {
	Logger       logrus.FieldLogger
	Clock        func() time.Time
	CacheTTL     time.Duration
	CacheEntries int64
}

// NewEngine constructs the versioning engine.
func NewEngine(store storage.Store, opts EngineOptions) (*Engine, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	cache, err := newHeadCache(opts.CacheEntries, opts.CacheTTL)
	if err != nil {
		return nil, err
	}

	return &Engine{
		store: store,
		nav:   NewNavigator(store),
		cache: cache,
		log:   log,
		clock: clock,
		newID: uuid.NewString,
	}, nil
}

// Navigator exposes read-only graph traversal over the engine's store.
func (e *Engine) Navigator() *Navigator {
	return e.nav
}

// buildFunc produces the content, parent ids, and the content the stored
// patch is computed against, given the branch state read at the start of
// the attempt.
type buildFunc func(head types.Branch, headContent string) (content string, parents []string, patchBase string, err error)

const headUpdateAttempts = 2

// writeCommit runs the read-modify-write cycle: read the branch head, build
// the new content, persist commit and head atomically, retrying once when
// the head moved underneath us.
func (e *Engine) writeCommit(ctx context.Context, repoID, branchName, authorID, message string, build buildFunc) (types.Commit, error) {
	var lastErr error

	for attempt := 0; attempt < headUpdateAttempts; attempt++ {
		branch, err := e.store.GetBranch(ctx, repoID, branchName)
		if err != nil {
			return types.Commit{}, err
		}

		headContent := ""
		if branch.HeadCommitID != "" {
			head, err := e.store.GetCommit(ctx, repoID, branch.HeadCommitID)
			if err != nil {
				return types.Commit{}, err
			}
			headContent = head.Content
		}

		content, parents, patchBase, err := build(branch, headContent)
		if err != nil {
			return types.Commit{}, err
		}

		now := e.clock().UTC()
		primaryParent := ""
		if len(parents) > 0 {
			primaryParent = parents[0]
		}

		commit := types.Commit{
			ID:        e.newID(),
			RepoID:    repoID,
			Hash:      computeCommitHash(content, message, authorID, primaryParent, now),
			Content:   content,
			Patch:     UnifiedPatch(patchBase, content),
			ParentIDs: parents,
			AuthorID:  authorID,
			Message:   message,
			Timestamp: now,
		}

		err = e.store.CommitAndAdvance(ctx, commit, branchName, branch.HeadCommitID)
		if err == nil {
			e.cache.invalidate(repoID, branchName)
			e.log.WithFields(logrus.Fields{
				"repo":   repoID,
				"branch": branchName,
				"commit": commit.ID,
			}).Info("branch head advanced")
			return commit, nil
		}

		var concurrent *storage.ConcurrentModificationError
		if errors.As(err, &concurrent) {
			lastErr = err
			e.log.WithFields(logrus.Fields{
				"repo":    repoID,
				"branch":  branchName,
				"attempt": attempt + 1,
			}).Warn("head moved during commit, retrying against fresh head")
			continue
		}
		return types.Commit{}, err
	}

	return types.Commit{}, lastErr
}

// headCommitFor resolves the current head commit of a branch, consulting
// the TTL cache owned by this engine. Only read paths use the cache; every
// write path re-reads the head under compare-and-set. A branch with no
// commits yields a zero commit and no error.
func (e *Engine) headCommitFor(ctx context.Context, repoID, branchName string) (types.Commit, types.Branch, error) {
	branch, err := e.store.GetBranch(ctx, repoID, branchName)
	if err != nil {
		return types.Commit{}, types.Branch{}, err
	}
	if branch.HeadCommitID == "" {
		return types.Commit{}, branch, nil
	}

	if commit, ok := e.cache.get(repoID, branchName, branch.HeadCommitID); ok {
		return commit, branch, nil
	}

	head, err := e.store.GetCommit(ctx, repoID, branch.HeadCommitID)
	if err != nil {
		return types.Commit{}, types.Branch{}, err
	}
	e.cache.set(repoID, branchName, head)
	return head, branch, nil
}
