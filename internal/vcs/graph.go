package vcs

import (
	"context"
	"errors"

	"github.com/promptforge/promptforge/internal/storage"
	"github.com/promptforge/promptforge/internal/types"
)

// Navigator walks commit parent links. Commits are addressed by id through
// the record store rather than by in-memory pointers, so every traversal
// carries an explicit visited set and terminates even on malformed cyclic
// parent data.
type Navigator struct {
	store storage.Store
}

// NewNavigator constructs a Navigator over the given store.
func NewNavigator(store storage.Store) *Navigator {
	return &Navigator{store: store}
}

// Ancestors returns the commit and its first-parent chain, newest first,
// terminating at the root. Merge commits contribute only their first parent.
func (n *Navigator) Ancestors(ctx context.Context, repoID, commitID string) ([]types.Commit, error) {
	var chain []types.Commit
	seen := make(map[string]struct{})

	current := commitID
	for current != "" {
		if _, ok := seen[current]; ok {
			break
		}
		seen[current] = struct{}{}

		commit, err := n.store.GetCommit(ctx, repoID, current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, commit)

		if len(commit.ParentIDs) == 0 {
			break
		}
		current = commit.ParentIDs[0]
	}
	return chain, nil
}

// CommonAncestor returns the ancestor closest to idB's head that is also
// reachable from idA along first-parent chains. For multi-parent histories
// this approximates, but does not guarantee, the lowest common ancestor.
func (n *Navigator) CommonAncestor(ctx context.Context, repoID, idA, idB string) (types.Commit, bool, error) {
	ancestorsA, err := n.Ancestors(ctx, repoID, idA)
	if err != nil {
		return types.Commit{}, false, err
	}
	inA := make(map[string]struct{}, len(ancestorsA))
	for _, commit := range ancestorsA {
		inA[commit.ID] = struct{}{}
	}

	ancestorsB, err := n.Ancestors(ctx, repoID, idB)
	if err != nil {
		return types.Commit{}, false, err
	}
	for _, commit := range ancestorsB {
		if _, ok := inA[commit.ID]; ok {
			return commit, true, nil
		}
	}
	return types.Commit{}, false, nil
}

// Reachable returns the set of commit ids obtainable by breadth-first
// traversal over all parent links from headID. Parents that no longer
// resolve are skipped rather than failing the whole walk.
func (n *Navigator) Reachable(ctx context.Context, repoID, headID string) (map[string]struct{}, error) {
	visited := make(map[string]struct{})
	queue := []string{headID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if _, ok := visited[current]; ok {
			continue
		}

		commit, err := n.store.GetCommit(ctx, repoID, current)
		if err != nil {
			var notFound *storage.NotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
		visited[current] = struct{}{}

		for _, parent := range commit.ParentIDs {
			if _, ok := visited[parent]; !ok {
				queue = append(queue, parent)
			}
		}
	}
	return visited, nil
}
