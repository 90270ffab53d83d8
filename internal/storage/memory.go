package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/promptforge/promptforge/internal/types"
)

// memoryStore provides an in-memory backend for development and testing.
type memoryStore struct {
	mu            sync.RWMutex
	clock         func() time.Time
	repos         map[string]types.Repository
	branches      map[string]map[string]types.Branch // repoID -> name -> branch
	commits       map[string]map[string]types.Commit // repoID -> commitID -> metadata
	contents      map[string]map[string]string       // repoID -> commitID -> content
	repoCommits   map[string][]string                // repoID -> commitIDs in creation order
	tags          map[string]map[string]types.Tag    // repoID -> name -> tag
	policies      map[string]RetentionPolicy
	defaultPolicy RetentionPolicy
	archive       Archive
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore(opts Options) Store {
	return &memoryStore{
		clock:         time.Now,
		repos:         make(map[string]types.Repository),
		branches:      make(map[string]map[string]types.Branch),
		commits:       make(map[string]map[string]types.Commit),
		contents:      make(map[string]map[string]string),
		repoCommits:   make(map[string][]string),
		tags:          make(map[string]map[string]types.Tag),
		policies:      make(map[string]RetentionPolicy),
		defaultPolicy: RetentionPolicy{HotCommitLimit: opts.Retention.HotCommitLimit, HotDuration: opts.Retention.HotDuration},
		archive:       opts.Archive,
	}
}

func (m *memoryStore) CreateRepository(ctx context.Context, repo types.Repository) error {
	if repo.ID == "" || repo.OwnerID == "" || repo.Name == "" {
		return &ValidationError{Message: "repository id, owner, and name are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.repos[repo.ID]; exists {
		return &ConflictError{Resource: "repository", Key: repo.ID}
	}
	m.repos[repo.ID] = repo
	m.branches[repo.ID] = make(map[string]types.Branch)
	m.commits[repo.ID] = make(map[string]types.Commit)
	m.contents[repo.ID] = make(map[string]string)
	m.tags[repo.ID] = make(map[string]types.Tag)
	return nil
}

func (m *memoryStore) GetRepository(ctx context.Context, id string) (types.Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repo, ok := m.repos[id]
	if !ok {
		return types.Repository{}, &NotFoundError{Resource: "repository", Key: id}
	}
	return repo, nil
}

func (m *memoryStore) UpdateRepository(ctx context.Context, repo types.Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.repos[repo.ID]; !ok {
		return &NotFoundError{Resource: "repository", Key: repo.ID}
	}
	m.repos[repo.ID] = repo
	return nil
}

func (m *memoryStore) DeleteRepository(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.repos[id]; !ok {
		return &NotFoundError{Resource: "repository", Key: id}
	}

	if m.archive != nil {
		for commitID, commit := range m.commits[id] {
			if commit.Archived {
				_ = m.archive.Remove(ctx, id, commitID)
			}
		}
	}

	delete(m.repos, id)
	delete(m.branches, id)
	delete(m.commits, id)
	delete(m.contents, id)
	delete(m.repoCommits, id)
	delete(m.tags, id)
	delete(m.policies, id)
	return nil
}

func (m *memoryStore) CreateBranch(ctx context.Context, branch types.Branch) error {
	if branch.RepoID == "" || branch.Name == "" {
		return &ValidationError{Message: "repository id and branch name are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repoBranches, ok := m.branches[branch.RepoID]
	if !ok {
		return &NotFoundError{Resource: "repository", Key: branch.RepoID}
	}
	if _, exists := repoBranches[branch.Name]; exists {
		return &ConflictError{Resource: "branch", Key: branch.Name}
	}

	branch.UpdatedAt = m.clock().UTC()
	repoBranches[branch.Name] = branch
	return nil
}

func (m *memoryStore) GetBranch(ctx context.Context, repoID, name string) (types.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repoBranches, ok := m.branches[repoID]
	if !ok {
		return types.Branch{}, &NotFoundError{Resource: "branch", Key: name}
	}
	branch, ok := repoBranches[name]
	if !ok {
		return types.Branch{}, &NotFoundError{Resource: "branch", Key: name}
	}
	return branch, nil
}

func (m *memoryStore) ListBranches(ctx context.Context, repoID string) ([]types.Branch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repoBranches, ok := m.branches[repoID]
	if !ok {
		return []types.Branch{}, nil
	}

	names := make([]string, 0, len(repoBranches))
	for name := range repoBranches {
		names = append(names, name)
	}
	slices.Sort(names)
	result := make([]types.Branch, 0, len(names))
	for _, name := range names {
		result = append(result, repoBranches[name])
	}
	return result, nil
}

func (m *memoryStore) DeleteBranch(ctx context.Context, repoID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	repoBranches, ok := m.branches[repoID]
	if !ok {
		return &NotFoundError{Resource: "branch", Key: name}
	}
	if _, ok := repoBranches[name]; !ok {
		return &NotFoundError{Resource: "branch", Key: name}
	}
	delete(repoBranches, name)
	return nil
}

func (m *memoryStore) CommitAndAdvance(ctx context.Context, commit types.Commit, branchName, expectedHead string) error {
	if commit.ID == "" || commit.RepoID == "" || branchName == "" {
		return &ValidationError{Message: "commit id, repository id, and branch name are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repoBranches, ok := m.branches[commit.RepoID]
	if !ok {
		return &NotFoundError{Resource: "repository", Key: commit.RepoID}
	}
	branch, ok := repoBranches[branchName]
	if !ok {
		return &NotFoundError{Resource: "branch", Key: branchName}
	}
	if branch.HeadCommitID != expectedHead {
		return &ConcurrentModificationError{RepoID: commit.RepoID, Branch: branchName}
	}
	if _, exists := m.commits[commit.RepoID][commit.ID]; exists {
		return &ConflictError{Resource: "commit", Key: commit.ID}
	}

	content := commit.Content
	commit.Content = ""
	m.commits[commit.RepoID][commit.ID] = commit
	m.contents[commit.RepoID][commit.ID] = content
	m.repoCommits[commit.RepoID] = append(m.repoCommits[commit.RepoID], commit.ID)

	branch.HeadCommitID = commit.ID
	branch.UpdatedAt = m.clock().UTC()
	repoBranches[branchName] = branch

	m.applyRetentionLocked(ctx, commit.RepoID)
	return nil
}

func (m *memoryStore) PutCommit(ctx context.Context, commit types.Commit) error {
	if commit.ID == "" || commit.RepoID == "" {
		return &ValidationError{Message: "commit id and repository id are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repoCommits, ok := m.commits[commit.RepoID]
	if !ok {
		return &NotFoundError{Resource: "repository", Key: commit.RepoID}
	}
	if _, exists := repoCommits[commit.ID]; exists {
		return &ConflictError{Resource: "commit", Key: commit.ID}
	}

	content := commit.Content
	commit.Content = ""
	repoCommits[commit.ID] = commit
	m.contents[commit.RepoID][commit.ID] = content
	m.repoCommits[commit.RepoID] = append(m.repoCommits[commit.RepoID], commit.ID)
	return nil
}

func (m *memoryStore) GetCommit(ctx context.Context, repoID, id string) (types.Commit, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	commit, ok := m.commits[repoID][id]
	if !ok {
		return types.Commit{}, &NotFoundError{Resource: "commit", Key: id}
	}

	content, ok := m.contents[repoID][id]
	if !ok {
		if m.archive == nil {
			return types.Commit{}, &NotFoundError{Resource: "content", Key: id}
		}
		data, err := m.archive.Fetch(ctx, repoID, id)
		if err != nil {
			return types.Commit{}, err
		}
		content = string(data)
	}

	commit.Content = content
	return commit, nil
}

func (m *memoryStore) ListCommits(ctx context.Context, opts ListCommitsOptions) ([]types.Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.repoCommits[opts.RepoID]
	if !ok {
		return []types.Commit{}, nil
	}

	ordered := make([]string, len(ids))
	copy(ordered, ids)
	if opts.Descending {
		slices.Reverse(ordered)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(ordered) {
			return []types.Commit{}, nil
		}
		ordered = ordered[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(ordered) {
		ordered = ordered[:opts.Limit]
	}

	result := make([]types.Commit, 0, len(ordered))
	for _, id := range ordered {
		if commit, ok := m.commits[opts.RepoID][id]; ok {
			result = append(result, commit)
		}
	}
	return result, nil
}

func (m *memoryStore) CountCommits(ctx context.Context, repoID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.repoCommits[repoID]), nil
}

func (m *memoryStore) CreateTag(ctx context.Context, tag types.Tag) error {
	if tag.RepoID == "" || tag.Name == "" || tag.CommitID == "" {
		return &ValidationError{Message: "repository id, tag name, and commit id are required"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.commits[tag.RepoID][tag.CommitID]; !ok {
		return &NotFoundError{Resource: "commit", Key: tag.CommitID}
	}

	repoTags, ok := m.tags[tag.RepoID]
	if !ok {
		return &NotFoundError{Resource: "repository", Key: tag.RepoID}
	}
	if _, exists := repoTags[tag.Name]; exists {
		return &ConflictError{Resource: "tag", Key: tag.Name}
	}

	tag.CreatedAt = m.clock().UTC()
	repoTags[tag.Name] = tag
	return nil
}

func (m *memoryStore) GetTag(ctx context.Context, repoID, name string) (types.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tag, ok := m.tags[repoID][name]
	if !ok {
		return types.Tag{}, &NotFoundError{Resource: "tag", Key: name}
	}
	return tag, nil
}

func (m *memoryStore) ListTags(ctx context.Context, repoID string) ([]types.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	repoTags, ok := m.tags[repoID]
	if !ok {
		return []types.Tag{}, nil
	}

	names := make([]string, 0, len(repoTags))
	for name := range repoTags {
		names = append(names, name)
	}
	slices.Sort(names)
	result := make([]types.Tag, 0, len(names))
	for _, name := range names {
		result = append(result, repoTags[name])
	}
	return result, nil
}

func (m *memoryStore) SetPolicy(ctx context.Context, policy RetentionPolicy) (RetentionPolicy, error) {
	if policy.RepoID == "" {
		return RetentionPolicy{}, &ValidationError{Message: "repository id is required"}
	}
	if policy.HotCommitLimit < 0 {
		return RetentionPolicy{}, &ValidationError{Message: "hotCommitLimit must be >= 0"}
	}
	if policy.HotDuration < 0 {
		return RetentionPolicy{}, &ValidationError{Message: "hotDuration must be >= 0"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.policies[policy.RepoID]
	if ok && existing.Locked && (existing.HotCommitLimit != policy.HotCommitLimit || existing.HotDuration != policy.HotDuration) {
		return existing.Copy(), &ConflictError{Resource: "policy", Key: policy.RepoID}
	}

	policy.Locked = true
	m.policies[policy.RepoID] = policy
	m.applyRetentionLocked(ctx, policy.RepoID)
	return policy.Copy(), nil
}

func (m *memoryStore) GetPolicy(ctx context.Context, repoID string) (RetentionPolicy, error) {
	if repoID == "" {
		return RetentionPolicy{}, &ValidationError{Message: "repository id is required"}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPolicyLocked(repoID), nil
}

func (m *memoryStore) getPolicyLocked(repoID string) RetentionPolicy {
	if policy, ok := m.policies[repoID]; ok {
		return policy.Copy()
	}
	return m.defaultPolicy.WithRepo(repoID)
}

// applyRetentionLocked moves cold commit contents to the archive. Branch
// heads are never evicted so read paths that resolve a head stay hot.
func (m *memoryStore) applyRetentionLocked(ctx context.Context, repoID string) {
	if m.archive == nil {
		return
	}
	policy := m.getPolicyLocked(repoID)
	if policy.HotCommitLimit <= 0 && policy.HotDuration <= 0 {
		return
	}
	ids := m.repoCommits[repoID]
	if len(ids) == 0 {
		return
	}

	heads := make(map[string]struct{})
	for _, branch := range m.branches[repoID] {
		if branch.HeadCommitID != "" {
			heads[branch.HeadCommitID] = struct{}{}
		}
	}

	active := make([]types.Commit, 0, len(ids))
	for _, id := range ids {
		commit := m.commits[repoID][id]
		if commit.Archived {
			continue
		}
		if _, isHead := heads[id]; isHead {
			continue
		}
		active = append(active, commit)
	}

	toArchive := make(map[string]struct{})
	if policy.HotDuration > 0 {
		cutoff := m.clock().Add(-policy.HotDuration)
		for _, commit := range active {
			if commit.Timestamp.Before(cutoff) {
				toArchive[commit.ID] = struct{}{}
			}
		}
	}
	if policy.HotCommitLimit > 0 {
		remaining := make([]types.Commit, 0, len(active))
		for _, commit := range active {
			if _, ok := toArchive[commit.ID]; !ok {
				remaining = append(remaining, commit)
			}
		}
		if excess := len(remaining) - policy.HotCommitLimit; excess > 0 {
			for i := 0; i < excess; i++ {
				toArchive[remaining[i].ID] = struct{}{}
			}
		}
	}

	for id := range toArchive {
		m.flushCommitLocked(ctx, repoID, id)
	}
}

func (m *memoryStore) flushCommitLocked(ctx context.Context, repoID, id string) {
	if ctx == nil {
		ctx = context.Background()
	}
	commit, ok := m.commits[repoID][id]
	if !ok || commit.Archived {
		return
	}
	content, ok := m.contents[repoID][id]
	if !ok {
		commit.Archived = true
		m.commits[repoID][id] = commit
		return
	}
	if err := m.archive.Store(ctx, repoID, id, []byte(content)); err != nil {
		return
	}
	delete(m.contents[repoID], id)
	commit.Archived = true
	m.commits[repoID][id] = commit
}
