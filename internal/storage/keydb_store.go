package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/promptforge/promptforge/internal/types"
)

type keydbStore struct {
	client        *redis.Client
	clock         func() time.Time
	archive       Archive
	defaultPolicy RetentionPolicy
}

type retentionRecord struct {
	HotCommitLimit     int   `json:"hotCommitLimit,omitempty"`
	HotDurationSeconds int64 `json:"hotDurationSeconds,omitempty"`
	Locked             bool  `json:"locked"`
}

func (r retentionRecord) toPolicy(repoID string) RetentionPolicy {
	return RetentionPolicy{
		RepoID:         repoID,
		HotCommitLimit: r.HotCommitLimit,
		HotDuration:    time.Duration(r.HotDurationSeconds) * time.Second,
		Locked:         r.Locked,
	}
}

// Config defines KeyDB connection settings.
type Config struct {
	Addr     string
	Username string
	Password string
	Database int
}

// NewKeyDBStore initializes a Store backed by KeyDB.
func NewKeyDBStore(cfg Config, opts Options) (Store, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to keydb: %w", err)
	}

	return &keydbStore{
		client:        client,
		clock:         time.Now,
		archive:       opts.Archive,
		defaultPolicy: RetentionPolicy{HotCommitLimit: opts.Retention.HotCommitLimit, HotDuration: opts.Retention.HotDuration},
	}, nil
}

func (s *keydbStore) CreateRepository(ctx context.Context, repo types.Repository) error {
	if repo.ID == "" || repo.OwnerID == "" || repo.Name == "" {
		return &ValidationError{Message: "repository id, owner, and name are required"}
	}

	payload, err := json.Marshal(repo)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, repoKey(repo.ID), payload, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return &ConflictError{Resource: "repository", Key: repo.ID}
	}
	return nil
}

func (s *keydbStore) GetRepository(ctx context.Context, id string) (types.Repository, error) {
	bytes, err := s.client.Get(ctx, repoKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Repository{}, &NotFoundError{Resource: "repository", Key: id}
		}
		return types.Repository{}, err
	}

	var repo types.Repository
	if err := json.Unmarshal(bytes, &repo); err != nil {
		return types.Repository{}, err
	}
	return repo, nil
}

func (s *keydbStore) UpdateRepository(ctx context.Context, repo types.Repository) error {
	exists, err := s.client.Exists(ctx, repoKey(repo.ID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return &NotFoundError{Resource: "repository", Key: repo.ID}
	}

	payload, err := json.Marshal(repo)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, repoKey(repo.ID), payload, 0).Err()
}

func (s *keydbStore) DeleteRepository(ctx context.Context, id string) error {
	exists, err := s.client.Exists(ctx, repoKey(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return &NotFoundError{Resource: "repository", Key: id}
	}

	commitIDs, err := s.client.ZRange(ctx, repoCommitsKey(id), 0, -1).Result()
	if err != nil {
		return err
	}
	branchNames, err := s.client.SMembers(ctx, branchSetKey(id)).Result()
	if err != nil {
		return err
	}
	tagNames, err := s.client.SMembers(ctx, tagSetKey(id)).Result()
	if err != nil {
		return err
	}

	if s.archive != nil {
		for _, commitID := range commitIDs {
			commit, err := s.getCommitMetadata(ctx, id, commitID)
			if err == nil && commit.Archived {
				_ = s.archive.Remove(ctx, id, commitID)
			}
		}
	}

	pipe := s.client.TxPipeline()
	for _, commitID := range commitIDs {
		pipe.Del(ctx, commitKey(id, commitID), contentKey(id, commitID))
	}
	for _, name := range branchNames {
		pipe.Del(ctx, branchKey(id, name))
	}
	for _, name := range tagNames {
		pipe.Del(ctx, tagKey(id, name))
	}
	pipe.Del(ctx, repoCommitsKey(id), branchSetKey(id), tagSetKey(id), policyKey(id), repoKey(id))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *keydbStore) CreateBranch(ctx context.Context, branch types.Branch) error {
	if branch.RepoID == "" || branch.Name == "" {
		return &ValidationError{Message: "repository id and branch name are required"}
	}

	if _, err := s.GetRepository(ctx, branch.RepoID); err != nil {
		return err
	}

	branch.UpdatedAt = s.clock().UTC()
	payload, err := json.Marshal(branch)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, branchKey(branch.RepoID, branch.Name), payload, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return &ConflictError{Resource: "branch", Key: branch.Name}
	}
	return s.client.SAdd(ctx, branchSetKey(branch.RepoID), branch.Name).Err()
}

func (s *keydbStore) GetBranch(ctx context.Context, repoID, name string) (types.Branch, error) {
	if repoID == "" || name == "" {
		return types.Branch{}, &ValidationError{Message: "repository id and branch name are required"}
	}

	bytes, err := s.client.Get(ctx, branchKey(repoID, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Branch{}, &NotFoundError{Resource: "branch", Key: name}
		}
		return types.Branch{}, err
	}

	var branch types.Branch
	if err := json.Unmarshal(bytes, &branch); err != nil {
		return types.Branch{}, err
	}
	return branch, nil
}

func (s *keydbStore) ListBranches(ctx context.Context, repoID string) ([]types.Branch, error) {
	names, err := s.client.SMembers(ctx, branchSetKey(repoID)).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	result := make([]types.Branch, 0, len(names))
	for _, name := range names {
		branch, err := s.GetBranch(ctx, repoID, name)
		if err == nil {
			result = append(result, branch)
		}
	}
	return result, nil
}

func (s *keydbStore) DeleteBranch(ctx context.Context, repoID, name string) error {
	deleted, err := s.client.Del(ctx, branchKey(repoID, name)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return &NotFoundError{Resource: "branch", Key: name}
	}
	return s.client.SRem(ctx, branchSetKey(repoID), name).Err()
}

func (s *keydbStore) CommitAndAdvance(ctx context.Context, commit types.Commit, branchName, expectedHead string) error {
	if commit.ID == "" || commit.RepoID == "" || branchName == "" {
		return &ValidationError{Message: "commit id, repository id, and branch name are required"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := branchKey(commit.RepoID, branchName)
	policy := s.getPolicy(ctx, commit.RepoID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		branchBytes, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return &NotFoundError{Resource: "branch", Key: branchName}
		}
		if err != nil {
			return err
		}
		var branch types.Branch
		if err := json.Unmarshal(branchBytes, &branch); err != nil {
			return err
		}
		if branch.HeadCommitID != expectedHead {
			return &ConcurrentModificationError{RepoID: commit.RepoID, Branch: branchName}
		}

		exists, err := tx.Exists(ctx, commitKey(commit.RepoID, commit.ID)).Result()
		if err != nil {
			return err
		}
		if exists == 1 {
			return &ConflictError{Resource: "commit", Key: commit.ID}
		}

		content := commit.Content
		commit.Content = ""
		metaPayload, err := json.Marshal(commit)
		if err != nil {
			return err
		}

		branch.HeadCommitID = commit.ID
		branch.UpdatedAt = s.clock().UTC()
		branchPayload, err := json.Marshal(branch)
		if err != nil {
			return err
		}

		pipe := tx.TxPipeline()
		pipe.Set(ctx, commitKey(commit.RepoID, commit.ID), metaPayload, 0)
		pipe.Set(ctx, contentKey(commit.RepoID, commit.ID), content, 0)
		pipe.Set(ctx, key, branchPayload, 0)
		pipe.ZAdd(ctx, repoCommitsKey(commit.RepoID), redis.Z{Score: float64(commit.Timestamp.UnixNano()), Member: commit.ID})
		_, err = pipe.Exec(ctx)
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// The watched head changed under us. The caller recomputes against
		// the fresh head rather than retrying blindly here.
		return &ConcurrentModificationError{RepoID: commit.RepoID, Branch: branchName}
	}
	if err != nil {
		return err
	}

	s.enforceRetention(ctx, commit.RepoID, policy)
	return nil
}

func (s *keydbStore) PutCommit(ctx context.Context, commit types.Commit) error {
	if commit.ID == "" || commit.RepoID == "" {
		return &ValidationError{Message: "commit id and repository id are required"}
	}

	exists, err := s.client.Exists(ctx, commitKey(commit.RepoID, commit.ID)).Result()
	if err != nil {
		return err
	}
	if exists == 1 {
		return &ConflictError{Resource: "commit", Key: commit.ID}
	}

	content := commit.Content
	commit.Content = ""
	payload, err := json.Marshal(commit)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, commitKey(commit.RepoID, commit.ID), payload, 0)
	pipe.Set(ctx, contentKey(commit.RepoID, commit.ID), content, 0)
	pipe.ZAdd(ctx, repoCommitsKey(commit.RepoID), redis.Z{Score: float64(commit.Timestamp.UnixNano()), Member: commit.ID})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *keydbStore) GetCommit(ctx context.Context, repoID, id string) (types.Commit, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	commit, err := s.getCommitMetadata(ctx, repoID, id)
	if err != nil {
		return types.Commit{}, err
	}

	content, err := s.client.Get(ctx, contentKey(repoID, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if s.archive == nil {
				return types.Commit{}, &NotFoundError{Resource: "content", Key: id}
			}
			data, err := s.archive.Fetch(ctx, repoID, id)
			if err != nil {
				return types.Commit{}, err
			}
			commit.Content = string(data)
			return commit, nil
		}
		return types.Commit{}, err
	}

	commit.Content = content
	return commit, nil
}

func (s *keydbStore) ListCommits(ctx context.Context, opts ListCommitsOptions) ([]types.Commit, error) {
	if opts.RepoID == "" {
		return []types.Commit{}, nil
	}

	key := repoCommitsKey(opts.RepoID)
	start := int64(opts.Offset)
	end := int64(-1)
	if opts.Limit > 0 {
		end = start + int64(opts.Limit) - 1
	}

	var (
		ids []string
		err error
	)
	if opts.Descending {
		ids, err = s.client.ZRevRange(ctx, key, start, end).Result()
	} else {
		ids, err = s.client.ZRange(ctx, key, start, end).Result()
	}
	if err != nil {
		return nil, err
	}

	result := make([]types.Commit, 0, len(ids))
	for _, id := range ids {
		commit, err := s.getCommitMetadata(ctx, opts.RepoID, id)
		if err != nil {
			continue
		}
		result = append(result, commit)
	}
	return result, nil
}

func (s *keydbStore) CountCommits(ctx context.Context, repoID string) (int, error) {
	count, err := s.client.ZCard(ctx, repoCommitsKey(repoID)).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *keydbStore) CreateTag(ctx context.Context, tag types.Tag) error {
	if tag.RepoID == "" || tag.Name == "" || tag.CommitID == "" {
		return &ValidationError{Message: "repository id, tag name, and commit id are required"}
	}

	if _, err := s.getCommitMetadata(ctx, tag.RepoID, tag.CommitID); err != nil {
		return err
	}

	tag.CreatedAt = s.clock().UTC()
	payload, err := json.Marshal(tag)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, tagKey(tag.RepoID, tag.Name), payload, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return &ConflictError{Resource: "tag", Key: tag.Name}
	}
	return s.client.SAdd(ctx, tagSetKey(tag.RepoID), tag.Name).Err()
}

func (s *keydbStore) GetTag(ctx context.Context, repoID, name string) (types.Tag, error) {
	if repoID == "" || name == "" {
		return types.Tag{}, &ValidationError{Message: "repository id and tag name are required"}
	}

	bytes, err := s.client.Get(ctx, tagKey(repoID, name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Tag{}, &NotFoundError{Resource: "tag", Key: name}
		}
		return types.Tag{}, err
	}

	var tag types.Tag
	if err := json.Unmarshal(bytes, &tag); err != nil {
		return types.Tag{}, err
	}
	return tag, nil
}

func (s *keydbStore) ListTags(ctx context.Context, repoID string) ([]types.Tag, error) {
	names, err := s.client.SMembers(ctx, tagSetKey(repoID)).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	result := make([]types.Tag, 0, len(names))
	for _, name := range names {
		tag, err := s.GetTag(ctx, repoID, name)
		if err == nil {
			result = append(result, tag)
		}
	}
	return result, nil
}

func (s *keydbStore) SetPolicy(ctx context.Context, policy RetentionPolicy) (RetentionPolicy, error) {
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

	key := policyKey(policy.RepoID)
	seconds := int64(policy.HotDuration / time.Second)

	existing, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var rec retentionRecord
		if err := json.Unmarshal(existing, &rec); err == nil {
			if rec.Locked && (rec.HotCommitLimit != policy.HotCommitLimit || rec.HotDurationSeconds != seconds) {
				return rec.toPolicy(policy.RepoID), &ConflictError{Resource: "policy", Key: policy.RepoID}
			}
		}
	} else if !errors.Is(err, redis.Nil) {
		return RetentionPolicy{}, err
	}

	rec := retentionRecord{
		HotCommitLimit:     policy.HotCommitLimit,
		HotDurationSeconds: seconds,
		Locked:             true,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return RetentionPolicy{}, err
	}

	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return RetentionPolicy{}, err
	}

	policy.Locked = true
	s.enforceRetention(ctx, policy.RepoID, policy)
	return policy, nil
}

func (s *keydbStore) GetPolicy(ctx context.Context, repoID string) (RetentionPolicy, error) {
	if repoID == "" {
		return RetentionPolicy{}, &ValidationError{Message: "repository id is required"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	bytes, err := s.client.Get(ctx, policyKey(repoID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s.defaultPolicy.WithRepo(repoID), nil
		}
		return RetentionPolicy{}, err
	}
	var rec retentionRecord
	if err := json.Unmarshal(bytes, &rec); err != nil {
		return RetentionPolicy{}, err
	}
	return rec.toPolicy(repoID), nil
}

func (s *keydbStore) getPolicy(ctx context.Context, repoID string) RetentionPolicy {
	policy, err := s.GetPolicy(ctx, repoID)
	if err != nil {
		return s.defaultPolicy.WithRepo(repoID)
	}
	return policy
}

func (s *keydbStore) enforceRetention(ctx context.Context, repoID string, policy RetentionPolicy) {
	if s.archive == nil {
		return
	}
	if policy.HotCommitLimit <= 0 && policy.HotDuration <= 0 {
		return
	}

	ids, err := s.client.ZRange(ctx, repoCommitsKey(repoID), 0, -1).Result()
	if err != nil {
		return
	}

	heads := make(map[string]struct{})
	names, err := s.client.SMembers(ctx, branchSetKey(repoID)).Result()
	if err != nil {
		return
	}
	for _, name := range names {
		branch, err := s.GetBranch(ctx, repoID, name)
		if err == nil && branch.HeadCommitID != "" {
			heads[branch.HeadCommitID] = struct{}{}
		}
	}

	active := make([]types.Commit, 0, len(ids))
	for _, id := range ids {
		commit, err := s.getCommitMetadata(ctx, repoID, id)
		if err != nil || commit.Archived {
			continue
		}
		if _, ok := heads[commit.ID]; ok {
			continue
		}
		active = append(active, commit)
	}

	toArchive := make(map[string]struct{})
	if policy.HotDuration > 0 {
		cutoff := s.clock().Add(-policy.HotDuration)
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
		_ = s.archiveCommit(ctx, repoID, id)
	}
}

func (s *keydbStore) archiveCommit(ctx context.Context, repoID, id string) error {
	commit, err := s.GetCommit(ctx, repoID, id)
	if err != nil {
		return err
	}
	if commit.Archived {
		return nil
	}
	if err := s.archive.Store(ctx, repoID, id, []byte(commit.Content)); err != nil {
		return err
	}
	commit.Archived = true
	commit.Content = ""
	payload, err := json.Marshal(commit)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, commitKey(repoID, id), payload, 0)
	pipe.Del(ctx, contentKey(repoID, id))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *keydbStore) getCommitMetadata(ctx context.Context, repoID, id string) (types.Commit, error) {
	bytes, err := s.client.Get(ctx, commitKey(repoID, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Commit{}, &NotFoundError{Resource: "commit", Key: id}
		}
		return types.Commit{}, err
	}
	var commit types.Commit
	if err := json.Unmarshal(bytes, &commit); err != nil {
		return types.Commit{}, err
	}
	return commit, nil
}

func repoKey(id string) string {
	return fmt.Sprintf("repo:%s", id)
}

func commitKey(repoID, id string) string {
	return fmt.Sprintf("commit:%s:%s", repoID, id)
}

func contentKey(repoID, id string) string {
	return fmt.Sprintf("content:%s:%s", repoID, id)
}

func branchKey(repoID, name string) string {
	return fmt.Sprintf("branch:%s:%s", repoID, name)
}

func repoCommitsKey(repoID string) string {
	return fmt.Sprintf("commits:%s", repoID)
}

func branchSetKey(repoID string) string {
	return fmt.Sprintf("branchset:%s", repoID)
}

func tagKey(repoID, name string) string {
	return fmt.Sprintf("tag:%s:%s", repoID, name)
}

func tagSetKey(repoID string) string {
	return fmt.Sprintf("tagset:%s", repoID)
}

func policyKey(repoID string) string {
	return fmt.Sprintf("policy:%s", repoID)
}
