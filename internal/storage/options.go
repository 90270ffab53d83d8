package storage

import (
	"context"
	"time"
)

// Archive persists commit contents evicted from the hot store.
type Archive interface {
	Store(ctx context.Context, repoID, commitID string, data []byte) error
	Fetch(ctx context.Context, repoID, commitID string) ([]byte, error)
	Remove(ctx context.Context, repoID, commitID string) error
	Close() error
}

// RetentionPolicy describes the hot-content limits for a repository.
// Contents beyond the limits move to the archive; commit metadata and
// branch heads always stay hot.
type RetentionPolicy struct {
	RepoID         string
	HotCommitLimit int
	HotDuration    time.Duration
	Locked         bool
}

// RetentionDefaults provides fallback retention when no policy is configured.
type RetentionDefaults struct {
	HotCommitLimit int
	HotDuration    time.Duration
}

// Options control storage behaviour across backends.
type Options struct {
	Archive   Archive
	Retention RetentionDefaults
}

// WithRepo returns a copy of the policy bound to the provided repository.
func (p RetentionPolicy) WithRepo(repoID string) RetentionPolicy {
	p.RepoID = repoID
	return p
}

// Copy returns a shallow copy of the policy.
func (p RetentionPolicy) Copy() RetentionPolicy {
	return RetentionPolicy{
		RepoID:         p.RepoID,
		HotCommitLimit: p.HotCommitLimit,
		HotDuration:    p.HotDuration,
		Locked:         p.Locked,
	}
}
