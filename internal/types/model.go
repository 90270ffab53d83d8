package types

import "time"

// Repository identifies a versioned prompt project.
type Repository struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"ownerId"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	IsPublic      bool      `json:"isPublic"`
	DefaultBranch string    `json:"defaultBranch"`
	ParentID      string    `json:"parentId,omitempty"`
	ForkCount     int       `json:"forkCount"`
	CommitCount   int       `json:"commitCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Branch is a named mutable pointer into a repository's commit graph.
// HeadCommitID is empty only before the first commit on the branch.
type Branch struct {
	RepoID       string    `json:"repoId"`
	Name         string    `json:"name"`
	HeadCommitID string    `json:"headCommitId,omitempty"`
	Protected    bool      `json:"protected"`
	Description  string    `json:"description,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Commit is an immutable snapshot of prompt content plus metadata and
// parent links. Content holds the complete resulting text, not a patch;
// Patch is the precomputed unified diff against the first parent.
type Commit struct {
	ID        string    `json:"id"`
	RepoID    string    `json:"repoId"`
	Hash      string    `json:"hash"`
	Content   string    `json:"content,omitempty"`
	Patch     string    `json:"patch,omitempty"`
	ParentIDs []string  `json:"parentIds,omitempty"`
	AuthorID  string    `json:"authorId"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Archived  bool      `json:"archived"`
}

// Tag anchors a commit to a friendly label within a repository.
// Tags never move once created.
type Tag struct {
	ID        string    `json:"id"`
	RepoID    string    `json:"repoId"`
	Name      string    `json:"name"`
	CommitID  string    `json:"commitId"`
	Message   string    `json:"message,omitempty"`
	CreatorID string    `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
}
