package vcs

import (
	"context"
	"time"
)

// BlameInfo attributes one content line to the commit that produced it.
type BlameInfo struct {
	LineNumber int       `json:"lineNumber"`
	Content    string    `json:"content"`
	CommitID   string    `json:"commitId"`
	CommitHash string    `json:"commitHash"`
	AuthorID   string    `json:"authorId"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Blame attributes every line of the branch head's content to the head
// commit and its author. Per-line provenance across history would need the
// diff engine to walk each line's past; head attribution is the documented
// behaviour for now.
func (e *Engine) Blame(ctx context.Context, repoID, branchName string) ([]BlameInfo, error) {
	head, branch, err := e.headCommitFor(ctx, repoID, branchName)
	if err != nil {
		return nil, err
	}
	if branch.HeadCommitID == "" {
		return nil, &InvalidOperationError{Reason: "branch " + branchName + " has no commits"}
	}

	lines := splitLines(head.Content)
	result := make([]BlameInfo, 0, len(lines))
	for i, line := range lines {
		result = append(result, BlameInfo{
			LineNumber: i + 1,
			Content:    line,
			CommitID:   head.ID,
			CommitHash: head.Hash,
			AuthorID:   head.AuthorID,
			Message:    head.Message,
			Timestamp:  head.Timestamp,
		})
	}
	return result, nil
}
