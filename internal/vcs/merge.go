package vcs

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/promptforge/promptforge/internal/types"
)

// ConflictInfo records one line where both branches diverged from the
// common ancestor and from each other. Line numbers are 1-based.
type ConflictInfo struct {
	Line       int    `json:"line"`
	Base       string `json:"base,omitempty"`
	Source     string `json:"source"`
	Target     string `json:"target"`
	Suggestion string `json:"suggestion"`
}

// MergeResult is the structured outcome of a merge. Conflicts are an
// expected result the caller must resolve, not an error: Success is false
// and no commit is created.
type MergeResult struct {
	Success    bool           `json:"success"`
	Commit     *types.Commit  `json:"commit,omitempty"`
	Conflicts  []ConflictInfo `json:"conflicts,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
}

// DetectConflicts scans all three contents line by line. A line conflicts
// when source and target disagree with each other and both differ from the
// base; when only one side changed relative to base, that change wins
// without conflict. Positions past a content's end compare as empty lines.
func DetectConflicts(base, source, target string) []ConflictInfo {
	baseLines := splitLines(base)
	sourceLines := splitLines(source)
	targetLines := splitLines(target)

	max := len(baseLines)
	if len(sourceLines) > max {
		max = len(sourceLines)
	}
	if len(targetLines) > max {
		max = len(targetLines)
	}

	var conflicts []ConflictInfo
	for i := 0; i < max; i++ {
		baseLine := lineAt(baseLines, i)
		sourceLine := lineAt(sourceLines, i)
		targetLine := lineAt(targetLines, i)

		if sourceLine != targetLine && sourceLine != baseLine && targetLine != baseLine {
			conflicts = append(conflicts, ConflictInfo{
				Line:       i + 1,
				Base:       baseLine,
				Source:     sourceLine,
				Target:     targetLine,
				Suggestion: suggestLine(sourceLine, targetLine),
			})
		}
	}
	return conflicts
}

func lineAt(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return ""
}

// suggestLine prefers the longer competing line; equal lengths concatenate.
func suggestLine(source, target string) string {
	if len(source) > len(target) {
		return source
	}
	if len(target) > len(source) {
		return target
	}
	return source + target
}

// mergeConflictErr aborts writeCommit's build step when the conflict scan
// finds divergence; it never escapes Merge.
type mergeConflictErr struct {
	conflicts []ConflictInfo
}

func (e *mergeConflictErr) Error() string {
	return fmt.Sprintf("%d merge conflict(s) detected", len(e.conflicts))
}

// threeWayMerge combines two conflict-free divergent contents against the
// common ancestor. The final branch handles contents the conflict scan
// should have excluded; reaching it means the scan and the merge disagree,
// so it is logged loudly instead of silently trusted.
func (e *Engine) threeWayMerge(base, source, target string) string {
	if source == target {
		return source
	}
	if base == source {
		return target
	}
	if base == target {
		return source
	}

	e.log.Warn("three-way merge fallback reached for contents the conflict scan passed; concatenating")
	return source + "\n=======\n" + target
}

// Merge combines the source branch's head into the target branch. Both
// heads must exist; the common ancestor (empty content for unrelated
// histories) anchors three-way conflict detection. A clean merge creates a
// commit with two parents, source head first, on the target branch.
func (e *Engine) Merge(ctx context.Context, repoID, sourceBranch, targetBranch, authorID, message string) (MergeResult, error) {
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", sourceBranch, targetBranch)
	}

	commit, err := e.writeCommit(ctx, repoID, targetBranch, authorID, message,
		func(target types.Branch, targetContent string) (string, []string, string, error) {
			if target.HeadCommitID == "" {
				return "", nil, "", &InvalidOperationError{Reason: "branch " + targetBranch + " has no commits"}
			}

			source, err := e.store.GetBranch(ctx, repoID, sourceBranch)
			if err != nil {
				return "", nil, "", err
			}
			if source.HeadCommitID == "" {
				return "", nil, "", &InvalidOperationError{Reason: "branch " + sourceBranch + " has no commits"}
			}

			sourceHead, err := e.store.GetCommit(ctx, repoID, source.HeadCommitID)
			if err != nil {
				return "", nil, "", err
			}

			baseContent := ""
			ancestor, found, err := e.nav.CommonAncestor(ctx, repoID, source.HeadCommitID, target.HeadCommitID)
			if err != nil {
				return "", nil, "", err
			}
			if found {
				baseContent = ancestor.Content
			}

			conflicts := DetectConflicts(baseContent, sourceHead.Content, targetContent)
			if len(conflicts) > 0 {
				return "", nil, "", &mergeConflictErr{conflicts: conflicts}
			}

			merged := e.threeWayMerge(baseContent, sourceHead.Content, targetContent)
			return merged, []string{source.HeadCommitID, target.HeadCommitID}, sourceHead.Content, nil
		})

	if err != nil {
		var conflictErr *mergeConflictErr
		if errors.As(err, &conflictErr) {
			e.log.WithFields(logrus.Fields{
				"repo":      repoID,
				"source":    sourceBranch,
				"target":    targetBranch,
				"conflicts": len(conflictErr.conflicts),
			}).Info("merge halted on conflicts")
			return MergeResult{
				Success:    false,
				Conflicts:  conflictErr.conflicts,
				Suggestion: resolutionSuggestion(conflictErr.conflicts),
			}, nil
		}
		return MergeResult{}, err
	}

	return MergeResult{Success: true, Commit: &commit}, nil
}

func resolutionSuggestion(conflicts []ConflictInfo) string {
	return fmt.Sprintf("%d line(s) changed on both branches; review each conflict and commit a resolved version to the target branch", len(conflicts))
}
