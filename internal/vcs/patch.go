package vcs

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedPatch renders the classic unified-diff text between two contents.
// It is stored on each commit for display; the structured Diff stays the
// authoritative representation for patch application.
func UnifiedPatch(previous, current string) string {
	if previous == current {
		return ""
	}

	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(previous),
		B:        difflib.SplitLines(current),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	}

	res, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return strings.TrimSpace(current)
	}
	return strings.TrimSpace(res)
}

// ApplyDiff replays a structured diff on top of different base content:
// added lines are inserted at their recorded positions and modified lines
// replace whatever the base holds there. Deletions are not replayed; a
// cherry-picked change only carries content forward.
func ApplyDiff(base string, diff Diff) string {
	lines := splitLines(base)

	for _, hunk := range diff.Hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case LineAdded:
				at := line.NewNumber - 1
				if at < 0 {
					at = 0
				}
				if at >= len(lines) {
					lines = append(lines, line.Content)
					continue
				}
				lines = append(lines[:at], append([]string{line.Content}, lines[at:]...)...)
			case LineModified:
				at := line.NewNumber - 1
				if at >= 0 && at < len(lines) {
					lines[at] = line.Content
				} else {
					lines = append(lines, line.Content)
				}
			}
		}
	}

	return strings.Join(lines, "\n")
}
