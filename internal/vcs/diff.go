package vcs

import "strings"

// LineType classifies a single diff line.
type LineType string

const (
	LineAdded     LineType = "added"
	LineDeleted   LineType = "deleted"
	LineUnchanged LineType = "unchanged"
	LineModified  LineType = "modified"
)

// DiffLine is one typed line of a hunk. Line numbers are 1-based;
// OldNumber is zero for pure additions and NewNumber is zero for pure
// deletions. For modified lines OldContent carries the replaced text.
type DiffLine struct {
	Type       LineType `json:"type"`
	OldNumber  int      `json:"oldNumber,omitempty"`
	NewNumber  int      `json:"newNumber,omitempty"`
	Content    string   `json:"content"`
	OldContent string   `json:"oldContent,omitempty"`
}

// Hunk groups consecutive changed lines with their old/new ranges.
type Hunk struct {
	OldStart int        `json:"oldStart"`
	OldLines int        `json:"oldLines"`
	NewStart int        `json:"newStart"`
	NewLines int        `json:"newLines"`
	Lines    []DiffLine `json:"lines"`
}

// DiffStats summarises line counts over all hunks.
type DiffStats struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
	Changed int `json:"changed"`
}

// Diff is the structured, line-granular difference between two contents.
// It is derived on demand and never persisted on its own.
type Diff struct {
	Hunks []Hunk    `json:"hunks"`
	Stats DiffStats `json:"stats"`
}

// ComputeDiff walks both line sequences with a position-synchronous
// alignment: equal lines advance both sides, differing lines become a
// single-line modification hunk, and whatever remains on one side becomes
// one trailing addition or deletion hunk. This is deliberately not a
// minimal-edit-distance diff; prompts are mostly edited in place and the
// positional model keeps conflict detection behaviour predictable.
func ComputeDiff(oldContent, newContent string) Diff {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	var diff Diff

	i := 0
	for i < len(oldLines) && i < len(newLines) {
		if oldLines[i] == newLines[i] {
			i++
			continue
		}
		diff.Hunks = append(diff.Hunks, Hunk{
			OldStart: i + 1,
			OldLines: 1,
			NewStart: i + 1,
			NewLines: 1,
			Lines: []DiffLine{{
				Type:       LineModified,
				OldNumber:  i + 1,
				NewNumber:  i + 1,
				Content:    newLines[i],
				OldContent: oldLines[i],
			}},
		})
		diff.Stats.Changed++
		i++
	}

	if i < len(newLines) {
		hunk := Hunk{
			OldStart: i + 1,
			NewStart: i + 1,
			NewLines: len(newLines) - i,
		}
		for j := i; j < len(newLines); j++ {
			hunk.Lines = append(hunk.Lines, DiffLine{
				Type:      LineAdded,
				NewNumber: j + 1,
				Content:   newLines[j],
			})
			diff.Stats.Added++
		}
		diff.Hunks = append(diff.Hunks, hunk)
	}

	if i < len(oldLines) {
		hunk := Hunk{
			OldStart: i + 1,
			OldLines: len(oldLines) - i,
			NewStart: i + 1,
		}
		for j := i; j < len(oldLines); j++ {
			hunk.Lines = append(hunk.Lines, DiffLine{
				Type:      LineDeleted,
				OldNumber: j + 1,
				Content:   oldLines[j],
			})
			diff.Stats.Deleted++
		}
		diff.Hunks = append(diff.Hunks, hunk)
	}

	return diff
}

// splitLines splits content into lines without trailing newlines. Empty
// content yields no lines so diff(C, C) has zero hunks for every C.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}
