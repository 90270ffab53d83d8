package vcs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDiffIdenticalContents(t *testing.T) {
	for _, content := range []string{"", "single", "line one\nline two", "trailing\n"} {
		diff := ComputeDiff(content, content)
		require.Empty(t, diff.Hunks)
		require.Zero(t, diff.Stats.Added)
		require.Zero(t, diff.Stats.Deleted)
		require.Zero(t, diff.Stats.Changed)
	}
}

func TestComputeDiffTrailingNewlineIsInsignificant(t *testing.T) {
	diff := ComputeDiff("a\nb\n", "a\nb")
	require.Empty(t, diff.Hunks)
}

func TestComputeDiffModifiedLine(t *testing.T) {
	diff := ComputeDiff("keep\nold", "keep\nnew")

	require.Len(t, diff.Hunks, 1)
	require.Equal(t, 1, diff.Stats.Changed)

	hunk := diff.Hunks[0]
	require.Equal(t, 2, hunk.OldStart)
	require.Equal(t, 2, hunk.NewStart)
	require.Len(t, hunk.Lines, 1)

	line := hunk.Lines[0]
	require.Equal(t, LineModified, line.Type)
	require.Equal(t, 2, line.OldNumber)
	require.Equal(t, 2, line.NewNumber)
	require.Equal(t, "new", line.Content)
	require.Equal(t, "old", line.OldContent)
}

func TestComputeDiffTrailingAddition(t *testing.T) {
	diff := ComputeDiff("a", "a\nb\nc")

	require.Len(t, diff.Hunks, 1)
	require.Equal(t, 2, diff.Stats.Added)

	hunk := diff.Hunks[0]
	require.Equal(t, 2, hunk.NewStart)
	require.Equal(t, 2, hunk.NewLines)
	require.Equal(t, LineAdded, hunk.Lines[0].Type)
	require.Equal(t, 2, hunk.Lines[0].NewNumber)
	require.Equal(t, "b", hunk.Lines[0].Content)
	require.Equal(t, 3, hunk.Lines[1].NewNumber)
	require.Equal(t, "c", hunk.Lines[1].Content)
}

func TestComputeDiffTrailingDeletion(t *testing.T) {
	diff := ComputeDiff("a\nb\nc", "a")

	require.Len(t, diff.Hunks, 1)
	require.Equal(t, 2, diff.Stats.Deleted)

	hunk := diff.Hunks[0]
	require.Equal(t, 2, hunk.OldStart)
	require.Equal(t, 2, hunk.OldLines)
	require.Equal(t, LineDeleted, hunk.Lines[0].Type)
	require.Equal(t, 2, hunk.Lines[0].OldNumber)
	require.Zero(t, hunk.Lines[0].NewNumber)
}

func TestComputeDiffMixedChanges(t *testing.T) {
	diff := ComputeDiff("alpha\nshared", "beta\nshared\nextra")

	require.Len(t, diff.Hunks, 2)
	require.Equal(t, 1, diff.Stats.Changed)
	require.Equal(t, 1, diff.Stats.Added)
	require.Zero(t, diff.Stats.Deleted)

	require.Equal(t, LineModified, diff.Hunks[0].Lines[0].Type)
	require.Equal(t, "beta", diff.Hunks[0].Lines[0].Content)
	require.Equal(t, LineAdded, diff.Hunks[1].Lines[0].Type)
	require.Equal(t, "extra", diff.Hunks[1].Lines[0].Content)
}

func TestApplyDiffReplaysModifications(t *testing.T) {
	change := ComputeDiff("a\nb", "a\nc")
	require.Equal(t, "a\nc", ApplyDiff("a\nb", change))
	// The same modification lands positionally on a different base.
	require.Equal(t, "z\nc", ApplyDiff("z\nb", change))
}

func TestApplyDiffAppendsAdditionsPastEnd(t *testing.T) {
	change := ComputeDiff("X", "X\nY")
	require.Equal(t, "Z\nY", ApplyDiff("Z", change))
}

func TestApplyDiffInsertsAtRecordedPosition(t *testing.T) {
	change := ComputeDiff("a\nb", "a\nb\nc\nd")
	require.Equal(t, "a\nb\nc\nd", ApplyDiff("a\nb", change))
}

func TestUnifiedPatch(t *testing.T) {
	require.Empty(t, UnifiedPatch("same", "same"))

	patch := UnifiedPatch("line one\nline two", "line one\nline two updated")
	require.Contains(t, patch, "-line two")
	require.Contains(t, patch, "+line two updated")
	require.True(t, strings.HasPrefix(patch, "---"))
}
