package conflict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkleaf/notesync/pkg/types"
)

func TestResolveNonOverlappingEditsAutoMerges(t *testing.T) {
	r := New()
	base := "Line one.\nLine two.\nLine three."
	local := "Line one edited.\nLine two.\nLine three."
	remote := "Line one.\nLine two.\nLine three edited."

	result := r.Resolve(base, local, remote, types.Note{ID: "n1"})
	require.Equal(t, AutoMerged, result.Outcome)
	require.Contains(t, result.Content, "Line one edited.")
	require.Contains(t, result.Content, "Line three edited.")
}

func TestResolveIdenticalTextAutoMerges(t *testing.T) {
	r := New()
	text := "Same content on both sides."
	result := r.Resolve(text, text, text, types.Note{ID: "n1"})
	require.Equal(t, AutoMerged, result.Outcome)
	require.Equal(t, text, result.Content)
}

func TestResolveOnlyLocalChangedAutoMerges(t *testing.T) {
	r := New()
	base := "The quick brown fox jumps over the lazy dog."
	local := "The quick brown fox leaps over the lazy dog."
	remote := base

	result := r.Resolve(base, local, remote, types.Note{ID: "n1"})
	require.Equal(t, AutoMerged, result.Outcome)
	require.Equal(t, local, result.Content)
}

func TestResolveConflictingEditsToSameRegionNeedsUserDecision(t *testing.T) {
	r := New()
	base := "The quick brown fox jumps over the lazy dog."
	local := "The quick brown fox jumps over the sleepy cat."
	remote := "Something else entirely replaces the original sentence, sharing no words at all with it."

	result := r.Resolve(base, local, remote, types.Note{ID: "n1"})
	require.Equal(t, NeedsUserDecision, result.Outcome)
	require.Equal(t, local, result.Content)
}
