// Package conflict implements the ConflictResolver: a three-way textual
// merge attempt for concurrently edited notes, falling back to a
// user-decision signal when the merge can't be trusted.
package conflict

import (
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/inkleaf/notesync/pkg/types"
)

// Outcome is the resolution kind returned by Resolve.
type Outcome string

const (
	AutoMerged        Outcome = "auto_merged"
	NeedsUserDecision Outcome = "needs_user_decision"
)

// Result is the outcome of one conflict resolution attempt.
type Result struct {
	Outcome Outcome
	// Content holds the merged text when Outcome is AutoMerged, or the
	// local plaintext (offered as the UI's starting point) when
	// NeedsUserDecision.
	Content string
	Note    types.Note
}

// Resolver attempts a three-way merge of a note's local and remote
// plaintext.
type Resolver struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// New returns a Resolver.
func New() *Resolver {
	return &Resolver{dmp: diffmatchpatch.New()}
}

// Resolve computes local's edits relative to basePlaintext -- the note's
// last-synced plaintext, recovered from the local cache -- as a patch, then
// replays that patch against remotePlaintext, the version the server now
// holds. If every hunk applies cleanly, the patched text is returned as
// AutoMerged; otherwise the two sides touched the same region and the
// caller must surface a user decision. The local plaintext is carried
// along as the default starting point -- the resolver never silently
// picks a side.
func (r *Resolver) Resolve(basePlaintext, localPlaintext, remotePlaintext string, remoteNote types.Note) Result {
	diffs := r.dmp.DiffMain(basePlaintext, localPlaintext, false)
	patches := r.dmp.PatchMake(basePlaintext, diffs)

	merged, applied := r.dmp.PatchApply(patches, remotePlaintext)

	for _, ok := range applied {
		if !ok {
			return Result{Outcome: NeedsUserDecision, Content: localPlaintext, Note: remoteNote}
		}
	}
	return Result{Outcome: AutoMerged, Content: merged, Note: remoteNote}
}
