package reconciler

// planAction is the outcome of comparing a note's local, remote, and
// last-synced-base content hashes, per the three-way write plan: L is
// the current local hash (empty if the file doesn't exist locally), R
// is the server's current hash, S is the hash last reconciled.
type planAction int

const (
	// planNoOp means L==R: nothing to write, just bump the cached
	// version/hash to the server's.
	planNoOp planAction = iota
	// planAcceptServer means the server's content should overwrite the
	// local file: either this is the first sync for the note (S=="")
	// or only the remote side changed since the last sync.
	planAcceptServer
	// planLocalAhead means only the local side changed; skip the
	// download, the upload path will push local's version instead.
	planLocalAhead
	// planConflict means both sides changed since the last sync and a
	// three-way merge must be attempted.
	planConflict
)

// decidePlan implements spec's three-way write plan table for one note.
func decidePlan(local, remote, base string) planAction {
	switch {
	case local == remote:
		return planNoOp
	case base == "":
		return planAcceptServer
	case local == base && remote != base:
		return planAcceptServer
	case local != base && remote == base:
		return planLocalAhead
	default:
		return planConflict
	}
}
