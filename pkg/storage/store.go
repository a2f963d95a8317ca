package storage

import (
	"time"

	"github.com/inkleaf/notesync/pkg/types"
)

// Index is the LocalIndex: the on-disk source of truth for path<->note_id
// mappings, cached note metadata, and persisted auth tokens, so the
// engine can resume a sync session after a restart without touching the
// server.
type Index interface {
	// Mappings
	PutMapping(m types.LocalMapping) error
	GetMappingByPath(path string) (types.LocalMapping, bool, error)
	GetMappingByNoteID(noteID string) (types.LocalMapping, bool, error)
	ListMappings() ([]types.LocalMapping, error)
	DeleteMapping(path string) error
	// MoveMapping atomically relocates a mapping from oldPath to newPath,
	// preserving noteID/version/hash, for the rename fast path.
	MoveMapping(oldPath, newPath string) error
	ClearMappings() error

	// Notes cache (server-authoritative snapshot, for conflict/diff work
	// without re-fetching from the remote on every cycle)
	PutNote(note types.Note) error
	GetNote(noteID string) (types.Note, bool, error)
	DeleteNote(noteID string) error

	// Meta is a small flat key/value space for engine bookkeeping, e.g.
	// last_sync_time.
	PutMeta(key, value string) error
	GetMeta(key string) (string, bool, error)

	// Tokens persists the current bearer access/refresh token pair.
	PutTokens(access, refresh string, expiresAt time.Time) error
	GetTokens() (access, refresh string, expiresAt time.Time, ok bool, err error)
	ClearTokens() error

	Close() error
}
