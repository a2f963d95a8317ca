// Package types holds the data model shared across the sync engine: the
// server-authoritative Note and its local projections, the queue and
// change-event shapes, and the error taxonomy every component returns.
package types

import "time"

// NoteType distinguishes a Markdown file from a directory entry in the
// server's note tree.
type NoteType string

const (
	NoteTypeFile      NoteType = "file"
	NoteTypeDirectory NoteType = "directory"
)

// EncryptionAlgo tags the algorithm used to produce an encrypted blob.
type EncryptionAlgo string

const (
	// EncryptionAlgoAESGCMEmbedded is the current format: nonce embedded
	// in the blob, AES-256-GCM, single ciphertext for title+body JSON.
	EncryptionAlgoAESGCMEmbedded EncryptionAlgo = "aes-256-gcm"
	// EncryptionAlgoLegacy marks pre-embedded-nonce records with a
	// separate nonce field and split title/content ciphertexts.
	EncryptionAlgoLegacy EncryptionAlgo = "aes-256-gcm-legacy"
)

// EmbeddedNonceMarker is the literal value a wire record carries in its
// "nonce" field once the nonce lives inside the blob. Any other value in
// that field is a real legacy nonce and must be treated as informational
// only once EncryptionAlgo says the blob is self-describing.
const EmbeddedNonceMarker = "embedded"

// Note is the server-authoritative record for a single note or directory.
type Note struct {
	ID               string
	WorkspaceID      string
	ParentID         string // empty for root-level entries
	Type             NoteType
	EncryptedTitle   string
	EncryptedContent string
	Nonce            string
	EncryptionAlgo   EncryptionAlgo
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int
	ContentHash      string
	IsDeleted        bool
	LastEditDevice   string
}

// ManifestEntry is the compact projection of a Note used to diff server
// state against the local index without transferring ciphertexts.
type ManifestEntry struct {
	ID          string
	ContentHash string
	Version     int
	UpdatedAt   time.Time
	IsDeleted   bool
}

// LocalMapping ties a local file path to a server note_id and the
// version/hash last reconciled for it.
type LocalMapping struct {
	Path                 string
	NoteID               string
	Version              int
	ContentHashLastSynced string
	UpdatedAt            time.Time
}

// ChangeEventType enumerates the kinds of file change the engine reacts to.
type ChangeEventType string

const (
	ChangeCreate ChangeEventType = "create"
	ChangeModify ChangeEventType = "modify"
	ChangeDelete ChangeEventType = "delete"
	ChangeRename ChangeEventType = "rename"
)

// FileChangeEvent is the unified event produced by both the local file
// watcher and the remote WebSocket stream.
type FileChangeEvent struct {
	Type        ChangeEventType
	Path        string
	OldPath     string // set only for ChangeRename
	ContentHash string // set for create/modify once body is hashed
	Timestamp   time.Time
}

// UploadQueueItem is one coalesced pending upload.
type UploadQueueItem struct {
	Event       FileChangeEvent
	Attempts    int
	NextRetryAt time.Time
	LastError   string
}

// MasterKeySize is the length in bytes of the workspace master key.
const MasterKeySize = 32

// WorkspaceLink ties a local directory to a remote workspace.
type WorkspaceLink struct {
	LocalPath         string
	RemoteWorkspaceID string
	LinkedAt          time.Time
}

// ConflictInfo describes a single note the server reports as concurrently
// modified, as returned by the batch-diff endpoint.
type ConflictInfo struct {
	NoteID       string
	LocalVersion int
	ServerVersion int
}

// BatchDiffResult is the response shape of POST /sync/batch-diff.
type BatchDiffResult struct {
	ToDownload []Note
	ToUpload   []string
	ToDelete   []string
	Conflicts  []ConflictInfo
	SyncTime   time.Time
}

// ChangeFeedEntry is one row of GET /sync/changes.
type ChangeFeedEntry struct {
	NoteID    string
	Operation string // "update" | "delete"
	Version   int
	Note      *Note
}

// KeyMaterial is the server-stored (and locally mirrored) wrapped master
// key plus the parameters needed to re-derive the wrapping key.
type KeyMaterial struct {
	EncryptedKey   string
	KeySalt        string
	KDFParams      KDFParams
	EncryptionAlgo EncryptionAlgo
}

// KDFParams records the PBKDF2 parameters used to derive a key from a
// password, so they can evolve without breaking old wrapped keys.
type KDFParams struct {
	Iterations int
	KeyLength  int
	Hash       string
}
