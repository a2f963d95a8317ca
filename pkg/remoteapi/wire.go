package remoteapi

import (
	"time"

	"github.com/inkleaf/notesync/pkg/types"
)

// noteWire is the JSON wire shape for types.Note; the server's field
// names are snake_case.
type noteWire struct {
	ID               string    `json:"id"`
	WorkspaceID      string    `json:"workspace_id"`
	ParentID         string    `json:"parent_id,omitempty"`
	Type             string    `json:"type"`
	EncryptedTitle   string    `json:"encrypted_title"`
	EncryptedContent string    `json:"encrypted_content"`
	Nonce            string    `json:"nonce"`
	EncryptionAlgo   string    `json:"encryption_algo"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int       `json:"version"`
	ContentHash      string    `json:"content_hash"`
	IsDeleted        bool      `json:"is_deleted"`
	LastEditDevice   string    `json:"last_edit_device,omitempty"`
}

func (w noteWire) toNote() types.Note {
	return types.Note{
		ID:               w.ID,
		WorkspaceID:      w.WorkspaceID,
		ParentID:         w.ParentID,
		Type:             types.NoteType(w.Type),
		EncryptedTitle:   w.EncryptedTitle,
		EncryptedContent: w.EncryptedContent,
		Nonce:            w.Nonce,
		EncryptionAlgo:   types.EncryptionAlgo(w.EncryptionAlgo),
		CreatedAt:        w.CreatedAt,
		UpdatedAt:        w.UpdatedAt,
		Version:          w.Version,
		ContentHash:      w.ContentHash,
		IsDeleted:        w.IsDeleted,
		LastEditDevice:   w.LastEditDevice,
	}
}

func fromNote(n types.Note) noteWire {
	return noteWire{
		ID:               n.ID,
		WorkspaceID:      n.WorkspaceID,
		ParentID:         n.ParentID,
		Type:             string(n.Type),
		EncryptedTitle:   n.EncryptedTitle,
		EncryptedContent: n.EncryptedContent,
		Nonce:            n.Nonce,
		EncryptionAlgo:   string(n.EncryptionAlgo),
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
		Version:          n.Version,
		ContentHash:      n.ContentHash,
		IsDeleted:        n.IsDeleted,
		LastEditDevice:   n.LastEditDevice,
	}
}

type manifestEntryWire struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	Version     int       `json:"version"`
	UpdatedAt   time.Time `json:"updated_at"`
	IsDeleted   bool      `json:"is_deleted"`
}

func (w manifestEntryWire) toEntry() types.ManifestEntry {
	return types.ManifestEntry{
		ID:          w.ID,
		ContentHash: w.ContentHash,
		Version:     w.Version,
		UpdatedAt:   w.UpdatedAt,
		IsDeleted:   w.IsDeleted,
	}
}

type conflictInfoWire struct {
	NoteID        string `json:"note_id"`
	LocalVersion  int    `json:"local_version"`
	ServerVersion int    `json:"server_version"`
}

func (w conflictInfoWire) toConflict() types.ConflictInfo {
	return types.ConflictInfo{NoteID: w.NoteID, LocalVersion: w.LocalVersion, ServerVersion: w.ServerVersion}
}

type changeFeedEntryWire struct {
	NoteID    string    `json:"note_id"`
	Operation string    `json:"operation"`
	Version   int       `json:"version"`
	Note      *noteWire `json:"note,omitempty"`
}

func (w changeFeedEntryWire) toEntry() types.ChangeFeedEntry {
	e := types.ChangeFeedEntry{NoteID: w.NoteID, Operation: w.Operation, Version: w.Version}
	if w.Note != nil {
		n := w.Note.toNote()
		e.Note = &n
	}
	return e
}

type keyMaterialWire struct {
	EncryptedKey   string `json:"encrypted_key"`
	KeySalt        string `json:"key_salt"`
	KDFParams      struct {
		Iterations int    `json:"iterations"`
		KeyLength  int    `json:"key_length"`
		Hash       string `json:"hash"`
	} `json:"kdf_params"`
	EncryptionAlgo string `json:"encryption_algo"`
}

func (w keyMaterialWire) toKeyMaterial() types.KeyMaterial {
	return types.KeyMaterial{
		EncryptedKey: w.EncryptedKey,
		KeySalt:      w.KeySalt,
		KDFParams: types.KDFParams{
			Iterations: w.KDFParams.Iterations,
			KeyLength:  w.KDFParams.KeyLength,
			Hash:       w.KDFParams.Hash,
		},
		EncryptionAlgo: types.EncryptionAlgo(w.EncryptionAlgo),
	}
}

func fromKeyMaterial(km types.KeyMaterial) keyMaterialWire {
	w := keyMaterialWire{
		EncryptedKey:   km.EncryptedKey,
		KeySalt:        km.KeySalt,
		EncryptionAlgo: string(km.EncryptionAlgo),
	}
	w.KDFParams.Iterations = km.KDFParams.Iterations
	w.KDFParams.KeyLength = km.KDFParams.KeyLength
	w.KDFParams.Hash = km.KDFParams.Hash
	return w
}
