package remoteapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/inkleaf/notesync/pkg/types"
)

// CreateNoteRequest is the body of POST /notes.
type CreateNoteRequest struct {
	WorkspaceID      string
	ParentID         string
	Type             types.NoteType
	EncryptedTitle   string
	EncryptedContent string
	EncryptionAlgo   types.EncryptionAlgo
	Nonce            string
	ContentHash      string
	DeviceID         string
}

type createNoteWire struct {
	WorkspaceID      string `json:"workspace_id"`
	ParentID         string `json:"parent_id,omitempty"`
	Type             string `json:"type"`
	EncryptedTitle   string `json:"encrypted_title"`
	EncryptedContent string `json:"encrypted_content"`
	EncryptionAlgo   string `json:"encryption_algo"`
	Nonce            string `json:"nonce"`
	ContentHash      string `json:"content_hash"`
	DeviceID         string `json:"device_id,omitempty"`
}

// CreateNote creates a new note (or directory entry) and returns the
// server-assigned record, including its initial version.
func (c *Client) CreateNote(ctx context.Context, token string, req CreateNoteRequest) (types.Note, error) {
	body := createNoteWire{
		WorkspaceID:      req.WorkspaceID,
		ParentID:         req.ParentID,
		Type:             string(req.Type),
		EncryptedTitle:   req.EncryptedTitle,
		EncryptedContent: req.EncryptedContent,
		EncryptionAlgo:   string(req.EncryptionAlgo),
		Nonce:            req.Nonce,
		ContentHash:      req.ContentHash,
		DeviceID:         req.DeviceID,
	}
	var w noteWire
	_, err := c.do(ctx, http.MethodPost, "/notes", token, nil, body, &w)
	if err != nil {
		return types.Note{}, err
	}
	return w.toNote(), nil
}

// UpdateNoteRequest is the body of PUT /notes/{id}. ExpectedVersion must
// match the server's current version, or the call fails with
// types.ErrVersionConflict (mapped from the server's 409).
type UpdateNoteRequest struct {
	ExpectedVersion  int
	EncryptedTitle   string
	EncryptedContent string
	EncryptionAlgo   types.EncryptionAlgo
	Nonce            string
	ContentHash      string
	DeviceID         string
	IsDeleted        bool
}

type updateNoteWire struct {
	ExpectedVersion  int    `json:"expected_version"`
	EncryptedTitle   string `json:"encrypted_title"`
	EncryptedContent string `json:"encrypted_content"`
	EncryptionAlgo   string `json:"encryption_algo"`
	Nonce            string `json:"nonce"`
	ContentHash      string `json:"content_hash"`
	DeviceID         string `json:"device_id,omitempty"`
	IsDeleted        bool   `json:"is_deleted,omitempty"`
}

// UpdateNote submits a new version of a note's content.
func (c *Client) UpdateNote(ctx context.Context, token, noteID string, req UpdateNoteRequest) (types.Note, error) {
	body := updateNoteWire{
		ExpectedVersion:  req.ExpectedVersion,
		EncryptedTitle:   req.EncryptedTitle,
		EncryptedContent: req.EncryptedContent,
		EncryptionAlgo:   string(req.EncryptionAlgo),
		Nonce:            req.Nonce,
		ContentHash:      req.ContentHash,
		DeviceID:         req.DeviceID,
		IsDeleted:        req.IsDeleted,
	}
	var w noteWire
	_, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/notes/%s", noteID), token, nil, body, &w)
	if err != nil {
		return types.Note{}, err
	}
	return w.toNote(), nil
}

// DeleteNote tombstones a note server-side; it is not physically erased
// so other devices can observe the deletion via manifest/diff.
func (c *Client) DeleteNote(ctx context.Context, token, noteID string) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/notes/%s", noteID), token, nil, nil, nil)
	return err
}

// GetNote fetches a single note by ID.
func (c *Client) GetNote(ctx context.Context, token, noteID string) (types.Note, error) {
	var w noteWire
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/notes/%s", noteID), token, nil, nil, &w)
	if err != nil {
		return types.Note{}, err
	}
	return w.toNote(), nil
}

// ListNotes fetches every note in a workspace.
func (c *Client) ListNotes(ctx context.Context, token, workspaceID string) ([]types.Note, error) {
	query := urlValues("workspace_id", workspaceID)
	var wires []noteWire
	_, err := c.do(ctx, http.MethodGet, "/notes", token, query, nil, &wires)
	if err != nil {
		return nil, err
	}
	notes := make([]types.Note, len(wires))
	for i, w := range wires {
		notes[i] = w.toNote()
	}
	return notes, nil
}
