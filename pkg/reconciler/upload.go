package reconciler

import (
	"context"
	"fmt"

	"github.com/inkleaf/notesync/pkg/remoteapi"
	"github.com/inkleaf/notesync/pkg/types"
	"github.com/inkleaf/notesync/pkg/uploadqueue"
)

// HandleChangeEvent reacts to one event from pkg/changesource. Create
// and modify coalesce through the upload queue's debounce/backoff
// machinery; delete and rename mutate the local index immediately,
// since both need to happen before the next reconciliation cycle scans
// the workspace, not after it.
func (e *Engine) HandleChangeEvent(ctx context.Context, ev types.FileChangeEvent, queue *uploadqueue.Queue, workspaceID string) error {
	switch ev.Type {
	case types.ChangeCreate, types.ChangeModify:
		queue.Enqueue(ev)
		return nil

	case types.ChangeDelete:
		return e.handleLocalDelete(ctx, ev.Path)

	case types.ChangeRename:
		return e.handleLocalRename(ctx, ev, queue, workspaceID)

	default:
		return fmt.Errorf("reconciler: unhandled change event type %q", ev.Type)
	}
}

func (e *Engine) handleLocalDelete(ctx context.Context, path string) error {
	m, found, err := e.index.GetMappingByPath(path)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	token, err := e.token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	return e.uploadDelete(ctx, token, m)
}

// handleLocalRename moves the mapping in place and pushes a
// title-only-changed update; if the old path had never been synced, the
// rename degrades into a create under the new path.
func (e *Engine) handleLocalRename(ctx context.Context, ev types.FileChangeEvent, queue *uploadqueue.Queue, workspaceID string) error {
	m, found, err := e.index.GetMappingByPath(ev.OldPath)
	if err != nil {
		return err
	}
	if !found {
		queue.Enqueue(types.FileChangeEvent{
			Type:        types.ChangeCreate,
			Path:        ev.Path,
			ContentHash: ev.ContentHash,
			Timestamp:   ev.Timestamp,
		})
		return nil
	}

	if err := e.index.MoveMapping(ev.OldPath, ev.Path); err != nil {
		return fmt.Errorf("move mapping %s -> %s: %w", ev.OldPath, ev.Path, err)
	}
	m.Path = ev.Path

	data, err := e.fs.ReadFile(ctx, ev.Path)
	if err != nil {
		return fmt.Errorf("read renamed file %s: %w", ev.Path, err)
	}
	content := string(data)

	enc, err := e.crypto.EncryptNote(titleFromPath(ev.Path), content)
	if err != nil {
		return fmt.Errorf("encrypt renamed note: %w", err)
	}

	token, err := e.token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}

	updated, err := e.api.UpdateNote(ctx, token, m.NoteID, remoteapi.UpdateNoteRequest{
		ExpectedVersion:  m.Version,
		EncryptedContent: enc.Blob,
		EncryptionAlgo:   types.EncryptionAlgoAESGCMEmbedded,
		Nonce:            types.EmbeddedNonceMarker,
		ContentHash:      enc.ContentHash,
		DeviceID:         e.getDeviceID(),
	})
	if err != nil {
		return fmt.Errorf("push renamed note %s: %w", m.NoteID, err)
	}

	m.Version = updated.Version
	m.ContentHashLastSynced = updated.ContentHash
	m.UpdatedAt = updated.UpdatedAt
	if err := e.index.PutMapping(m); err != nil {
		return err
	}
	return e.index.PutNote(updated)
}

// RunUploadWorker drains queue's Due() channel until ctx is canceled,
// pushing each released event to the server and reporting the outcome
// back to the queue so its backoff/permanent-failure bookkeeping stays
// accurate.
func (e *Engine) RunUploadWorker(ctx context.Context, queue *uploadqueue.Queue, workspaceID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-queue.Due():
			if !ok {
				return
			}
			if err := e.applyQueuedUpload(ctx, ev, workspaceID); err != nil {
				queue.MarkFailure(ev.Path, err)
				continue
			}
			queue.MarkSuccess(ev.Path)
		}
	}
}

func (e *Engine) applyQueuedUpload(ctx context.Context, ev types.FileChangeEvent, workspaceID string) error {
	token, err := e.token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}

	m, found, err := e.index.GetMappingByPath(ev.Path)
	if err != nil {
		return err
	}
	if found {
		return e.uploadExisting(ctx, token, m)
	}

	if _, err := e.fs.ReadFile(ctx, ev.Path); err != nil {
		return fmt.Errorf("read %s: %w", ev.Path, err)
	}
	return e.uploadCreate(ctx, token, workspaceID, ev.Path)
}
