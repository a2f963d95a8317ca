package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkleaf/notesync/pkg/conflict"
	"github.com/inkleaf/notesync/pkg/crypto"
	"github.com/inkleaf/notesync/pkg/events"
	"github.com/inkleaf/notesync/pkg/fsys"
	"github.com/inkleaf/notesync/pkg/ignore"
	"github.com/inkleaf/notesync/pkg/log"
	"github.com/inkleaf/notesync/pkg/metrics"
	"github.com/inkleaf/notesync/pkg/remoteapi"
	"github.com/inkleaf/notesync/pkg/storage"
	"github.com/inkleaf/notesync/pkg/types"
)

const metaLastSyncTime = "last_sync_time"

// changeFeedWindow bounds how stale last_sync_time may be for the
// incremental change feed to be worth trying: older than this and the
// feed is likely to come back truncated anyway, so it's cheaper to go
// straight to the full manifest diff.
const changeFeedWindow = 10 * time.Minute

// API is the subset of remoteapi.Client the reconciler drives. Declared
// narrow so a fake can stand in for tests without an HTTP server.
type API interface {
	FetchManifest(ctx context.Context, token, workspaceID string) (remoteapi.Manifest, error)
	FetchChanges(ctx context.Context, token string, since time.Time) (remoteapi.ChangeFeed, error)
	BatchDiff(ctx context.Context, token string, req remoteapi.BatchDiffRequest) (types.BatchDiffResult, error)
	CreateNote(ctx context.Context, token string, req remoteapi.CreateNoteRequest) (types.Note, error)
	UpdateNote(ctx context.Context, token, noteID string, req remoteapi.UpdateNoteRequest) (types.Note, error)
	DeleteNote(ctx context.Context, token, noteID string) error
	GetNote(ctx context.Context, token, noteID string) (types.Note, error)
}

// Emitter is the local decoupling interface, the same pattern used by
// pkg/tokens and pkg/uploadqueue: the engine only needs to hand a name
// and payload to whatever bus it was given.
type Emitter interface {
	Emit(name string, payload any)
}

// TokenFunc resolves the current bearer token, refreshing it first if
// the caller's token manager deems that necessary.
type TokenFunc func(ctx context.Context) (string, error)

// Engine is the ReconciliationEngine: it drives one full reconcile cycle
// end to end -- manifest diff, the three-way write plan, uploads,
// deletes, conflict resolution, and orphan cleanup.
type Engine struct {
	index   storage.Index
	crypto  *crypto.Core
	api     API
	resolve *conflict.Resolver
	fs      fsys.FS
	filter  *ignore.Filter
	emitter Emitter
	token   TokenFunc

	deviceIDMu sync.RWMutex
	deviceID   string

	mu      sync.Mutex
	syncing bool

	logger zerolog.Logger
}

// Config bundles Engine's dependencies.
type Config struct {
	Index    storage.Index
	Crypto   *crypto.Core
	API      API
	Resolver *conflict.Resolver
	FS       fsys.FS
	Filter   *ignore.Filter
	Emitter  Emitter
	Token    TokenFunc
	DeviceID string
}

// New builds an Engine from its dependencies, defaulting the conflict
// resolver and ignore filter if the caller didn't provide one.
func New(cfg Config) *Engine {
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = conflict.New()
	}
	filter := cfg.Filter
	if filter == nil {
		filter = ignore.NewDefault()
	}
	return &Engine{
		index:    cfg.Index,
		crypto:   cfg.Crypto,
		api:      cfg.API,
		resolve:  resolver,
		fs:       cfg.FS,
		filter:   filter,
		emitter:  cfg.Emitter,
		token:    cfg.Token,
		deviceID: cfg.DeviceID,
		logger:   log.WithComponent("reconciler"),
	}
}

func (e *Engine) emit(name events.Name, payload any) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(string(name), payload)
}

// SetDeviceID updates the device id attached to future upload requests.
// The orchestrator calls this once after registering the local device
// with the server for the first time, since that happens after the
// engine is constructed.
func (e *Engine) SetDeviceID(id string) {
	e.deviceIDMu.Lock()
	e.deviceID = id
	e.deviceIDMu.Unlock()
}

func (e *Engine) getDeviceID() string {
	e.deviceIDMu.RLock()
	defer e.deviceIDMu.RUnlock()
	return e.deviceID
}

// Reconcile runs one full reconciliation cycle against workspaceID.
// Concurrent calls are rejected with types.ErrSyncInProgress: only one
// cycle runs at a time.
func (e *Engine) Reconcile(ctx context.Context, workspaceID string) error {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		return types.ErrSyncInProgress
	}
	e.syncing = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	timer := metrics.NewTimer()
	e.emit(events.SyncStart, workspaceID)
	e.logger.Info().Str("workspace_id", workspaceID).Msg("reconciliation started")

	err := e.reconcile(ctx, workspaceID)

	timer.ObserveDuration(metrics.SyncCycleDuration)
	metrics.SyncCyclesTotal.Inc()

	if err != nil {
		metrics.SyncErrorsTotal.WithLabelValues(string(types.ClassifyError(err))).Inc()
		e.emit(events.SyncError, err.Error())
		e.logger.Error().Err(err).Msg("reconciliation failed")
		return err
	}

	if err := e.index.PutMeta(metaLastSyncTime, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("persist last sync time: %w", err)
	}
	e.emit(events.SyncComplete, workspaceID)
	e.logger.Info().Dur("elapsed", timer.Duration()).Msg("reconciliation complete")
	return nil
}

func (e *Engine) reconcile(ctx context.Context, workspaceID string) error {
	token, err := e.token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}

	usedChangeFeed := e.tryIncrementalChanges(ctx, token, workspaceID)
	var manifest remoteapi.Manifest
	if !usedChangeFeed {
		manifest, err = e.api.FetchManifest(ctx, token, workspaceID)
		if err != nil {
			return fmt.Errorf("fetch manifest: %w", err)
		}
	}

	mappings, err := e.index.ListMappings()
	if err != nil {
		return fmt.Errorf("list mappings: %w", err)
	}
	mappingByID := make(map[string]types.LocalMapping, len(mappings))
	mappingByPath := make(map[string]types.LocalMapping, len(mappings))
	for _, m := range mappings {
		mappingByID[m.NoteID] = m
		mappingByPath[m.Path] = m
	}

	localHashes, err := e.scanLocalFiles(ctx)
	if err != nil {
		return fmt.Errorf("scan local files: %w", err)
	}

	known := make([]remoteapi.BatchDiffKnownNote, 0, len(mappings))
	for _, m := range mappings {
		hash := m.ContentHashLastSynced
		if h, ok := localHashes[m.Path]; ok {
			hash = h
		}
		known = append(known, remoteapi.BatchDiffKnownNote{ID: m.NoteID, Hash: hash, Version: m.Version})
	}

	diff, err := e.api.BatchDiff(ctx, token, remoteapi.BatchDiffRequest{WorkspaceID: workspaceID, Known: known})
	if err != nil {
		return fmt.Errorf("batch diff: %w", err)
	}

	handledPaths := make(map[string]struct{})

	for _, note := range diff.ToDownload {
		if err := e.applyDownload(ctx, token, note, mappingByID, localHashes); err != nil {
			e.logger.Error().Err(err).Str("note_id", note.ID).Msg("apply download failed")
			continue
		}
		if m, ok := mappingByID[note.ID]; ok {
			handledPaths[m.Path] = struct{}{}
		}
	}

	for _, noteID := range diff.ToUpload {
		m, ok := mappingByID[noteID]
		if !ok {
			continue
		}
		if err := e.uploadExisting(ctx, token, m); err != nil {
			e.logger.Error().Err(err).Str("path", m.Path).Msg("upload existing failed")
			continue
		}
		handledPaths[m.Path] = struct{}{}
	}

	for _, noteID := range diff.ToDelete {
		m, ok := mappingByID[noteID]
		if !ok {
			continue
		}
		if err := e.applyRemoteDelete(ctx, m); err != nil {
			e.logger.Error().Err(err).Str("path", m.Path).Msg("apply remote delete failed")
			continue
		}
		handledPaths[m.Path] = struct{}{}
	}

	for _, c := range diff.Conflicts {
		m, ok := mappingByID[c.NoteID]
		if !ok {
			continue
		}
		if _, done := handledPaths[m.Path]; done {
			continue
		}
		if err := e.resolveConflictByID(ctx, token, c.NoteID, m); err != nil {
			e.logger.Error().Err(err).Str("note_id", c.NoteID).Msg("conflict resolution failed")
		}
	}

	// Pull missing (spec §4.8 step 8): a note present in the manifest
	// but never downloaded yet, e.g. the first sync on a new device, or
	// a note created while this device was offline and since dropped
	// off the change feed's window. BatchDiff.ToDownload already covers
	// this for the common case; this pass only does anything extra when
	// the change feed fast path was skipped in favor of a full manifest.
	if !usedChangeFeed {
		for _, entry := range manifest.Notes {
			if entry.IsDeleted {
				continue
			}
			if _, ok := mappingByID[entry.ID]; ok {
				continue
			}
			note, err := e.api.GetNote(ctx, token, entry.ID)
			if err != nil {
				e.logger.Error().Err(err).Str("note_id", entry.ID).Msg("pull missing note fetch failed")
				continue
			}
			if err := e.applyDownload(ctx, token, note, mappingByID, localHashes); err != nil {
				e.logger.Error().Err(err).Str("note_id", entry.ID).Msg("pull missing note apply failed")
				continue
			}
		}
	}

	// Untracked local files: present on disk, no mapping yet.
	for path := range localHashes {
		if _, ok := mappingByPath[path]; ok {
			continue
		}
		if err := e.uploadCreate(ctx, token, workspaceID, path); err != nil {
			e.logger.Error().Err(err).Str("path", path).Msg("upload create failed")
		}
	}

	// Orphan cleanup: mappings whose local file is gone and weren't
	// already handled as a server-initiated delete.
	for _, m := range mappings {
		if _, handled := handledPaths[m.Path]; handled {
			continue
		}
		if _, exists := localHashes[m.Path]; exists {
			continue
		}
		if err := e.uploadDelete(ctx, token, m); err != nil {
			e.logger.Error().Err(err).Str("path", m.Path).Msg("orphan delete failed")
		}
	}

	return nil
}

// tryIncrementalChanges attempts the fast path named in the sync HTTP
// surface: catching up on remote changes since the last successful
// reconcile via GET /sync/changes instead of a full manifest fetch. It
// reports whether the feed was usable; on false the caller must fall
// back to FetchManifest, because last_sync_time is missing or stale,
// the request failed, or the server reports the feed as truncated.
func (e *Engine) tryIncrementalChanges(ctx context.Context, token, workspaceID string) bool {
	_ = workspaceID // the feed is scoped by token, not by workspace, unlike the manifest

	raw, found, err := e.index.GetMeta(metaLastSyncTime)
	if err != nil || !found {
		return false
	}
	since, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil || time.Since(since) > changeFeedWindow {
		return false
	}

	feed, err := e.api.FetchChanges(ctx, token, since)
	if err != nil {
		e.logger.Warn().Err(err).Msg("incremental change feed fetch failed, falling back to manifest diff")
		return false
	}
	if feed.Truncated {
		e.logger.Debug().Msg("incremental change feed truncated, falling back to manifest diff")
		return false
	}

	mappings, err := e.index.ListMappings()
	if err != nil {
		return false
	}
	mappingByID := make(map[string]types.LocalMapping, len(mappings))
	for _, m := range mappings {
		mappingByID[m.NoteID] = m
	}
	localHashes, err := e.scanLocalFiles(ctx)
	if err != nil {
		return false
	}

	for _, change := range feed.Changes {
		if change.Operation == "delete" {
			m, ok := mappingByID[change.NoteID]
			if !ok {
				continue
			}
			if err := e.applyRemoteDelete(ctx, m); err != nil {
				e.logger.Error().Err(err).Str("note_id", change.NoteID).Msg("incremental delete failed")
			}
			continue
		}
		if change.Note == nil {
			continue
		}
		if err := e.applyDownload(ctx, token, *change.Note, mappingByID, localHashes); err != nil {
			e.logger.Error().Err(err).Str("note_id", change.NoteID).Msg("incremental update failed")
		}
	}

	e.logger.Debug().Int("changes", len(feed.Changes)).Msg("applied incremental change feed")
	return true
}

// scanLocalFiles walks the workspace and returns the content hash of
// every non-ignored markdown file, keyed by its workspace-relative path.
func (e *Engine) scanLocalFiles(ctx context.Context) (map[string]string, error) {
	entries, err := e.fs.ReadDirRecursive(ctx, "")
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		if filepathExt(entry.Path) != noteExt {
			continue
		}
		if e.filter.ShouldIgnore(entry.Path) {
			continue
		}
		data, err := e.fs.ReadFile(ctx, entry.Path)
		if err != nil {
			e.logger.Warn().Err(err).Str("path", entry.Path).Msg("read local file failed, skipping")
			continue
		}
		hashes[entry.Path] = crypto.HashContent(string(data))
	}
	return hashes, nil
}

func filepathExt(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

// applyDownload reconciles one server note against the local mapping (if
// any) using the three-way write plan.
func (e *Engine) applyDownload(ctx context.Context, token string, note types.Note, mappingByID map[string]types.LocalMapping, localHashes map[string]string) error {
	m, hasMapping := mappingByID[note.ID]

	if note.IsDeleted {
		if hasMapping {
			return e.applyRemoteDelete(ctx, m)
		}
		return nil
	}

	if !hasMapping {
		return e.createLocalFromNote(ctx, note, func(path string) bool {
			_, taken := localHashes[path]
			return taken
		})
	}

	local, hasLocal := localHashes[m.Path]
	action := decidePlan(local, note.ContentHash, m.ContentHashLastSynced)

	switch action {
	case planNoOp:
		m.Version = note.Version
		m.ContentHashLastSynced = note.ContentHash
		m.UpdatedAt = note.UpdatedAt
		if err := e.index.PutMapping(m); err != nil {
			return err
		}
		return e.index.PutNote(note)

	case planAcceptServer:
		_, content, err := e.crypto.DecryptNote(note)
		if err != nil {
			return fmt.Errorf("decrypt note %s: %w", note.ID, err)
		}
		if err := e.fs.WriteFile(ctx, m.Path, []byte(content)); err != nil {
			return fmt.Errorf("write %s: %w", m.Path, err)
		}
		m.Version = note.Version
		m.ContentHashLastSynced = note.ContentHash
		m.UpdatedAt = note.UpdatedAt
		if err := e.index.PutMapping(m); err != nil {
			return err
		}
		if err := e.index.PutNote(note); err != nil {
			return err
		}
		e.emit(events.SyncRemoteUpdate, m.Path)
		return nil

	case planLocalAhead:
		// The upload pass will push local's content; nothing to do here.
		_ = hasLocal
		return nil

	case planConflict:
		return e.resolveConflict(ctx, token, note, m)

	default:
		return fmt.Errorf("reconciler: unhandled plan action %d", action)
	}
}

// createLocalFromNote materializes a brand-new server note as a local
// file, choosing a filename that doesn't collide with an existing
// mapped path.
func (e *Engine) createLocalFromNote(ctx context.Context, note types.Note, pathTaken func(string) bool) error {
	title, content, err := e.crypto.DecryptNote(note)
	if err != nil {
		return fmt.Errorf("decrypt note %s: %w", note.ID, err)
	}
	path := uniquePath(filenameFromTitle(title), note.ID, pathTaken)

	if err := e.fs.WriteFile(ctx, path, []byte(content)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	m := types.LocalMapping{
		Path:                  path,
		NoteID:                note.ID,
		Version:               note.Version,
		ContentHashLastSynced: note.ContentHash,
		UpdatedAt:             note.UpdatedAt,
	}
	if err := e.index.PutMapping(m); err != nil {
		return err
	}
	if err := e.index.PutNote(note); err != nil {
		return err
	}
	e.emit(events.SyncRemoteUpdate, path)
	return nil
}

// resolveConflict attempts the three-way merge for a note the write
// plan flagged as genuinely conflicting.
func (e *Engine) resolveConflict(ctx context.Context, token string, remoteNote types.Note, m types.LocalMapping) error {
	localBytes, err := e.fs.ReadFile(ctx, m.Path)
	if err != nil {
		return fmt.Errorf("read local %s: %w", m.Path, err)
	}
	localPlaintext := string(localBytes)

	_, remotePlaintext, err := e.crypto.DecryptNote(remoteNote)
	if err != nil {
		return fmt.Errorf("decrypt remote note %s: %w", remoteNote.ID, err)
	}

	basePlaintext := localPlaintext
	if cached, found, err := e.index.GetNote(remoteNote.ID); err == nil && found {
		if _, base, err := e.crypto.DecryptNote(cached); err == nil {
			basePlaintext = base
		}
	}

	result := e.resolve.Resolve(basePlaintext, localPlaintext, remotePlaintext, remoteNote)

	switch result.Outcome {
	case conflict.AutoMerged:
		if err := e.fs.WriteFile(ctx, m.Path, []byte(result.Content)); err != nil {
			return fmt.Errorf("write merged %s: %w", m.Path, err)
		}
		enc, err := e.crypto.EncryptNote(titleFromPath(m.Path), result.Content)
		if err != nil {
			return fmt.Errorf("encrypt merged note: %w", err)
		}
		updated, err := e.api.UpdateNote(ctx, token, remoteNote.ID, remoteapi.UpdateNoteRequest{
			ExpectedVersion:  remoteNote.Version,
			EncryptedContent: enc.Blob,
			EncryptionAlgo:   types.EncryptionAlgoAESGCMEmbedded,
			Nonce:            types.EmbeddedNonceMarker,
			ContentHash:      enc.ContentHash,
			DeviceID:         e.getDeviceID(),
		})
		if err != nil {
			return fmt.Errorf("push merged note: %w", err)
		}
		m.Version = updated.Version
		m.ContentHashLastSynced = updated.ContentHash
		m.UpdatedAt = updated.UpdatedAt
		if err := e.index.PutMapping(m); err != nil {
			return err
		}
		if err := e.index.PutNote(updated); err != nil {
			return err
		}
		metrics.ConflictsTotal.WithLabelValues(string(conflict.AutoMerged)).Inc()
		e.emit(events.ConflictResolved, m.Path)
		return nil

	case conflict.NeedsUserDecision:
		metrics.ConflictsTotal.WithLabelValues(string(conflict.NeedsUserDecision)).Inc()
		e.emit(events.ConflictAdded, map[string]any{
			"path":    m.Path,
			"note_id": remoteNote.ID,
		})
		return nil

	default:
		return fmt.Errorf("reconciler: unhandled conflict outcome %q", result.Outcome)
	}
}

// resolveConflictByID handles a conflict the batch-diff response
// flagged without also including the note in ToDownload; the server's
// current note (and, critically, its current version) must be fetched
// before it can be resolved -- the locally cached copy is whatever was
// last synced, not what's authoritative now.
func (e *Engine) resolveConflictByID(ctx context.Context, token, noteID string, m types.LocalMapping) error {
	note, err := e.api.GetNote(ctx, token, noteID)
	if err != nil {
		return fmt.Errorf("fetch server note %s: %w", noteID, err)
	}
	return e.resolveConflict(ctx, token, note, m)
}

func (e *Engine) applyRemoteDelete(ctx context.Context, m types.LocalMapping) error {
	if err := e.fs.Trash(ctx, m.Path); err != nil {
		return fmt.Errorf("trash %s: %w", m.Path, err)
	}
	if err := e.index.DeleteMapping(m.Path); err != nil {
		return err
	}
	if err := e.index.DeleteNote(m.NoteID); err != nil {
		return err
	}
	e.emit(events.SyncRemoteUpdate, m.Path)
	return nil
}

// uploadExisting pushes the current local content of an already-mapped
// note, retrying once against a refetched/merged base on a 409.
func (e *Engine) uploadExisting(ctx context.Context, token string, m types.LocalMapping) error {
	data, err := e.fs.ReadFile(ctx, m.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", m.Path, err)
	}
	content := string(data)

	enc, err := e.crypto.EncryptNote(titleFromPath(m.Path), content)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", m.Path, err)
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
		if errors.Is(err, types.ErrVersionConflict) {
			return e.retryUploadAfterConflict(ctx, token, m)
		}
		return fmt.Errorf("update note %s: %w", m.NoteID, err)
	}

	m.Version = updated.Version
	m.ContentHashLastSynced = updated.ContentHash
	m.UpdatedAt = updated.UpdatedAt
	if err := e.index.PutMapping(m); err != nil {
		return err
	}
	return e.index.PutNote(updated)
}

// retryUploadAfterConflict handles a 409 from UpdateNote by fetching the
// server's current note -- with its current version, the one the retried
// update must quote as expected_version -- and routing through the same
// three-way merge path a batch-diff-reported conflict takes.
func (e *Engine) retryUploadAfterConflict(ctx context.Context, token string, m types.LocalMapping) error {
	server, err := e.api.GetNote(ctx, token, m.NoteID)
	if err != nil {
		return fmt.Errorf("%w: fetch server note %s: %v", types.ErrVersionConflict, m.NoteID, err)
	}
	return e.resolveConflict(ctx, token, server, m)
}

func (e *Engine) uploadCreate(ctx context.Context, token, workspaceID, path string) error {
	data, err := e.fs.ReadFile(ctx, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)

	enc, err := e.crypto.EncryptNote(titleFromPath(path), content)
	if err != nil {
		return fmt.Errorf("encrypt %s: %w", path, err)
	}

	note, err := e.api.CreateNote(ctx, token, remoteapi.CreateNoteRequest{
		WorkspaceID:      workspaceID,
		Type:             types.NoteTypeFile,
		EncryptedContent: enc.Blob,
		EncryptionAlgo:   types.EncryptionAlgoAESGCMEmbedded,
		Nonce:            types.EmbeddedNonceMarker,
		ContentHash:      enc.ContentHash,
		DeviceID:         e.getDeviceID(),
	})
	if err != nil {
		return fmt.Errorf("create note for %s: %w", path, err)
	}

	m := types.LocalMapping{
		Path:                  path,
		NoteID:                note.ID,
		Version:               note.Version,
		ContentHashLastSynced: note.ContentHash,
		UpdatedAt:             note.UpdatedAt,
	}
	if err := e.index.PutMapping(m); err != nil {
		return err
	}
	return e.index.PutNote(note)
}

func (e *Engine) uploadDelete(ctx context.Context, token string, m types.LocalMapping) error {
	if err := e.api.DeleteNote(ctx, token, m.NoteID); err != nil {
		return fmt.Errorf("delete note %s: %w", m.NoteID, err)
	}
	if err := e.index.DeleteMapping(m.Path); err != nil {
		return err
	}
	return e.index.DeleteNote(m.NoteID)
}
