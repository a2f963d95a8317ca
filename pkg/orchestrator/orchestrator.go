package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inkleaf/notesync/pkg/config"
	"github.com/inkleaf/notesync/pkg/crypto"
	"github.com/inkleaf/notesync/pkg/events"
	"github.com/inkleaf/notesync/pkg/fsys"
	"github.com/inkleaf/notesync/pkg/log"
	"github.com/inkleaf/notesync/pkg/reconciler"
	"github.com/inkleaf/notesync/pkg/remoteapi"
	"github.com/inkleaf/notesync/pkg/storage"
	"github.com/inkleaf/notesync/pkg/types"
	"github.com/inkleaf/notesync/pkg/uploadqueue"
)

const (
	defaultDriftInterval = 60 * time.Second
	metaKeyMaterial      = "key_material"
)

// API is the subset of remoteapi.Client the orchestrator drives directly
// (the reconciler drives the rest through its own narrower interface).
type API interface {
	RegisterDevice(ctx context.Context, token, name string) (remoteapi.Device, error)
	FetchKeys(ctx context.Context, token string) (types.KeyMaterial, error)
}

// Source is the subset of *changesource.Source the orchestrator drives,
// narrowed the same way reconciler.API is, so tests can exercise startup
// and shutdown ordering without a real filesystem watcher or websocket.
type Source interface {
	Start(ctx context.Context, reconnectFailed func()) error
	Stop() error
	Pause()
	Resume()
	Events() <-chan types.FileChangeEvent
}

// Emitter is the local decoupling interface used throughout this engine:
// the orchestrator only needs to hand a name and payload to whatever bus
// it was given.
type Emitter interface {
	Emit(name string, payload any)
}

// Config bundles everything Orchestrator wires together. Engine, Source
// and Queue are expected to already be constructed (e.g. by cmd/notesyncd
// at startup); Orchestrator owns their lifetimes from here on.
type Config struct {
	Engine      *reconciler.Engine
	Source      Source
	Queue       *uploadqueue.Queue
	Crypto      *crypto.Core
	Index       storage.Index
	FS          fsys.FS
	API         API
	ConfigStore *config.Store
	Emitter     Emitter
	Token       reconciler.TokenFunc
	Passwords   *PasswordCache
	DeviceName  string

	// DriftInterval overrides the 60-second default, for tests.
	DriftInterval time.Duration
}

// Orchestrator owns the lifetime of one linked workspace's sync pipeline:
// it gates startup on an unlocked encryption core and a valid token,
// registers the local device on first run, then runs the reconciliation
// engine, the live change feed, the upload queue worker, and a periodic
// drift scan until Stop is called.
type Orchestrator struct {
	engine  *reconciler.Engine
	source  Source
	queue   *uploadqueue.Queue
	crypto  *crypto.Core
	index   storage.Index
	fs      fsys.FS
	api     API
	cfg     *config.Store
	emitter Emitter
	token   reconciler.TokenFunc
	pw      *PasswordCache

	deviceName    string
	driftInterval time.Duration

	wsMu        sync.RWMutex
	workspaceID string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger zerolog.Logger
}

// New builds an Orchestrator from its dependencies. The current workspace
// ID is read from the config store's CurrentWorkspaceID at Start time if
// not set here via SetCurrentWorkspace beforehand.
func New(cfg Config) *Orchestrator {
	driftInterval := cfg.DriftInterval
	if driftInterval <= 0 {
		driftInterval = defaultDriftInterval
	}
	pw := cfg.Passwords
	if pw == nil {
		pw = &PasswordCache{}
	}
	return &Orchestrator{
		engine:        cfg.Engine,
		source:        cfg.Source,
		queue:         cfg.Queue,
		crypto:        cfg.Crypto,
		index:         cfg.Index,
		fs:            cfg.FS,
		api:           cfg.API,
		cfg:           cfg.ConfigStore,
		emitter:       cfg.Emitter,
		token:         cfg.Token,
		pw:            pw,
		deviceName:    cfg.DeviceName,
		driftInterval: driftInterval,
		logger:        log.WithComponent("orchestrator"),
	}
}

func (o *Orchestrator) emit(name events.Name, payload any) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(string(name), payload)
}

// Passwords exposes the orchestrator's password cache so a login/unlock
// flow elsewhere in the process can populate it before calling Start.
func (o *Orchestrator) Passwords() *PasswordCache {
	return o.pw
}

func (o *Orchestrator) currentWorkspaceID() string {
	o.wsMu.RLock()
	defer o.wsMu.RUnlock()
	return o.workspaceID
}

// SetCurrentWorkspace selects the active workspace, persists the
// selection, and takes effect on the next Start or Reconcile call.
func (o *Orchestrator) SetCurrentWorkspace(workspaceID string) error {
	cfg, err := o.cfg.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.CurrentWorkspaceID = workspaceID
	if err := o.cfg.Save(cfg); err != nil {
		return err
	}
	o.wsMu.Lock()
	o.workspaceID = workspaceID
	o.wsMu.Unlock()
	return nil
}

// Link records that localPath is tied to remoteWorkspaceID, so future
// starts in that directory resume the same workspace without re-asking.
func (o *Orchestrator) Link(localPath, remoteWorkspaceID string) error {
	cfg, err := o.cfg.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, l := range cfg.WorkspaceLinks {
		if l.LocalPath == localPath && l.RemoteWorkspaceID == remoteWorkspaceID {
			return nil
		}
	}
	cfg.WorkspaceLinks = append(cfg.WorkspaceLinks, types.WorkspaceLink{
		LocalPath:         localPath,
		RemoteWorkspaceID: remoteWorkspaceID,
		LinkedAt:          time.Now().UTC(),
	})
	return o.cfg.Save(cfg)
}

// Unlink removes localPath's workspace link. If it was the current
// selection, the selection is cleared.
func (o *Orchestrator) Unlink(localPath string) error {
	cfg, err := o.cfg.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	kept := cfg.WorkspaceLinks[:0]
	clearSelection := false
	for _, l := range cfg.WorkspaceLinks {
		if l.LocalPath != localPath {
			kept = append(kept, l)
		} else if l.RemoteWorkspaceID == cfg.CurrentWorkspaceID {
			clearSelection = true
		}
	}
	cfg.WorkspaceLinks = kept
	if clearSelection {
		cfg.CurrentWorkspaceID = ""
	}
	if err := o.cfg.Save(cfg); err != nil {
		return err
	}
	if clearSelection {
		o.wsMu.Lock()
		o.workspaceID = ""
		o.wsMu.Unlock()
	}
	return nil
}

// Start brings up the full sync pipeline: it requires a valid token and
// unlocked encryption (attempting restore_from_password if locked),
// registers the device on first run, starts the upload worker and the
// change source, runs one full reconciliation, then launches the
// change-event consumer and the drift scan.
// Start returns without starting the pipeline -- emitting
// events.EncryptionRequired -- if encryption is locked and no password
// is cached.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator: already running")
	}
	o.mu.Unlock()

	if _, err := o.token(ctx); err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}

	if o.crypto.Locked() {
		if err := o.unlock(ctx); err != nil {
			return err
		}
	}

	if err := o.ensureDeviceRegistered(ctx); err != nil {
		return fmt.Errorf("register device: %w", err)
	}

	if o.currentWorkspaceID() == "" {
		cfg, err := o.cfg.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		o.wsMu.Lock()
		o.workspaceID = cfg.CurrentWorkspaceID
		o.wsMu.Unlock()
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.running = true
	o.mu.Unlock()

	o.queue.Start()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.engine.RunUploadWorker(runCtx, o.queue, o.currentWorkspaceID())
	}()

	if err := o.source.Start(runCtx, func() { o.emit(events.ReconnectFailed, nil) }); err != nil {
		cancel()
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		return fmt.Errorf("start change source: %w", err)
	}

	if err := o.syncNow(runCtx); err != nil {
		o.logger.Error().Err(err).Msg("initial reconciliation failed")
	}

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		o.consumeChangeEvents(runCtx)
	}()
	go func() {
		defer o.wg.Done()
		o.runDriftScan(runCtx)
	}()

	return nil
}

// Stop tears down every component Start brought up and waits for their
// goroutines to exit.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	cancel := o.cancel
	o.running = false
	o.mu.Unlock()

	cancel()
	o.wg.Wait()
	o.queue.Stop()
	return o.source.Stop()
}

// Reconcile triggers one on-demand reconciliation cycle, e.g. from a CLI
// "sync" command or a manual refresh action, using the same self-edit
// suppression Start's initial cycle uses.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	return o.syncNow(ctx)
}

// syncNow wraps one reconcile cycle with change-feed suppression, then
// synchronously drains any items the queue accumulated (e.g. from events
// that arrived while the cycle ran) before returning, so a caller that
// waits on this call sees the true settled state, not a still-draining
// queue.
func (o *Orchestrator) syncNow(ctx context.Context) error {
	o.source.Pause()
	defer o.source.Resume()

	if err := o.engine.Reconcile(ctx, o.currentWorkspaceID()); err != nil {
		return err
	}
	o.drainQueue(ctx)
	return nil
}

// drainQueue blocks until the upload queue's pending set is empty or ctx
// is done, assuming RunUploadWorker is already draining Due() in the
// background.
func (o *Orchestrator) drainQueue(ctx context.Context) {
	for len(o.queue.Pending()) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (o *Orchestrator) consumeChangeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-o.source.Events():
			if !ok {
				return
			}
			if err := o.engine.HandleChangeEvent(ctx, ev, o.queue, o.currentWorkspaceID()); err != nil {
				o.logger.Error().Err(err).Str("path", ev.Path).Msg("handle change event failed")
			}
		}
	}
}

// runDriftScan periodically rehashes every locally-mapped file and
// enqueues any whose content no longer matches what was last synced --
// catching edits made while the filesystem watcher was unavailable, or
// any it otherwise missed.
func (o *Orchestrator) runDriftScan(ctx context.Context) {
	ticker := time.NewTicker(o.driftInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.scanForDrift(ctx)
		}
	}
}

func (o *Orchestrator) scanForDrift(ctx context.Context) {
	mappings, err := o.index.ListMappings()
	if err != nil {
		o.logger.Error().Err(err).Msg("drift scan: list mappings failed")
		return
	}
	for _, m := range mappings {
		data, err := o.fs.ReadFile(ctx, m.Path)
		if err != nil {
			// Missing/unreadable; the next full reconcile's orphan
			// cleanup is responsible for deciding this is a delete.
			continue
		}
		hash := crypto.HashContent(string(data))
		if hash == m.ContentHashLastSynced {
			continue
		}
		o.queue.Enqueue(types.FileChangeEvent{
			Type:        types.ChangeModify,
			Path:        m.Path,
			ContentHash: hash,
			Timestamp:   time.Now(),
		})
	}
}

// unlock attempts restore_from_password using the cached in-memory
// password against the workspace's key material. If no password is
// cached, it emits encryption-required and aborts Start entirely -- the
// pipeline never starts with encryption locked.
func (o *Orchestrator) unlock(ctx context.Context) error {
	password, ok := o.pw.Get()
	if !ok {
		o.emit(events.EncryptionRequired, nil)
		return types.ErrNotUnlocked
	}

	token, err := o.token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	km, err := o.loadKeyMaterial(ctx, token)
	if err != nil {
		return fmt.Errorf("load key material: %w", err)
	}
	if err := o.crypto.Unlock(password, km); err != nil {
		return fmt.Errorf("restore from cached password: %w", err)
	}
	return nil
}

// loadKeyMaterial prefers the locally cached wrapped key so a restart
// doesn't need the server, falling back to FetchKeys (and caching the
// result) the first time a device unlocks.
func (o *Orchestrator) loadKeyMaterial(ctx context.Context, token string) (types.KeyMaterial, error) {
	if raw, found, err := o.index.GetMeta(metaKeyMaterial); err == nil && found {
		var km types.KeyMaterial
		if err := json.Unmarshal([]byte(raw), &km); err == nil {
			return km, nil
		}
	}

	km, err := o.api.FetchKeys(ctx, token)
	if err != nil {
		return types.KeyMaterial{}, err
	}
	if raw, err := json.Marshal(km); err == nil {
		_ = o.index.PutMeta(metaKeyMaterial, string(raw))
	}
	return km, nil
}

// ensureDeviceRegistered registers this device with the server on first
// start only; the assigned device_id is persisted in the config store
// and reused on every subsequent start.
func (o *Orchestrator) ensureDeviceRegistered(ctx context.Context) error {
	cfg, err := o.cfg.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DeviceID != "" {
		o.engine.SetDeviceID(cfg.DeviceID)
		return nil
	}

	token, err := o.token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}
	dev, err := o.api.RegisterDevice(ctx, token, o.deviceName)
	if err != nil {
		return err
	}

	cfg.DeviceID = dev.ID
	if err := o.cfg.Save(cfg); err != nil {
		return err
	}
	o.engine.SetDeviceID(dev.ID)
	return nil
}
