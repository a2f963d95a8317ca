package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkleaf/notesync/pkg/config"
	"github.com/inkleaf/notesync/pkg/crypto"
	"github.com/inkleaf/notesync/pkg/events"
	"github.com/inkleaf/notesync/pkg/fsys"
	"github.com/inkleaf/notesync/pkg/ignore"
	"github.com/inkleaf/notesync/pkg/reconciler"
	"github.com/inkleaf/notesync/pkg/remoteapi"
	"github.com/inkleaf/notesync/pkg/storage"
	"github.com/inkleaf/notesync/pkg/types"
	"github.com/inkleaf/notesync/pkg/uploadqueue"
)

func staticToken(context.Context) (string, error) { return "token", nil }

type fakeSource struct {
	mu          sync.Mutex
	startCalls  int
	stopCalls   int
	pauseCalls  int
	resumeCalls int
	startErr    error
	events      chan types.FileChangeEvent
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: make(chan types.FileChangeEvent, 16)}
}

func (f *fakeSource) Start(context.Context, func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls++
	return f.startErr
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeSource) Pause() {
	f.mu.Lock()
	f.pauseCalls++
	f.mu.Unlock()
}

func (f *fakeSource) Resume() {
	f.mu.Lock()
	f.resumeCalls++
	f.mu.Unlock()
}

func (f *fakeSource) Events() <-chan types.FileChangeEvent {
	return f.events
}

func (f *fakeSource) counts() (start, stop, pause, resume int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls, f.stopCalls, f.pauseCalls, f.resumeCalls
}

// fakeReconcilerAPI satisfies reconciler.API with no-op responses --
// Orchestrator tests care about lifecycle/unlock/device wiring, not the
// reconcile cycle's own behavior, which pkg/reconciler already covers.
type fakeReconcilerAPI struct{}

func (fakeReconcilerAPI) FetchManifest(context.Context, string, string) (remoteapi.Manifest, error) {
	return remoteapi.Manifest{}, nil
}

func (fakeReconcilerAPI) FetchChanges(context.Context, string, time.Time) (remoteapi.ChangeFeed, error) {
	return remoteapi.ChangeFeed{}, nil
}

func (fakeReconcilerAPI) BatchDiff(context.Context, string, remoteapi.BatchDiffRequest) (types.BatchDiffResult, error) {
	return types.BatchDiffResult{}, nil
}

func (fakeReconcilerAPI) CreateNote(context.Context, string, remoteapi.CreateNoteRequest) (types.Note, error) {
	return types.Note{}, nil
}

func (fakeReconcilerAPI) UpdateNote(context.Context, string, string, remoteapi.UpdateNoteRequest) (types.Note, error) {
	return types.Note{}, nil
}

func (fakeReconcilerAPI) DeleteNote(context.Context, string, string) error {
	return nil
}

func (fakeReconcilerAPI) GetNote(context.Context, string, string) (types.Note, error) {
	return types.Note{}, nil
}

type fakeAPI struct {
	mu            sync.Mutex
	registerCalls int
	registerFunc  func(ctx context.Context, token, name string) (remoteapi.Device, error)
	fetchKeysFunc func(ctx context.Context, token string) (types.KeyMaterial, error)
}

func (f *fakeAPI) RegisterDevice(ctx context.Context, token, name string) (remoteapi.Device, error) {
	f.mu.Lock()
	f.registerCalls++
	f.mu.Unlock()
	if f.registerFunc != nil {
		return f.registerFunc(ctx, token, name)
	}
	return remoteapi.Device{ID: "dev-1"}, nil
}

func (f *fakeAPI) FetchKeys(ctx context.Context, token string) (types.KeyMaterial, error) {
	if f.fetchKeysFunc != nil {
		return f.fetchKeysFunc(ctx, token)
	}
	return types.KeyMaterial{}, nil
}

func (f *fakeAPI) registerCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registerCalls
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEmitter) Emit(name string, _ any) {
	f.mu.Lock()
	f.events = append(f.events, name)
	f.mu.Unlock()
}

func (f *fakeEmitter) has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == name {
			return true
		}
	}
	return false
}

type testRig struct {
	orch     *Orchestrator
	source   *fakeSource
	api      *fakeAPI
	fs       *fsys.Fake
	index    storage.Index
	core     *crypto.Core
	cfgStore *config.Store
	emitter  *fakeEmitter
}

// newTestRig wires a fully in-memory Orchestrator: a real reconciler
// Engine over a real BoltDB index and fake filesystem, a fake change
// source, and a fake API for the device/key endpoints Orchestrator
// drives directly. unlocked controls whether crypto starts already
// unlocked (as it would after a fresh setup) or locked (as after a
// process restart).
func newTestRig(t *testing.T, unlocked bool) *testRig {
	t.Helper()

	idx, err := storage.NewBoltDB(t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	core := crypto.New()
	if unlocked {
		_, err := core.Setup("correct horse battery staple")
		require.NoError(t, err)
	}

	fake := fsys.NewFake()
	source := newFakeSource()
	api := &fakeAPI{}
	emitter := &fakeEmitter{}
	cfgStore := config.NewStore(t.TempDir(), "")

	eng := reconciler.New(reconciler.Config{
		Index:   idx,
		Crypto:  core,
		API:     fakeReconcilerAPI{},
		FS:      fake,
		Filter:  ignore.NewDefault(),
		Emitter: emitter,
		Token:   staticToken,
	})

	orch := New(Config{
		Engine:        eng,
		Source:        source,
		Queue:         uploadqueue.New(nil),
		Crypto:        core,
		Index:         idx,
		FS:            fake,
		API:           api,
		ConfigStore:   cfgStore,
		Emitter:       emitter,
		Token:         staticToken,
		DeviceName:    "test-device",
		DriftInterval: 50 * time.Millisecond,
	})

	return &testRig{
		orch:     orch,
		source:   source,
		api:      api,
		fs:       fake,
		index:    idx,
		core:     core,
		cfgStore: cfgStore,
		emitter:  emitter,
	}
}

func TestStartWithLockedEncryptionAndNoCachedPasswordAborts(t *testing.T) {
	rig := newTestRig(t, false)

	err := rig.orch.Start(context.Background())
	require.ErrorIs(t, err, types.ErrNotUnlocked)
	require.True(t, rig.emitter.has(string(events.EncryptionRequired)))

	start, _, _, _ := rig.source.counts()
	require.Zero(t, start)
}

func TestStartUnlocksWithCachedPasswordAndRunsInitialReconcile(t *testing.T) {
	rig := newTestRig(t, false)

	setupCore := crypto.New()
	result, err := setupCore.Setup("hunter2")
	require.NoError(t, err)
	raw, err := json.Marshal(result.KeyMaterial)
	require.NoError(t, err)
	require.NoError(t, rig.index.PutMeta(metaKeyMaterial, string(raw)))

	rig.orch.Passwords().Set("hunter2")

	require.NoError(t, rig.orch.Start(context.Background()))
	t.Cleanup(func() { rig.orch.Stop() })

	require.False(t, rig.core.Locked())
	require.True(t, rig.emitter.has(string(events.SyncComplete)))

	start, _, pause, resume := rig.source.counts()
	require.Equal(t, 1, start)
	require.Equal(t, 1, pause)
	require.Equal(t, 1, resume)
}

func TestStartWrongCachedPasswordFails(t *testing.T) {
	rig := newTestRig(t, false)

	setupCore := crypto.New()
	result, err := setupCore.Setup("hunter2")
	require.NoError(t, err)
	raw, err := json.Marshal(result.KeyMaterial)
	require.NoError(t, err)
	require.NoError(t, rig.index.PutMeta(metaKeyMaterial, string(raw)))

	rig.orch.Passwords().Set("wrong-password")

	err = rig.orch.Start(context.Background())
	require.Error(t, err)
	require.True(t, rig.core.Locked())
}

func TestStartRegistersDeviceOnFirstRunAndPersistsID(t *testing.T) {
	rig := newTestRig(t, true)
	rig.api.registerFunc = func(_ context.Context, _, name string) (remoteapi.Device, error) {
		require.Equal(t, "test-device", name)
		return remoteapi.Device{ID: "dev-42"}, nil
	}

	require.NoError(t, rig.orch.Start(context.Background()))
	t.Cleanup(func() { rig.orch.Stop() })

	require.Equal(t, 1, rig.api.registerCallCount())

	cfg, err := rig.cfgStore.Load()
	require.NoError(t, err)
	require.Equal(t, "dev-42", cfg.DeviceID)
}

func TestStartSkipsDeviceRegistrationWhenAlreadyPersisted(t *testing.T) {
	rig := newTestRig(t, true)

	cfg, err := rig.cfgStore.Load()
	require.NoError(t, err)
	cfg.DeviceID = "dev-existing"
	require.NoError(t, rig.cfgStore.Save(cfg))

	require.NoError(t, rig.orch.Start(context.Background()))
	t.Cleanup(func() { rig.orch.Stop() })

	require.Zero(t, rig.api.registerCallCount())
}

func TestStartTwiceReturnsAlreadyRunningError(t *testing.T) {
	rig := newTestRig(t, true)

	require.NoError(t, rig.orch.Start(context.Background()))
	t.Cleanup(func() { rig.orch.Stop() })

	require.Error(t, rig.orch.Start(context.Background()))
}

func TestLinkAddsWorkspaceLinkIdempotently(t *testing.T) {
	rig := newTestRig(t, true)

	require.NoError(t, rig.orch.Link("/w", "ws1"))
	require.NoError(t, rig.orch.Link("/w", "ws1"))

	cfg, err := rig.cfgStore.Load()
	require.NoError(t, err)
	require.Len(t, cfg.WorkspaceLinks, 1)
}

func TestUnlinkRemovesWorkspaceLink(t *testing.T) {
	rig := newTestRig(t, true)

	require.NoError(t, rig.orch.Link("/w", "ws1"))
	require.NoError(t, rig.orch.Unlink("/w"))

	cfg, err := rig.cfgStore.Load()
	require.NoError(t, err)
	require.Empty(t, cfg.WorkspaceLinks)
}

func TestSetCurrentWorkspacePersistsSelection(t *testing.T) {
	rig := newTestRig(t, true)

	require.NoError(t, rig.orch.SetCurrentWorkspace("ws9"))

	cfg, err := rig.cfgStore.Load()
	require.NoError(t, err)
	require.Equal(t, "ws9", cfg.CurrentWorkspaceID)
	require.Equal(t, "ws9", rig.orch.currentWorkspaceID())
}

func TestScanForDriftEnqueuesFilesWhoseHashChanged(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	rig.fs.Seed("Note.md", []byte("original"))
	require.NoError(t, rig.index.PutMapping(types.LocalMapping{
		Path:                  "Note.md",
		NoteID:                "note-1",
		Version:               1,
		ContentHashLastSynced: crypto.HashContent("original"),
	}))
	require.NoError(t, rig.fs.WriteFile(ctx, "Note.md", []byte("changed")))

	rig.orch.scanForDrift(ctx)

	pending := rig.orch.queue.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, "Note.md", pending[0].Event.Path)
	require.Equal(t, types.ChangeModify, pending[0].Event.Type)
}

func TestScanForDriftSkipsUnchangedFiles(t *testing.T) {
	rig := newTestRig(t, true)
	ctx := context.Background()

	rig.fs.Seed("Note.md", []byte("same"))
	require.NoError(t, rig.index.PutMapping(types.LocalMapping{
		Path:                  "Note.md",
		NoteID:                "note-1",
		Version:               1,
		ContentHashLastSynced: crypto.HashContent("same"),
	}))

	rig.orch.scanForDrift(ctx)

	require.Empty(t, rig.orch.queue.Pending())
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	rig := newTestRig(t, true)
	require.NoError(t, rig.orch.Stop())
}
