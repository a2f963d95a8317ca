package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inkleaf/notesync/pkg/changesource"
	"github.com/inkleaf/notesync/pkg/config"
	"github.com/inkleaf/notesync/pkg/crypto"
	"github.com/inkleaf/notesync/pkg/events"
	"github.com/inkleaf/notesync/pkg/fsys"
	"github.com/inkleaf/notesync/pkg/ignore"
	"github.com/inkleaf/notesync/pkg/orchestrator"
	"github.com/inkleaf/notesync/pkg/reconciler"
	"github.com/inkleaf/notesync/pkg/remoteapi"
	"github.com/inkleaf/notesync/pkg/storage"
	"github.com/inkleaf/notesync/pkg/tokens"
	"github.com/inkleaf/notesync/pkg/uploadqueue"
)

// app bundles the full dependency graph a notesyncd subcommand needs.
// Every command that touches the local index or the server builds one
// via newApp and defers app.Close().
type app struct {
	configDir string
	localPath string

	cfgStore *config.Store
	index    *storage.BoltDB
	crypto   *crypto.Core
	bus      *events.Bus
	api      *remoteapi.Client
	tokStore *tokens.Store
	refresh  *tokens.Refresher
	filter   *ignore.Filter
	fs       fsys.FS
	source   *changesource.Source
	queue    *uploadqueue.Queue
	engine   *reconciler.Engine
	orch     *orchestrator.Orchestrator
}

// newApp opens the local index under configDir and wires every component
// the orchestrator needs, using cfg.ServerURL (falling back to
// serverFlag if the config has none yet, e.g. before the first login).
func newApp(configDir, localPath, serverFlag string) (*app, error) {
	cfgStore := config.NewStore(configDir, "")
	cfg, err := cfgStore.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = serverFlag
	}
	if serverURL == "" {
		return nil, fmt.Errorf("no server configured; pass --server or run 'notesyncd login' first")
	}

	index, err := storage.NewBoltDB(configDir, cfg.LocalDBName)
	if err != nil {
		return nil, fmt.Errorf("open local index: %w", err)
	}

	bus := events.NewBus()
	bus.Start()

	api := remoteapi.New(serverURL)
	tokStore := tokens.NewStore(index)
	if err := tokStore.Load(); err != nil {
		index.Close()
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	refresh := tokens.NewRefresher(tokStore, api.RefreshTokens, bus)

	filter := ignore.New(cfg.IgnorePatterns, cfg.IgnoredPaths)
	if len(cfg.IgnorePatterns) == 0 && len(cfg.IgnoredPaths) == 0 {
		filter = ignore.NewDefault()
	}
	localFS := fsys.NewOS(localPath, "")

	wsURL := toWebSocketURL(serverURL)
	src := changesource.New(localPath, localFS, filter, wsURL, refresh.EnsureValidToken)

	queue := uploadqueue.New(bus)
	core := crypto.New()

	engine := reconciler.New(reconciler.Config{
		Index:    index,
		Crypto:   core,
		API:      api,
		FS:       localFS,
		Filter:   filter,
		Emitter:  bus,
		Token:    refresh.EnsureValidToken,
		DeviceID: cfg.DeviceID,
	})

	orch := orchestrator.New(orchestrator.Config{
		Engine:      engine,
		Source:      src,
		Queue:       queue,
		Crypto:      core,
		Index:       index,
		FS:          localFS,
		API:         api,
		ConfigStore: cfgStore,
		Emitter:     bus,
		Token:       refresh.EnsureValidToken,
		DeviceName:  deviceName(),
	})

	return &app{
		configDir: configDir,
		localPath: localPath,
		cfgStore:  cfgStore,
		index:     index,
		crypto:    core,
		bus:       bus,
		api:       api,
		tokStore:  tokStore,
		refresh:   refresh,
		filter:    filter,
		fs:        localFS,
		source:    src,
		queue:     queue,
		engine:    engine,
		orch:      orch,
	}, nil
}

func (a *app) Close() error {
	a.bus.Stop()
	return a.index.Close()
}

func toWebSocketURL(serverURL string) string {
	switch {
	case strings.HasPrefix(serverURL, "https://"):
		return "wss://" + strings.TrimPrefix(serverURL, "https://") + "/ws"
	case strings.HasPrefix(serverURL, "http://"):
		return "ws://" + strings.TrimPrefix(serverURL, "http://") + "/ws"
	default:
		return serverURL + "/ws"
	}
}

// requireToken fails fast with a friendly message instead of letting an
// unauthenticated request bubble up as an opaque 401.
func requireToken(ctx context.Context, a *app) (string, error) {
	if !a.tokStore.Authenticated() {
		return "", fmt.Errorf("not logged in; run 'notesyncd login' first")
	}
	return a.refresh.EnsureValidToken(ctx)
}

const unlockTimeout = 30 * time.Second
