package changesource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/inkleaf/notesync/pkg/crypto"
	"github.com/inkleaf/notesync/pkg/fsys"
	"github.com/inkleaf/notesync/pkg/ignore"
	"github.com/inkleaf/notesync/pkg/log"
	"github.com/inkleaf/notesync/pkg/types"
)

const (
	debounceWindow   = 1000 * time.Millisecond
	renamePairWindow = 200 * time.Millisecond
)

// Local watches a workspace directory and emits a debounced, coalesced
// types.FileChangeEvent stream: create/modify collapse per path within
// debounceWindow (latest wins), delete is immediate, and a Rename
// followed within renamePairWindow by a Create is paired into a single
// ChangeRename event rather than reported as delete+create. The pairing
// does not compare file content.
type Local struct {
	root   string
	fs     fsys.FS
	filter *ignore.Filter
	logger zerolog.Logger

	watcher *fsnotify.Watcher
	events  chan types.FileChangeEvent

	mu            sync.Mutex
	pauseCount    int
	pendingKind   map[string]types.ChangeEventType
	debounceTimer map[string]*time.Timer
	pendingRename map[string]*time.Timer // old path -> pairing timer

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLocal returns a Local change source rooted at root. fs is used to
// read file content for hashing; filter excludes paths from the stream
// entirely.
func NewLocal(root string, fs fsys.FS, filter *ignore.Filter) *Local {
	return &Local{
		root:          root,
		fs:            fs,
		filter:        filter,
		logger:        log.WithComponent("changesource.local"),
		events:        make(chan types.FileChangeEvent, 64),
		pendingKind:   make(map[string]types.ChangeEventType),
		debounceTimer: make(map[string]*time.Timer),
		pendingRename: make(map[string]*time.Timer),
		stopCh:        make(chan struct{}),
	}
}

// Events returns the channel new change events are delivered on.
func (l *Local) Events() <-chan types.FileChangeEvent {
	return l.events
}

// Start begins watching root and its subdirectories.
func (l *Local) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = watcher

	if err := l.addDirsRecursive(l.root); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", l.root, err)
	}

	l.wg.Add(1)
	go l.loop()
	return nil
}

// Stop closes the underlying watcher and waits for the event loop to
// exit.
func (l *Local) Stop() error {
	close(l.stopCh)
	err := l.watcher.Close()
	l.wg.Wait()
	return err
}

// Pause suppresses emission of new events. Calls nest: resume must be
// called once per pause to resume delivery.
func (l *Local) Pause() {
	l.mu.Lock()
	l.pauseCount++
	l.mu.Unlock()
}

// Resume reverses one Pause call.
func (l *Local) Resume() {
	l.mu.Lock()
	if l.pauseCount > 0 {
		l.pauseCount--
	}
	l.mu.Unlock()
}

func (l *Local) paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pauseCount > 0
}

func (l *Local) addDirsRecursive(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return filepath.SkipDir
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(l.root, p)
		if relErr != nil {
			rel = p
		}
		if rel != "." && l.filter.ShouldIgnore(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := l.watcher.Add(p); err != nil {
			l.logger.Warn().Str("path", p).Err(err).Msg("watch directory")
		}
		return nil
	})
}

func (l *Local) loop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			l.handle(ev)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

func (l *Local) relPath(abs string) string {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		rel = abs
	}
	return filepath.ToSlash(rel)
}

func (l *Local) handle(ev fsnotify.Event) {
	path := l.relPath(ev.Name)
	if l.filter.ShouldIgnore(path) {
		return
	}

	switch {
	case ev.Op&fsnotify.Remove != 0:
		l.handleRemove(path)
	case ev.Op&fsnotify.Rename != 0:
		l.handleRenameFrom(path)
	case ev.Op&fsnotify.Create != 0:
		l.handleCreate(ev.Name, path)
	case ev.Op&fsnotify.Write != 0:
		l.scheduleDebounce(path, types.ChangeModify)
	}
}

func (l *Local) handleRemove(path string) {
	l.mu.Lock()
	if t, ok := l.debounceTimer[path]; ok {
		t.Stop()
		delete(l.debounceTimer, path)
		delete(l.pendingKind, path)
	}
	l.mu.Unlock()
	l.emit(types.FileChangeEvent{Type: types.ChangeDelete, Path: path, Timestamp: time.Now()})
}

func (l *Local) handleRenameFrom(oldPath string) {
	l.mu.Lock()
	timer := time.AfterFunc(renamePairWindow, func() {
		l.mu.Lock()
		_, stillPending := l.pendingRename[oldPath]
		delete(l.pendingRename, oldPath)
		l.mu.Unlock()
		if stillPending {
			l.emit(types.FileChangeEvent{Type: types.ChangeDelete, Path: oldPath, Timestamp: time.Now()})
		}
	})
	l.pendingRename[oldPath] = timer
	l.mu.Unlock()
}

func (l *Local) handleCreate(absPath, path string) {
	info, statErr := os.Stat(absPath)
	if statErr == nil && info.IsDir() {
		if err := l.addDirsRecursive(absPath); err != nil {
			l.logger.Warn().Str("path", absPath).Err(err).Msg("watch new directory")
		}
		return
	}

	l.mu.Lock()
	var oldPath string
	for op, timer := range l.pendingRename {
		timer.Stop()
		delete(l.pendingRename, op)
		oldPath = op
		break
	}
	l.mu.Unlock()

	if oldPath != "" {
		l.emit(types.FileChangeEvent{Type: types.ChangeRename, OldPath: oldPath, Path: path, Timestamp: time.Now()})
		return
	}

	l.scheduleDebounce(path, types.ChangeCreate)
}

// scheduleDebounce coalesces create/modify events per path: the latest
// kind wins, and the timer resets on every call within the window.
func (l *Local) scheduleDebounce(path string, kind types.ChangeEventType) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pendingKind[path] = kind
	if t, ok := l.debounceTimer[path]; ok {
		t.Stop()
	}
	l.debounceTimer[path] = time.AfterFunc(debounceWindow, func() {
		l.fireDebounced(path)
	})
}

func (l *Local) fireDebounced(path string) {
	l.mu.Lock()
	kind, ok := l.pendingKind[path]
	delete(l.pendingKind, path)
	delete(l.debounceTimer, path)
	l.mu.Unlock()
	if !ok {
		return
	}

	content, err := l.fs.ReadFile(context.Background(), path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		l.logger.Warn().Str("path", path).Err(err).Msg("read changed file")
		return
	}

	l.emit(types.FileChangeEvent{
		Type:        kind,
		Path:        path,
		ContentHash: crypto.HashContent(string(content)),
		Timestamp:   time.Now(),
	})
}

func (l *Local) emit(event types.FileChangeEvent) {
	if l.paused() {
		return
	}
	select {
	case l.events <- event:
	case <-l.stopCh:
	}
}
