package changesource

import (
	"context"

	"github.com/inkleaf/notesync/pkg/fsys"
	"github.com/inkleaf/notesync/pkg/ignore"
	"github.com/inkleaf/notesync/pkg/types"
)

// Source merges Local and Remote into the single FileChangeEvent feed the
// reconciliation engine subscribes to. pause()/resume() apply to both
// producers at once, since the engine's self-edit suppression must cover
// writes triggered by either side.
type Source struct {
	local  *Local
	remote *Remote
	out    chan types.FileChangeEvent
	stopCh chan struct{}
}

// New wires a local filesystem watcher and a remote WebSocket stream into
// one Source. tokenFunc supplies the bearer token for each WebSocket
// connect attempt.
func New(root string, fs fsys.FS, filter *ignore.Filter, wsURL string, tokenFunc func(ctx context.Context) (string, error)) *Source {
	return &Source{
		local:  NewLocal(root, fs, filter),
		remote: NewRemote(wsURL, tokenFunc),
		out:    make(chan types.FileChangeEvent, 128),
		stopCh: make(chan struct{}),
	}
}

// Events returns the unified change-event channel.
func (s *Source) Events() <-chan types.FileChangeEvent {
	return s.out
}

// Frames returns the remote producer's raw frame channel (conflict, ack,
// sync_response) for components that need more than file-change events.
func (s *Source) Frames() <-chan Frame {
	return s.remote.Frames()
}

// Start starts both producers and begins fanning their events into the
// unified channel.
func (s *Source) Start(ctx context.Context, reconnectFailed func()) error {
	if err := s.local.Start(); err != nil {
		return err
	}
	s.remote.Start(ctx, reconnectFailed)

	go s.fanIn(s.local.Events())
	go s.fanIn(s.remote.Events())
	return nil
}

func (s *Source) fanIn(in <-chan types.FileChangeEvent) {
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.out <- ev:
			case <-s.stopCh:
				return
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop tears down both producers.
func (s *Source) Stop() error {
	close(s.stopCh)
	s.remote.Stop()
	return s.local.Stop()
}

// Pause suppresses delivery from both producers. Scoped: every Pause
// must be matched by a Resume, including on error paths.
func (s *Source) Pause() {
	s.local.Pause()
	s.remote.Pause()
}

// Resume reverses one Pause call.
func (s *Source) Resume() {
	s.local.Resume()
	s.remote.Resume()
}
