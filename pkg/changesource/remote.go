package changesource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/inkleaf/notesync/pkg/log"
	"github.com/inkleaf/notesync/pkg/types"
)

// FrameType enumerates the WebSocket protocol's message kinds.
type FrameType string

const (
	FrameNoteUpdate   FrameType = "note_update"
	FrameNoteDelete   FrameType = "note_delete"
	FrameConflict     FrameType = "conflict"
	FrameAck          FrameType = "ack"
	FramePing         FrameType = "ping"
	FramePong         FrameType = "pong"
	FrameSyncRequest  FrameType = "sync_request"
	FrameSyncResponse FrameType = "sync_response"
)

// Frame is one WebSocket text frame, per spec.md's `{type, timestamp,
// payload?}` wire shape.
type Frame struct {
	Type      FrameType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type notePayload struct {
	NoteID      string `json:"note_id"`
	ContentHash string `json:"content_hash"`
	Version     int    `json:"version"`
}

const (
	pingInterval   = 30 * time.Second
	maxReconnects  = 10
	linearInterval = time.Second
)

// linearBackOff grows linearly (interval × attempt), per spec.md's
// reconnect policy -- distinct from UploadQueue's exponential schedule.
type linearBackOff struct {
	interval time.Duration
	attempt  uint64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.interval * time.Duration(b.attempt)
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// Remote is the persistent WebSocket change-event producer. It
// reconnects with linear backoff, attaches the bearer token on every
// connect attempt, and answers server pings with pongs.
type Remote struct {
	wsURL     string
	tokenFunc func(ctx context.Context) (string, error)
	logger    zerolog.Logger

	events chan types.FileChangeEvent
	frames chan Frame // inbound non-control frames, for callers that want raw access

	mu         sync.Mutex
	conn       *websocket.Conn
	pauseCount int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRemote returns a Remote change source. baseWSURL is the server's ws
// base (e.g. "wss://api.example.com/ws"); tokenFunc supplies the current
// bearer token for the `?token=` query parameter on each connect.
func NewRemote(baseWSURL string, tokenFunc func(ctx context.Context) (string, error)) *Remote {
	return &Remote{
		wsURL:     baseWSURL,
		tokenFunc: tokenFunc,
		logger:    log.WithComponent("changesource.remote"),
		events:    make(chan types.FileChangeEvent, 64),
		frames:    make(chan Frame, 64),
		stopCh:    make(chan struct{}),
	}
}

// Events returns the channel of note_update/note_delete changes
// translated into the unified FileChangeEvent shape.
func (r *Remote) Events() <-chan types.FileChangeEvent {
	return r.events
}

// Frames returns the channel of raw inbound frames (including conflict,
// ack, and sync_response) for callers that need more than the unified
// change-event projection.
func (r *Remote) Frames() <-chan Frame {
	return r.frames
}

// Start connects and runs the receive/reconnect loop until Stop is
// called. It emits to reconnectFailed when the backoff budget of
// maxReconnects attempts is exhausted.
func (r *Remote) Start(ctx context.Context, reconnectFailed func()) {
	r.wg.Add(1)
	go r.run(ctx, reconnectFailed)
}

// Stop closes the connection and ends the run loop.
func (r *Remote) Stop() {
	close(r.stopCh)
	r.mu.Lock()
	if r.conn != nil {
		_ = r.conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// Pause suppresses delivery of translated events without tearing down
// the connection; ping/pong keepalive continues underneath. Calls nest:
// resume must be called once per pause to resume delivery.
func (r *Remote) Pause() {
	r.mu.Lock()
	r.pauseCount++
	r.mu.Unlock()
}

// Resume reverses one Pause call.
func (r *Remote) Resume() {
	r.mu.Lock()
	if r.pauseCount > 0 {
		r.pauseCount--
	}
	r.mu.Unlock()
}

func (r *Remote) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pauseCount > 0
}

func (r *Remote) run(ctx context.Context, reconnectFailed func()) {
	defer r.wg.Done()

	lb := backoff.WithMaxRetries(&linearBackOff{interval: linearInterval}, maxReconnects)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		conn, err := r.connect(ctx)
		if err != nil {
			wait := lb.NextBackOff()
			if wait == backoff.Stop {
				r.logger.Warn().Msg("reconnect attempts exhausted")
				if reconnectFailed != nil {
					reconnectFailed()
				}
				return
			}
			r.logger.Warn().Err(err).Dur("retry_in", wait).Msg("connect failed, backing off")
			select {
			case <-time.After(wait):
				continue
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		lb.Reset()
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()

		r.serve(ctx, conn)

		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (r *Remote) connect(ctx context.Context) (*websocket.Conn, error) {
	token, err := r.tokenFunc(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}

	u, err := url.Parse(r.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve reads frames until the connection errs or the caller stops,
// replying to pings and sending its own ping every pingInterval.
func (r *Remote) serve(ctx context.Context, conn *websocket.Conn) {
	readErrCh := make(chan error, 1)
	go func() {
		for {
			var f Frame
			if err := wsjson.Read(ctx, conn, &f); err != nil {
				readErrCh <- err
				return
			}
			r.handleFrame(ctx, conn, f)
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case err := <-readErrCh:
			r.logger.Warn().Err(err).Msg("websocket read failed")
			return
		case <-ticker.C:
			if err := wsjson.Write(ctx, conn, Frame{Type: FramePing, Timestamp: time.Now()}); err != nil {
				r.logger.Warn().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (r *Remote) handleFrame(ctx context.Context, conn *websocket.Conn, f Frame) {
	switch f.Type {
	case FramePing:
		_ = wsjson.Write(ctx, conn, Frame{Type: FramePong, Timestamp: time.Now()})
	case FramePong:
		// keepalive ack, nothing to do
	case FrameNoteUpdate, FrameNoteDelete:
		r.translate(f)
		r.deliverFrame(f)
	default:
		r.deliverFrame(f)
	}
}

func (r *Remote) translate(f Frame) {
	var p notePayload
	if len(f.Payload) > 0 {
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			r.logger.Warn().Err(err).Str("type", string(f.Type)).Msg("decode frame payload")
			return
		}
	}

	kind := types.ChangeModify
	if f.Type == FrameNoteDelete {
		kind = types.ChangeDelete
	}

	event := types.FileChangeEvent{
		Type:        kind,
		Path:        p.NoteID, // resolved to a local path by the reconciler via LocalIndex
		ContentHash: p.ContentHash,
		Timestamp:   f.Timestamp,
	}

	if r.isPaused() {
		return
	}
	select {
	case r.events <- event:
	case <-r.stopCh:
	}
}

func (r *Remote) deliverFrame(f Frame) {
	select {
	case r.frames <- f:
	case <-r.stopCh:
	default:
		r.logger.Warn().Str("type", string(f.Type)).Msg("frame channel full, dropping")
	}
}
