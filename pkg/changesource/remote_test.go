package changesource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/inkleaf/notesync/pkg/types"
)

func TestLinearBackOffGrowsByAttemptCount(t *testing.T) {
	b := &linearBackOff{interval: time.Second}
	require.Equal(t, time.Second, b.NextBackOff())
	require.Equal(t, 2*time.Second, b.NextBackOff())
	require.Equal(t, 3*time.Second, b.NextBackOff())
	b.Reset()
	require.Equal(t, time.Second, b.NextBackOff())
}

func TestRemoteTranslatesNoteUpdateFrame(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, Frame{
			Type:      FrameNoteUpdate,
			Timestamp: time.Now(),
			Payload:   []byte(`{"note_id":"n1","content_hash":"h1","version":3}`),
		})

		// keep the connection open long enough for the client to read
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	tokenFunc := func(ctx context.Context) (string, error) { return "test-token", nil }

	r := NewRemote(wsURL, tokenFunc)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Start(ctx, nil)
	defer r.Stop()

	select {
	case ev := <-r.Events():
		require.Equal(t, types.ChangeModify, ev.Type)
		require.Equal(t, "n1", ev.Path)
		require.Equal(t, "h1", ev.ContentHash)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for translated event")
	}

	require.Equal(t, "test-token", gotToken)
}

func TestRemoteRespondsToPing(t *testing.T) {
	pongReceived := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, Frame{Type: FramePing, Timestamp: time.Now()})

		var f Frame
		if err := wsjson.Read(ctx, conn, &f); err == nil && f.Type == FramePong {
			pongReceived <- struct{}{}
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	tokenFunc := func(ctx context.Context) (string, error) { return "tok", nil }

	r := NewRemote(wsURL, tokenFunc)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx, nil)
	defer r.Stop()

	select {
	case <-pongReceived:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for pong reply")
	}
}
