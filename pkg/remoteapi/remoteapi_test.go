package remoteapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkleaf/notesync/pkg/types"
)

func TestLoginUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "user@example.com", body["email"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"user":          map[string]string{"id": "u1", "email": "user@example.com"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Login(t.Context(), "user@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "access-1", result.AccessToken)
	require.Equal(t, "u1", result.User.ID)
}

func TestLoginAcceptsBarePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-2",
			"refresh_token": "refresh-2",
			"user":          map[string]string{"id": "u2"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Login(t.Context(), "a@b.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "access-2", result.AccessToken)
}

func TestUpdateNoteConflictMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"version mismatch"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.UpdateNote(t.Context(), "token", "note-1", UpdateNoteRequest{ExpectedVersion: 1})
	require.ErrorIs(t, err, types.ErrVersionConflict)
}

func TestCreateNoteSendsAuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(noteWire{ID: "n1", Version: 1})
	}))
	defer srv.Close()

	c := New(srv.URL)
	note, err := c.CreateNote(t.Context(), "my-token", CreateNoteRequest{WorkspaceID: "w1", Type: types.NoteTypeFile})
	require.NoError(t, err)
	require.Equal(t, "Bearer my-token", gotAuth)
	require.Equal(t, "n1", note.ID)
}

func TestBatchDiffRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body batchDiffRequestWire
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "w1", body.WorkspaceID)
		require.Len(t, body.Known, 1)

		json.NewEncoder(w).Encode(batchDiffResponseWire{
			ToUpload: []string{"note-a"},
			ToDelete: []string{"note-b"},
			Conflicts: []conflictInfoWire{
				{NoteID: "note-c", LocalVersion: 2, ServerVersion: 3},
			},
			SyncTime: time.Now(),
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.BatchDiff(t.Context(), "token", BatchDiffRequest{
		WorkspaceID: "w1",
		Known:       []BatchDiffKnownNote{{ID: "note-a", Hash: "h", Version: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"note-a"}, result.ToUpload)
	require.Equal(t, []string{"note-b"}, result.ToDelete)
	require.Len(t, result.Conflicts, 1)
	require.Equal(t, "note-c", result.Conflicts[0].NoteID)
}

func TestFetchManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "w1", r.URL.Query().Get("workspace_id"))
		json.NewEncoder(w).Encode(manifestWire{
			Notes: []manifestEntryWire{{ID: "n1", ContentHash: "h1", Version: 1}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	manifest, err := c.FetchManifest(t.Context(), "token", "w1")
	require.NoError(t, err)
	require.Len(t, manifest.Notes, 1)
	require.Equal(t, "n1", manifest.Notes[0].ID)
}

func TestServerErrorWraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.GetNote(t.Context(), "token", "note-1")
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.Status)
}
