package remoteapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/inkleaf/notesync/pkg/types"
)

func urlValues(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

// Manifest is the response of GET /sync/manifest.
type Manifest struct {
	Notes    []types.ManifestEntry
	SyncTime time.Time
}

type manifestWire struct {
	Notes    []manifestEntryWire `json:"notes"`
	SyncTime time.Time           `json:"sync_time"`
}

// FetchManifest retrieves the compact per-note projection for a
// workspace, used to diff against the local index without downloading
// ciphertexts.
func (c *Client) FetchManifest(ctx context.Context, token, workspaceID string) (Manifest, error) {
	var w manifestWire
	_, err := c.do(ctx, http.MethodGet, "/sync/manifest", token, urlValues("workspace_id", workspaceID), nil, &w)
	if err != nil {
		return Manifest{}, err
	}
	entries := make([]types.ManifestEntry, len(w.Notes))
	for i, e := range w.Notes {
		entries[i] = e.toEntry()
	}
	return Manifest{Notes: entries, SyncTime: w.SyncTime}, nil
}

// BatchDiffRequest carries a workspace ID and the client-known
// {id, hash, version} triples, sent so the server can compute the sync
// plan without trusting the client's notion of which side is newer.
type BatchDiffRequest struct {
	WorkspaceID string
	Known       []BatchDiffKnownNote
}

// BatchDiffKnownNote is one row of the client's local state sent to
// POST /sync/batch-diff.
type BatchDiffKnownNote struct {
	ID      string
	Hash    string
	Version int
}

type batchDiffKnownWire struct {
	ID      string `json:"id"`
	Hash    string `json:"hash"`
	Version int    `json:"version"`
}

type batchDiffRequestWire struct {
	WorkspaceID string               `json:"workspace_id"`
	Known       []batchDiffKnownWire `json:"known"`
}

type batchDiffResponseWire struct {
	ToDownload []noteWire         `json:"to_download"`
	ToUpload   []string           `json:"to_upload"`
	ToDelete   []string           `json:"to_delete"`
	Conflicts  []conflictInfoWire `json:"conflicts"`
	SyncTime   time.Time          `json:"sync_time"`
}

// BatchDiff asks the server for the sync actions needed to reconcile the
// client's known state with the authoritative one.
func (c *Client) BatchDiff(ctx context.Context, token string, req BatchDiffRequest) (types.BatchDiffResult, error) {
	knownWire := make([]batchDiffKnownWire, len(req.Known))
	for i, k := range req.Known {
		knownWire[i] = batchDiffKnownWire{ID: k.ID, Hash: k.Hash, Version: k.Version}
	}
	body := batchDiffRequestWire{WorkspaceID: req.WorkspaceID, Known: knownWire}

	var w batchDiffResponseWire
	_, err := c.do(ctx, http.MethodPost, "/sync/batch-diff", token, nil, body, &w)
	if err != nil {
		return types.BatchDiffResult{}, err
	}

	result := types.BatchDiffResult{
		ToUpload: w.ToUpload,
		ToDelete: w.ToDelete,
		SyncTime: w.SyncTime,
	}
	result.ToDownload = make([]types.Note, len(w.ToDownload))
	for i, n := range w.ToDownload {
		result.ToDownload[i] = n.toNote()
	}
	result.Conflicts = make([]types.ConflictInfo, len(w.Conflicts))
	for i, conf := range w.Conflicts {
		result.Conflicts[i] = conf.toConflict()
	}
	return result, nil
}

// ChangeFeed is the response of GET /sync/changes. Truncated is set by
// the server when the requested window exceeds what it retains, in
// which case Changes is incomplete and callers must fall back to a full
// manifest diff instead of trusting the feed.
type ChangeFeed struct {
	Changes   []types.ChangeFeedEntry
	SyncTime  time.Time
	Truncated bool
}

type changeFeedWire struct {
	Changes   []changeFeedEntryWire `json:"changes"`
	SyncTime  time.Time             `json:"sync_time"`
	Truncated bool                  `json:"truncated"`
}

// FetchChanges retrieves every note change since the given timestamp, the
// fast path used between full reconciliation cycles when the WebSocket
// has been connected the whole time and only wants to catch up a gap.
func (c *Client) FetchChanges(ctx context.Context, token string, since time.Time) (ChangeFeed, error) {
	var w changeFeedWire
	_, err := c.do(ctx, http.MethodGet, "/sync/changes", token, urlValues("since", since.UTC().Format(time.RFC3339)), nil, &w)
	if err != nil {
		return ChangeFeed{}, err
	}
	changes := make([]types.ChangeFeedEntry, len(w.Changes))
	for i, ch := range w.Changes {
		changes[i] = ch.toEntry()
	}
	return ChangeFeed{Changes: changes, SyncTime: w.SyncTime, Truncated: w.Truncated}, nil
}
