package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkleaf/notesync/pkg/types"
)

func newTestDB(t *testing.T) *BoltDB {
	t.Helper()
	db, err := NewBoltDB(t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMappingRoundTrip(t *testing.T) {
	db := newTestDB(t)
	m := types.LocalMapping{Path: "a.md", NoteID: "note-1", Version: 1, ContentHashLastSynced: "h1", UpdatedAt: time.Now()}
	require.NoError(t, db.PutMapping(m))

	got, ok, err := db.GetMappingByPath("a.md")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "note-1", got.NoteID)

	got2, ok, err := db.GetMappingByNoteID("note-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a.md", got2.Path)
}

func TestMoveMappingPreservesNoteIDIndex(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.PutMapping(types.LocalMapping{Path: "old.md", NoteID: "note-1", Version: 2, ContentHashLastSynced: "h1"}))

	require.NoError(t, db.MoveMapping("old.md", "new.md"))

	_, ok, err := db.GetMappingByPath("old.md")
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := db.GetMappingByNoteID("note-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new.md", got.Path)
	require.Equal(t, 2, got.Version)
	require.Equal(t, "h1", got.ContentHashLastSynced)
}

func TestMoveMappingMissingSource(t *testing.T) {
	db := newTestDB(t)
	err := db.MoveMapping("missing.md", "new.md")
	require.ErrorIs(t, err, types.ErrMappingNotFound)
}

func TestDeleteMappingRemovesSecondaryIndex(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.PutMapping(types.LocalMapping{Path: "a.md", NoteID: "note-1"}))
	require.NoError(t, db.DeleteMapping("a.md"))

	_, ok, err := db.GetMappingByNoteID("note-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListMappings(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.PutMapping(types.LocalMapping{Path: "a.md", NoteID: "n1"}))
	require.NoError(t, db.PutMapping(types.LocalMapping{Path: "b.md", NoteID: "n2"}))

	all, err := db.ListMappings()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestClearMappings(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.PutMapping(types.LocalMapping{Path: "a.md", NoteID: "n1"}))
	require.NoError(t, db.ClearMappings())

	all, err := db.ListMappings()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestNoteCacheRoundTrip(t *testing.T) {
	db := newTestDB(t)
	note := types.Note{ID: "note-1", Version: 3, ContentHash: "h"}
	require.NoError(t, db.PutNote(note))

	got, ok, err := db.GetNote("note-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, got.Version)

	require.NoError(t, db.DeleteNote("note-1"))
	_, ok, err = db.GetNote("note-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMetaRoundTrip(t *testing.T) {
	db := newTestDB(t)
	_, ok, err := db.GetMeta("last_sync_time")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, db.PutMeta("last_sync_time", "2026-08-01T00:00:00Z"))
	v, ok, err := db.GetMeta("last_sync_time")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2026-08-01T00:00:00Z", v)
}

func TestTokensRoundTrip(t *testing.T) {
	db := newTestDB(t)
	_, _, _, ok, err := db.GetTokens()
	require.NoError(t, err)
	require.False(t, ok)

	exp := time.Now().Add(time.Hour)
	require.NoError(t, db.PutTokens("access-1", "refresh-1", exp))

	access, refresh, expiresAt, ok, err := db.GetTokens()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "access-1", access)
	require.Equal(t, "refresh-1", refresh)
	require.WithinDuration(t, exp, expiresAt, time.Second)

	require.NoError(t, db.ClearTokens())
	_, _, _, ok, err = db.GetTokens()
	require.NoError(t, err)
	require.False(t, ok)
}
