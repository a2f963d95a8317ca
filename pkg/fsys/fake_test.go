package fsys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeWriteReadRoundTrip(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	require.NoError(t, f.WriteFile(ctx, "/w/a.md", []byte("hello")))
	data, err := f.ReadFile(ctx, "/w/a.md")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	ok, err := f.Exists(ctx, "/w/a.md")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFakeTrashRemovesFile(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/w/a.md", []byte("hello")))

	require.NoError(t, f.Trash(ctx, "/w/a.md"))

	ok, err := f.Exists(ctx, "/w/a.md")
	require.NoError(t, err)
	require.False(t, ok)
	require.True(t, f.Trashed("/w/a.md"))
}

func TestFakeReadDirRecursiveSortedByPath(t *testing.T) {
	f := NewFake()
	ctx := context.Background()
	require.NoError(t, f.WriteFile(ctx, "/w/b.md", []byte("b")))
	require.NoError(t, f.WriteFile(ctx, "/w/a.md", []byte("a")))

	entries, err := f.ReadDirRecursive(ctx, "/w")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "/w/a.md", entries[0].Path)
	require.Equal(t, "/w/b.md", entries[1].Path)
}
