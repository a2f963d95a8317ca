package fsys

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Fake is an in-memory FS for deterministic tests. Create one with
// NewFake; the zero value's maps are nil, so writing to it panics.
type Fake struct {
	mu      sync.Mutex
	files   map[string][]byte
	modTime map[string]time.Time
	trashed map[string][]byte
}

func NewFake() *Fake {
	return &Fake{
		files:   make(map[string][]byte),
		modTime: make(map[string]time.Time),
		trashed: make(map[string][]byte),
	}
}

func (f *Fake) ReadFile(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil, &PathError{Op: "read", Path: path, Err: ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (f *Fake) WriteFile(_ context.Context, path string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.files[path] = cp
	f.modTime[path] = time.Now()
	return nil
}

func (f *Fake) Exists(_ context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path]
	return ok, nil
}

func (f *Fake) Trash(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	if !ok {
		return nil
	}
	f.trashed[path] = data
	delete(f.files, path)
	delete(f.modTime, path)
	return nil
}

func (f *Fake) ReadDirRecursive(_ context.Context, root string) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entries []Entry
	for path, data := range f.files {
		entries = append(entries, Entry{
			Path:    path,
			Size:    int64(len(data)),
			ModTime: f.modTime[path],
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Seed inserts a file directly, storing data without copying it --
// useful for constructing "this is what's already on disk" fixtures.
func (f *Fake) Seed(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = data
	f.modTime[path] = time.Now()
}

// Trashed reports whether path was moved to trash.
func (f *Fake) Trashed(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.trashed[path]
	return ok
}

// PathError mirrors os.PathError's shape without importing os in the
// fake, keeping it dependency-free.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string { return e.Op + " " + e.Path + ": " + e.Err.Error() }
func (e *PathError) Unwrap() error { return e.Err }

type fakeError string

func (e fakeError) Error() string { return string(e) }

// ErrNotExist is returned by Fake.ReadFile for a missing path.
const ErrNotExist = fakeError("file does not exist")
