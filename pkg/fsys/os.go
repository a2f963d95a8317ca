package fsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OS is the real, disk-backed FS implementation. TrashDir receives
// moved-aside files on Trash; NewOS defaults it to root/.trash.
type OS struct {
	Root     string
	TrashDir string
}

// NewOS returns an OS-backed FS rooted at root. If trashDir is empty, a
// ".trash" directory under root is used.
func NewOS(root, trashDir string) *OS {
	if trashDir == "" {
		trashDir = filepath.Join(root, ".trash")
	}
	return &OS{Root: root, TrashDir: trashDir}
}

func (f *OS) abs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Join(f.Root, path), nil
}

func (f *OS) ReadFile(_ context.Context, path string) ([]byte, error) {
	p, err := f.abs(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func (f *OS) WriteFile(_ context.Context, path string, data []byte) error {
	p, err := f.abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return os.WriteFile(p, data, 0o600)
}

func (f *OS) Exists(_ context.Context, path string) (bool, error) {
	p, err := f.abs(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Trash moves path into TrashDir as <unix-nanos>-<base name>; the
// directory part of the path is not kept. It never errors on a missing
// source file.
func (f *OS) Trash(_ context.Context, path string) error {
	p, err := f.abs(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(f.Root, p)
	if err != nil {
		rel = filepath.Base(p)
	}
	if _, statErr := os.Stat(p); os.IsNotExist(statErr) {
		return nil
	}

	dest := filepath.Join(f.TrashDir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), filepath.Base(rel)))
	if err := os.MkdirAll(f.TrashDir, 0o700); err != nil {
		return fmt.Errorf("create trash dir: %w", err)
	}
	if err := os.Rename(p, dest); err != nil {
		return fmt.Errorf("move to trash: %w", err)
	}
	return nil
}

// ReadDirRecursive walks root (relative to f.Root unless absolute) and
// returns every regular file, skipping the trash directory itself.
func (f *OS) ReadDirRecursive(_ context.Context, root string) ([]Entry, error) {
	base, err := f.abs(root)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	err = filepath.Walk(base, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			if p != base && strings.HasPrefix(p, f.TrashDir) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(f.Root, p)
		if err != nil {
			rel = p
		}
		entries = append(entries, Entry{
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   false,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", base, err)
	}
	return entries, nil
}
