package reconciler

import (
	"fmt"
	"path/filepath"
	"strings"
)

const noteExt = ".md"

// titleFromPath derives a note's title from its local file path: the
// base name with the markdown extension stripped.
func titleFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, noteExt)
}

// filenameFromTitle derives a candidate local file path from a server
// title. An empty title (a blank new note) falls back to "Untitled".
func filenameFromTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	return sanitizeFilename(title) + noteExt
}

var filenameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
)

func sanitizeFilename(name string) string {
	return filenameReplacer.Replace(name)
}

// uniquePath returns path if it isn't already taken by a mapping for a
// different note, otherwise appends the note's short id to disambiguate
// two notes that would otherwise share a filename.
func uniquePath(path, noteID string, pathTaken func(string) bool) string {
	if !pathTaken(path) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	suffix := noteID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("%s (%s)%s", stem, suffix, ext)
}
