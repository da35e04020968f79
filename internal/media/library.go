package media

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Entry describes one stored video file.
type Entry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Library provides the administrative filesystem maintenance operations over a
// storage layout: enumeration and deletion of stored videos.
type Library struct {
	layout     Layout
	extensions []string
}

// NewLibrary builds a Library over the layout. When extensions is empty the
// default video container set is used.
func NewLibrary(layout Layout, extensions []string) *Library {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Library{layout: layout, extensions: extensions}
}

// List walks the course subtree (or the whole storage root when courseID is
// empty) and returns every file with a recognized video extension. A missing
// directory yields an empty slice. Order is whatever the walk produces;
// callers must not depend on it.
func (l *Library) List(courseID string) ([]Entry, error) {
	root := l.layout.Root()
	if courseID != "" {
		root = l.layout.CourseDir(courseID)
	}

	entries := []Entry{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			// The holding area is working state, not library content.
			if path == l.layout.TempDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !ExtensionRecognized(filepath.Ext(d.Name()), l.extensions) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := l.layout.Rel(path)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			Path:     rel,
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, err
	}
	return entries, nil
}

// Delete removes the raw file at the storage-relative path and its HLS sibling
// directory. Missing targets are not errors, so repeating a delete succeeds.
func (l *Library) Delete(rel string) error {
	abs, err := l.layout.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	hlsDir := l.layout.HLSDir(abs)
	if hlsDir == abs {
		return nil
	}
	return os.RemoveAll(hlsDir)
}
