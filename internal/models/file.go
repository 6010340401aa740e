// Package models defines data structures shared by the batch client.
package models

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SelectedFile represents a local document staged for submission.
// Identity is (Name, Size); two files with the same name and byte size are
// treated as the same staged file regardless of where they live on disk.
type SelectedFile struct {
	Name     string // Base filename sent in the multipart part
	Size     int64  // Size in bytes
	MIMEHint string // Detected or declared MIME type, may be empty
	Path     string // Local path the bytes are read from at submission time

	// Open overrides Path when set. Used for in-memory sources (tests, stdin).
	Open func() (io.ReadCloser, error) `json:"-"`
}

// FileKey is the deduplication key for a SelectedFile.
type FileKey struct {
	Name string
	Size int64
}

// Key returns the identity key of the file.
func (f SelectedFile) Key() FileKey {
	return FileKey{Name: f.Name, Size: f.Size}
}

// Extension returns the lower-cased final extension without the dot.
func (f SelectedFile) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
}

// Reader opens the file contents for reading.
func (f SelectedFile) Reader() (io.ReadCloser, error) {
	if f.Open != nil {
		return f.Open()
	}
	if f.Path == "" {
		return nil, fmt.Errorf("file %q has no source", f.Name)
	}
	return os.Open(f.Path)
}

// String implements fmt.Stringer for log output.
func (f SelectedFile) String() string {
	return fmt.Sprintf("%s (%.1f KiB)", f.Name, float64(f.Size)/1024)
}
