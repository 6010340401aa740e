// Package sinks provides the destinations used by the export service: local
// directories, object storage and the system clipboard.
package sinks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/babara6666/PDF-OCR-batch/internal/diskspace"
)

// DirSink writes exports into a local directory.
type DirSink struct {
	Dir string
}

// NewDirSink creates a sink rooted at dir. The directory is created on the
// first save.
func NewDirSink(dir string) *DirSink {
	if dir == "" {
		dir = "."
	}
	return &DirSink{Dir: dir}
}

// Save writes data to Dir/name through a temp file and rename, so a reader
// never sees a partial file.
func (s *DirSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	dest := filepath.Join(s.Dir, name)
	if err := diskspace.CheckAvailableSpace(dest, int64(len(data)), diskspace.DefaultSafetyMargin); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", name, err)
	}
	return dest, nil
}

// cleanName rejects names that would escape the destination.
func cleanName(name string) (string, error) {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", fmt.Errorf("invalid export name %q", name)
	}
	return base, nil
}
