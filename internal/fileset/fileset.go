// Package fileset maintains the ordered, deduplicated set of documents staged
// for the next batch.
package fileset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/babara6666/PDF-OCR-batch/internal/constants"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
)

// AddResult reports what happened to the candidates of one Add call.
type AddResult struct {
	Added      int
	Rejected   int // Disallowed type
	Duplicates int // Same (name, size) as a staged file or an earlier candidate
}

// Manager is the staged file set. Entries keep arrival order and no two
// entries share a (Name, Size) key.
//
// Manager is not safe for concurrent use; state.Session serializes access.
type Manager struct {
	files []models.SelectedFile
	keys  map[models.FileKey]struct{}
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{keys: make(map[models.FileKey]struct{})}
}

// Add filters candidates against the type allowlist, drops duplicates and
// appends the rest in arrival order.
func (m *Manager) Add(candidates ...models.SelectedFile) AddResult {
	var res AddResult
	for _, c := range candidates {
		if !Allowed(c) {
			res.Rejected++
			continue
		}
		key := c.Key()
		if _, dup := m.keys[key]; dup {
			res.Duplicates++
			continue
		}
		m.keys[key] = struct{}{}
		m.files = append(m.files, c)
		res.Added++
	}
	return res
}

// Remove deletes the entry at index and compacts the sequence.
// Out-of-range indexes are a no-op and return false.
func (m *Manager) Remove(index int) bool {
	if index < 0 || index >= len(m.files) {
		return false
	}
	delete(m.keys, m.files[index].Key())
	m.files = append(m.files[:index], m.files[index+1:]...)
	return true
}

// Clear empties the set.
func (m *Manager) Clear() {
	m.files = nil
	m.keys = make(map[models.FileKey]struct{})
}

// Len returns the number of staged files.
func (m *Manager) Len() int {
	return len(m.files)
}

// Snapshot returns a copy of the staged files in order.
func (m *Manager) Snapshot() []models.SelectedFile {
	out := make([]models.SelectedFile, len(m.files))
	copy(out, m.files)
	return out
}

// TotalBytes returns the combined size of all staged files.
func (m *Manager) TotalBytes() int64 {
	var total int64
	for _, f := range m.files {
		total += f.Size
	}
	return total
}

// Allowed reports whether the file passes the type allowlist, by extension
// or by MIME hint, case-insensitively.
func Allowed(f models.SelectedFile) bool {
	ext := f.Extension()
	for _, a := range constants.AllowedExtensions {
		if ext == a {
			return true
		}
	}
	hint := strings.ToLower(strings.TrimSpace(f.MIMEHint))
	if i := strings.IndexByte(hint, ';'); i >= 0 {
		hint = strings.TrimSpace(hint[:i])
	}
	for _, a := range constants.AllowedMIMETypes {
		if hint == a {
			return true
		}
	}
	return false
}

// FromPath builds a SelectedFile for a local file. The MIME hint is the
// declared type of the extension; content is sniffed only for files
// without one.
func FromPath(path string) (models.SelectedFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.SelectedFile{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return models.SelectedFile{}, fmt.Errorf("%s is a directory", path)
	}

	var hint string
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext != "" {
		hint = constants.ExtensionMIMETypes[ext]
	} else if mt, err := mimetype.DetectFile(path); err == nil {
		hint = mt.String()
	}

	return models.SelectedFile{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEHint: hint,
		Path:     path,
	}, nil
}

// ExpandPatterns expands glob patterns into absolute file paths, keeping
// first-seen order and dropping repeated paths. Plain arguments are passed
// through without existence checks; FromPath reports missing files.
func ExpandPatterns(patterns []string) ([]string, error) {
	var expanded []string
	seen := make(map[string]bool)

	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", p, err)
		}
		if !seen[abs] {
			seen[abs] = true
			expanded = append(expanded, abs)
		}
		return nil
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[]") {
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		for _, match := range matches {
			if info, err := os.Stat(match); err == nil && info.IsDir() {
				continue
			}
			if err := add(match); err != nil {
				return nil, err
			}
		}
	}

	return expanded, nil
}

// Load expands patterns and stats every match. Paths that cannot be read
// are returned in skipped with their error instead of failing the call.
func Load(patterns []string) (files []models.SelectedFile, skipped map[string]error, err error) {
	paths, err := ExpandPatterns(patterns)
	if err != nil {
		return nil, nil, err
	}
	skipped = make(map[string]error)
	for _, p := range paths {
		f, err := FromPath(p)
		if err != nil {
			skipped[p] = err
			continue
		}
		files = append(files, f)
	}
	return files, skipped, nil
}
