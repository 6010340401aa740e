package fileset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babara6666/PDF-OCR-batch/internal/models"
)

func file(name string, size int64) models.SelectedFile {
	return models.SelectedFile{Name: name, Size: size}
}

func names(files []models.SelectedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}

func TestAdd_DedupByNameAndSize(t *testing.T) {
	m := New()
	res := m.Add(file("a.pdf", 10), file("b.png", 20))
	assert.Equal(t, AddResult{Added: 2}, res)

	res = m.Add(file("a.pdf", 10))
	assert.Equal(t, AddResult{Duplicates: 1}, res)
	assert.Equal(t, 2, m.Len())

	// Same name, different size is a different file
	res = m.Add(file("a.pdf", 11))
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []string{"a.pdf", "b.png", "a.pdf"}, names(m.Snapshot()))
}

func TestAdd_DedupWithinOneCall(t *testing.T) {
	m := New()
	res := m.Add(file("x.jpg", 5), file("x.jpg", 5), file("y.jpg", 5))
	assert.Equal(t, AddResult{Added: 2, Duplicates: 1}, res)
	assert.Equal(t, []string{"x.jpg", "y.jpg"}, names(m.Snapshot()))
}

func TestAdd_Allowlist(t *testing.T) {
	m := New()
	res := m.Add(
		file("scan.PDF", 1),
		file("photo.TIF", 2),
		file("notes.docx", 3),
		file("archive.zip", 4),
		models.SelectedFile{Name: "noext", Size: 5, MIMEHint: "Image/PNG"},
		models.SelectedFile{Name: "blob", Size: 6, MIMEHint: "application/pdf; charset=binary"},
		models.SelectedFile{Name: "readme", Size: 7, MIMEHint: "text/plain"},
	)
	assert.Equal(t, 4, res.Added)
	assert.Equal(t, 3, res.Rejected)
	assert.Equal(t, 0, res.Duplicates)
	assert.Equal(t, []string{"scan.PDF", "photo.TIF", "noext", "blob"}, names(m.Snapshot()))
}

func TestRemove(t *testing.T) {
	m := New()
	m.Add(file("a.pdf", 1), file("b.pdf", 2), file("c.pdf", 3))

	assert.False(t, m.Remove(-1))
	assert.False(t, m.Remove(3))
	assert.Equal(t, 3, m.Len())

	assert.True(t, m.Remove(1))
	assert.Equal(t, []string{"a.pdf", "c.pdf"}, names(m.Snapshot()))

	// A removed file can be staged again
	res := m.Add(file("b.pdf", 2))
	assert.Equal(t, 1, res.Added)
}

func TestClearAndTotals(t *testing.T) {
	m := New()
	m.Add(file("a.pdf", 100), file("b.pdf", 23))
	assert.Equal(t, int64(123), m.TotalBytes())

	snap := m.Snapshot()
	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, int64(0), m.TotalBytes())
	assert.Len(t, snap, 2, "snapshot must not alias the set")

	res := m.Add(file("a.pdf", 100))
	assert.Equal(t, 1, res.Added)
}

func TestFromPath_SniffsMIME(t *testing.T) {
	dir := t.TempDir()
	// Minimal PNG signature with no extension on the filename
	pngPath := filepath.Join(dir, "scan")
	require.NoError(t, os.WriteFile(pngPath, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0600))

	f, err := FromPath(pngPath)
	require.NoError(t, err)
	assert.Equal(t, "scan", f.Name)
	assert.Equal(t, int64(16), f.Size)
	assert.Equal(t, "image/png", f.MIMEHint)
	assert.True(t, Allowed(f))

	_, err = FromPath(dir)
	assert.Error(t, err)
}

func TestFromPath_ExtensionWins(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("%PDF-1.4 not really text"), 0600))
	scan := filepath.Join(dir, "scan.PDF")
	require.NoError(t, os.WriteFile(scan, []byte("plain words"), 0600))

	f, err := FromPath(txt)
	require.NoError(t, err)
	assert.Empty(t, f.MIMEHint, "content is not sniffed when an extension is present")
	assert.False(t, Allowed(f))

	f, err = FromPath(scan)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.MIMEHint)
	assert.True(t, Allowed(f))
}

func TestExpandPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.pdf", "b.pdf", "c.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0700))

	paths, err := ExpandPatterns([]string{
		filepath.Join(dir, "*.pdf"),
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "c.png"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "c.png"),
	}, paths)

	_, err = ExpandPatterns([]string{filepath.Join(dir, "*.gif")})
	assert.Error(t, err)
}

func TestLoad_SkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	require.NoError(t, os.WriteFile(good, []byte("%PDF-1.4"), 0600))
	missing := filepath.Join(dir, "missing.pdf")

	files, skipped, err := Load([]string{good, missing})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "good.pdf", files[0].Name)
	assert.Contains(t, skipped, missing)
}
