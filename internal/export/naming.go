package export

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/babara6666/PDF-OCR-batch/internal/constants"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
)

// Kind selects which payload of a record is exported.
type Kind string

const (
	KindMarkdown Kind = "markdown"
	KindNotes    Kind = "notes"
	KindCrop     Kind = "crop"
)

// ParseKind parses a kind name as typed on the command line.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindMarkdown, "md":
		return KindMarkdown, nil
	case KindNotes, "txt":
		return KindNotes, nil
	case KindCrop, "png", "image":
		return KindCrop, nil
	default:
		return "", fmt.Errorf("unknown export kind %q (want markdown, notes or crop)", s)
	}
}

// DefaultKind returns the text export kind for mode.
func DefaultKind(mode models.Mode) Kind {
	if mode == models.ModeNotesExtraction {
		return KindNotes
	}
	return KindMarkdown
}

func (k Kind) suffix() string {
	switch k {
	case KindNotes:
		return constants.NotesSuffix
	case KindCrop:
		return constants.NotesCropSuffix
	default:
		return constants.MarkdownSuffix
	}
}

// OutputName derives the export filename for a record. Only the final
// extension is replaced, so "drawing.v2.pdf" becomes "drawing.v2.md",
// "drawing.v2_notes.txt" or "drawing.v2_notes_crop.png". Directory
// components sent by the server are dropped.
func OutputName(filename string, kind Kind) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if base == "" {
		base = "result"
	}
	return base + kind.suffix()
}

// ArchiveName returns the bulk archive name for t.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("%s_%s.zip", constants.ArchivePrefix, t.Format("20060102_150405"))
}

// uniqueNames resolves collisions between entries that map to the same
// output name ("a.pdf" and "a.png" both become "a.md"). A suffixed name is
// itself checked against every name already handed out.
type uniqueNames map[string]bool

func (u uniqueNames) next(name string) string {
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; u[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", base, n, ext)
	}
	u[candidate] = true
	return candidate
}
