package models

import (
	"fmt"
	"strings"
)

// Mode is the processing intent of a batch.
type Mode int

const (
	// ModeFullOCR converts whole documents to markdown.
	ModeFullOCR Mode = iota
	// ModeNotesExtraction extracts the "Notes" section of technical drawings.
	ModeNotesExtraction
)

// String returns the canonical name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFullOCR:
		return "ocr"
	case ModeNotesExtraction:
		return "notes"
	default:
		return "unknown"
	}
}

// DisplayName returns a human readable label.
func (m Mode) DisplayName() string {
	switch m {
	case ModeFullOCR:
		return "Full OCR"
	case ModeNotesExtraction:
		return "Notes Extraction"
	default:
		return "Unknown"
	}
}

// ParseMode parses a user supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ocr", "full", "full-ocr", "fullocr":
		return ModeFullOCR, nil
	case "notes", "notes-extraction", "extract":
		return ModeNotesExtraction, nil
	default:
		return ModeFullOCR, fmt.Errorf("unknown mode %q (expected \"ocr\" or \"notes\")", s)
	}
}

// ViewMode selects how a single record is displayed.
type ViewMode string

const (
	ViewText    ViewMode = "text"
	ViewPreview ViewMode = "preview"
	ViewImage   ViewMode = "image"
)

// DefaultViewMode returns the initial view for records of the given mode.
func (m Mode) DefaultViewMode() ViewMode {
	if m == ModeNotesExtraction {
		return ViewText
	}
	return ViewPreview
}

// ParseViewMode parses a view mode name.
func ParseViewMode(s string) (ViewMode, error) {
	switch v := ViewMode(strings.ToLower(strings.TrimSpace(s))); v {
	case ViewText, ViewPreview, ViewImage:
		return v, nil
	default:
		return "", fmt.Errorf("unknown view %q (expected text, preview or image)", s)
	}
}
