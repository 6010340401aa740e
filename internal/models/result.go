package models

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ResultRecord is the per-file outcome inside a BatchResponse.
// Optional numeric fields are pointers so an absent value is distinguishable
// from zero.
type ResultRecord struct {
	Filename       string   `json:"filename"`
	Success        bool     `json:"success"`
	Error          string   `json:"error,omitempty"`
	FileSize       *int64   `json:"file_size,omitempty"`
	ProcessingTime *float64 `json:"processing_time,omitempty"` // seconds
	FileType       string   `json:"file_type,omitempty"`

	// Full OCR payload
	MarkdownContent string `json:"markdown_content,omitempty"`

	// Notes extraction payload
	NotesText    string `json:"notes_text,omitempty"`
	CropImageB64 string `json:"crop_image_b64,omitempty"`
	Orientation  string `json:"orientation,omitempty"` // "landscape" or "portrait"
	CropBBox     []int  `json:"crop_bbox,omitempty"`   // x0, y0, x1, y1 in rendered pixels
}

// TextPayload returns the mode-appropriate text content of the record.
func (r ResultRecord) TextPayload(mode Mode) string {
	if mode == ModeNotesExtraction {
		return r.NotesText
	}
	return r.MarkdownContent
}

// HasCropImage reports whether the record carries a crop image.
func (r ResultRecord) HasCropImage() bool {
	return r.CropImageB64 != ""
}

// CropImagePNG decodes the base64 crop image.
func (r ResultRecord) CropImagePNG() ([]byte, error) {
	if r.CropImageB64 == "" {
		return nil, errors.New("record has no crop image")
	}
	data, err := base64.StdEncoding.DecodeString(r.CropImageB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode crop image for %s: %w", r.Filename, err)
	}
	return data, nil
}

// ProcessingSeconds returns the processing time, treating absent as 0.
func (r ResultRecord) ProcessingSeconds() float64 {
	if r.ProcessingTime == nil {
		return 0
	}
	return *r.ProcessingTime
}

// BatchResponse is the backend reply for one batch submission.
type BatchResponse struct {
	Results   []ResultRecord `json:"results"`
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
}

// ErrMalformedBatch is returned by Validate when the response breaks the
// positional contract with the submitted files.
var ErrMalformedBatch = errors.New("malformed batch response")

// Validate checks that the response matches the submission: total equals the
// number of records and of submitted files, and succeeded matches the count
// of successful records.
func (b *BatchResponse) Validate(submitted int) error {
	if b == nil {
		return fmt.Errorf("%w: empty body", ErrMalformedBatch)
	}
	if b.Total != len(b.Results) {
		return fmt.Errorf("%w: total=%d but %d results", ErrMalformedBatch, b.Total, len(b.Results))
	}
	if len(b.Results) != submitted {
		return fmt.Errorf("%w: submitted %d files but got %d results", ErrMalformedBatch, submitted, len(b.Results))
	}
	ok := 0
	for _, r := range b.Results {
		if r.Success {
			ok++
		}
	}
	if ok != b.Succeeded {
		return fmt.Errorf("%w: succeeded=%d but %d successful results", ErrMalformedBatch, b.Succeeded, ok)
	}
	return nil
}

// Failed returns the number of failed records.
func (b *BatchResponse) Failed() int {
	return b.Total - b.Succeeded
}

// HealthStatus is the liveness payload of the backend.
type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Device      string `json:"device"`
}

// Healthy reports whether the backend declared itself healthy.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}
