package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchResponseDecodeNotesRecord(t *testing.T) {
	body := `{"results":[{"success":true,"filename":"a.pdf","notes_text":"1. Steel","crop_image_b64":"iVBORw0KGgo=","orientation":"landscape","crop_bbox":[10,20,30,40],"processing_time":1.5}],"total":1,"succeeded":1}`

	var resp BatchResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.NoError(t, resp.Validate(1))

	rec := resp.Results[0]
	assert.Equal(t, "1. Steel", rec.TextPayload(ModeNotesExtraction))
	assert.Empty(t, rec.TextPayload(ModeFullOCR))
	assert.True(t, rec.HasCropImage())
	assert.Equal(t, []int{10, 20, 30, 40}, rec.CropBBox)
	assert.InDelta(t, 1.5, rec.ProcessingSeconds(), 1e-9)
	assert.Nil(t, rec.FileSize)

	png, err := rec.CropImagePNG()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, png)
}

func TestBatchResponseValidate(t *testing.T) {
	ok := ResultRecord{Filename: "a.pdf", Success: true}
	bad := ResultRecord{Filename: "b.pdf", Error: "boom"}

	tests := []struct {
		name      string
		resp      *BatchResponse
		submitted int
		wantErr   bool
	}{
		{"consistent", &BatchResponse{Results: []ResultRecord{ok, bad}, Total: 2, Succeeded: 1}, 2, false},
		{"total mismatch", &BatchResponse{Results: []ResultRecord{ok}, Total: 2, Succeeded: 1}, 1, true},
		{"dropped record", &BatchResponse{Results: []ResultRecord{ok}, Total: 1, Succeeded: 1}, 2, true},
		{"succeeded mismatch", &BatchResponse{Results: []ResultRecord{ok, bad}, Total: 2, Succeeded: 2}, 2, true},
		{"nil", nil, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resp.Validate(tt.submitted)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrMalformedBatch), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Notes")
	require.NoError(t, err)
	assert.Equal(t, ModeNotesExtraction, m)

	m, err = ParseMode("full-ocr")
	require.NoError(t, err)
	assert.Equal(t, ModeFullOCR, m)

	_, err = ParseMode("translate")
	assert.Error(t, err)

	assert.Equal(t, ViewPreview, ModeFullOCR.DefaultViewMode())
	assert.Equal(t, ViewText, ModeNotesExtraction.DefaultViewMode())
}
