package results

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babara6666/PDF-OCR-batch/internal/models"
)

func f64(v float64) *float64 { return &v }

func rec(name string, ok bool, secs *float64) models.ResultRecord {
	r := models.ResultRecord{Filename: name, Success: ok, ProcessingTime: secs}
	if ok {
		r.MarkdownContent = "# " + name
	} else {
		r.Error = "boom"
	}
	return r
}

func response(records ...models.ResultRecord) *models.BatchResponse {
	ok := 0
	for _, r := range records {
		if r.Success {
			ok++
		}
	}
	return &models.BatchResponse{Results: records, Total: len(records), Succeeded: ok}
}

func TestAggregateProcessingTime(t *testing.T) {
	s := NewStore()
	assert.Equal(t, 0.0, s.AggregateProcessingTime())

	s.Replace(response(
		rec("a.pdf", true, f64(1.2)),
		rec("b.pdf", false, nil),
		rec("c.pdf", true, f64(3.3)),
	), models.ModeFullOCR)

	assert.InDelta(t, 4.5, s.AggregateProcessingTime(), 1e-9)
}

func TestSucceededAndFailedKeepIndexes(t *testing.T) {
	s := NewStore()
	s.Replace(response(
		rec("dup.pdf", false, nil),
		rec("dup.pdf", true, nil),
		rec("x.png", true, nil),
	), models.ModeFullOCR)

	ok := s.Succeeded()
	require.Len(t, ok, 2)
	assert.Equal(t, 1, ok[0].Index)
	assert.Equal(t, 2, ok[1].Index)

	failed := s.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, 0, failed[0].Index)
	assert.Equal(t, "boom", failed[0].Record.Error)
}

func TestExportAvailability(t *testing.T) {
	tests := []struct {
		name       string
		mode       models.Mode
		records    []models.ResultRecord
		wantBulk   bool
		wantSingle bool
	}{
		{"none succeeded", models.ModeFullOCR, []models.ResultRecord{rec("a", false, nil)}, false, false},
		{"one succeeded", models.ModeFullOCR, []models.ResultRecord{rec("a", true, nil), rec("b", false, nil)}, false, true},
		{"two succeeded", models.ModeFullOCR, []models.ResultRecord{rec("a", true, nil), rec("b", true, nil)}, true, false},
		{"notes never bulk", models.ModeNotesExtraction, []models.ResultRecord{rec("a", true, nil), rec("b", true, nil)}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.Replace(response(tt.records...), tt.mode)
			assert.Equal(t, tt.wantBulk, s.BulkExportAvailable())
			assert.Equal(t, tt.wantSingle, s.SingleExportAvailable())
		})
	}
}

func TestToggleExpanded(t *testing.T) {
	s := NewStore()
	s.Replace(response(rec("a", true, nil), rec("b", true, nil)), models.ModeFullOCR)
	assert.Equal(t, -1, s.Expanded())

	idx, err := s.ToggleExpanded(0)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, _ = s.ToggleExpanded(1)
	assert.Equal(t, 1, idx, "selecting another record collapses the prior one")

	idx, _ = s.ToggleExpanded(1)
	assert.Equal(t, -1, idx, "selecting the expanded record collapses it")

	_, err = s.ToggleExpanded(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestViewModes(t *testing.T) {
	s := NewStore()
	withCrop := models.ResultRecord{Filename: "a.pdf", Success: true, NotesText: "n", CropImageB64: "iVBORw0KGgo="}
	withoutCrop := models.ResultRecord{Filename: "b.pdf", Success: true, NotesText: "n"}
	s.Replace(response(withCrop, withoutCrop), models.ModeNotesExtraction)

	assert.Equal(t, models.ViewText, s.ViewMode(0))
	assert.Equal(t, models.ViewText, s.ViewMode(1))

	require.NoError(t, s.SetViewMode(0, models.ViewImage))
	assert.Equal(t, models.ViewImage, s.ViewMode(0))
	assert.Equal(t, models.ViewText, s.ViewMode(1), "view modes are per record")

	assert.ErrorIs(t, s.SetViewMode(1, models.ViewImage), ErrNoCropImage)
	assert.ErrorIs(t, s.SetViewMode(9, models.ViewText), ErrIndexOutOfRange)

	s.Replace(response(rec("c", true, nil)), models.ModeFullOCR)
	assert.Equal(t, models.ViewPreview, s.ViewMode(0), "new batch resets view state")
}

func TestReplaceIsWholesale(t *testing.T) {
	s := NewStore()
	first := response(rec("a", true, nil), rec("b", true, nil))
	s.Replace(first, models.ModeFullOCR)
	s.ToggleExpanded(1)
	gen := s.Generation()

	s.Replace(response(rec("c", false, nil)), models.ModeFullOCR)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, -1, s.Expanded())
	assert.Greater(t, s.Generation(), gen)

	// Mutating the caller's response does not leak into the store
	second := response(rec("d", true, nil))
	s.Replace(second, models.ModeFullOCR)
	second.Results[0].Filename = "mutated"
	r, ok := s.Record(0)
	require.True(t, ok)
	assert.Equal(t, "d", r.Filename)

	s.Clear()
	assert.True(t, s.Empty())
	assert.Equal(t, 0, s.Len())
	assert.Nil(t, s.Succeeded())
}

func TestExportSet(t *testing.T) {
	s := NewStore()
	s.Replace(response(rec("a", true, nil), rec("b", false, nil), rec("c", true, nil)), models.ModeFullOCR)

	set := s.ExportSet()
	assert.Equal(t, s.Generation(), set.Generation)
	assert.Equal(t, models.ModeFullOCR, set.Mode)
	require.Len(t, set.Succeeded, 2)
	assert.Equal(t, "c", set.Succeeded[1].Filename)
	assert.True(t, set.BulkExportAvailable())
	assert.False(t, s.ReplacedSince(set.Generation))

	s.Replace(response(rec("d", true, nil)), models.ModeFullOCR)
	assert.True(t, s.ReplacedSince(set.Generation))
	assert.Len(t, set.Succeeded, 2, "a taken set is unaffected by later batches")

	s.Clear()
	assert.Empty(t, s.ExportSet().Succeeded)
	assert.False(t, s.ExportSet().BulkExportAvailable())
}

func TestBulkExportAvailable_ConsistentUnderReplace(t *testing.T) {
	s := NewStore()
	// Neither set offers an archive; only a mode from one and a count from
	// the other could.
	oneOCR := response(rec("a", true, nil))
	twoNotes := response(rec("a", true, nil), rec("b", true, nil))
	s.Replace(oneOCR, models.ModeFullOCR)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				s.Replace(twoNotes, models.ModeNotesExtraction)
			} else {
				s.Replace(oneOCR, models.ModeFullOCR)
			}
		}
	}()

	for i := 0; i < 5000; i++ {
		if s.BulkExportAvailable() {
			t.Error("archive offered for a mixed read")
			break
		}
	}
	close(stop)
	wg.Wait()
}
