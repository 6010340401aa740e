// Package results holds the response of the last batch and the per-record
// view state derived from it.
package results

import (
	"errors"
	"fmt"
	"sync"

	"github.com/babara6666/PDF-OCR-batch/internal/models"
)

// Entry pairs a record with its position in the batch.
type Entry struct {
	Index  int
	Record models.ResultRecord
}

// Errors returned by SetViewMode
var (
	ErrIndexOutOfRange = errors.New("record index out of range")
	ErrNoCropImage     = errors.New("record has no crop image")
)

// Store keeps one BatchResponse at a time. A new response replaces the
// previous one wholesale and resets all per-record view state. Views are
// recomputed on every read.
type Store struct {
	mu         sync.RWMutex
	mode       models.Mode
	response   *models.BatchResponse
	generation uint64

	expanded  int // -1 when nothing is expanded
	viewModes map[int]models.ViewMode
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{expanded: -1, viewModes: make(map[int]models.ViewMode)}
}

// Replace installs resp as the current result set for mode.
func (s *Store) Replace(resp *models.BatchResponse, mode models.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp != nil {
		// Records are never mutated after install
		cp := *resp
		cp.Results = append([]models.ResultRecord(nil), resp.Results...)
		resp = &cp
	}
	s.response = resp
	s.mode = mode
	s.generation++
	s.expanded = -1
	s.viewModes = make(map[int]models.ViewMode)
}

// Clear empties the store.
func (s *Store) Clear() {
	s.Replace(nil, s.Mode())
}

// Empty reports whether no response is held.
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.response == nil
}

// Generation increments on every Replace or Clear. Exports record it via
// ExportSet and check ReplacedSince once they finish.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Mode returns the mode of the held response.
func (s *Store) Mode() models.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Response returns the held response, or nil.
func (s *Store) Response() *models.BatchResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.response
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.response == nil {
		return 0
	}
	return len(s.response.Results)
}

// Records returns all records in submission order.
func (s *Store) Records() []models.ResultRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.response == nil {
		return nil
	}
	return append([]models.ResultRecord(nil), s.response.Results...)
}

// Record returns the record at index.
func (s *Store) Record(index int) (models.ResultRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.response == nil || index < 0 || index >= len(s.response.Results) {
		return models.ResultRecord{}, false
	}
	return s.response.Results[index], true
}

// Succeeded returns the successful records with their batch positions.
func (s *Store) Succeeded() []Entry {
	return s.filter(true)
}

// Failed returns the failed records with their batch positions.
func (s *Store) Failed() []Entry {
	return s.filter(false)
}

func (s *Store) filter(success bool) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.response == nil {
		return nil
	}
	var out []Entry
	for i, r := range s.response.Results {
		if r.Success == success {
			out = append(out, Entry{Index: i, Record: r})
		}
	}
	return out
}

// AggregateProcessingTime sums processing time over all records, counting
// absent values as zero.
func (s *Store) AggregateProcessingTime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.response == nil {
		return 0
	}
	return AggregateProcessingTime(s.response.Results)
}

// AggregateProcessingTime sums ProcessingSeconds over records.
func AggregateProcessingTime(records []models.ResultRecord) float64 {
	var total float64
	for _, r := range records {
		total += r.ProcessingSeconds()
	}
	return total
}

// BulkExportAvailable reports whether the archive download is offered:
// FullOCR mode with more than one successful record.
func (s *Store) BulkExportAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return bulkAvailable(s.mode, s.succeededLocked())
}

// SingleExportAvailable reports whether only the single-file download is
// offered: exactly one successful record.
func (s *Store) SingleExportAvailable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.succeededLocked()) == 1
}

func (s *Store) succeededLocked() []models.ResultRecord {
	if s.response == nil {
		return nil
	}
	var out []models.ResultRecord
	for _, r := range s.response.Results {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

func bulkAvailable(mode models.Mode, succeeded []models.ResultRecord) bool {
	return mode == models.ModeFullOCR && len(succeeded) > 1
}

// ExportSet is the successful records of one generation, read under a
// single lock.
type ExportSet struct {
	Generation uint64
	Mode       models.Mode
	Succeeded  []models.ResultRecord
}

// BulkExportAvailable applies the archive rule to the set.
func (e ExportSet) BulkExportAvailable() bool {
	return bulkAvailable(e.Mode, e.Succeeded)
}

// ExportSet returns the records an export should work from.
func (s *Store) ExportSet() ExportSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ExportSet{Generation: s.generation, Mode: s.mode, Succeeded: s.succeededLocked()}
}

// ReplacedSince reports whether the store has been replaced or cleared
// after generation gen was read.
func (s *Store) ReplacedSince(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation != gen
}

// ToggleExpanded expands the record at index, collapsing any other. Toggling
// the expanded record collapses it. Returns the new expanded index or -1.
func (s *Store) ToggleExpanded(index int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndex(index); err != nil {
		return s.expanded, err
	}
	if s.expanded == index {
		s.expanded = -1
	} else {
		s.expanded = index
	}
	return s.expanded, nil
}

// Expanded returns the expanded record index, or -1.
func (s *Store) Expanded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expanded
}

// SetViewMode sets how the record at index is displayed. The image view is
// only allowed for records carrying a crop image.
func (s *Store) SetViewMode(index int, v models.ViewMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if v == models.ViewImage && !s.response.Results[index].HasCropImage() {
		return fmt.Errorf("%w: %s", ErrNoCropImage, s.response.Results[index].Filename)
	}
	s.viewModes[index] = v
	return nil
}

// ViewMode returns the view for the record at index, defaulting by mode.
func (s *Store) ViewMode(index int) models.ViewMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.viewModes[index]; ok {
		return v
	}
	return s.mode.DefaultViewMode()
}

func (s *Store) checkIndex(index int) error {
	if s.response == nil || index < 0 || index >= len(s.response.Results) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return nil
}
