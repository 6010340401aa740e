// Package state holds the client session: active mode, staged files, upload
// progress, the in-flight guard, the error slot and the result store.
//
// All fields change only through the named actions on Session. Every action
// that touches more than one field does so under a single lock, so no
// observer ever sees a half-applied reset. Changes are published on the
// event bus after the lock is released.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/babara6666/PDF-OCR-batch/internal/events"
	"github.com/babara6666/PDF-OCR-batch/internal/fileset"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
	"github.com/babara6666/PDF-OCR-batch/internal/results"
)

// Guard errors returned by StartUpload. Callers treat both as a no-op.
var (
	ErrNothingToSubmit = errors.New("no files staged")
	ErrBatchInFlight   = errors.New("a batch is already in flight")
)

// ErrStaleBatch is returned when a completion arrives for a batch that a
// mode switch or reset has already discarded.
var ErrStaleBatch = errors.New("batch is no longer current")

// Batch is the snapshot taken when an upload starts.
type Batch struct {
	ID        string
	Mode      models.Mode
	Files     []models.SelectedFile
	StartedAt time.Time
}

// TotalBytes returns the combined size of the batch files.
func (b Batch) TotalBytes() int64 {
	var n int64
	for _, f := range b.Files {
		n += f.Size
	}
	return n
}

// Snapshot is a consistent read of the session fields.
type Snapshot struct {
	Mode       models.Mode
	Files      []models.SelectedFile
	TotalBytes int64
	Progress   int
	InFlight   bool
	BatchID    string
	Err        error
	HasResults bool
}

// Session is the single state container of the client.
type Session struct {
	mu       sync.Mutex
	eventBus *events.EventBus

	mode     models.Mode
	files    *fileset.Manager
	progress int
	inFlight bool
	batchID  string
	lastErr  error
	results  *results.Store
}

// NewSession creates a session in FullOCR mode. eventBus may be nil.
func NewSession(eventBus *events.EventBus) *Session {
	return &Session{
		eventBus: eventBus,
		mode:     models.ModeFullOCR,
		files:    fileset.New(),
		results:  results.NewStore(),
	}
}

// Results returns the result store. Its view state (expanded record, view
// modes) is owned by the store; Session only replaces or clears it.
func (s *Session) Results() *results.Store {
	return s.results
}

// Snapshot returns a consistent copy of the session fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Mode:       s.mode,
		Files:      s.files.Snapshot(),
		TotalBytes: s.files.TotalBytes(),
		Progress:   s.progress,
		InFlight:   s.inFlight,
		BatchID:    s.batchID,
		Err:        s.lastErr,
		HasResults: !s.results.Empty(),
	}
}

// Mode returns the active mode.
func (s *Session) Mode() models.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Progress returns the upload percentage.
func (s *Session) Progress() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// InFlight reports whether a batch is outstanding.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Err returns the error slot.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SelectMode switches the active mode. Switching to a different mode clears
// files, progress, results and the error slot, and drops the in-flight
// guard. Selecting the current mode changes nothing. Returns whether a
// reset happened.
func (s *Session) SelectMode(m models.Mode) bool {
	s.mu.Lock()
	from := s.mode
	if m == from {
		s.mu.Unlock()
		return false
	}
	s.mode = m
	s.resetLocked()
	s.mu.Unlock()

	s.eventBus.Publish(&events.ModeChangedEvent{
		BaseEvent: events.NewBase(events.EventModeChanged),
		From:      from.String(),
		To:        m.String(),
	})
	s.publishFiles(fileset.AddResult{})
	return true
}

// AddFiles stages candidates. Disallowed types and duplicates are counted
// in the result and never reach the error slot.
func (s *Session) AddFiles(candidates ...models.SelectedFile) fileset.AddResult {
	s.mu.Lock()
	res := s.files.Add(candidates...)
	s.mu.Unlock()

	s.publishFiles(res)
	return res
}

// RemoveFile unstages the file at index. Out of range is a no-op.
func (s *Session) RemoveFile(index int) bool {
	s.mu.Lock()
	ok := s.files.Remove(index)
	s.mu.Unlock()

	if ok {
		s.publishFiles(fileset.AddResult{})
	}
	return ok
}

// ClearFiles unstages every file.
func (s *Session) ClearFiles() {
	s.mu.Lock()
	s.files.Clear()
	s.mu.Unlock()

	s.publishFiles(fileset.AddResult{})
}

// Reset starts over in the current mode: files, progress, results and the
// error slot are cleared. A batch still in flight is abandoned; its
// completion will be rejected as stale.
func (s *Session) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.mu.Unlock()

	s.eventBus.Publish(&events.BaseEvent{EventType: events.EventSessionReset, Time: time.Now()})
	s.publishFiles(fileset.AddResult{})
}

func (s *Session) resetLocked() {
	s.files.Clear()
	s.progress = 0
	s.results.Clear()
	s.lastErr = nil
	s.inFlight = false
	s.batchID = ""
}

// StartUpload takes the request snapshot and sets the in-flight guard.
// Progress is zeroed, the error slot and previous results are cleared.
// Returns ErrNothingToSubmit or ErrBatchInFlight without side effects when
// the guard refuses.
func (s *Session) StartUpload() (Batch, error) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return Batch{}, ErrBatchInFlight
	}
	if s.files.Len() == 0 {
		s.mu.Unlock()
		return Batch{}, ErrNothingToSubmit
	}

	b := Batch{
		ID:        uuid.NewString(),
		Mode:      s.mode,
		Files:     s.files.Snapshot(),
		StartedAt: time.Now(),
	}
	s.inFlight = true
	s.batchID = b.ID
	s.progress = 0
	s.lastErr = nil
	s.results.Clear()
	s.mu.Unlock()

	s.eventBus.Publish(&events.UploadEvent{
		BaseEvent: events.NewBase(events.EventUploadStarted),
		BatchID:   b.ID,
		Mode:      b.Mode.String(),
		FileCount: len(b.Files),
	})
	return b, nil
}

// SetProgress records upload progress for the current batch. Values are
// clamped to [0,100] and never move backwards. Updates for a batch that is
// no longer current are ignored.
func (s *Session) SetProgress(batchID string, percent int) {
	if percent > 100 {
		percent = 100
	}
	s.mu.Lock()
	if !s.inFlight || batchID != s.batchID || percent <= s.progress {
		s.mu.Unlock()
		return
	}
	s.progress = percent
	s.mu.Unlock()

	s.eventBus.Publish(&events.UploadEvent{
		BaseEvent: events.NewBase(events.EventUploadProgress),
		BatchID:   batchID,
		Percent:   percent,
	})
}

// ReceiveResponse installs the batch response and clears the in-flight
// guard. Per-record failures inside resp are data, not errors.
func (s *Session) ReceiveResponse(batchID string, resp *models.BatchResponse) error {
	s.mu.Lock()
	if !s.inFlight || batchID != s.batchID {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStaleBatch, batchID)
	}
	mode := s.mode
	s.results.Replace(resp, mode)
	s.inFlight = false
	s.lastErr = nil
	s.mu.Unlock()

	s.eventBus.Publish(&events.BatchCompletedEvent{
		BaseEvent: events.NewBase(events.EventBatchCompleted),
		BatchID:   batchID,
		Total:     resp.Total,
		Succeeded: resp.Succeeded,
		Failed:    resp.Failed(),
	})
	return nil
}

// Fail records a top-level failure. The guard is cleared and progress
// zeroed; staged files are kept so the batch can be retried as is.
func (s *Session) Fail(batchID string, err error) error {
	s.mu.Lock()
	if !s.inFlight || batchID != s.batchID {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStaleBatch, batchID)
	}
	s.inFlight = false
	s.progress = 0
	s.lastErr = err
	s.mu.Unlock()

	s.eventBus.Publish(&events.BatchFailedEvent{
		BaseEvent: events.NewBase(events.EventBatchFailed),
		BatchID:   batchID,
		Kind:      FailureKind(err),
		Error:     err,
	})
	return nil
}

// FailureKinder is implemented by errors that carry a failure category.
type FailureKinder interface {
	Kind() string
}

// FailureKind returns the category of err, or "unknown".
func FailureKind(err error) string {
	var k FailureKinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	return "unknown"
}

func (s *Session) publishFiles(res fileset.AddResult) {
	if s.eventBus == nil {
		return
	}
	s.mu.Lock()
	count, total := s.files.Len(), s.files.TotalBytes()
	s.mu.Unlock()

	s.eventBus.Publish(&events.FilesChangedEvent{
		BaseEvent:  events.NewBase(events.EventFilesChanged),
		Count:      count,
		TotalBytes: total,
		Rejected:   res.Rejected,
		Duplicates: res.Duplicates,
	})
}
