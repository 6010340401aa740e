// Package export turns result records into files, clipboard text and bulk
// archives. It reads records handed to it and never writes session state.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/babara6666/PDF-OCR-batch/internal/events"
	"github.com/babara6666/PDF-OCR-batch/internal/logging"
	"github.com/babara6666/PDF-OCR-batch/internal/metrics"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
)

// FileSink stores one named blob and returns where it ended up.
type FileSink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// ClipboardSink receives copied text.
type ClipboardSink interface {
	Copy(text string) error
}

var (
	ErrRecordFailed    = errors.New("record has no result to export")
	ErrNoCropImage     = errors.New("record has no crop image")
	ErrBulkUnavailable = errors.New("bulk download needs more than one successful Full OCR result")
	ErrNoClipboard     = errors.New("no clipboard configured")
)

// ExportError wraps any export failure. It is returned to the caller and
// logged; it never reaches the session error slot.
type ExportError struct {
	Op   string // "copy", "download", "archive"
	Name string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Name, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// Service exports result records through injected sinks.
type Service struct {
	files     FileSink
	clipboard ClipboardSink
	eventBus  *events.EventBus
	logger    *logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewService creates an export service. clipboard, eventBus, logger and m
// may be nil.
func NewService(files FileSink, clipboard ClipboardSink, eventBus *events.EventBus, logger *logging.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		files:     files,
		clipboard: clipboard,
		eventBus:  eventBus,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// CopyText copies the mode's text payload of record verbatim. An empty
// payload is a no-op.
func (s *Service) CopyText(record models.ResultRecord, mode models.Mode) error {
	text := record.TextPayload(mode)
	if text == "" {
		return nil
	}
	if s.clipboard == nil {
		return s.failed("copy", record.Filename, ErrNoClipboard)
	}
	if err := s.clipboard.Copy(text); err != nil {
		return s.failed("copy", record.Filename, err)
	}
	s.metrics.ObserveExport("clipboard", nil)
	s.logger.Debug().Str("file", record.Filename).Int("chars", len(text)).Msg("Copied to clipboard")
	return nil
}

// DownloadSingle saves one payload of record under OutputName and returns
// the sink location.
func (s *Service) DownloadSingle(ctx context.Context, record models.ResultRecord, kind Kind) (string, error) {
	name := OutputName(record.Filename, kind)
	data, err := payload(record, kind)
	if err != nil {
		return "", s.failed("download", name, err)
	}

	loc, err := s.files.Save(ctx, name, data)
	if err != nil {
		return "", s.failed("download", name, err)
	}
	s.completed("file", name, loc, len(data))
	return loc, nil
}

// DownloadAll packages the markdown of every record into one zip archive
// and saves it with a single sink call. Only FullOCR batches with more than
// one successful record qualify; a single record goes through
// DownloadSingle.
func (s *Service) DownloadAll(ctx context.Context, mode models.Mode, succeeded []models.ResultRecord) (string, error) {
	name := ArchiveName(s.now())
	if mode != models.ModeFullOCR || len(succeeded) < 2 {
		return "", s.failed("archive", name, ErrBulkUnavailable)
	}

	data, err := buildArchive(ctx, succeeded, s.now())
	if err != nil {
		return "", s.failed("archive", name, err)
	}

	loc, err := s.files.Save(ctx, name, data)
	if err != nil {
		return "", s.failed("archive", name, err)
	}
	s.completed("archive", name, loc, len(data))
	return loc, nil
}

// ArchiveResult is delivered by DownloadAllAsync.
type ArchiveResult struct {
	Location string
	Err      error
}

// DownloadAllAsync runs DownloadAll on its own goroutine. The returned
// channel receives exactly one result and is then closed. records must not
// be modified until the result arrives.
func (s *Service) DownloadAllAsync(ctx context.Context, mode models.Mode, succeeded []models.ResultRecord) <-chan ArchiveResult {
	out := make(chan ArchiveResult, 1)
	go func() {
		defer close(out)
		loc, err := s.DownloadAll(ctx, mode, succeeded)
		out <- ArchiveResult{Location: loc, Err: err}
	}()
	return out
}

func buildArchive(ctx context.Context, records []models.ResultRecord, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := uniqueNames{}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !r.Success {
			return nil, fmt.Errorf("%s: %w", r.Filename, ErrRecordFailed)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names.next(OutputName(r.Filename, KindMarkdown)),
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(r.MarkdownContent)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func payload(record models.ResultRecord, kind Kind) ([]byte, error) {
	if !record.Success {
		return nil, ErrRecordFailed
	}
	switch kind {
	case KindMarkdown:
		return []byte(record.MarkdownContent), nil
	case KindNotes:
		return []byte(record.NotesText), nil
	case KindCrop:
		if !record.HasCropImage() {
			return nil, ErrNoCropImage
		}
		return record.CropImagePNG()
	default:
		return nil, fmt.Errorf("unknown export kind %q", kind)
	}
}

func (s *Service) completed(kind, name, loc string, n int) {
	s.metrics.ObserveExport(kind, nil)
	s.logger.Info().Str("name", name).Str("location", loc).Int("bytes", n).Msg("Export saved")
	s.eventBus.Publish(&events.ExportEvent{
		BaseEvent: events.NewBase(events.EventExportCompleted),
		Name:      name,
		Location:  loc,
		Bytes:     n,
	})
}

func (s *Service) failed(op, name string, err error) error {
	ee := &ExportError{Op: op, Name: name, Err: err}
	kind := op
	if op == "download" {
		kind = "file"
	} else if op == "copy" {
		kind = "clipboard"
	}
	s.metrics.ObserveExport(kind, err)
	s.logger.Warn().Str("op", op).Str("name", name).Err(err).Msg("Export failed")
	s.eventBus.Publish(&events.ExportEvent{
		BaseEvent: events.NewBase(events.EventExportFailed),
		Name:      name,
		Error:     ee,
	})
	return ee
}
