// Package services provides frontend-agnostic business logic for the batch
// client. The CLI and the interactive shell both drive uploads through this
// layer; state changes are published on the EventBus.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/babara6666/PDF-OCR-batch/internal/api"
	"github.com/babara6666/PDF-OCR-batch/internal/constants"
	"github.com/babara6666/PDF-OCR-batch/internal/events"
	"github.com/babara6666/PDF-OCR-batch/internal/logging"
	"github.com/babara6666/PDF-OCR-batch/internal/metrics"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
	"github.com/babara6666/PDF-OCR-batch/internal/progress"
	"github.com/babara6666/PDF-OCR-batch/internal/results"
	"github.com/babara6666/PDF-OCR-batch/internal/state"
)

// Guard errors. Submit returns them without touching the session.
var (
	ErrNothingToSubmit = state.ErrNothingToSubmit
	ErrBatchInFlight   = state.ErrBatchInFlight
)

// BatchSubmitter sends one multi-file request. *api.Client implements it.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, req api.BatchRequest) (*models.BatchResponse, error)
}

// Indicator shows the processing phase after all bytes are sent.
// *progress.ProcessingIndicator implements it.
type Indicator interface {
	Start(ctx context.Context)
	Stop() time.Duration
}

type noopIndicator struct{}

func (noopIndicator) Start(context.Context) {}
func (noopIndicator) Stop() time.Duration   { return 0 }

// OrchestratorConfig configures the UploadOrchestrator.
type OrchestratorConfig struct {
	// IncludeCrop is forwarded to the notes endpoint.
	IncludeCrop bool

	// Reporter renders byte-level upload progress. Defaults to NoOpProgress.
	Reporter progress.Reporter

	// Indicator is started once every byte has been handed to the
	// transport and stopped when the batch completes or fails.
	Indicator Indicator

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Timeout overrides BatchTimeout, for tests.
	Timeout func(files int) time.Duration
}

// UploadOrchestrator submits the staged files of a Session as one batch.
type UploadOrchestrator struct {
	session  *state.Session
	client   BatchSubmitter
	eventBus *events.EventBus
	logger   *logging.Logger
	config   OrchestratorConfig
}

// NewUploadOrchestrator creates an orchestrator. eventBus and logger may be nil.
func NewUploadOrchestrator(session *state.Session, client BatchSubmitter, eventBus *events.EventBus, logger *logging.Logger, config OrchestratorConfig) *UploadOrchestrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if config.Reporter == nil {
		config.Reporter = progress.NewNoOpProgress()
	}
	if config.Indicator == nil {
		config.Indicator = noopIndicator{}
	}
	if config.Timeout == nil {
		config.Timeout = BatchTimeout
	}
	return &UploadOrchestrator{
		session:  session,
		client:   client,
		eventBus: eventBus,
		logger:   logger,
		config:   config,
	}
}

// BatchTimeout is the request deadline for a batch of n files: a fixed base
// plus a per-file allowance.
func BatchTimeout(files int) time.Duration {
	return constants.BatchTimeoutBase + time.Duration(files)*constants.BatchTimeoutPerFile
}

// Submit sends the staged files in the session's current mode and waits for
// the outcome. It returns the guard errors when nothing is staged or a batch
// is already in flight. Otherwise exactly one of Session.ReceiveResponse or
// Session.Fail is applied before it returns.
//
// A per-record failure inside the response is not an error. Top-level
// failures are *api.ServerError, *api.TransportError or *api.RequestError.
func (o *UploadOrchestrator) Submit(ctx context.Context) (*models.BatchResponse, error) {
	batch, err := o.session.StartUpload()
	if err != nil {
		return nil, err
	}

	timeout := o.config.Timeout(len(batch.Files))
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	total := batch.TotalBytes()
	mode := batch.Mode.String()
	o.config.Metrics.ObserveSubmitted(mode, len(batch.Files), total)

	o.logger.Info().
		Str("batch_id", batch.ID).
		Str("mode", mode).
		Int("files", len(batch.Files)).
		Int64("bytes", total).
		Dur("timeout", timeout).
		Msg("Submitting batch")

	sent := make(chan struct{})
	var sentOnce sync.Once
	proj := progress.NewProjector(total, func(pct int) {
		o.session.SetProgress(batch.ID, pct)
		if pct >= 100 {
			sentOnce.Do(func() { close(sent) })
		}
	})

	o.config.Reporter.Start(total, fmt.Sprintf("Uploading %d file(s)", len(batch.Files)))

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-sent:
		case <-done:
			select {
			case <-sent:
			default:
				return nil
			}
		}
		o.config.Reporter.Finish()
		o.eventBus.Publish(&events.UploadEvent{
			BaseEvent: events.NewBase(events.EventUploadSent),
			BatchID:   batch.ID,
			Mode:      mode,
			FileCount: len(batch.Files),
			Percent:   100,
			Timeout:   timeout,
		})
		o.config.Indicator.Start(gctx)
		<-done
		o.config.Indicator.Stop()
		return nil
	})

	resp, err := o.client.SubmitBatch(ctx, api.BatchRequest{
		Mode:        batch.Mode,
		Files:       batch.Files,
		IncludeCrop: o.config.IncludeCrop,
		Progress:    proj,
		Reporter:    o.config.Reporter,
	})
	close(done)
	_ = g.Wait()

	elapsed := time.Since(batch.StartedAt)
	if err != nil {
		return nil, o.fail(batch, err, elapsed)
	}

	if err := o.session.ReceiveResponse(batch.ID, resp); err != nil {
		o.logger.Warn().Str("batch_id", batch.ID).Msg("Discarding response for abandoned batch")
		return nil, err
	}

	serverSeconds := results.AggregateProcessingTime(resp.Results)
	o.config.Metrics.ObserveCompleted(mode, resp.Succeeded, resp.Failed(), serverSeconds, elapsed)
	o.logger.Info().
		Str("batch_id", batch.ID).
		Int("total", resp.Total).
		Int("succeeded", resp.Succeeded).
		Int("failed", resp.Failed()).
		Float64("server_seconds", serverSeconds).
		Dur("elapsed", elapsed).
		Msg("Batch completed")
	return resp, nil
}

func (o *UploadOrchestrator) fail(batch state.Batch, err error, elapsed time.Duration) error {
	var kinder state.FailureKinder
	if !errors.As(err, &kinder) {
		err = &api.RequestError{Err: err}
	}
	o.config.Reporter.Error(err)

	kind := state.FailureKind(err)
	o.config.Metrics.ObserveFailed(batch.Mode.String(), kind, elapsed)

	detail := err.Error()
	var te *api.TransportError
	if errors.As(err, &te) {
		detail = te.Detail()
	}
	o.logger.Error().
		Str("batch_id", batch.ID).
		Str("kind", kind).
		Dur("elapsed", elapsed).
		Msg(detail)

	if serr := o.session.Fail(batch.ID, err); serr != nil {
		o.logger.Warn().Str("batch_id", batch.ID).Msg("Discarding failure for abandoned batch")
		return serr
	}
	return err
}
