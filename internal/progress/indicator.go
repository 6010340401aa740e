package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/babara6666/PDF-OCR-batch/internal/constants"
)

// ProcessingIndicator shows that a batch is waiting on the backend. It only
// reports elapsed time; the backend exposes no processing progress.
//
// On a terminal it renders an mpb spinner with an elapsed-time decorator.
// Otherwise it prints a line at start, a heartbeat every
// constants.NonTTYHeartbeatInterval, and a line at stop.
type ProcessingIndicator struct {
	out        io.Writer
	label      string
	isTerminal bool
	heartbeat  time.Duration

	mu      sync.Mutex
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}
	p       *mpb.Progress
	bar     *mpb.Bar
}

// NewProcessingIndicator creates an indicator writing to out.
func NewProcessingIndicator(out io.Writer, label string) *ProcessingIndicator {
	isTerminal := false
	if f, ok := out.(*os.File); ok {
		isTerminal = term.IsTerminal(int(f.Fd()))
	}
	return &ProcessingIndicator{
		out:        out,
		label:      label,
		isTerminal: isTerminal,
		heartbeat:  constants.NonTTYHeartbeatInterval,
	}
}

// Start begins showing the indicator. The indicator stops when ctx is done
// or Stop is called, whichever comes first. Calling Start on a running
// indicator is a no-op.
func (pi *ProcessingIndicator) Start(ctx context.Context) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	pi.cancel = cancel
	pi.started = time.Now()
	pi.done = make(chan struct{})

	if pi.isTerminal {
		enableANSI(pi.out)
		pi.p = mpb.NewWithContext(ctx,
			mpb.WithOutput(pi.out),
			mpb.WithRefreshRate(constants.ElapsedTickInterval),
			mpb.WithWidth(60),
		)
		pi.bar = pi.p.New(1,
			mpb.SpinnerStyle(),
			mpb.PrependDecorators(decor.Name(pi.label, decor.WCSyncSpaceR)),
			mpb.AppendDecorators(
				decor.Name("elapsed "),
				decor.NewElapsed(decor.ET_STYLE_GO, pi.started),
			),
			mpb.BarRemoveOnComplete(),
		)
		close(pi.done)
		return
	}

	fmt.Fprintf(pi.out, "%s...\n", pi.label)
	go pi.heartbeatLoop(ctx, pi.done)
}

func (pi *ProcessingIndicator) heartbeatLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pi.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(pi.out, "%s... %s elapsed\n", pi.label, pi.Elapsed().Round(time.Second))
		}
	}
}

// Stop ends the indicator and returns the elapsed time. It is safe to call
// more than once and on an indicator that was never started.
func (pi *ProcessingIndicator) Stop() time.Duration {
	pi.mu.Lock()
	cancel, done := pi.cancel, pi.done
	bar, p := pi.bar, pi.p
	pi.cancel, pi.bar, pi.p = nil, nil, nil
	started := pi.started
	pi.started = time.Time{}
	pi.mu.Unlock()

	if cancel == nil {
		return 0
	}
	elapsed := time.Since(started)

	if bar != nil {
		bar.SetTotal(-1, true)
	}
	cancel()
	if p != nil {
		p.Wait()
	}
	<-done

	if !pi.isTerminal {
		fmt.Fprintf(pi.out, "%s finished after %s\n", pi.label, elapsed.Round(time.Millisecond))
	}
	return elapsed
}

// Elapsed returns time since Start, or 0 if not running.
func (pi *ProcessingIndicator) Elapsed() time.Duration {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.started.IsZero() {
		return 0
	}
	return time.Since(pi.started)
}
