// Package notify sends desktop notifications when a batch finishes.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/babara6666/PDF-OCR-batch/internal/events"
	"github.com/babara6666/PDF-OCR-batch/internal/logging"
)

const appTitle = "ocr-batch"

// Notifier handles desktop notifications.
type Notifier struct {
	logger  *logging.Logger
	enabled bool
	mu      sync.RWMutex

	// send and alert default to beeep; tests replace them.
	send  func(title, message string) error
	alert func(title, message string) error
}

// NewNotifier creates a notifier. logger may be nil.
func NewNotifier(enabled bool, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Notifier{
		logger:  logger,
		enabled: enabled,
		send: func(title, message string) error {
			// Windows toast, macOS notification center, Linux D-Bus
			return beeep.Notify(title, message, "")
		},
		alert: func(title, message string) error {
			return beeep.Alert(title, message, "")
		},
	}
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	if n == nil {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// BatchCompleted announces a batch response.
func (n *Notifier) BatchCompleted(total, succeeded, failed int, d time.Duration) {
	if !n.IsEnabled() {
		return
	}
	message := fmt.Sprintf("%d of %d file(s) processed in %s.", succeeded, total, d.Round(time.Second))
	if failed > 0 {
		message += fmt.Sprintf("\n%d failed.", failed)
	}
	if err := n.send("Batch Complete", message); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send batch complete notification")
	}
}

// BatchFailed announces a top-level failure with the prominent alert style,
// falling back to a plain notification.
func (n *Notifier) BatchFailed(errorMsg string) {
	if !n.IsEnabled() {
		return
	}
	message := truncate(errorMsg, 100)
	if err := n.alert("Batch Failed", message); err != nil {
		if err := n.send("Batch Failed", message); err != nil {
			n.logger.Warn().Err(err).Msg("Failed to send batch failed notification")
		}
	}
}

// ArchiveSaved announces a saved zip archive.
func (n *Notifier) ArchiveSaved(location string) {
	if !n.IsEnabled() {
		return
	}
	if err := n.send(appTitle, "Results saved to:\n"+shortenPath(location)); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to send archive notification")
	}
}

// Watch forwards batch and archive events from bus until the bus closes.
// The returned func stops watching early.
func (n *Notifier) Watch(bus *events.EventBus) (stop func()) {
	ch := bus.SubscribeAll()
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-ch:
				if !ok {
					return
				}
				n.handle(ev)
			case <-quit:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			bus.UnsubscribeAll(ch)
			close(quit)
		})
		<-done
	}
}

func (n *Notifier) handle(ev events.Event) {
	switch e := ev.(type) {
	case *events.BatchCompletedEvent:
		n.BatchCompleted(e.Total, e.Succeeded, e.Failed, e.Duration)
	case *events.BatchFailedEvent:
		msg := "unknown error"
		if e.Error != nil {
			msg = e.Error.Error()
		}
		n.BatchFailed(msg)
	case *events.ExportEvent:
		if e.Type() == events.EventExportCompleted && filepath.Ext(e.Name) == ".zip" {
			n.ArchiveSaved(e.Location)
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// shortenPath abbreviates a long path or URL for display in notifications.
func shortenPath(path string) string {
	const maxLen = 60

	if len(path) <= maxLen {
		return path
	}

	_, file := filepath.Split(path)
	parentDir := filepath.Base(filepath.Dir(path))
	short := filepath.Join("...", parentDir, file)

	vol := filepath.VolumeName(path)
	if vol != "" && len(vol)+len(short)+1 <= maxLen {
		short = vol + string(filepath.Separator) + short
	}

	if len(short) > maxLen {
		return "..." + path[len(path)-(maxLen-3):]
	}
	return short
}
