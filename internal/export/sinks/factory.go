package sinks

import (
	"context"
	"fmt"
	nethttp "net/http"

	"github.com/babara6666/PDF-OCR-batch/internal/config"
)

// Sink is the method set shared by every file destination.
type Sink interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// New returns the destination selected by cfg.ExportTarget. outDir, when
// non-empty, overrides cfg.OutputDir for the dir target.
func New(ctx context.Context, cfg *config.Config, httpClient *nethttp.Client, outDir string) (Sink, error) {
	switch cfg.ExportTarget {
	case "", config.ExportTargetDir:
		if outDir == "" {
			outDir = cfg.OutputDir
		}
		return NewDirSink(outDir), nil
	case config.ExportTargetS3:
		return NewS3Sink(ctx, cfg, httpClient)
	case config.ExportTargetAzure:
		return NewAzureSink(cfg, httpClient)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidExportTarget, cfg.ExportTarget)
	}
}
