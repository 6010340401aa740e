package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/babara6666/PDF-OCR-batch/internal/api"
	"github.com/babara6666/PDF-OCR-batch/internal/export"
	"github.com/babara6666/PDF-OCR-batch/internal/fileset"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
	"github.com/babara6666/PDF-OCR-batch/internal/results"
)

// batchOptions are the flags shared by convert and notes.
type batchOptions struct {
	outDir      string
	format      string
	archive     bool
	noSave      bool
	copyResult  bool
	includeCrop bool
	noPrompt    bool
}

func addBatchFlags(cmd *cobra.Command, opts *batchOptions) {
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "Output directory for the dir export target (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", FormatTable, "Summary format: table, json or yaml")
	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not save results, only print the summary")
	cmd.Flags().BoolVar(&opts.copyResult, "copy", false, "Copy the result text to the clipboard when exactly one file succeeds")
	cmd.Flags().BoolVar(&opts.noPrompt, "no-prompt", false, "Never ask to retry a failed batch")
}

// newConvertCmd creates the 'convert' command (Full OCR mode).
func newConvertCmd() *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:     "convert <file|glob> [file|glob...]",
		Aliases: []string{"ocr"},
		Short:   "Convert documents to markdown with full OCR",
		Long: `Submit every file in one batch to the Full OCR endpoint and save one
markdown file per successful document.

Supported types: pdf, jpg, jpeg, png, gif, webp, bmp, tiff, tif.
Unsupported files and duplicates (same name and size) are skipped.

Examples:
  ocr-batch convert scan1.pdf scan2.pdf
  ocr-batch convert "invoices/*.pdf" --archive --out results/
  ocr-batch convert page.png --no-save --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, models.ModeFullOCR, args, opts)
		},
	}

	addBatchFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.archive, "archive", false, "Save all markdown files as one zip archive (needs 2+ successful files)")
	return cmd
}

// newNotesCmd creates the 'notes' command (notes extraction mode).
func newNotesCmd() *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "notes <file|glob> [file|glob...]",
		Short: "Extract the notes section from engineering drawings",
		Long: `Submit every file in one batch to the notes extraction endpoint. Each
successful document produces <name>_notes.txt and, with --include-crop,
<name>_notes_crop.png.

Examples:
  ocr-batch notes drawing.v2.pdf
  ocr-batch notes "drawings/*.pdf" --include-crop=false`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, models.ModeNotesExtraction, args, opts)
		},
	}

	addBatchFlags(cmd, &opts)
	cmd.Flags().BoolVar(&opts.includeCrop, "include-crop", true, "Ask the backend for a crop image of the notes region")
	return cmd
}

func runBatch(cmd *cobra.Command, mode models.Mode, args []string, opts batchOptions) error {
	if err := validateFormat(opts.format); err != nil {
		return err
	}
	log := GetLogger()
	if opts.format != FormatTable {
		// stdout carries the machine-readable summary
		log.SetOutput(os.Stderr)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := GetContext()
	appOpts := appOptions{OutDir: opts.outDir, Out: cmd.OutOrStdout()}
	if cmd.Flags().Changed("include-crop") || mode == models.ModeNotesExtraction {
		appOpts.IncludeCrop = &opts.includeCrop
	}
	a, err := newApp(ctx, cfg, appOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	a.session.SelectMode(mode)
	note, err := stageFiles(a, args)
	if note != nil {
		log.Warn().Msg(note.Error())
	}
	if err != nil {
		return err
	}

	resp, err := submitWithRetry(ctx, a, opts.noPrompt)
	if err != nil {
		return err
	}

	summary := summarize(mode, resp)
	var exportErr error
	if !opts.noSave {
		summary.Exports, exportErr = saveResults(ctx, a, mode, opts.archive)
	}

	if opts.copyResult {
		if succeeded := a.session.Results().Succeeded(); len(succeeded) == 1 {
			if err := a.exporter.CopyText(succeeded[0].Record, mode); err != nil {
				log.Warn().Err(err).Msg("Could not copy result")
			}
		} else {
			log.Warn().Int("succeeded", len(succeeded)).Msg("--copy needs exactly one successful file")
		}
	}

	if err := printSummary(cmd.OutOrStdout(), opts.format, summary); err != nil {
		return err
	}
	return exportErr
}

// errNoFiles is returned when staging leaves the session without any file.
var errNoFiles = errors.New("no supported files to submit")

// stageFiles expands patterns and adds the matches to the session. Skipped
// candidates are reported through note, never as an error; err is set only
// when nothing is staged afterwards.
func stageFiles(a *app, patterns []string) (note error, err error) {
	files, skipped, err := fileset.Load(patterns)
	if err != nil {
		return nil, err
	}
	for path, reason := range skipped {
		a.logger.Warn().Str("path", path).Err(reason).Msg("Skipping")
	}

	res := a.session.AddFiles(files...)
	note = api.NewValidationError(res.Rejected, res.Duplicates)
	snap := a.session.Snapshot()
	if len(snap.Files) == 0 {
		return note, errNoFiles
	}
	a.logger.Info().
		Int("files", len(snap.Files)).
		Str("size", formatBytes(snap.TotalBytes)).
		Str("mode", snap.Mode.DisplayName()).
		Msg("Files staged")
	return note, nil
}

// submitWithRetry submits the staged batch. After a failure the files are
// still staged, so on a terminal the user may resubmit them.
func submitWithRetry(ctx context.Context, a *app, noPrompt bool) (*models.BatchResponse, error) {
	for {
		resp, err := a.uploader.Submit(ctx)
		if err == nil {
			return resp, nil
		}
		if hint := failureHint(err); hint != "" {
			a.logger.Warn().Msg(hint)
		}
		if noPrompt || ctx.Err() != nil || !stdinIsTerminal() {
			return nil, err
		}
		action, perr := promptBatchFailure(os.Stdin, os.Stderr, err)
		if perr != nil || action == FailureAbort {
			return nil, err
		}
	}
}

// saveResults writes the successful records through the export service.
// Full OCR batches with --archive and more than one success are saved as a
// single zip; everything else is saved per file.
func saveResults(ctx context.Context, a *app, mode models.Mode, archive bool) ([]string, error) {
	set := a.session.Results().ExportSet()
	if len(set.Succeeded) == 0 {
		return nil, nil
	}

	if archive {
		if set.BulkExportAvailable() {
			loc, _, err := archiveSet(ctx, a, set)
			if err != nil {
				return nil, err
			}
			return []string{loc}, nil
		}
		a.logger.Warn().Msg("Archive needs more than one successful Full OCR result; saving files individually")
	}

	var saved []string
	var failures int
	for _, rec := range set.Succeeded {
		kinds := []export.Kind{export.DefaultKind(mode)}
		if mode == models.ModeNotesExtraction && rec.HasCropImage() {
			kinds = append(kinds, export.KindCrop)
		}
		for _, k := range kinds {
			loc, err := a.exporter.DownloadSingle(ctx, rec, k)
			if err != nil {
				failures++
				continue
			}
			saved = append(saved, loc)
		}
	}
	if failures > 0 {
		return saved, fmt.Errorf("%d export(s) failed", failures)
	}
	return saved, nil
}

// archiveSet saves set as one zip. replaced reports that a newer batch took
// over the result store while the archive was being written; the archive
// still holds the records of set.
func archiveSet(ctx context.Context, a *app, set results.ExportSet) (loc string, replaced bool, err error) {
	res := <-a.exporter.DownloadAllAsync(ctx, set.Mode, set.Succeeded)
	if res.Err != nil {
		return "", false, res.Err
	}
	if a.session.Results().ReplacedSince(set.Generation) {
		a.logger.Warn().Str("archive", res.Location).Msg("Results were replaced while the archive was written")
		replaced = true
	}
	return res.Location, replaced, nil
}
