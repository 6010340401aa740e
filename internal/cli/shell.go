package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/babara6666/PDF-OCR-batch/internal/api"
	"github.com/babara6666/PDF-OCR-batch/internal/config"
	"github.com/babara6666/PDF-OCR-batch/internal/diskspace"
	"github.com/babara6666/PDF-OCR-batch/internal/events"
	"github.com/babara6666/PDF-OCR-batch/internal/export"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
)

// newShellCmd creates the 'shell' command.
func newShellCmd() *cobra.Command {
	var modeName string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive session: stage files, upload, inspect and export results",
		Long: `Start an interactive session. Files are staged with 'add', sent as one
batch with 'upload', and the results can then be viewed, copied and saved
one by one or, for Full OCR, as a single zip archive.

Type 'help' inside the shell for the command list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := models.ParseMode(modeName)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := GetContext()
			a, err := newApp(ctx, cfg, appOptions{Interactive: true, Out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer a.Close()

			a.session.SelectMode(mode)
			return newShell(a, cmd.OutOrStdout()).run(ctx)
		},
	}

	cmd.Flags().StringVarP(&modeName, "mode", "m", "ocr", "Initial mode: ocr or notes")
	return cmd
}

// shell is the interactive front end over one app session.
type shell struct {
	app *app
	out io.Writer
	md  *markdownRenderer
}

func newShell(a *app, out io.Writer) *shell {
	md, err := newMarkdownRenderer()
	if err != nil {
		a.logger.Debug().Err(err).Msg("Markdown preview disabled")
	}
	return &shell{app: a, out: out, md: md}
}

func (s *shell) run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            s.prompt(),
		HistoryFile:       config.HistoryFile(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		UniqueEditLine:    true,

		Stdin:  readline.NewCancelableStdin(os.Stdin),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	// The channel closes with the event bus in app.Close
	go s.watchProgress(s.app.eventBus.Subscribe(events.EventUploadProgress))

	fmt.Fprintf(s.out, "%s - type 'help' for commands, 'quit' to leave.\n\n", bold("ocr-batch shell"))

	for ctx.Err() == nil {
		rl.SetPrompt(s.prompt())
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				break
			}
			continue
		} else if errors.Is(err, io.EOF) {
			break
		}

		quit, err := s.exec(ctx, line)
		if err != nil {
			fmt.Fprintf(s.out, "%s %v\n", red("Error:"), err)
		}
		if quit {
			break
		}
	}
	fmt.Fprintln(s.out, "Goodbye!")
	return nil
}

func (s *shell) prompt() string {
	return fmt.Sprintf("[%s] > ", s.app.session.Mode())
}

// watchProgress prints the upload percentage on one line.
func (s *shell) watchProgress(ch <-chan events.Event) {
	for ev := range ch {
		if up, ok := ev.(*events.UploadEvent); ok {
			fmt.Fprintf(os.Stderr, "\rUploading... %3d%%", up.Percent)
			if up.Percent >= 100 {
				fmt.Fprintln(os.Stderr)
			}
		}
	}
}

const shellHelp = `Commands:
  mode [ocr|notes]            Show or switch the mode (switching clears everything)
  add <file|glob>...          Stage files
  rm <n>                      Unstage file n
  clear                       Unstage all files
  ls                          List staged files
  upload                      Send the staged files as one batch
  results                     List the results of the last batch
  expand <n>                  Expand or collapse result n
  view <n> [text|preview|image]
                              Show result n, optionally switching its view
  copy <n>                    Copy the text of result n to the clipboard
  save <n> [md|txt|png]       Save one output of result n
  save-all                    Save every markdown result as one zip (Full OCR, 2+ results)
  reset                       Clear files and results, keep the mode
  status                      Show session state
  help                        Show this help
  quit                        Leave the shell`

// exec runs one shell command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
		return false, nil
	case "mode":
		return false, s.mode(args)
	case "add":
		if len(args) == 0 {
			return false, errors.New("usage: add <file|glob>...")
		}
		note, err := stageFiles(s.app, args)
		if note != nil {
			fmt.Fprintf(s.out, "%s %v\n", yellow("Note:"), note)
		}
		if err != nil {
			return false, err
		}
		s.listFiles()
		return false, nil
	case "rm", "remove":
		n, err := s.index(args, "rm <n>")
		if err != nil {
			return false, err
		}
		if !s.app.session.RemoveFile(n) {
			return false, fmt.Errorf("no staged file #%d", n+1)
		}
		s.listFiles()
		return false, nil
	case "clear":
		s.app.session.ClearFiles()
		fmt.Fprintln(s.out, "Staged files cleared.")
		return false, nil
	case "ls", "files":
		s.listFiles()
		return false, nil
	case "upload", "submit":
		return false, s.upload(ctx)
	case "results":
		s.listResults()
		return false, nil
	case "expand":
		n, err := s.index(args, "expand <n>")
		if err != nil {
			return false, err
		}
		expanded, err := s.app.session.Results().ToggleExpanded(n)
		if err != nil {
			return false, err
		}
		if expanded < 0 {
			fmt.Fprintf(s.out, "Result #%d collapsed.\n", n+1)
			return false, nil
		}
		return false, s.view(n)
	case "view":
		n, err := s.index(args, "view <n> [text|preview|image]")
		if err != nil {
			return false, err
		}
		if len(args) > 1 {
			v, err := models.ParseViewMode(args[1])
			if err != nil {
				return false, err
			}
			if err := s.app.session.Results().SetViewMode(n, v); err != nil {
				return false, err
			}
		}
		return false, s.view(n)
	case "copy":
		rec, err := s.record(args, "copy <n>")
		if err != nil {
			return false, err
		}
		if err := s.app.exporter.CopyText(rec, s.app.session.Results().Mode()); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Copied %s.\n", rec.Filename)
		return false, nil
	case "save":
		return false, s.save(ctx, args)
	case "save-all":
		return false, s.saveAll(ctx)
	case "reset":
		s.app.session.Reset()
		fmt.Fprintln(s.out, "Session reset.")
		return false, nil
	case "status":
		s.status()
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %q (type 'help')", cmd)
	}
}

func (s *shell) mode(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "Mode: %s\n", s.app.session.Mode().DisplayName())
		return nil
	}
	m, err := models.ParseMode(args[0])
	if err != nil {
		return err
	}
	if s.app.session.SelectMode(m) {
		fmt.Fprintf(s.out, "Switched to %s. Files and results cleared.\n", m.DisplayName())
	} else {
		fmt.Fprintf(s.out, "Already in %s.\n", m.DisplayName())
	}
	return nil
}

// index parses the 1-based argument into a 0-based index.
func (s *shell) index(args []string, usage string) (int, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("usage: %s", usage)
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid number %q", args[0])
	}
	return n - 1, nil
}

func (s *shell) record(args []string, usage string) (models.ResultRecord, error) {
	n, err := s.index(args, usage)
	if err != nil {
		return models.ResultRecord{}, err
	}
	rec, ok := s.app.session.Results().Record(n)
	if !ok {
		return models.ResultRecord{}, fmt.Errorf("no result #%d", n+1)
	}
	return rec, nil
}

func (s *shell) listFiles() {
	snap := s.app.session.Snapshot()
	if len(snap.Files) == 0 {
		fmt.Fprintln(s.out, "No files staged.")
		return
	}
	for i, f := range snap.Files {
		fmt.Fprintf(s.out, "  %2d. %s %s\n", i+1, f.Name, gray("("+formatBytes(f.Size)+")"))
	}
	fmt.Fprintf(s.out, "%d file(s), %s\n", len(snap.Files), formatBytes(snap.TotalBytes))
}

func (s *shell) upload(ctx context.Context) error {
	mode := s.app.session.Mode()
	resp, err := s.app.uploader.Submit(ctx)
	if err != nil {
		if snap := s.app.session.Snapshot(); len(snap.Files) > 0 {
			fmt.Fprintln(s.out, gray("Files are still staged; run 'upload' to retry."))
		}
		if hint := failureHint(err); hint != "" {
			fmt.Fprintln(s.out, gray(hint))
		}
		return err
	}
	return printSummary(s.out, FormatTable, summarize(mode, resp))
}

func (s *shell) listResults() {
	store := s.app.session.Results()
	if store.Empty() {
		fmt.Fprintln(s.out, "No results yet.")
		return
	}
	mode := store.Mode()
	expanded := store.Expanded()
	for i, r := range store.Records() {
		marker := " "
		if i == expanded {
			marker = ">"
		}
		status := green("ok")
		if !r.Success {
			status = red("failed: " + r.Error)
		}
		fmt.Fprintf(s.out, "%s %2d. %s  %.1fs  %d chars  %s\n",
			marker, i+1, r.Filename, r.ProcessingSeconds(), len([]rune(r.TextPayload(mode))), status)
	}
	resp := store.Response()
	fmt.Fprintf(s.out, "%d succeeded, %d failed, %.1fs server time\n", resp.Succeeded, resp.Failed(), store.AggregateProcessingTime())
	if store.BulkExportAvailable() {
		fmt.Fprintln(s.out, gray("'save-all' saves every markdown result as one zip."))
	}
}

// view prints record n in its current view mode.
func (s *shell) view(n int) error {
	store := s.app.session.Results()
	rec, ok := store.Record(n)
	if !ok {
		return fmt.Errorf("no result #%d", n+1)
	}
	mode := store.Mode()
	fmt.Fprintf(s.out, "%s %s\n", bold(fmt.Sprintf("#%d", n+1)), rec.Filename)
	if !rec.Success {
		fmt.Fprintf(s.out, "%s %s\n", red("Failed:"), rec.Error)
		return nil
	}
	if rec.Orientation != "" {
		fmt.Fprintf(s.out, "%s\n", gray("Orientation: "+rec.Orientation))
	}

	text := rec.TextPayload(mode)
	switch store.ViewMode(n) {
	case models.ViewImage:
		return s.describeCrop(n, rec)
	case models.ViewPreview:
		fmt.Fprintln(s.out, s.md.Render(text))
	default:
		if text == "" {
			fmt.Fprintln(s.out, gray("(no text)"))
			return nil
		}
		fmt.Fprintln(s.out, indent(text, "  "))
	}
	return nil
}

// describeCrop summarizes the crop image; terminals cannot show it inline.
func (s *shell) describeCrop(n int, rec models.ResultRecord) error {
	data, err := rec.CropImagePNG()
	if err != nil {
		return err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("crop image of %s is not a PNG: %w", rec.Filename, err)
	}
	fmt.Fprintf(s.out, "Crop image: %dx%d px, %s\n", cfg.Width, cfg.Height, formatBytes(int64(len(data))))
	if len(rec.CropBBox) == 4 {
		fmt.Fprintf(s.out, "Region: %v\n", rec.CropBBox)
	}
	fmt.Fprintf(s.out, "%s\n", gray(fmt.Sprintf("Save it with 'save %d png'.", n+1)))
	return nil
}

func (s *shell) save(ctx context.Context, args []string) error {
	rec, err := s.record(args, "save <n> [md|txt|png]")
	if err != nil {
		return err
	}
	kind := export.DefaultKind(s.app.session.Results().Mode())
	if len(args) > 1 {
		if kind, err = export.ParseKind(args[1]); err != nil {
			return err
		}
	}
	loc, err := s.app.exporter.DownloadSingle(ctx, rec, kind)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Saved %s\n", loc)
	return nil
}

func (s *shell) saveAll(ctx context.Context) error {
	set := s.app.session.Results().ExportSet()
	if !set.BulkExportAvailable() {
		return export.ErrBulkUnavailable
	}
	loc, replaced, err := archiveSet(ctx, s.app, set)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Saved %s\n", loc)
	if replaced {
		fmt.Fprintln(s.out, yellow("Note: a newer batch arrived; the archive holds the earlier results."))
	}
	return nil
}

func (s *shell) status() {
	snap := s.app.session.Snapshot()
	fmt.Fprintf(s.out, "Mode:     %s\n", snap.Mode.DisplayName())
	fmt.Fprintf(s.out, "Files:    %d (%s)\n", len(snap.Files), formatBytes(snap.TotalBytes))
	if s.app.outDir != "" {
		if free := diskspace.GetAvailableSpace(s.app.outDir); free > 0 {
			fmt.Fprintf(s.out, "Free:     %s in %s\n", formatBytes(free), s.app.outDir)
		}
	}
	fmt.Fprintf(s.out, "Progress: %d%%\n", snap.Progress)
	if snap.InFlight {
		fmt.Fprintf(s.out, "Batch:    %s (in flight)\n", snap.BatchID)
	}
	if snap.Err != nil {
		fmt.Fprintf(s.out, "Error:    %v\n", snap.Err)
	}
	fmt.Fprintf(s.out, "Results:  %t\n", snap.HasResults)
}

// failureHint suggests what to change after a batch timed out.
func failureHint(err error) string {
	if api.IsTimeout(err) {
		return "The backend did not answer in time; smaller batches finish sooner."
	}
	return ""
}
