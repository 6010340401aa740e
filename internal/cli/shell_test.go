package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babara6666/PDF-OCR-batch/internal/api"
	"github.com/babara6666/PDF-OCR-batch/internal/config"
	"github.com/babara6666/PDF-OCR-batch/internal/events"
	"github.com/babara6666/PDF-OCR-batch/internal/export"
	"github.com/babara6666/PDF-OCR-batch/internal/export/sinks"
	"github.com/babara6666/PDF-OCR-batch/internal/logging"
	"github.com/babara6666/PDF-OCR-batch/internal/metrics"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
	"github.com/babara6666/PDF-OCR-batch/internal/progress"
	"github.com/babara6666/PDF-OCR-batch/internal/services"
	"github.com/babara6666/PDF-OCR-batch/internal/state"
)

func cropPNG(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 2))))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// fakeBackend answers both batch endpoints. Files named fail* come back as
// per-record failures.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	crop := cropPNG(t)
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		notes := strings.HasPrefix(r.URL.Path, "/api/notes")
		resp := models.BatchResponse{}
		for _, fh := range r.MultipartForm.File["files"] {
			rec := models.ResultRecord{Filename: fh.Filename, Success: true}
			switch {
			case strings.HasPrefix(fh.Filename, "fail"):
				rec.Success = false
				rec.Error = "unreadable page"
			case notes:
				rec.NotesText = "1. Notes for " + fh.Filename
				rec.Orientation = "landscape"
				rec.CropBBox = []int{0, 0, 3, 2}
				if r.URL.Query().Get("include_crop") == "true" {
					rec.CropImageB64 = crop
				}
			default:
				rec.MarkdownContent = "# " + fh.Filename
			}
			if rec.Success {
				resp.Succeeded++
			}
			resp.Results = append(resp.Results, rec)
		}
		resp.Total = len(resp.Results)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testApp struct {
	*app
	sink *sinks.MemorySink
	clip *sinks.MemoryClipboard
}

func newTestApp(t *testing.T, srv *httptest.Server) *testApp {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.APIBaseURL = srv.URL

	log := logging.NewNopLogger()
	client, err := api.NewClientWithHTTP(cfg, srv.Client(), log)
	require.NoError(t, err)

	bus := events.NewEventBus(64)
	t.Cleanup(bus.Close)
	session := state.NewSession(bus)
	m := metrics.New()
	sink := sinks.NewMemorySink()
	clip := &sinks.MemoryClipboard{}

	return &testApp{
		app: &app{
			cfg:      cfg,
			logger:   log,
			eventBus: bus,
			client:   client,
			session:  session,
			uploader: services.NewUploadOrchestrator(session, client, bus, log, services.OrchestratorConfig{
				IncludeCrop: true,
				Reporter:    progress.NewNoOpProgress(),
				Metrics:     m,
			}),
			exporter: export.NewService(sink, clip, bus, log, m),
			metrics:  m,
			out:      io.Discard,
		},
		sink: sink,
		clip: clip,
	}
}

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("%PDF-1.4 "+n), 0o644))
	}
	return dir
}

func run(t *testing.T, sh *shell, line string) error {
	t.Helper()
	quit, err := sh.exec(context.Background(), line)
	assert.False(t, quit)
	return err
}

func TestShell_FullOCRFlow(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	var out bytes.Buffer
	sh := newShell(ta.app, &out)
	dir := writeFiles(t, "a.pdf", "b.v2.pdf", "notes.txt")

	require.NoError(t, run(t, sh, "add "+filepath.Join(dir, "*")))
	snap := ta.session.Snapshot()
	require.Len(t, snap.Files, 2, "disallowed type is not staged")
	assert.Contains(t, out.String(), "2 file(s)")

	require.NoError(t, run(t, sh, "upload"))
	assert.Contains(t, out.String(), "2 succeeded")

	store := ta.session.Results()
	require.Equal(t, 2, store.Len())
	assert.Len(t, ta.session.Snapshot().Files, 2, "files stay staged after a batch")

	out.Reset()
	require.NoError(t, run(t, sh, "results"))
	assert.Contains(t, out.String(), "a.pdf")
	assert.Contains(t, out.String(), "save-all")

	require.NoError(t, run(t, sh, "expand 2"))
	assert.Equal(t, 1, store.Expanded())
	require.NoError(t, run(t, sh, "expand 1"))
	assert.Equal(t, 0, store.Expanded(), "expanding another record collapses the first")
	require.NoError(t, run(t, sh, "expand 1"))
	assert.Equal(t, -1, store.Expanded())

	require.NoError(t, run(t, sh, "view 1 text"))
	assert.Contains(t, out.String(), "# a.pdf")

	require.NoError(t, run(t, sh, "copy 1"))
	last, err := ta.clip.Last()
	require.NoError(t, err)
	assert.Equal(t, "# a.pdf", last)

	require.NoError(t, run(t, sh, "save 2"))
	data, ok := ta.sink.Get("b.v2.md")
	require.True(t, ok)
	assert.Equal(t, "# b.v2.pdf", string(data))

	require.NoError(t, run(t, sh, "save-all"))
	names := ta.sink.Names()
	require.Len(t, names, 2)
	assert.True(t, strings.HasPrefix(names[1], "ocr_results_"))
	assert.True(t, strings.HasSuffix(names[1], ".zip"))
}

func TestShell_NotesFlow(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	var out bytes.Buffer
	sh := newShell(ta.app, &out)
	dir := writeFiles(t, "drawing.pdf")

	require.NoError(t, run(t, sh, "mode notes"))
	assert.Equal(t, models.ModeNotesExtraction, ta.session.Mode())
	require.NoError(t, run(t, sh, "add "+filepath.Join(dir, "drawing.pdf")))
	require.NoError(t, run(t, sh, "upload"))

	out.Reset()
	require.NoError(t, run(t, sh, "view 1"))
	assert.Contains(t, out.String(), "1. Notes for drawing.pdf", "notes default to the text view")
	assert.Contains(t, out.String(), "landscape")

	out.Reset()
	require.NoError(t, run(t, sh, "view 1 image"))
	assert.Contains(t, out.String(), "3x2 px")

	require.NoError(t, run(t, sh, "save 1"))
	require.NoError(t, run(t, sh, "save 1 png"))
	assert.Equal(t, []string{"drawing_notes.txt", "drawing_notes_crop.png"}, ta.sink.Names())

	err := run(t, sh, "save-all")
	assert.ErrorIs(t, err, export.ErrBulkUnavailable)
}

func TestShell_PerRecordFailureIsData(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	var out bytes.Buffer
	sh := newShell(ta.app, &out)
	dir := writeFiles(t, "ok.pdf", "fail.pdf")

	require.NoError(t, run(t, sh, "add "+filepath.Join(dir, "*.pdf")))
	require.NoError(t, run(t, sh, "upload"))
	assert.NoError(t, ta.session.Err())

	failedIdx := 0
	if rec, _ := ta.session.Results().Record(0); rec.Success {
		failedIdx = 1
	}
	out.Reset()
	require.NoError(t, run(t, sh, "view "+strconv.Itoa(failedIdx+1)))
	assert.Contains(t, out.String(), "unreadable page")

	err := run(t, sh, "save "+strconv.Itoa(failedIdx+1))
	assert.ErrorIs(t, err, export.ErrRecordFailed)
	assert.False(t, ta.session.Results().BulkExportAvailable(), "one success is not enough for an archive")
}

func TestShell_ModeSwitchClearsEverything(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	sh := newShell(ta.app, io.Discard)
	dir := writeFiles(t, "a.pdf")

	require.NoError(t, run(t, sh, "add "+filepath.Join(dir, "a.pdf")))
	require.NoError(t, run(t, sh, "upload"))
	require.NoError(t, run(t, sh, "mode ocr"))
	assert.False(t, ta.session.Results().Empty(), "selecting the current mode changes nothing")

	require.NoError(t, run(t, sh, "mode notes"))
	snap := ta.session.Snapshot()
	assert.Empty(t, snap.Files)
	assert.False(t, snap.HasResults)
	assert.Equal(t, 0, snap.Progress)
}

func TestShell_FileCommands(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	var out bytes.Buffer
	sh := newShell(ta.app, &out)
	dir := writeFiles(t, "a.pdf", "b.pdf")

	require.NoError(t, run(t, sh, "add "+filepath.Join(dir, "a.pdf")+" "+filepath.Join(dir, "b.pdf")))
	out.Reset()
	require.NoError(t, run(t, sh, "add "+filepath.Join(dir, "a.pdf")), "re-adding a staged file is not an error")
	assert.Len(t, ta.session.Snapshot().Files, 2, "duplicates are dropped")
	assert.Contains(t, out.String(), "skipped 1 duplicate file(s)")

	require.NoError(t, run(t, sh, "rm 1"))
	files := ta.session.Snapshot().Files
	require.Len(t, files, 1)
	assert.Equal(t, "b.pdf", files[0].Name)

	assert.Error(t, run(t, sh, "rm 5"))
	assert.Error(t, run(t, sh, "rm zero"))

	require.NoError(t, run(t, sh, "clear"))
	assert.Empty(t, ta.session.Snapshot().Files)

	err := run(t, sh, "upload")
	assert.ErrorIs(t, err, services.ErrNothingToSubmit)
}

func TestStageFiles_EmptySelection(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	dir := writeFiles(t, "a.pdf", "readme.txt")

	note, err := stageFiles(ta.app, []string{filepath.Join(dir, "readme.txt")})
	assert.ErrorIs(t, err, errNoFiles)
	assert.EqualError(t, note, "skipped 1 unsupported file(s)")

	note, err = stageFiles(ta.app, []string{filepath.Join(dir, "a.pdf")})
	require.NoError(t, err)
	assert.NoError(t, note)

	note, err = stageFiles(ta.app, []string{filepath.Join(dir, "a.pdf")})
	require.NoError(t, err, "an all-duplicate add keeps the staged set")
	var verr *api.ValidationError
	require.ErrorAs(t, note, &verr)
	assert.Equal(t, 1, verr.Duplicates)
	assert.Len(t, ta.session.Snapshot().Files, 1)
}

func TestArchiveSet_ReplacedDuringExport(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	sh := newShell(ta.app, io.Discard)
	dir := writeFiles(t, "a.pdf", "b.pdf")

	require.NoError(t, run(t, sh, "add "+filepath.Join(dir, "*.pdf")))
	require.NoError(t, run(t, sh, "upload"))

	store := ta.session.Results()
	set := store.ExportSet()
	require.True(t, set.BulkExportAvailable())

	loc, replaced, err := archiveSet(context.Background(), ta.app, set)
	require.NoError(t, err)
	assert.False(t, replaced)
	assert.Contains(t, loc, "ocr_results_")

	store.Replace(&models.BatchResponse{
		Total:     1,
		Succeeded: 1,
		Results:   []models.ResultRecord{{Filename: "c.pdf", Success: true, MarkdownContent: "# c"}},
	}, models.ModeFullOCR)
	_, replaced, err = archiveSet(context.Background(), ta.app, set)
	require.NoError(t, err)
	assert.True(t, replaced, "a newer batch is reported against the older set")
}

func TestSaveResults(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	sh := newShell(ta.app, io.Discard)
	dir := writeFiles(t, "a.pdf", "b.pdf")

	require.NoError(t, run(t, sh, "add "+filepath.Join(dir, "*.pdf")))
	require.NoError(t, run(t, sh, "upload"))

	saved, err := saveResults(context.Background(), ta.app, models.ModeFullOCR, true)
	require.NoError(t, err)
	require.Len(t, saved, 1, "one archive for the whole batch")

	saved, err = saveResults(context.Background(), ta.app, models.ModeFullOCR, false)
	require.NoError(t, err)
	assert.Len(t, saved, 2)
	_, ok := ta.sink.Get("a.md")
	assert.True(t, ok)
}

func TestShell_UploadTimeoutHint(t *testing.T) {
	slow := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(slow.Close)

	ta := newTestApp(t, slow)
	ta.uploader = services.NewUploadOrchestrator(ta.session, ta.client, ta.eventBus, ta.logger, services.OrchestratorConfig{
		Timeout: func(int) time.Duration { return 50 * time.Millisecond },
	})
	var out bytes.Buffer
	sh := newShell(ta.app, &out)
	dir := writeFiles(t, "a.pdf")

	require.NoError(t, run(t, sh, "add "+filepath.Join(dir, "a.pdf")))
	err := run(t, sh, "upload")
	require.Error(t, err)
	assert.True(t, api.IsTimeout(err))
	assert.Contains(t, out.String(), "still staged")
	assert.Contains(t, out.String(), "did not answer in time")

	assert.Empty(t, failureHint(&api.ServerError{Message: "bad"}))
}

func TestShell_StatusShowsFreeSpace(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	ta.outDir = filepath.Join(t.TempDir(), "results")
	var out bytes.Buffer
	sh := newShell(ta.app, &out)

	require.NoError(t, run(t, sh, "status"))
	assert.Contains(t, out.String(), "Free:")
	assert.Contains(t, out.String(), ta.outDir)

	out.Reset()
	ta.outDir = ""
	require.NoError(t, run(t, sh, "status"))
	assert.NotContains(t, out.String(), "Free:", "object-storage targets have no local directory")
}

func TestAppClose_ReportsDroppedEvents(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	ta.eventBus = events.NewEventBus(1)
	_ = ta.eventBus.Subscribe(events.EventFilesChanged)
	for i := 0; i < 3; i++ {
		ta.eventBus.Publish(&events.FilesChangedEvent{BaseEvent: events.NewBase(events.EventFilesChanged), Count: i})
	}

	var buf bytes.Buffer
	ta.logger = logging.NewNopLogger()
	ta.logger.SetOutput(&buf)
	ta.Close()

	assert.Contains(t, buf.String(), "Slow subscribers missed events")
	assert.Equal(t, int64(2), ta.eventBus.GetDroppedEventCount())
}

func TestShell_MiscCommands(t *testing.T) {
	ta := newTestApp(t, fakeBackend(t))
	var out bytes.Buffer
	sh := newShell(ta.app, &out)

	quit, err := sh.exec(context.Background(), "quit")
	require.NoError(t, err)
	assert.True(t, quit)

	require.NoError(t, run(t, sh, ""))
	require.NoError(t, run(t, sh, "help"))
	assert.Contains(t, out.String(), "save-all")

	require.NoError(t, run(t, sh, "results"))
	assert.Contains(t, out.String(), "No results yet.")

	require.NoError(t, run(t, sh, "status"))
	assert.Contains(t, out.String(), "Full OCR")

	assert.Error(t, run(t, sh, "frobnicate"))
	assert.Error(t, run(t, sh, "mode pdf"))
	assert.Error(t, run(t, sh, "view 1"))
	assert.Error(t, run(t, sh, "copy"))
	assert.Equal(t, "[ocr] > ", sh.prompt())
}
