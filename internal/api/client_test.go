package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babara6666/PDF-OCR-batch/internal/config"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
	"github.com/babara6666/PDF-OCR-batch/internal/progress"
)

func memFile(name, content string) models.SelectedFile {
	return models.SelectedFile{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.APIBaseURL = srv.URL
	cfg.APIKey = "secret"
	cfg.HealthRetries = 1
	c, err := NewClientWithHTTP(cfg, srv.Client(), nil)
	require.NoError(t, err)
	c.healthClient.RetryWaitMin = time.Millisecond
	c.healthClient.RetryWaitMax = time.Millisecond
	return c
}

func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.APIBaseURL = ""
	_, err := NewClient(cfg, nil)
	assert.ErrorIs(t, err, config.ErrMissingAPIBaseURL)
}

func TestEndpoint(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.APIBaseURL = "http://gpu-box:8001/"
	c, err := NewClientWithHTTP(cfg, nethttp.DefaultClient, nil)
	require.NoError(t, err)

	assert.Equal(t, "http://gpu-box:8001/api/batch-upload", c.Endpoint(models.ModeFullOCR, true))
	assert.Equal(t, "http://gpu-box:8001/api/notes/batch-extract?include_crop=true", c.Endpoint(models.ModeNotesExtraction, true))
	assert.Equal(t, "http://gpu-box:8001/api/notes/batch-extract?include_crop=false", c.Endpoint(models.ModeNotesExtraction, false))
}

func TestSubmitBatch_MultipartAndOrder(t *testing.T) {
	var gotNames []string
	var gotAuth string
	var gotLength int64
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/api/batch-upload", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotLength = r.ContentLength

		require.NoError(t, r.ParseMultipartForm(1<<20))
		resp := models.BatchResponse{}
		for _, fh := range r.MultipartForm.File["files"] {
			gotNames = append(gotNames, fh.Filename)
			f, _ := fh.Open()
			data, _ := io.ReadAll(f)
			f.Close()
			resp.Results = append(resp.Results, models.ResultRecord{
				Filename:        fh.Filename,
				Success:         true,
				MarkdownContent: "# " + string(data),
			})
		}
		resp.Total = len(resp.Results)
		resp.Succeeded = resp.Total
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	files := []models.SelectedFile{
		memFile("b.pdf", "bbbb"),
		memFile(`we"ird.png`, "pp"),
		memFile("a.pdf", "aaaaaa"),
	}

	var percents []int
	proj := progress.NewProjector(12, func(p int) { percents = append(percents, p) })

	resp, err := c.SubmitBatch(context.Background(), BatchRequest{
		Mode:     models.ModeFullOCR,
		Files:    files,
		Progress: proj,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b.pdf", `we"ird.png`, "a.pdf"}, gotNames)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Greater(t, gotLength, int64(12), "content length must be declared")
	require.Len(t, resp.Results, 3)
	for i, f := range files {
		assert.Equal(t, f.Name, resp.Results[i].Filename)
	}
	assert.Equal(t, "# aaaaaa", resp.Results[2].MarkdownContent)
	assert.Equal(t, 100, proj.Percent())
	assert.Equal(t, 100, percents[len(percents)-1])
}

func TestSubmitBatch_NotesQueryFlag(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		assert.Equal(t, "/api/notes/batch-extract", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("include_crop"))
		_, _ = io.Copy(io.Discard, r.Body)
		fmt.Fprint(w, `{"results":[{"filename":"d.pdf","success":true,"notes_text":"1. NOTE","crop_image_b64":"iVBORw0KGgo=","orientation":"landscape","crop_bbox":[1,2,3,4]}],"total":1,"succeeded":1}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	resp, err := c.SubmitBatch(context.Background(), BatchRequest{
		Mode:        models.ModeNotesExtraction,
		Files:       []models.SelectedFile{memFile("d.pdf", "x")},
		IncludeCrop: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "1. NOTE", resp.Results[0].NotesText)
	assert.Equal(t, []int{1, 2, 3, 4}, resp.Results[0].CropBBox)
}

func TestSubmitBatch_ServerErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail string", 400, `{"detail":"No files provided"}`, "No files provided"},
		{"detail list", 422, `{"detail":[{"loc":["body","files"],"msg":"field required"}]}`, "field required"},
		{"global handler", 500, `{"success":false,"error":"CUDA out of memory"}`, "CUDA out of memory"},
		{"plain text", 502, `Bad Gateway`, "502 Bad Gateway"},
		{"success false with 200", 200, `{"success":false,"error":"model not loaded"}`, "model not loaded"},
		{"count mismatch", 200, `{"results":[],"total":0,"succeeded":0}`, "malformed batch response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).SubmitBatch(context.Background(), BatchRequest{
				Files: []models.SelectedFile{memFile("a.pdf", "a")},
			})
			var se *ServerError
			require.True(t, errors.As(err, &se), "got %T: %v", err, err)
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Contains(t, se.Error(), tt.want)
		})
	}
}

func TestSubmitBatch_MalformedIsServerError(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		fmt.Fprint(w, `{"results":[{"filename":"a.pdf","success":true}],"total":1,"succeeded":0}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).SubmitBatch(context.Background(), BatchRequest{
		Files: []models.SelectedFile{memFile("a.pdf", "a")},
	})
	assert.ErrorIs(t, err, models.ErrMalformedBatch)
}

func TestSubmitBatch_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv).SubmitBatch(ctx, BatchRequest{
		Files: []models.SelectedFile{memFile("a.pdf", "a")},
	})
	var te *TransportError
	require.True(t, errors.As(err, &te), "got %T: %v", err, err)
	assert.True(t, te.Timeout)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, MsgNoResponse, err.Error())
}

func TestSubmitBatch_UnreadableFileIsRequestError(t *testing.T) {
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	broken := models.SelectedFile{
		Name: "gone.pdf",
		Size: 10,
		Open: func() (io.ReadCloser, error) { return nil, errors.New("permission denied") },
	}
	_, err := newTestClient(t, srv).SubmitBatch(context.Background(), BatchRequest{
		Files: []models.SelectedFile{memFile("a.pdf", "a"), broken},
	})
	var re *RequestError
	require.True(t, errors.As(err, &re), "got %T: %v", err, err)
	assert.Contains(t, err.Error(), "permission denied")
}

func TestSubmitBatch_ConnectionRefusedIsTransportError(t *testing.T) {
	srv := httptest.NewServer(nethttp.NotFoundHandler())
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.SubmitBatch(context.Background(), BatchRequest{
		Files: []models.SelectedFile{memFile("a.pdf", "a")},
	})
	var te *TransportError
	require.True(t, errors.As(err, &te), "got %T: %v", err, err)
	assert.False(t, te.Timeout)
}

func TestHealth(t *testing.T) {
	var hits atomic.Int32
	var unhealthy atomic.Bool
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/health", r.URL.Path)
		if unhealthy.Load() {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"status":"healthy","model_loaded":true,"device":"cuda"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	status, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy())
	assert.True(t, status.ModelLoaded)
	assert.Equal(t, "cuda", status.Device)

	unhealthy.Store(true)
	hits.Store(0)
	_, err = c.Health(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, int32(2), hits.Load(), "one retry on 503")
}

func TestValidationError(t *testing.T) {
	assert.NoError(t, NewValidationError(0, 0))
	assert.EqualError(t, NewValidationError(2, 0), "skipped 2 unsupported file(s)")
	assert.EqualError(t, NewValidationError(0, 1), "skipped 1 duplicate file(s)")
	assert.EqualError(t, NewValidationError(1, 1), "skipped 1 unsupported and 1 duplicate file(s)")
}
