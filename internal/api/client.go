package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/babara6666/PDF-OCR-batch/internal/config"
	"github.com/babara6666/PDF-OCR-batch/internal/constants"
	"github.com/babara6666/PDF-OCR-batch/internal/http"
	"github.com/babara6666/PDF-OCR-batch/internal/logging"
	"github.com/babara6666/PDF-OCR-batch/internal/models"
	"github.com/babara6666/PDF-OCR-batch/internal/progress"
	"github.com/babara6666/PDF-OCR-batch/internal/version"
)

// Client talks to the OCR backend.
//
// Batch submissions go through the plain client and are never retried: a
// retry would re-run inference on every file. Only the idempotent health
// probe goes through go-retryablehttp.
type Client struct {
	httpClient   *nethttp.Client
	healthClient *retryablehttp.Client
	logger       *logging.Logger

	baseURL     string
	fullOCRPath string
	notesPath   string
	healthPath  string
	apiKey      string
}

// NewClient creates a client from configuration, with proxy support.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	httpClient, err := http.CreateOptimizedClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}
	return NewClientWithHTTP(cfg, httpClient, logger)
}

// NewClientWithHTTP creates a client that uses httpClient for every request.
func NewClientWithHTTP(cfg *config.Config, httpClient *nethttp.Client, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, config.ErrMissingAPIBaseURL
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{
		httpClient:   httpClient,
		healthClient: http.NewRetryableClient(httpClient, cfg.HealthRetries, logger),
		logger:       logger,
		baseURL:      strings.TrimRight(cfg.APIBaseURL, "/"),
		fullOCRPath:  cfg.FullOCRPath,
		notesPath:    cfg.NotesPath,
		healthPath:   cfg.HealthPath,
		apiKey:       cfg.APIKey,
	}, nil
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BatchRequest is one multi-file submission.
type BatchRequest struct {
	Mode        models.Mode
	Files       []models.SelectedFile
	IncludeCrop bool // Notes mode only

	// Progress receives file bytes as the transport consumes them. Optional.
	Progress *progress.Projector
	Reporter progress.Reporter
}

// Endpoint returns the full URL for a batch in mode.
func (c *Client) Endpoint(mode models.Mode, includeCrop bool) string {
	if mode == models.ModeNotesExtraction {
		q := url.Values{}
		q.Set(constants.IncludeCropParam, strconv.FormatBool(includeCrop))
		return c.baseURL + c.notesPath + "?" + q.Encode()
	}
	return c.baseURL + c.fullOCRPath
}

// SubmitBatch sends every file in one multipart request and decodes the
// batch response. The deadline comes from ctx. Errors are *ServerError,
// *TransportError or *RequestError.
func (c *Client) SubmitBatch(ctx context.Context, req BatchRequest) (*models.BatchResponse, error) {
	if len(req.Files) == 0 {
		return nil, &RequestError{Err: errors.New("batch has no files")}
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	length, err := multipartLength(mw.Boundary(), req.Files)
	if err != nil {
		return nil, &RequestError{Err: fmt.Errorf("failed to size request body: %w", err)}
	}

	endpoint := c.Endpoint(req.Mode, req.IncludeCrop)
	httpReq, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, endpoint, pr)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	httpReq.ContentLength = length
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	c.setHeaders(httpReq)

	writeErr := make(chan error, 1)
	go func() {
		err := writeMultipart(mw, req.Files, req.Progress, req.Reporter)
		pw.CloseWithError(err)
		writeErr <- err
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("files", len(req.Files)).
		Int64("bytes", length).
		Msg("Submitting batch")

	resp, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		// Unblock the writer if the transport gave up before draining the pipe
		pr.CloseWithError(doErr)
		if werr := <-writeErr; werr != nil && !errors.Is(werr, io.ErrClosedPipe) && !errors.Is(werr, doErr) {
			return nil, &RequestError{Err: werr}
		}
		return nil, &TransportError{Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: doErr}
	}
	defer resp.Body.Close()

	// The server may answer before consuming the whole body
	pr.CloseWithError(io.ErrClosedPipe)
	if werr := <-writeErr; werr == nil && req.Progress != nil {
		req.Progress.Complete()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeServerError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: err}
	}
	return decodeBatch(resp.StatusCode, body, len(req.Files))
}

// batchEnvelope accepts both the batch shape and the backend's global
// failure shape {"success": false, "error": "..."}.
type batchEnvelope struct {
	models.BatchResponse
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	Detail  json.RawMessage `json:"detail"`
}

func decodeBatch(status int, body []byte, submitted int) (*models.BatchResponse, error) {
	var env batchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ServerError{
			StatusCode: status,
			Message:    "invalid response from server",
			Err:        fmt.Errorf("%w: %v", models.ErrMalformedBatch, err),
		}
	}
	if env.Success != nil && !*env.Success && env.Results == nil {
		msg := env.Error
		if msg == "" {
			msg = statusText(status)
		}
		return nil, &ServerError{StatusCode: status, Message: msg}
	}

	resp := env.BatchResponse
	if err := resp.Validate(submitted); err != nil {
		return nil, &ServerError{StatusCode: status, Message: err.Error(), Err: err}
	}
	return &resp, nil
}

// decodeServerError extracts the message from {"detail": ...} or
// {"error": ...}, falling back to the status text.
func decodeServerError(resp *nethttp.Response) *ServerError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorBodyBytes))
	se := &ServerError{StatusCode: resp.StatusCode, Message: statusText(resp.StatusCode)}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return se
	}
	if msg := detailMessage(payload.Detail); msg != "" {
		se.Message = msg
	} else if payload.Error != "" {
		se.Message = payload.Error
	}
	return se
}

// detailMessage renders a FastAPI detail field: a string, or a list of
// validation objects with "msg" fields.
func detailMessage(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		var msgs []string
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return string(raw)
}

// Health probes the liveness endpoint. Non-2xx or no response returns an
// error wrapping ErrUnreachable.
func (c *Client) Health(ctx context.Context) (*models.HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return nil, &RequestError{Err: err}
	}
	c.setHeaders(req.Request)

	resp, err := c.healthClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, &TransportError{Timeout: errors.Is(ctx.Err(), context.DeadlineExceeded), Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, decodeServerError(resp))
	}

	var status models.HealthStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, constants.MaxErrorBodyBytes)).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &status, nil
}

func (c *Client) setHeaders(req *nethttp.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ocr-batch/"+version.Version)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
