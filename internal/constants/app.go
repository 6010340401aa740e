package constants

import (
	"time"
)

// Batch timeout policy. Backend inference latency scales with batch size, so a
// long-running request must not be mistaken for a hung connection.
const (
	// BatchTimeoutBase - fixed allowance for every batch (5 minutes)
	BatchTimeoutBase = 300_000 * time.Millisecond

	// BatchTimeoutPerFile - additional allowance per staged file (10 minutes)
	BatchTimeoutPerFile = 600_000 * time.Millisecond
)

// Accepted document types. Matched case-insensitively against the file
// extension or the MIME hint.
var (
	AllowedExtensions = []string{"pdf", "jpg", "jpeg", "png", "gif", "webp", "bmp", "tiff", "tif"}

	AllowedMIMETypes = []string{
		"application/pdf",
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/bmp",
		"image/tiff",
	}

	// ExtensionMIMETypes is the declared type of each allowlisted extension.
	ExtensionMIMETypes = map[string]string{
		"pdf":  "application/pdf",
		"jpg":  "image/jpeg",
		"jpeg": "image/jpeg",
		"png":  "image/png",
		"gif":  "image/gif",
		"webp": "image/webp",
		"bmp":  "image/bmp",
		"tiff": "image/tiff",
		"tif":  "image/tiff",
	}
)

// Backend endpoints (relative to the API base URL)
const (
	DefaultAPIBaseURL  = "http://localhost:8001"
	DefaultFullOCRPath = "/api/batch-upload"
	DefaultNotesPath   = "/api/notes/batch-extract"
	DefaultHealthPath  = "/api/health"

	// MultipartFileField - repeated form field carrying each document
	MultipartFileField = "files"

	// IncludeCropParam - query flag asking the notes endpoint for crop images
	IncludeCropParam = "include_crop"
)

// HTTP transport
const (
	HTTPDialTimeout           = 30 * time.Second
	HTTPDialKeepAlive         = 30 * time.Second
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPTLSHandshakeTimeout   = 30 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second

	// HealthCheckTimeout - per-attempt timeout of the liveness probe
	HealthCheckTimeout = 10 * time.Second

	// DefaultHealthRetries - retries for the liveness probe (not for batches)
	DefaultHealthRetries = 2

	// MaxErrorBodyBytes - cap on error payloads read from the backend
	MaxErrorBodyBytes = 64 << 10
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// ProgressUpdateInterval - interval for progress bar updates (250ms)
	ProgressUpdateInterval = 250 * time.Millisecond

	// ElapsedTickInterval - refresh interval of the processing indicator
	ElapsedTickInterval = 1 * time.Second

	// NonTTYHeartbeatInterval - how often a still-processing line is printed
	// when stderr is not a terminal
	NonTTYHeartbeatInterval = 30 * time.Second
)

// Export naming
const (
	MarkdownSuffix  = ".md"
	NotesSuffix     = "_notes.txt"
	NotesCropSuffix = "_notes_crop.png"

	// ArchivePrefix - bulk archives are named <prefix>_<timestamp>.zip
	ArchivePrefix = "ocr_results"
)
