// Package config provides configuration management for ocr-batch.
package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/babara6666/PDF-OCR-batch/internal/constants"
)

// Export targets
const (
	ExportTargetDir   = "dir"
	ExportTargetS3    = "s3"
	ExportTargetAzure = "azure"
)

// Config represents the client configuration
type Config struct {
	// Backend endpoints
	APIBaseURL  string
	FullOCRPath string
	NotesPath   string
	HealthPath  string

	// APIKey is sent as a bearer token when set. Never read from or
	// written to the config file.
	APIKey string

	// Request options
	IncludeCrop   bool // Ask the notes endpoint for crop images
	HealthRetries int  // Retries of the liveness probe; batches are never retried

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// Export settings
	OutputDir    string // Local directory for the "dir" export target
	ExportTarget string // "dir", "s3" or "azure"

	// ObjectPrefix is prepended to object keys for the s3 and azure targets.
	ObjectPrefix string

	S3Bucket   string
	S3Region   string
	S3Endpoint string // S3-compatible endpoint (MinIO); path-style addressing is used when set

	// Static S3 credentials. When unset the default AWS chain applies.
	S3AccessKeyID     string
	S3SecretAccessKey string // Never written to the config file

	AzureAccountURL string // https://<account>.blob.core.windows.net
	AzureContainer  string
	AzureSASToken   string // Never written to the config file

	// MetricsFile, when set, receives a Prometheus textfile after each batch.
	MetricsFile string

	// Notify sends a desktop notification when a batch finishes.
	Notify bool
}

// Validation errors
var (
	ErrMissingAPIBaseURL   = errors.New("api_base_url is required")
	ErrInvalidAPIBaseURL   = errors.New("api_base_url must be an http(s) URL")
	ErrInvalidExportTarget = errors.New("export_target must be one of dir, s3, azure")
	ErrMissingS3Bucket     = errors.New("s3_bucket is required when export_target is s3")
	ErrMissingAzureTarget  = errors.New("azure_account_url and azure_container are required when export_target is azure")
	ErrInvalidProxyMode    = errors.New("proxy_mode must be one of no-proxy, system, basic, ntlm")
)

// NewDefaultConfig returns a Config populated with defaults.
func NewDefaultConfig() *Config {
	return &Config{
		APIBaseURL:    constants.DefaultAPIBaseURL,
		FullOCRPath:   constants.DefaultFullOCRPath,
		NotesPath:     constants.DefaultNotesPath,
		HealthPath:    constants.DefaultHealthPath,
		IncludeCrop:   true,
		HealthRetries: constants.DefaultHealthRetries,
		ProxyMode:     "no-proxy",
		OutputDir:     ".",
		ExportTarget:  ExportTargetDir,
	}
}

// LoadConfigCSV loads configuration from a CSV file
// CSV format: key,value pairs
func LoadConfigCSV(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // Return defaults if config doesn't exist
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read config CSV: %w", err)
	}

	for i, record := range records {
		if i == 0 && len(record) >= 2 && strings.ToLower(record[0]) == "key" {
			continue
		}
		if len(record) < 2 {
			continue
		}

		key := strings.TrimSpace(strings.ToLower(record[0]))
		value := strings.TrimSpace(record[1])

		switch key {
		case "api_base_url":
			cfg.APIBaseURL = value
		case "full_ocr_path":
			cfg.FullOCRPath = value
		case "notes_path":
			cfg.NotesPath = value
		case "health_path":
			cfg.HealthPath = value
		case "include_crop":
			cfg.IncludeCrop = parseBool(value)
		case "health_retries":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.HealthRetries = v
			}
		case "proxy_mode":
			cfg.ProxyMode = value
		case "proxy_host":
			cfg.ProxyHost = value
		case "proxy_port":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.ProxyPort = v
			}
		case "proxy_user":
			cfg.ProxyUser = value
		case "proxy_password":
			// Secrets are entered at runtime, never stored in the config file
			if value != "" {
				log.Printf("[WARN] proxy_password in config file is ignored for security - use the runtime prompt")
			}
		case "no_proxy":
			cfg.NoProxy = value
		case "proxy_warmup":
			cfg.ProxyWarmup = parseBool(value)
		case "api_key":
			if value != "" {
				log.Printf("[WARN] api_key in config file is ignored for security - use OCR_BATCH_API_KEY")
			}
		case "output_dir":
			cfg.OutputDir = value
		case "export_target":
			cfg.ExportTarget = strings.ToLower(value)
		case "s3_bucket":
			cfg.S3Bucket = value
		case "object_prefix":
			cfg.ObjectPrefix = value
		case "s3_region":
			cfg.S3Region = value
		case "s3_endpoint":
			cfg.S3Endpoint = value
		case "s3_access_key_id":
			cfg.S3AccessKeyID = value
		case "s3_secret_access_key":
			if value != "" {
				log.Printf("[WARN] s3_secret_access_key in config file is ignored for security - use OCR_BATCH_S3_SECRET_ACCESS_KEY")
			}
		case "azure_account_url":
			cfg.AzureAccountURL = value
		case "azure_container":
			cfg.AzureContainer = value
		case "azure_sas_token":
			if value != "" {
				log.Printf("[WARN] azure_sas_token in config file is ignored for security - use AZURE_STORAGE_SAS_TOKEN")
			}
		case "metrics_file":
			cfg.MetricsFile = value
		case "notify":
			cfg.Notify = parseBool(value)
		}
	}

	return cfg, nil
}

// SaveConfigCSV saves configuration to a CSV file
// CSV format: key,value pairs
func SaveConfigCSV(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"key", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// api_key, proxy_password, s3_secret_access_key and azure_sas_token are intentionally not saved
	records := [][]string{
		{"api_base_url", cfg.APIBaseURL},
		{"full_ocr_path", cfg.FullOCRPath},
		{"notes_path", cfg.NotesPath},
		{"health_path", cfg.HealthPath},
		{"include_crop", strconv.FormatBool(cfg.IncludeCrop)},
		{"health_retries", strconv.Itoa(cfg.HealthRetries)},
		{"proxy_mode", cfg.ProxyMode},
		{"proxy_host", cfg.ProxyHost},
		{"proxy_port", strconv.Itoa(cfg.ProxyPort)},
		{"proxy_user", cfg.ProxyUser},
		{"no_proxy", cfg.NoProxy},
		{"proxy_warmup", strconv.FormatBool(cfg.ProxyWarmup)},
		{"output_dir", cfg.OutputDir},
		{"export_target", cfg.ExportTarget},
		{"object_prefix", cfg.ObjectPrefix},
		{"s3_bucket", cfg.S3Bucket},
		{"s3_region", cfg.S3Region},
		{"s3_endpoint", cfg.S3Endpoint},
		{"s3_access_key_id", cfg.S3AccessKeyID},
		{"azure_account_url", cfg.AzureAccountURL},
		{"azure_container", cfg.AzureContainer},
		{"metrics_file", cfg.MetricsFile},
		{"notify", strconv.FormatBool(cfg.Notify)},
	}

	for _, record := range records {
		// include_crop is written even when false so a saved "false" survives reload
		if record[0] != "include_crop" && (record[1] == "" || record[1] == "0" || record[1] == "false") {
			continue
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	return nil
}

// MergeWithEnv applies environment overrides.
// Priority (highest to lowest): flags > environment > config file > defaults.
// Flags are applied by the CLI after this call.
func (c *Config) MergeWithEnv() {
	if v := os.Getenv("OCR_BATCH_API_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("OCR_BATCH_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("OCR_BATCH_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("OCR_BATCH_PROXY_PASSWORD"); v != "" {
		c.ProxyPassword = v
	}
	if v := os.Getenv("OCR_BATCH_S3_SECRET_ACCESS_KEY"); v != "" {
		c.S3SecretAccessKey = v
	}
	if v := os.Getenv("AZURE_STORAGE_SAS_TOKEN"); v != "" {
		c.AzureSASToken = v
	}
	if envProxy := os.Getenv("HTTPS_PROXY"); envProxy != "" && c.ProxyHost == "" && c.ProxyMode == "no-proxy" {
		c.ProxyMode = "system"
	}

	if c.APIBaseURL != "" && !strings.HasPrefix(c.APIBaseURL, "http") {
		c.APIBaseURL = "http://" + c.APIBaseURL
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return ErrMissingAPIBaseURL
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidAPIBaseURL, c.APIBaseURL)
	}

	switch strings.ToLower(c.ProxyMode) {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProxyMode, c.ProxyMode)
	}

	switch c.ExportTarget {
	case "", ExportTargetDir:
	case ExportTargetS3:
		if c.S3Bucket == "" {
			return ErrMissingS3Bucket
		}
	case ExportTargetAzure:
		if c.AzureAccountURL == "" || c.AzureContainer == "" {
			return ErrMissingAzureTarget
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidExportTarget, c.ExportTarget)
	}
	return nil
}

func parseBool(value string) bool {
	v := strings.ToLower(value)
	return v == "true" || v == "1" || v == "yes"
}

// ConfigDir is the standard configuration directory name
const ConfigDir = "ocr-batch"

// getConfigDir returns the platform-appropriate config directory.
// - Windows: %APPDATA%\ocr-batch
// - Unix: ~/.config/ocr-batch (XDG standard)
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, ConfigDir)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", ConfigDir)
	}
	return ""
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	configDir := getConfigDir()
	if configDir == "" {
		return "config.csv"
	}
	return filepath.Join(configDir, "config.csv")
}
