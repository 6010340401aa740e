package http

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/babara6666/PDF-OCR-batch/internal/logging"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates authentication/authorization failure (403, expired token, bad SAS)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates network/connection issues
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (500, 502, 503, throttling)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates errors that should not be retried
	ErrorTypeFatal
)

// RetryConfig holds retry parameters for ExecuteWithRetry.
// Used by the object-storage export sinks and the health probe; batch
// submissions are never retried.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// OnRetry is an optional callback invoked before each retry attempt
	OnRetry func(attempt int, err error, errorType ErrorType)
}

// DefaultRetryConfig returns the policy used for export uploads.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   4,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// ClassifyError determines the error type for retry strategy.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}

	// Caller gave up; retrying cannot help
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())

	// AWS (ExpiredToken) and Azure (AuthenticationFailed, invalid SAS) credential errors
	for _, s := range []string{"expiredtoken", "expired", "invalid token", "403", "unauthorized",
		"authenticationfailed", "authentication failed", "invalid sas", "signature not valid", "authorization failure"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeCredential
		}
	}

	for _, s := range []string{"connection reset", "connection refused", "broken pipe", "i/o timeout",
		"tls handshake timeout", "unexpected eof", "eof"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeNetwork
		}
	}

	for _, s := range []string{"requesttimeout", "internalerror", "serviceunavailable", "service unavailable",
		"slowdown", "throttl", "serverbusy", "server busy", "operationtimeout",
		"429", "500", "502", "503", "504"} {
		if strings.Contains(errStr, s) {
			return ErrorTypeRetryable
		}
	}

	// Unknown errors - treat as fatal to avoid retrying on bad input
	return ErrorTypeFatal
}

// CalculateBackoff returns exponential backoff duration with full jitter.
//
// Formula: random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}

	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}

	return time.Duration(rand.Int63n(int64(base)))
}

// ExecuteWithRetry runs an operation with retry logic.
//
//   - Credential errors: retried once more after a short pause (SDK clients
//     refresh their own credentials)
//   - Network/Retryable errors: exponential backoff with full jitter
//   - Fatal errors and context cancellation: returned immediately
func ExecuteWithRetry(ctx context.Context, cfg RetryConfig, operation func(context.Context) error) error {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		errType := ClassifyError(err)
		if errType == ErrorTypeFatal {
			return err
		}
		if attempt == cfg.MaxRetries-1 {
			break
		}

		delay := CalculateBackoff(attempt, cfg.InitialDelay, cfg.MaxDelay)
		if errType == ErrorTypeCredential {
			delay = cfg.InitialDelay
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, errType)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxRetries, lastErr)
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// NewRetryableClient wraps base in a go-retryablehttp client for idempotent
// GETs. Any non-2xx status on the last attempt is returned to the caller
// as a response rather than an error.
func NewRetryableClient(base *nethttp.Client, retries int, logger *logging.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	if base != nil {
		rc.HTTPClient = base
	}
	rc.RetryMax = retries
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if logger != nil {
		rc.Logger = logging.RetryLogger{L: logger}
	} else {
		rc.Logger = nil
	}
	return rc
}

// checkRetry defers to retryablehttp's default policy, but never retries a
// cancelled context or a credential failure.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil && ClassifyError(err) == ErrorTypeCredential {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
