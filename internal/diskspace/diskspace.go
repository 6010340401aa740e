// Package diskspace checks free space on the filesystem an export is
// written to.
package diskspace

import (
	"errors"
	"fmt"
	"path/filepath"
)

// DefaultSafetyMargin adds 10% to the bytes an export needs.
const DefaultSafetyMargin = 1.1

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space for %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// availableFunc is swapped in tests.
var availableFunc = available

// CheckAvailableSpace returns an InsufficientSpaceError when the filesystem
// holding targetPath has less than requiredBytes*safetyMargin free. When the
// free space cannot be determined the check passes and the write is left to
// fail on its own.
func CheckAvailableSpace(targetPath string, requiredBytes int64, safetyMargin float64) error {
	avail, ok := availableFunc(filepath.Dir(targetPath))
	if !ok {
		return nil
	}

	required := int64(float64(requiredBytes) * safetyMargin)
	if avail < required {
		return &InsufficientSpaceError{
			Path:           targetPath,
			RequiredBytes:  required,
			AvailableBytes: avail,
		}
	}
	return nil
}

// GetAvailableSpace returns the free bytes for the filesystem containing
// path, or 0 when unknown.
func GetAvailableSpace(path string) int64 {
	avail, _ := availableFunc(filepath.Dir(path))
	return avail
}

// IsInsufficientSpaceError checks if an error is an InsufficientSpaceError
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}
