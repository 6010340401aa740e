//go:build !windows

package progress

import "io"

// enableANSI is a no-op; Unix terminals support ANSI natively.
func enableANSI(io.Writer) {}
