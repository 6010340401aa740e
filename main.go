// ocr-batch - Batch OCR and notes extraction client
//
// - No args + interactive terminal → shell mode
// - No args + no terminal → CLI help
// - Subcommands/flags → CLI mode
package main

import (
	"os"

	"golang.org/x/term"

	"github.com/babara6666/PDF-OCR-batch/internal/cli"
)

func main() {
	if isShellMode() {
		os.Args = append(os.Args, "shell")
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// isShellMode reports whether a bare invocation should open the
// interactive shell instead of printing help.
func isShellMode() bool {
	if len(os.Args) != 1 {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
