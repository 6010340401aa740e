package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// FailureAction represents the user's choice after a failed batch
type FailureAction int

const (
	FailureRetry FailureAction = iota
	FailureAbort
)

// promptBatchFailure asks whether to resubmit the same files after a
// top-level failure. Staged files survive a failure, so a retry sends the
// identical batch.
func promptBatchFailure(in io.Reader, out io.Writer, err error) (FailureAction, error) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "\nBatch failed: %v\n", err)
		fmt.Fprintln(out, "What would you like to do?")
		fmt.Fprintln(out, "  1. Retry - Submit the same files again")
		fmt.Fprintln(out, "  2. Abort - Exit without results")
		fmt.Fprint(out, "Choose [1-2]: ")

		input, readErr := reader.ReadString('\n')
		if readErr != nil && input == "" {
			return FailureAbort, readErr
		}

		switch strings.TrimSpace(input) {
		case "1":
			return FailureRetry, nil
		case "2", "":
			return FailureAbort, nil
		default:
			fmt.Fprintln(out, "Invalid choice, please try again.")
		}
	}
}

// promptLine prints label and returns the trimmed answer, or def when the
// answer is empty.
func promptLine(reader *bufio.Reader, out io.Writer, label, def string) string {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(out, "%s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	return input
}

// promptYesNo returns def on an empty answer.
func promptYesNo(reader *bufio.Reader, out io.Writer, label string, def bool) bool {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(out, "%s [%s]: ", label, hint)
	input, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

// promptPassword reads a secret from the terminal without echo.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; set OCR_BATCH_PROXY_PASSWORD instead")
	}
	fmt.Fprint(os.Stderr, label)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// stdinIsTerminal reports whether interactive prompts can be shown.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
