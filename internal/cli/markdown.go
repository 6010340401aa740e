package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// markdownRenderer renders Full OCR results for the terminal preview view.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
}

// newMarkdownRenderer picks the plain style when colors are disabled or
// stdout is not a terminal.
func newMarkdownRenderer() (*markdownRenderer, error) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w - 4
		if width > 120 {
			width = 120
		}
	}

	style := glamour.WithStandardStyle("dark")
	if color.NoColor {
		style = glamour.WithStandardStyle("notty")
	}

	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &markdownRenderer{renderer: r}, nil
}

// Render falls back to the raw text if glamour fails.
func (m *markdownRenderer) Render(content string) string {
	if content == "" || m == nil || m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return out
}
