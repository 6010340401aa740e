package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/babara6666/PDF-OCR-batch/internal/models"
	"github.com/babara6666/PDF-OCR-batch/internal/results"
)

// Output formats for batch summaries
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

func validateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

type recordSummary struct {
	Index             int     `json:"index" yaml:"index"`
	Filename          string  `json:"filename" yaml:"filename"`
	Success           bool    `json:"success" yaml:"success"`
	Error             string  `json:"error,omitempty" yaml:"error,omitempty"`
	ProcessingSeconds float64 `json:"processing_seconds,omitempty" yaml:"processing_seconds,omitempty"`
	Characters        int     `json:"characters" yaml:"characters"`
	Orientation       string  `json:"orientation,omitempty" yaml:"orientation,omitempty"`
	CropBBox          []int   `json:"crop_bbox,omitempty" yaml:"crop_bbox,flow,omitempty"`
	HasCrop           bool    `json:"has_crop,omitempty" yaml:"has_crop,omitempty"`
}

type batchSummary struct {
	Mode              string          `json:"mode" yaml:"mode"`
	Total             int             `json:"total" yaml:"total"`
	Succeeded         int             `json:"succeeded" yaml:"succeeded"`
	Failed            int             `json:"failed" yaml:"failed"`
	ProcessingSeconds float64         `json:"processing_seconds" yaml:"processing_seconds"`
	Records           []recordSummary `json:"records" yaml:"records"`
	Exports           []string        `json:"exports,omitempty" yaml:"exports,omitempty"`
}

func summarize(mode models.Mode, resp *models.BatchResponse) batchSummary {
	s := batchSummary{
		Mode:              mode.String(),
		Total:             resp.Total,
		Succeeded:         resp.Succeeded,
		Failed:            resp.Failed(),
		ProcessingSeconds: results.AggregateProcessingTime(resp.Results),
	}
	for i, r := range resp.Results {
		s.Records = append(s.Records, recordSummary{
			Index:             i + 1,
			Filename:          r.Filename,
			Success:           r.Success,
			Error:             r.Error,
			ProcessingSeconds: r.ProcessingSeconds(),
			Characters:        len([]rune(r.TextPayload(mode))),
			Orientation:       r.Orientation,
			CropBBox:          r.CropBBox,
			HasCrop:           r.HasCropImage(),
		})
	}
	return s
}

func printSummary(w io.Writer, format string, s batchSummary) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return printTable(w, s)
	}
}

func printTable(w io.Writer, s batchSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFILE\tTIME\tCHARS\tSTATUS")
	for _, r := range s.Records {
		status := green("ok")
		if !r.Success {
			status = red("failed") + " " + r.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%.1fs\t%d\t%s\n", r.Index, r.Filename, r.ProcessingSeconds, r.Characters, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts := fmt.Sprintf("%d succeeded", s.Succeeded)
	if s.Failed > 0 {
		counts += ", " + yellow(fmt.Sprintf("%d failed", s.Failed))
	}
	fmt.Fprintf(w, "\n%s %s of %d file(s), %.1fs server time\n", bold("Summary:"), counts, s.Total, s.ProcessingSeconds)

	if len(s.Exports) > 0 {
		fmt.Fprintln(w, bold("Saved:"))
		for _, e := range s.Exports {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return nil
}

// formatBytes renders a byte count for file listings.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
