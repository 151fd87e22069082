package logging

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/yuya-takeyama/strict-dir-sync/internal/index"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/planner"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/session"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Printer writes human readable summaries of scans and copies
type Printer struct {
	out    io.Writer
	errOut io.Writer
	quiet  bool
}

// NewPrinter creates a printer. A quiet printer only prints summaries that contain failures.
func NewPrinter(out, errOut io.Writer, quiet bool) *Printer {
	return &Printer{out: out, errOut: errOut, quiet: quiet}
}

// Info prints a plain message unless quiet
func (p *Printer) Info(format string, args ...interface{}) {
	if !p.quiet {
		fmt.Fprintf(p.out, format+"\n", args...)
	}
}

func (p *Printer) Success(format string, args ...interface{}) {
	if !p.quiet {
		successColor.Fprintf(p.out, "✓ "+format+"\n", args...)
	}
}

func (p *Printer) Warning(format string, args ...interface{}) {
	warningColor.Fprintf(p.errOut, "⚠ "+format+"\n", args...)
}

// Error prints to errOut even when quiet
func (p *Printer) Error(format string, args ...interface{}) {
	errorColor.Fprintf(p.errOut, "✗ "+format+"\n", args...)
}

// ScanSummary prints the totals of a scan
func (p *Printer) ScanSummary(result *session.ScanResult) {
	if p.quiet && len(result.Failures) == 0 && result.ManifestErr == nil {
		return
	}

	fmt.Fprintln(p.out)
	headerColor.Fprintln(p.out, "=== Scan Summary ===")

	t := p.newTable()
	t.AppendHeader(table.Row{text.Bold.Sprint("Tree"), text.Bold.Sprint("Root"), text.Bold.Sprint("Files"), text.Bold.Sprint("Unique")})
	t.AppendRow(table.Row{"source", result.SourceRoot, result.SourceFiles, uniqueCount(result.Source)})
	t.AppendRow(table.Row{"target", result.TargetRoot, result.TargetFiles, uniqueCount(result.Target)})
	t.Render()

	fmt.Fprintf(p.out, "Missing: %d files (%s)\n", len(result.Missing), FormatBytes(result.Missing.TotalSize()))
	if len(result.Failures) > 0 {
		fmt.Fprintf(p.out, "Unreadable: %d files\n", len(result.Failures))
	}
	if result.ManifestErr != nil {
		fmt.Fprintf(p.out, "Manifest: not written (%v)\n", result.ManifestErr)
	} else if result.ManifestPath != "" {
		fmt.Fprintf(p.out, "Manifest: %s\n", result.ManifestPath)
	}
	fmt.Fprintf(p.out, "Duration: %s\n", result.Duration.Round(time.Millisecond))
}

// MissingFiles lists up to limit missing files; limit <= 0 lists all of them
func (p *Printer) MissingFiles(missing planner.MissingFileList, limit int) {
	if p.quiet || len(missing) == 0 {
		return
	}

	t := p.newTable()
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	t.AppendHeader(table.Row{text.Bold.Sprint("Missing file"), text.Bold.Sprint("Size")})
	for i, r := range missing {
		if limit > 0 && i == limit {
			t.AppendFooter(table.Row{fmt.Sprintf("... and %d more", len(missing)-limit), ""})
			break
		}
		t.AppendRow(table.Row{r.Path, FormatBytes(r.Size)})
	}
	t.Render()
}

// CopySummary prints the totals of a copy
func (p *Printer) CopySummary(report *executor.Report, duration time.Duration) {
	if p.quiet && report.Failed == 0 {
		return
	}

	fmt.Fprintln(p.out)
	headerColor.Fprintln(p.out, "=== Copy Summary ===")
	fmt.Fprintf(p.out, "Copied: %d files (%s)\n", report.Copied, FormatBytes(report.BytesCopied))
	fmt.Fprintf(p.out, "Skipped: %d files already present\n", report.Skipped)
	if report.Failed > 0 {
		errorColor.Fprintf(p.out, "Failed: %d\n", report.Failed)
	}
	fmt.Fprintf(p.out, "Duration: %s\n", duration.Round(time.Millisecond))
}

func (p *Printer) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	t.Style().Color.Row = text.Colors{text.Reset}
	return t
}

// uniqueCount is "-" for results loaded from a manifest, which carry no index
func uniqueCount(idx *index.Index) string {
	if idx == nil {
		return "-"
	}
	return fmt.Sprintf("%d", idx.Len())
}

// FormatBytes formats bytes in human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
