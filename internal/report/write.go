package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/example/groupmsg/internal/domain/delivery"
)

type Options struct {
	Dir  string
	HTML bool
	// MetricsFile, when set, receives a Prometheus textfile for the run.
	MetricsFile string
}

// Files lists what Write produced.
type Files struct {
	Markdown string
	HTML     string
	Metrics  string
}

// Write stores rep under opts.Dir as run_<timestamp>.md and the optional extras.
func Write(rep delivery.RunReport, opts Options) (Files, error) {
	var files Files
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return files, fmt.Errorf("create report dir: %w", err)
	}
	base := filepath.Join(opts.Dir, "run_"+rep.StartedAt.UTC().Format("20060102T150405Z"))
	if rep.DryRun {
		base += "_dry"
	}

	md := Markdown(rep)
	files.Markdown = base + ".md"
	if err := os.WriteFile(files.Markdown, []byte(md), 0o644); err != nil {
		return files, fmt.Errorf("write report: %w", err)
	}

	if opts.HTML {
		html, err := HTML(md)
		if err != nil {
			return files, fmt.Errorf("render html report: %w", err)
		}
		files.HTML = base + ".html"
		if err := os.WriteFile(files.HTML, html, 0o644); err != nil {
			return files, fmt.Errorf("write html report: %w", err)
		}
	}

	if opts.MetricsFile != "" {
		m := NewMetrics()
		m.Observe(rep)
		if err := m.WriteTextfile(opts.MetricsFile); err != nil {
			return files, fmt.Errorf("write metrics: %w", err)
		}
		files.Metrics = opts.MetricsFile
	}
	return files, nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
