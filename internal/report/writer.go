package report

import (
	"io"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/ghprofile/internal/model"
)

// Writer defines the interface for report output.
// Implementations write run results in various formats.
type Writer interface {
	// Write outputs the report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.RunReport) (int, error)
}

// MultiWriter writes to multiple Writers, e.g. the terminal and a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(report *model.RunReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// resultText is the one-word verdict shared by every format.
func resultText(report *model.RunReport) string {
	switch {
	case report.State == model.StateFailed:
		return "FAILED"
	case report.Succeeded():
		return "SUCCESS"
	default:
		return "PARTIAL FAILURE"
	}
}

// transportText describes how the API was reached.
func transportText(report *model.RunReport) string {
	if report.Transport == "" {
		return "direct"
	}
	return report.Transport
}

// detailText returns the target and byte count of a successful outcome,
// or the failure reason.
func detailText(o model.Outcome) string {
	if !o.OK() {
		return o.Reason
	}
	if o.Bytes > 0 && o.Target != "" {
		return o.Target + " (" + humanize.Bytes(uint64(o.Bytes)) + ")"
	}
	return o.Target
}
