package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/ghprofile/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	indentPrefix string
	indentString string

	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the ghprofile version in the document.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport wraps a run report with derived fields so consumers need not
// recompute the verdict.
type JSONReport struct {
	Version   string           `json:"version,omitempty"`
	Result    string           `json:"result"`
	Succeeded bool             `json:"succeeded"`
	Successes int              `json:"successes"`
	Failures  int              `json:"failures"`
	Report    *model.RunReport `json:"report"`
}

// NewJSONReport builds the JSON document of report.
func NewJSONReport(report *model.RunReport, version string) *JSONReport {
	return &JSONReport{
		Version:   version,
		Result:    resultText(report),
		Succeeded: report.Succeeded(),
		Successes: report.Successes(),
		Failures:  len(report.Failures()),
		Report:    report,
	}
}

// Write outputs the report in JSON format.
func (w *JSONWriter) Write(report *model.RunReport) (int, error) {
	return w.writeJSON(NewJSONReport(report, w.version))
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}
