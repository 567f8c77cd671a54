package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/nao1215/ghprofile/internal/model"
)

const ruleWidth = 60

// SimpleWriter outputs human-readable text reports for the terminal.
// Markers are colored only when the output is a color-capable terminal.
type SimpleWriter struct {
	baseWriter

	// verbose prints diffs and the run identifier.
	verbose bool

	okStyle   lipgloss.Style
	failStyle lipgloss.Style
	warnStyle lipgloss.Style
	infoStyle lipgloss.Style
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	r := lipgloss.NewRenderer(output)
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		okStyle:    r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		failStyle:  r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		warnStyle:  r.NewStyle().Foreground(lipgloss.Color("214")),
		infoStyle:  r.NewStyle().Foreground(lipgloss.Color("39")),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeSteps(&sb, report)
	w.writeResult(&sb, report)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                  GHPROFILE RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "User:        %s\n", report.Username)
	if report.Repository != "" {
		fmt.Fprintf(sb, "Repository:  %s\n", report.Repository)
	}
	fmt.Fprintf(sb, "Transport:   %s\n", transportText(report))
	if report.DryRun {
		sb.WriteString("Mode:        dry run (nothing was written)\n")
	}
	fmt.Fprintf(sb, "Started:     %s\n", report.StartedAt.Format("2006-01-02 15:04:05 MST"))
	if d := report.Duration(); d > 0 {
		fmt.Fprintf(sb, "Duration:    %s\n", d.Round(time.Millisecond))
	}
	if w.verbose {
		fmt.Fprintf(sb, "Run ID:      %s\n", report.ID)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeSteps(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("STEPS\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")

	if len(report.Outcomes) == 0 {
		sb.WriteString("  No step was executed\n\n")
		return
	}

	for _, o := range report.Outcomes {
		status := string(o.Action)
		if !o.OK() {
			status = o.Kind.String()
		}
		line := fmt.Sprintf("%s %-16s %-20s %s", w.marker(o), o.Step, status, detailText(o))
		sb.WriteString(strings.TrimRight(line, " "))
		sb.WriteString("\n")

		if o.Diff != "" && (w.verbose || report.DryRun) {
			for _, l := range strings.Split(strings.TrimRight(o.Diff, "\n"), "\n") {
				sb.WriteString("    ")
				sb.WriteString(l)
				sb.WriteString("\n")
			}
		}
	}
	sb.WriteString("\n")
}

// marker returns the status marker of an outcome:
// [+] success, [*] nothing written, [!] non-deciding failure, [-] failure.
func (w *SimpleWriter) marker(o model.Outcome) string {
	switch {
	case o.OK() && (o.Action == model.ActionUnchanged || o.Action == model.ActionDryRun):
		return w.infoStyle.Render("[*]")
	case o.OK():
		return w.okStyle.Render("[+]")
	case o.Kind == model.FailureProxyControl || o.Step == model.StepIdentity:
		return w.warnStyle.Render("[!]")
	default:
		return w.failStyle.Render("[-]")
	}
}

func (w *SimpleWriter) writeResult(sb *strings.Builder, report *model.RunReport) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	verdict := resultText(report)
	style := w.okStyle
	if !report.Succeeded() {
		style = w.failStyle
	}
	fmt.Fprintf(sb, "RESULT: %s (%d succeeded, %d failed)\n",
		style.Render(verdict), report.Successes(), len(report.Failures()))
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}
