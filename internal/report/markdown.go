package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/ghprofile/internal/model"
)

// syntaxDiff highlights unified diffs in fenced code blocks.
const syntaxDiff markdown.SyntaxHighlight = "diff"

// MarkdownWriter outputs reports in Markdown format, suitable for a job
// summary or an issue comment.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSteps(md, report)
	w.writeAlert(md, report)
	w.writeDiffs(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.RunReport) {
	md.H1("ghprofile Run Report")
	md.PlainText("")

	rows := [][]string{
		{"User", "`" + report.Username + "`"},
	}
	if report.Repository != "" {
		rows = append(rows, []string{"Repository", "`" + report.Repository + "`"})
	}
	rows = append(rows,
		[]string{"Transport", transportText(report)},
		[]string{"Dry Run", strconv.FormatBool(report.DryRun)},
		[]string{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		[]string{"Duration", report.Duration().Round(time.Millisecond).String()},
		[]string{"Result", resultText(report)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSteps(md *markdown.Markdown, report *model.RunReport) {
	md.H2("Steps")
	md.PlainText("")

	if len(report.Outcomes) == 0 {
		md.PlainText("No step was executed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		status := "✅ " + string(o.Action)
		if !o.OK() {
			status = "❌ " + o.Kind.String()
		}
		detail := detailText(o)
		if detail == "" {
			detail = "-"
		}
		rows = append(rows, []string{string(o.Step), status, escapeCell(detail)})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Step", "Status", "Detail"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.RunReport) {
	failures := report.Failures()
	switch {
	case report.State == model.StateFailed:
		md.Cautionf("The run stopped early: %d step(s) failed before any profile change.", len(failures))
	case len(failures) > 0:
		md.Warningf("%d step(s) failed. The remaining steps completed.", len(failures))
	case report.DryRun:
		md.Note("Dry run: nothing was written to the profile.")
	default:
		md.Tip("Profile updated successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeDiffs(md *markdown.Markdown, report *model.RunReport) {
	for _, o := range report.Outcomes {
		if o.Diff == "" {
			continue
		}
		md.H3("Changes: " + string(o.Step))
		md.PlainText("")
		md.CodeBlocks(syntaxDiff, o.Diff)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [ghprofile](https://github.com/nao1215/ghprofile)*")
}

// escapeCell keeps a value inside one table cell.
func escapeCell(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '|':
			out = append(out, '\\', '|')
		case '\n', '\r':
			out = append(out, ' ')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
