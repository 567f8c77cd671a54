// Package report renders a model.RunReport for people and tools.
//
// This package contains writers for different output formats:
//   - SimpleWriter: human-readable text for the terminal
//   - MarkdownWriter: Markdown for job summaries and issue comments
//   - JSONWriter: structured JSON for tool integration
//
// Writers implement the Writer interface, so they can be used
// interchangeably and composed with MultiWriter.
package report
