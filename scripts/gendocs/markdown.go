package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// generatedMarker flags files that must not be edited by hand.
const generatedMarker = "<!-- Code generated by scripts/gendocs. DO NOT EDIT. -->"

// MarkdownWriter accumulates a markdown document.
type MarkdownWriter struct {
	buf bytes.Buffer
}

// NewMarkdownWriter returns an empty writer.
func NewMarkdownWriter() *MarkdownWriter {
	return &MarkdownWriter{}
}

// Frontmatter writes a YAML frontmatter block.
func (w *MarkdownWriter) Frontmatter(title, description string) {
	fmt.Fprintf(&w.buf, "---\ntitle: %q\ndescription: %q\n---\n\n", title, description)
}

// GeneratedMarker writes the generated-file comment.
func (w *MarkdownWriter) GeneratedMarker() {
	w.buf.WriteString(generatedMarker + "\n\n")
}

// Header writes a heading of the given level.
func (w *MarkdownWriter) Header(level int, text string) {
	fmt.Fprintf(&w.buf, "%s %s\n\n", strings.Repeat("#", level), text)
}

// Paragraph writes a block of text.
func (w *MarkdownWriter) Paragraph(text string) {
	w.buf.WriteString(strings.TrimSpace(text) + "\n\n")
}

// CodeBlock writes a fenced code block.
func (w *MarkdownWriter) CodeBlock(lang, code string) {
	fmt.Fprintf(&w.buf, "```%s\n%s\n```\n\n", lang, strings.TrimRight(code, "\n"))
}

// BulletList writes one bullet per item.
func (w *MarkdownWriter) BulletList(items []string) {
	for _, item := range items {
		fmt.Fprintf(&w.buf, "- %s\n", item)
	}
	w.buf.WriteString("\n")
}

// Table writes a markdown table.
func (w *MarkdownWriter) Table(headers []string, rows [][]string) {
	t := table.NewWriter()
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)
	for _, r := range rows {
		row := make(table.Row, len(r))
		for i, c := range r {
			row[i] = c
		}
		t.AppendRow(row)
	}
	w.buf.WriteString(t.RenderMarkdown() + "\n\n")
}

// Bytes returns the document.
func (w *MarkdownWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// InlineCode wraps s in backticks.
func InlineCode(s string) string {
	return "`" + s + "`"
}

// cleanDescription flattens s to one line for table cells.
func cleanDescription(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
