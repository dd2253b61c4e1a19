// Package report renders persisted refinement traces as standalone
// HTML pages for review.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/refinery-ai/refinery/internal/trace"
)

// FromFile reads a trace file and renders it to HTML.
func FromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read trace: %w", err)
	}
	return Render(filepath.Base(path), string(data))
}

// Render converts a trace to a standalone HTML page. The trace's
// markdown-style markers render as headings and emphasis; epoch
// boundaries become sections.
func Render(title, traceText string) (string, error) {
	epochs, final, err := trace.Parse(traceText)
	if err != nil {
		return "", fmt.Errorf("parse trace: %w", err)
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n", title)
	for _, ep := range epochs {
		fmt.Fprintf(&md, "## Epoch %d\n\n", ep.N)
		md.WriteString("### Generated\n\n")
		md.WriteString(ep.Generated)
		md.WriteString("\n\n### Critiqued\n\n")
		md.WriteString(ep.Critiqued)
		fmt.Fprintf(&md, "\n\n**Grade:** %t\n\n", ep.Accepted)
	}
	if final != "" {
		md.WriteString("## Final Output\n\n")
		md.WriteString(final)
		md.WriteString("\n")
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}

	// Wrap in minimal HTML envelope.
	html := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family: sans-serif; font-size: 14px; line-height: 1.5; max-width: 60em; margin: 2em auto;">
%s
</body></html>`, title, buf.String())

	return html, nil
}
