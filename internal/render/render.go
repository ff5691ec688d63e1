// Package render converts explanation Markdown into HTML.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders GitHub-flavoured Markdown. Raw HTML in the source is
// omitted from the output.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a Markdown renderer.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

// Render returns the HTML for the given Markdown text.
func (m *Markdown) Render(text string) (string, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}
