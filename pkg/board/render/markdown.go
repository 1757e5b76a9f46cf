// Package render turns accumulated streamed text into presentable content:
// HTML from markdown for document nodes, a typed table from JSON for table
// nodes, and validated diagram source for graph nodes.
package render

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// md is the shared markdown converter. GFM tables and strikethrough show up
// routinely in generated documents.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// Markdown converts markdown source to HTML.
// Partial documents mid-stream convert fine; markdown has no hard syntax
// errors, so this never needs progressive validation.
func Markdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}
