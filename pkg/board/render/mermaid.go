package render

import (
	"strings"

	berrors "github.com/alex-tsiresy/lorebridge/pkg/board/errors"
)

// rendererName identifies the diagram renderer in error messages so the
// derivation layer can recognize diagram failures and apply its one-shot
// automatic regeneration.
const rendererName = "Mermaid"

// diagramKeywords are the diagram types the renderer accepts. The first
// non-empty, non-comment line of valid source must start with one of these.
var diagramKeywords = []string{
	"graph",
	"flowchart",
	"sequenceDiagram",
	"classDiagram",
	"stateDiagram",
	"erDiagram",
	"gantt",
	"pie",
	"mindmap",
	"journey",
	"timeline",
}

// errorMarkers are substrings that identify erroneous renderer output.
// Some failure modes render as valid-looking markup that embeds an error
// message instead of failing outright, so output is scanned after rendering.
var errorMarkers = []string{
	"Syntax error in graph",
	"Parse error on line",
	"Error parsing",
	"mermaid.parseError",
}

// ValidateDiagram pre-validates diagram source before any render attempt.
//
// This is a cheap structural check, not a full parse: the first directive
// line must name a known diagram type and bracket pairs must balance. The
// renderer itself is the authority; this catches the common failure of a
// model emitting prose instead of diagram source.
func ValidateDiagram(source string) error {
	directive := firstDirective(source)
	if directive == "" {
		return &berrors.RenderError{
			Renderer: rendererName,
			Message:  "empty diagram source",
		}
	}

	known := false
	for _, kw := range diagramKeywords {
		if strings.HasPrefix(directive, kw) {
			known = true
			break
		}
	}
	if !known {
		return &berrors.RenderError{
			Renderer: rendererName,
			Message:  "unknown diagram type in: " + truncate(directive, 60),
		}
	}

	if err := checkBrackets(source); err != nil {
		return err
	}

	return nil
}

// CheckRenderOutput scans rendered output for known error markers.
// Marker hits are treated as render failure, not success.
func CheckRenderOutput(output string) error {
	for _, marker := range errorMarkers {
		if strings.Contains(output, marker) {
			return &berrors.RenderError{
				Renderer: rendererName,
				Message:  "renderer output contains error marker: " + marker,
			}
		}
	}
	return nil
}

// firstDirective returns the first line of source that is neither blank nor
// a %% comment, with surrounding whitespace removed.
func firstDirective(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "%%") {
			continue
		}
		return trimmed
	}
	return ""
}

// checkBrackets verifies bracket pairs balance across the whole source.
// Unbalanced brackets are the most common symptom of a truncated stream.
func checkBrackets(source string) error {
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	var stack []rune

	for _, r := range source {
		switch r {
		case '(', '[', '{':
			stack = append(stack, r)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return &berrors.RenderError{
					Renderer: rendererName,
					Message:  "unbalanced brackets in diagram source",
				}
			}
			stack = stack[:len(stack)-1]
		}
	}

	if len(stack) > 0 {
		return &berrors.RenderError{
			Renderer: rendererName,
			Message:  "unclosed brackets in diagram source",
		}
	}
	return nil
}

// truncate shortens s to at most n runes for error messages.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
