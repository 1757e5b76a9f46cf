// Package stream reads newline-delimited token streams from the artefact
// derivation endpoints.
//
// The wire format is server-sent-events flavored: each event is a line
// prefixed "data: " followed by a JSON payload, terminated by a literal
// "data: [DONE]" line:
//
//	data: {"type":"token","content":"Hel"}
//	data: {"type":"token","content":"lo"}
//	data: [DONE]
//
// Chunk boundaries may split a line anywhere; the reader buffers partial
// lines across reads. Malformed or incomplete JSON payloads are skipped
// silently rather than aborting the stream.
package stream

import (
	"bufio"
	"context"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// doneMarker terminates a stream.
const doneMarker = "[DONE]"

// dataPrefix introduces an event line. Lines without it (comments, other
// SSE fields, keep-alives) are ignored.
const dataPrefix = "data: "

// maxLineSize bounds a single event line. Token payloads are small; this
// guards against a misbehaving upstream.
const maxLineSize = 1 << 20

// Chunk is a piece of a streaming response.
type Chunk struct {
	// Token is the content fragment for token events.
	Token string

	// Done is true for the final chunk.
	Done bool

	// Err is non-nil if the stream failed or the server sent an error event.
	Err error
}

// payload is the JSON body of a single event line.
type payload struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServerError is an error event sent by the backend inside the stream.
type ServerError struct {
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return "stream error event: " + e.Message
}

// Events reads the stream from r and delivers chunks on the returned
// channel. The channel is closed after the Done chunk (or an error chunk).
//
// Cancelling ctx stops delivery; the caller owns r and must close it.
// A stream that ends without a "[DONE]" line still yields a final Done
// chunk so consumers always observe termination.
func Events(ctx context.Context, r io.Reader) <-chan Chunk {
	ch := make(chan Chunk)

	go func() {
		defer close(ch)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if !strings.HasPrefix(line, dataPrefix) {
				continue
			}
			body := line[len(dataPrefix):]

			if body == doneMarker {
				emit(ctx, ch, Chunk{Done: true})
				return
			}

			var p payload
			if err := json.Unmarshal([]byte(body), &p); err != nil {
				// Malformed or truncated payload. Skip it.
				continue
			}

			switch p.Type {
			case "token":
				if p.Content == "" {
					continue
				}
				if !emit(ctx, ch, Chunk{Token: p.Content}) {
					return
				}
			case "error":
				emit(ctx, ch, Chunk{Err: &ServerError{Message: p.Error}})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			emit(ctx, ch, Chunk{Err: err})
			return
		}

		// Stream ended without a done marker.
		emit(ctx, ch, Chunk{Done: true})
	}()

	return ch
}

// emit delivers a chunk, honoring context cancellation.
// Returns false if the context was cancelled.
func emit(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains a chunk channel and returns the accumulated content.
// Useful for callers that don't need incremental delivery.
func Collect(ctx context.Context, ch <-chan Chunk) (string, error) {
	var sb strings.Builder
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Err != nil {
				return sb.String(), chunk.Err
			}
			if chunk.Done {
				return sb.String(), nil
			}
			sb.WriteString(chunk.Token)
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		}
	}
}
