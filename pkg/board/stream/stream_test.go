package stream_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alex-tsiresy/lorebridge/pkg/board/stream"
)

// drip yields its input a few bytes at a time so event lines split across
// read boundaries.
type drip struct {
	data []byte
	pos  int
	step int
}

func (d *drip) Read(p []byte) (int, error) {
	if d.pos >= len(d.data) {
		return 0, io.EOF
	}
	end := d.pos + d.step
	if end > len(d.data) {
		end = len(d.data)
	}
	n := copy(p, d.data[d.pos:end])
	d.pos += n
	return n, nil
}

func collect(t *testing.T, r io.Reader) (string, error) {
	t.Helper()
	return stream.Collect(context.Background(), stream.Events(context.Background(), r))
}

func TestTokenStream(t *testing.T) {
	input := "data: {\"type\":\"token\",\"content\":\"A\"}\n" +
		"data: {\"type\":\"token\",\"content\":\"B\"}\n" +
		"data: [DONE]\n"

	content, err := collect(t, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "AB", content)
}

func TestChunkBoundariesSplitLines(t *testing.T) {
	input := "data: {\"type\":\"token\",\"content\":\"Hel\"}\n" +
		"data: {\"type\":\"token\",\"content\":\"lo\"}\n" +
		"data: [DONE]\n"

	// Every read boundary position must produce the same result.
	for step := 1; step <= 7; step++ {
		content, err := collect(t, &drip{data: []byte(input), step: step})
		require.NoError(t, err, "step %d", step)
		assert.Equal(t, "Hello", content, "step %d", step)
	}
}

func TestMalformedLinesSkipped(t *testing.T) {
	input := "data: {\"type\":\"token\",\"content\":\"A\"}\n" +
		"data: {not json at all\n" +
		": keep-alive comment\n" +
		"event: something-else\n" +
		"data: {\"type\":\"token\",\"content\":\"B\"}\n" +
		"data: [DONE]\n"

	content, err := collect(t, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "AB", content)
}

func TestErrorEventStopsStream(t *testing.T) {
	input := "data: {\"type\":\"token\",\"content\":\"A\"}\n" +
		"data: {\"type\":\"error\",\"error\":\"model overloaded\"}\n" +
		"data: {\"type\":\"token\",\"content\":\"B\"}\n"

	content, err := collect(t, strings.NewReader(input))
	require.Error(t, err)
	var srvErr *stream.ServerError
	require.True(t, errors.As(err, &srvErr))
	assert.Contains(t, srvErr.Message, "model overloaded")
	assert.Equal(t, "A", content)
}

func TestMissingDoneStillTerminates(t *testing.T) {
	input := "data: {\"type\":\"token\",\"content\":\"partial\"}\n"

	content, err := collect(t, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "partial", content)
}

func TestCRLFTolerated(t *testing.T) {
	input := "data: {\"type\":\"token\",\"content\":\"X\"}\r\ndata: [DONE]\r\n"

	content, err := collect(t, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "X", content)
}

func TestContextCancellationStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := stream.Events(ctx, strings.NewReader("data: {\"type\":\"token\",\"content\":\"A\"}\ndata: [DONE]\n"))
	_, err := stream.Collect(ctx, ch)
	assert.ErrorIs(t, err, context.Canceled)
}
