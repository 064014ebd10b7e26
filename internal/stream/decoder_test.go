// ABOUTME: Tests for the run stream frame decoder.
// ABOUTME: Covers chunk reassembly, malformed record recovery, and EOF handling.

package stream

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader yields its chunks one Read call at a time, then EOF.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func chunks(ss ...string) *chunkReader {
	cr := &chunkReader{}
	for _, s := range ss {
		cr.chunks = append(cr.chunks, []byte(s))
	}
	return cr
}

func collect(t *testing.T, d *Decoder) []Frame {
	t.Helper()
	var out []Frame
	for {
		fr, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, *fr)
	}
}

func TestNext_SingleRecordPerChunk(t *testing.T) {
	d := NewDecoder(chunks(
		"data: {\"type\":\"ai\",\"content\":\"Hel\"}\n",
		"data: {\"type\":\"ai\",\"content\":\"lo\"}\n",
	), nil)

	frames := collect(t, d)
	require.Len(t, frames, 2)
	assert.Equal(t, KindAssistant, frames[0].Kind)
	assert.Equal(t, "Hel", frames[0].Content)
	assert.Equal(t, "lo", frames[1].Content)
}

func TestNext_RecordSplitAcrossChunks(t *testing.T) {
	d := NewDecoder(chunks(
		"data: {\"type\":\"ai\",\"co",
		"ntent\":\"world\"}\ndata: {\"type\":\"ai\",\"content\":\"!\"}\n",
	), nil)

	frames := collect(t, d)
	require.Len(t, frames, 2)
	assert.Equal(t, "world", frames[0].Content)
	assert.Equal(t, "!", frames[1].Content)
}

func TestNext_PartialHeldUntilDelimiterArrives(t *testing.T) {
	d := NewDecoder(chunks(
		"data: {\"type\":\"ai\",\"content\":\"a\"}\ndata: {\"type\":\"ai\",\"content\":\"b\"}",
		"\n",
	), nil)

	fr, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", fr.Content)

	fr, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", fr.Content)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestNext_PartialTrailingRecordDiscardedAtEOF(t *testing.T) {
	d := NewDecoder(chunks(
		"data: {\"type\":\"ai\",\"content\":\"kept\"}\ndata: {\"type\":\"ai\",\"content\":\"trunc",
	), nil)

	frames := collect(t, d)
	require.Len(t, frames, 1)
	assert.Equal(t, "kept", frames[0].Content)
}

func TestNext_MalformedRecordSkipped(t *testing.T) {
	d := NewDecoder(chunks(
		"data: {not json}\n",
		"data: {\"type\":\"ai\",\"content\":\"ok\"}\n",
	), nil)

	frames := collect(t, d)
	require.Len(t, frames, 1)
	assert.Equal(t, "ok", frames[0].Content)
}

func TestNext_NonDataLinesIgnored(t *testing.T) {
	d := NewDecoder(chunks(
		"\n",
		": keepalive\n",
		"event: message\n",
		"data: {\"type\":\"ai\",\"content\":\"x\"}\r\n",
	), nil)

	frames := collect(t, d)
	require.Len(t, frames, 1)
	assert.Equal(t, "x", frames[0].Content)
}

func TestNext_NonAssistantKindsPassThrough(t *testing.T) {
	d := NewDecoder(chunks(
		"data: {\"type\":\"human\",\"content\":\"hi\"}\n",
		"data: {\"type\":\"tool\",\"content\":\"lookup\"}\n",
	), nil)

	frames := collect(t, d)
	require.Len(t, frames, 2)
	assert.Equal(t, KindHuman, frames[0].Kind)
	assert.Equal(t, KindTool, frames[1].Kind)
}

func TestNext_EmptyStream(t *testing.T) {
	d := NewDecoder(chunks(), nil)
	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

type failingReader struct{ after io.Reader }

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.after.Read(p)
	if errors.Is(err, io.EOF) {
		return n, errors.New("connection reset")
	}
	return n, err
}

func TestNext_MidStreamFailureSurfaced(t *testing.T) {
	d := NewDecoder(&failingReader{after: chunks("data: {\"type\":\"ai\",\"content\":\"partial\"}\n")}, nil)

	fr, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", fr.Content)

	_, err = d.Next()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}
