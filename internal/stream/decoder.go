// ABOUTME: Decodes the backend's run stream into discrete tagged frames.
// ABOUTME: Handles chunk boundaries that do not align with record boundaries.

package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// Kind tags a decoded frame. The backend emits a small closed set of record
// types; only assistant frames carry conversation text today.
type Kind string

const (
	// KindAssistant carries a fragment of assistant response text.
	KindAssistant Kind = "ai"
	// KindHuman echoes user input back on the stream.
	KindHuman Kind = "human"
	// KindTool reports tool activity inside the agent.
	KindTool Kind = "tool"
)

// Frame is one decoded record from the run stream.
type Frame struct {
	Kind    Kind   `json:"type"`
	Content string `json:"content"`
}

// recordPrefix marks a data record line. Lines without it (blank separators,
// comments) are skipped.
const recordPrefix = "data: "

// Decoder converts a continuous byte stream into a finite sequence of
// Frames. Input bytes arrive at arbitrary chunk boundaries; a trailing
// partial record is held back until its terminating newline arrives.
// Malformed records are logged and skipped without failing the stream.
// A Decoder is single-use: once Next returns io.EOF or an error, the
// sequence is over.
type Decoder struct {
	r       io.Reader
	carry   []byte
	pending []Frame
	buf     []byte
	done    bool
	logger  *slog.Logger
}

// NewDecoder creates a decoder over r. Pass nil logger for the default.
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		r:      r,
		buf:    make([]byte, 4096),
		logger: logger.With("component", "stream"),
	}
}

// Next returns the next decoded frame. It returns io.EOF when the underlying
// stream has ended; any partial trailing record is discarded at that point.
// Any other error is a transport failure mid-stream.
func (d *Decoder) Next() (*Frame, error) {
	for {
		if len(d.pending) > 0 {
			fr := d.pending[0]
			d.pending = d.pending[1:]
			return &fr, nil
		}
		if d.done {
			return nil, io.EOF
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.carry = append(d.carry, d.buf[:n]...)
			d.splitCarry()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.done = true
				if len(d.carry) > 0 {
					d.logger.Debug("discarding partial trailing record", "bytes", len(d.carry))
					d.carry = nil
				}
				continue
			}
			return nil, err
		}
	}
}

// splitCarry decodes every complete newline-terminated record in the carry
// buffer and retains the trailing partial record for the next chunk.
func (d *Decoder) splitCarry() {
	for {
		idx := bytes.IndexByte(d.carry, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimRight(string(d.carry[:idx]), "\r")
		d.carry = d.carry[idx+1:]

		if fr, ok := d.decodeRecord(line); ok {
			d.pending = append(d.pending, fr)
		}
	}
}

// decodeRecord parses one line into a Frame. Lines without the data prefix
// and records that fail to parse as well-formed JSON are dropped.
func (d *Decoder) decodeRecord(line string) (Frame, bool) {
	if !strings.HasPrefix(line, recordPrefix) {
		return Frame{}, false
	}
	payload := strings.TrimPrefix(line, recordPrefix)

	var fr Frame
	if err := json.Unmarshal([]byte(payload), &fr); err != nil {
		d.logger.Warn("skipping malformed stream record", "error", err)
		return Frame{}, false
	}
	return fr, true
}
