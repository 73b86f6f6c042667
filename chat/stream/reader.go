// Package stream decodes OpenAI-style SSE completion streams into content
// deltas.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

const (
	dataPrefix = "data: "
	doneMarker = "[DONE]"

	readChunkSize = 4 * 1024
)

// chunkPayload is the subset of a stream event the reader cares about.
// Unknown fields are ignored on purpose; providers disagree on the rest of
// the envelope.
type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Reader incrementally decodes an SSE body. It is not safe for concurrent
// use.
type Reader struct {
	body io.ReadCloser

	// carry holds the unterminated tail of the last read. Splitting on '\n'
	// at the byte level is safe: '\n' never appears inside a multi-byte
	// UTF-8 sequence, so a rune split across reads is reassembled before the
	// line is ever decoded.
	carry   []byte
	pending []string
	done    bool
}

func NewReader(body io.ReadCloser) *Reader {
	return &Reader{body: body}
}

// Recv returns the next non-empty content delta. It returns io.EOF after the
// terminal [DONE] event or when the body ends. Any other error is a transport
// failure and the stream is unusable afterwards.
func (r *Reader) Recv(ctx context.Context) (string, error) {
	for {
		if len(r.pending) > 0 {
			delta := r.pending[0]
			r.pending = r.pending[1:]
			return delta, nil
		}
		if r.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		buf := make([]byte, readChunkSize)
		n, err := r.body.Read(buf)
		if n > 0 {
			r.carry = append(r.carry, buf[:n]...)
			r.consumeLines()
		}
		if err != nil {
			if err == io.EOF {
				// A final line without a trailing newline still counts.
				if len(r.carry) > 0 {
					r.processLine(string(r.carry))
					r.carry = nil
				}
				r.done = true
				continue
			}
			return "", err
		}
	}
}

// Close releases the underlying body. Safe to call more than once.
func (r *Reader) Close() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}

// consumeLines processes every complete line in the carry buffer and keeps
// the unterminated remainder.
func (r *Reader) consumeLines() {
	for {
		idx := bytes.IndexByte(r.carry, '\n')
		if idx < 0 {
			return
		}
		line := string(r.carry[:idx])
		r.carry = r.carry[idx+1:]
		r.processLine(line)
		if r.done {
			r.carry = nil
			return
		}
	}
}

func (r *Reader) processLine(line string) {
	line = strings.TrimSuffix(line, "\r")
	data, found := strings.CutPrefix(line, dataPrefix)
	if !found {
		// Blank keep-alive lines, comments and other event fields carry no
		// content.
		return
	}
	// Providers are sloppy about padding around the payload.
	data = strings.TrimSpace(data)
	if data == "" {
		return
	}
	if data == doneMarker {
		r.done = true
		return
	}

	var payload chunkPayload
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		// Malformed events are dropped; the stream itself stays usable.
		slog.Debug("skipping malformed stream event", "err", err)
		return
	}
	for _, choice := range payload.Choices {
		if choice.Delta.Content != "" {
			r.pending = append(r.pending, choice.Delta.Content)
		}
	}
}
