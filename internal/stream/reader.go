package stream

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"resumelift/internal/errors"
	"resumelift/internal/types"
)

// Sink receives every decoded event in arrival order. A nil sink is
// allowed when the caller only wants the terminal result.
type Sink func(types.StreamEvent)

// DefaultEventName is used for frames without an explicit event: line.
const DefaultEventName = "message"

// Terminal event names produced by the optimization stream.
const (
	EventCompleted = "completed"
	EventError     = "error"
)

// Reader incrementally decodes a server-sent-event byte stream into
// discrete events. Frames are delimited by a blank line; the reader
// reassembles frames split across arbitrary chunk boundaries, so the
// decoded sequence is independent of how the transport chunked the
// bytes.
type Reader struct {
	src     io.Reader
	carry   string
	pending []string
	chunk   []byte
	eof     bool
}

// NewReader wraps a raw response body.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src:   src,
		chunk: make([]byte, 4096),
	}
}

// Next returns the next decoded event, or io.EOF once the underlying
// stream is exhausted. Frames without a data payload are skipped. A
// frame whose data is not valid JSON is delivered as {"raw": <text>}
// rather than failing the stream.
func (r *Reader) Next() (types.StreamEvent, error) {
	name, data, err := r.nextFrame()
	if err != nil {
		return types.StreamEvent{}, err
	}
	return decodeEvent(name, data), nil
}

// nextFrame returns the name and raw data text of the next frame that
// carries a payload.
func (r *Reader) nextFrame() (name, data string, err error) {
	for {
		for len(r.pending) > 0 {
			frame := r.pending[0]
			r.pending = r.pending[1:]

			name, data = parseFrame(frame)
			if data == "" {
				continue
			}
			return name, data, nil
		}

		if r.eof {
			return "", "", io.EOF
		}
		if err := r.fill(); err != nil {
			return "", "", err
		}
	}
}

// fill reads one chunk from the source and splits completed frames off
// the carry-over buffer, holding back the trailing (possibly partial)
// fragment.
func (r *Reader) fill() error {
	n, err := r.src.Read(r.chunk)
	if n > 0 {
		// Normalize CRLF after joining with the carry-over so a pair
		// split across chunk boundaries still collapses. A trailing \r
		// is held back: the next chunk decides whether it starts a pair.
		text := strings.ReplaceAll(r.carry+string(r.chunk[:n]), "\r\n", "\n")
		held := ""
		if strings.HasSuffix(text, "\r") {
			held = "\r"
			text = strings.TrimSuffix(text, "\r")
		}

		parts := strings.Split(text, "\n\n")
		r.carry = parts[len(parts)-1] + held
		r.pending = append(r.pending, parts[:len(parts)-1]...)
	}
	if err == io.EOF {
		// A trailing fragment without its blank-line terminator is an
		// incomplete frame and is dropped, matching wire semantics.
		r.eof = true
		return nil
	}
	if err != nil {
		return errors.NewStreamError(errors.ErrCodeStreamError,
			"Reading event stream failed", err)
	}
	return nil
}

// parseFrame splits a frame into its event name and concatenated data
// payload. Multiple data: lines are concatenated after trimming.
func parseFrame(frame string) (name, data string) {
	name = DefaultEventName
	var sb strings.Builder

	for _, line := range strings.Split(frame, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			name = strings.TrimSpace(after)
		} else if after, ok := strings.CutPrefix(line, "data:"); ok {
			sb.WriteString(strings.TrimSpace(after))
		}
	}
	return name, sb.String()
}

func decodeEvent(name, data string) types.StreamEvent {
	payload := make(map[string]any)
	if err := json.Unmarshal([]byte(data), &payload); err != nil {
		payload = map[string]any{"raw": data}
	}
	return types.StreamEvent{Event: name, Data: payload}
}

// completedPayload mirrors the data of a completed event.
type completedPayload struct {
	Result json.RawMessage `json:"result"`
}

// errorPayload mirrors the data of an error event.
type errorPayload struct {
	Message string `json:"message"`
}

// Collect drains the stream, forwarding every event to sink in arrival
// order, and returns the result carried by the terminal completed
// event. An error event aborts consumption immediately with the
// payload's message. A stream that ends without a completed event is a
// failure: a cleanly closed connection is not success.
func Collect(ctx context.Context, src io.Reader, sink Sink) (json.RawMessage, error) {
	reader := NewReader(src)
	var final json.RawMessage

	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewStreamError(errors.ErrCodeStreamError,
				"Stream consumption cancelled", err)
		}

		name, data, err := reader.nextFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if sink != nil {
			sink(decodeEvent(name, data))
		}

		switch name {
		case EventCompleted:
			// Last one wins, though exactly one is expected.
			var payload completedPayload
			if err := json.Unmarshal([]byte(data), &payload); err == nil &&
				len(payload.Result) > 0 && string(payload.Result) != "null" {
				final = payload.Result
			}
		case EventError:
			var payload errorPayload
			_ = json.Unmarshal([]byte(data), &payload)
			if payload.Message == "" {
				payload.Message = "Optimization failed"
			}
			return nil, errors.NewStreamError(errors.ErrCodeStreamError, payload.Message, nil)
		}
	}

	if final == nil {
		return nil, errors.NewStreamError(errors.ErrCodeStreamIncomplete,
			"Stream ended without a final result payload", nil)
	}
	return final, nil
}
