package stream

import (
	"context"
	"encoding/json"
	"io"
	"reflect"
	"strings"
	"testing"

	apperrors "resumelift/internal/errors"
	"resumelift/internal/types"
)

// chunkedReader delivers its payload in fixed-size chunks so tests can
// force frame boundaries to land mid-frame.
type chunkedReader struct {
	data  string
	size  int
	chunk []string
	pos   int
}

func newChunkedReader(data string, size int) *chunkedReader {
	return &chunkedReader{data: data, size: size}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	end := c.pos + c.size
	if end > len(c.data) {
		end = len(c.data)
	}
	n := copy(p, c.data[c.pos:end])
	c.pos += n
	return n, nil
}

func drain(t *testing.T, src io.Reader) []types.StreamEvent {
	t.Helper()
	reader := NewReader(src)
	var events []types.StreamEvent
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			return events
		}
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		events = append(events, ev)
	}
}

func TestReassemblyIsChunkingIndependent(t *testing.T) {
	wire := "event: analyzing\ndata: {\"step\":1}\n\n" +
		"data: {\"note\":\"no explicit event name\"}\n\n" +
		"event: scoring\ndata: {\"part\":1,\ndata: \"part2\":2}\n\n" +
		"event: completed\ndata: {\"result\":{\"ats_score_after\":81.5}}\n\n"

	want := drain(t, strings.NewReader(wire))
	if len(want) != 4 {
		t.Fatalf("expected 4 events from unsplit delivery, got %d", len(want))
	}

	// Any chunking of the same bytes must decode identically,
	// including splits in the middle of a frame or delimiter.
	for size := 1; size <= len(wire); size++ {
		got := drain(t, newChunkedReader(wire, size))
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("chunk size %d: events diverge from unsplit delivery\ngot:  %+v\nwant: %+v", size, got, want)
		}
	}
}

func TestDefaultEventNameAndDataConcatenation(t *testing.T) {
	wire := "data: {\"a\":\ndata: 1}\n\n"
	events := drain(t, strings.NewReader(wire))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Event != "message" {
		t.Errorf("expected default event name message, got %q", events[0].Event)
	}
	if events[0].Data["a"] != float64(1) {
		t.Errorf("expected concatenated data fragments to parse, got %v", events[0].Data)
	}
}

func TestFramesWithoutDataAreSkipped(t *testing.T) {
	wire := "event: heartbeat\n\nevent: progress\ndata: {\"step\":2}\n\n"
	events := drain(t, strings.NewReader(wire))

	if len(events) != 1 {
		t.Fatalf("expected data-less frame to be skipped, got %d events", len(events))
	}
	if events[0].Event != "progress" {
		t.Errorf("expected progress event, got %q", events[0].Event)
	}
}

func TestMalformedDataDoesNotAbortStream(t *testing.T) {
	wire := "event: progress\ndata: not-json\n\n" +
		"event: progress\ndata: {\"step\":3}\n\n"
	events := drain(t, strings.NewReader(wire))

	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Data["raw"] != "not-json" {
		t.Errorf("expected raw-text fallback payload, got %v", events[0].Data)
	}
	if events[1].Data["step"] != float64(3) {
		t.Errorf("expected stream to continue after malformed frame, got %v", events[1].Data)
	}
}

func TestCRLFReassemblyIsChunkingIndependent(t *testing.T) {
	wire := "event: progress\r\ndata: {\"step\":1}\r\n\r\n" +
		"event: completed\r\ndata: {\"result\":{\"id\":7}}\r\n\r\n"

	want := drain(t, strings.NewReader(wire))
	if len(want) != 2 {
		t.Fatalf("expected 2 events from unsplit delivery, got %d", len(want))
	}

	// A \r\n pair split across a chunk boundary must still collapse, so
	// the \r\n\r\n frame delimiter is found at every chunk size.
	for size := 1; size <= len(wire); size++ {
		got := drain(t, newChunkedReader(wire, size))
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("chunk size %d: events diverge from unsplit delivery\ngot:  %+v\nwant: %+v", size, got, want)
		}
	}
}

func TestCRLFLineEndings(t *testing.T) {
	wire := "event: progress\r\ndata: {\"step\":1}\r\n\r\n"
	events := drain(t, strings.NewReader(wire))

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Event != "progress" {
		t.Errorf("expected progress event, got %q", events[0].Event)
	}
}

func TestCollectDeliversEventsInOrderAndReturnsResult(t *testing.T) {
	chunk1 := "event: progress\ndata: {\"step\":1}\n\n"
	chunk2 := "event: completed\ndata: {\"result\":{\"id\":42}}\n\n"

	var seen []types.StreamEvent
	sink := func(ev types.StreamEvent) { seen = append(seen, ev) }

	result, err := Collect(context.Background(), io.MultiReader(
		strings.NewReader(chunk1), strings.NewReader(chunk2)), sink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 sink calls, got %d", len(seen))
	}
	if seen[0].Event != "progress" || seen[0].Data["step"] != float64(1) {
		t.Errorf("unexpected first event: %+v", seen[0])
	}
	if seen[1].Event != "completed" {
		t.Errorf("unexpected second event: %+v", seen[1])
	}

	var decoded map[string]any
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if decoded["id"] != float64(42) {
		t.Errorf("expected final result {id:42}, got %v", decoded)
	}
}

func TestCollectErrorEventAbortsImmediately(t *testing.T) {
	wire := "event: error\ndata: {\"message\":\"bad key\"}\n\n" +
		"event: progress\ndata: {\"step\":99}\n\n"

	var seen []types.StreamEvent
	_, err := Collect(context.Background(), strings.NewReader(wire), func(ev types.StreamEvent) {
		seen = append(seen, ev)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.HasCode(err, apperrors.ErrCodeStreamError) {
		t.Errorf("expected stream error code, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad key") {
		t.Errorf("expected backend message in error, got %v", err)
	}
	// Consumption stops at the error event; the trailing frame is never delivered.
	if len(seen) != 1 {
		t.Errorf("expected 1 sink call before abort, got %d", len(seen))
	}
}

func TestCollectErrorEventFallbackMessage(t *testing.T) {
	wire := "event: error\ndata: {}\n\n"
	_, err := Collect(context.Background(), strings.NewReader(wire), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Optimization failed") {
		t.Errorf("expected generic fallback message, got %v", err)
	}
}

func TestCollectIncompleteStream(t *testing.T) {
	wire := "event: progress\ndata: {\"step\":1}\n\n"
	_, err := Collect(context.Background(), strings.NewReader(wire), nil)
	if err == nil {
		t.Fatal("expected error for stream without completed event")
	}
	if !apperrors.HasCode(err, apperrors.ErrCodeStreamIncomplete) {
		t.Errorf("expected incomplete-stream code, got %v", err)
	}
}

func TestCollectLastCompletedWins(t *testing.T) {
	wire := "event: completed\ndata: {\"result\":{\"id\":1}}\n\n" +
		"event: completed\ndata: {\"result\":{\"id\":2}}\n\n"

	result, err := Collect(context.Background(), strings.NewReader(wire), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("result is not valid JSON: %v", err)
	}
	if decoded["id"] != float64(2) {
		t.Errorf("expected last completed result to win, got %v", decoded)
	}
}
