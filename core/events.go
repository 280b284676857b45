/*
Package core provides the event streaming layer for the AlphaBot agent.

Loop progress is serialized into an ordered, append-only sequence of typed
events delivered to the transport as they occur. The sequencing contract —
exactly one start first, nothing after end or error, monotonically
non-decreasing timestamps — is enforced here, independent of the wire
encoding. The stream emitter writes into a bounded channel: the blocking
write is the natural back-pressure and cancellation point for the
producing loop.
*/
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// EventType discriminates stream event variants on the wire.
type EventType string

// Stream event types emitted over one request's lifetime.
const (
	EventStart      EventType = "start"
	EventThinking   EventType = "thinking"
	EventToolCalls  EventType = "tool_calls"
	EventToolStart  EventType = "tool_start"
	EventToolResult EventType = "tool_result"
	EventDelta      EventType = "delta"
	EventContent    EventType = "content"
	EventEnd        EventType = "end"
	EventError      EventType = "error"
)

// StreamEvent is one discrete unit of request progress delivered to the
// client. Timestamp is milliseconds since the Unix epoch.
type StreamEvent struct {
	Type            EventType  `json:"type"`
	SessionID       string     `json:"session_id,omitempty"`
	Content         string     `json:"content,omitempty"`
	ToolCalls       []ToolCall `json:"tool_calls,omitempty"`
	ToolName        string     `json:"tool_name,omitempty"`
	FormattedResult string     `json:"formatted_result,omitempty"`
	ToolOutputs     []string   `json:"tool_outputs,omitempty"`
	Error           string     `json:"error,omitempty"`
	Timestamp       int64      `json:"timestamp"`
}

// Terminal reports whether the event closes the stream. An error event is
// terminal without a following end.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

// Emitter receives loop progress events in order. Emit blocks until the
// consumer is ready (back-pressure) and returns the context error when the
// consumer is gone, which the loop treats as cancellation.
type Emitter interface {
	Emit(ctx context.Context, event StreamEvent) error
}

// sequencer enforces the event ordering contract shared by all emitters.
// It is not safe for concurrent use; one loop produces per request.
type sequencer struct {
	clock      func() time.Time
	started    bool
	terminated bool
	lastStamp  int64
}

// stamp validates ordering and assigns the event timestamp. Timestamps
// are clamped to be non-decreasing even if the clock steps backward.
func (s *sequencer) stamp(event *StreamEvent) error {
	if s.terminated {
		return fmt.Errorf("event %q after terminal event", event.Type)
	}
	if !s.started && event.Type != EventStart {
		return fmt.Errorf("first event must be %q, got %q", EventStart, event.Type)
	}
	if s.started && event.Type == EventStart {
		return fmt.Errorf("duplicate %q event", EventStart)
	}

	ts := s.clock().UnixMilli()
	if ts < s.lastStamp {
		ts = s.lastStamp
	}
	event.Timestamp = ts
	s.lastStamp = ts

	s.started = true
	if event.Terminal() {
		s.terminated = true
	}
	return nil
}

// StreamEmitter delivers events through a bounded channel to a transport
// consumer. The channel is closed after the terminal event, or by Close
// when the producer abandons the stream (cancellation before a terminal
// event).
type StreamEmitter struct {
	ch        chan StreamEvent
	seq       sequencer
	closeOnce sync.Once
}

// NewStreamEmitter creates an emitter with the given channel capacity.
// The clock supplies event timestamps; nil selects the wall clock.
func NewStreamEmitter(buffer int, clock func() time.Time) *StreamEmitter {
	if clock == nil {
		clock = time.Now
	}
	if buffer <= 0 {
		buffer = 1
	}
	return &StreamEmitter{
		ch:  make(chan StreamEvent, buffer),
		seq: sequencer{clock: clock},
	}
}

// Events returns the consumer side of the stream. The channel is closed
// once the stream terminates.
func (e *StreamEmitter) Events() <-chan StreamEvent {
	return e.ch
}

// Emit validates ordering, stamps the event and blocks until the consumer
// accepts it or the context is cancelled.
func (e *StreamEmitter) Emit(ctx context.Context, event StreamEvent) error {
	if err := e.seq.stamp(&event); err != nil {
		return err
	}

	select {
	case e.ch <- event:
	case <-ctx.Done():
		return ctx.Err()
	}

	if event.Terminal() {
		e.close()
	}
	return nil
}

// Close releases the consumer when the producer abandons the stream
// without a terminal event. Safe to call multiple times.
func (e *StreamEmitter) Close() {
	e.seq.terminated = true
	e.close()
}

func (e *StreamEmitter) close() {
	e.closeOnce.Do(func() { close(e.ch) })
}

// CollectingEmitter records events in memory. It backs the non-streaming
// transport: the same loop runs, intermediate events are collected rather
// than surfaced.
type CollectingEmitter struct {
	seq    sequencer
	events []StreamEvent
}

// NewCollectingEmitter creates a collecting emitter with the given clock;
// nil selects the wall clock.
func NewCollectingEmitter(clock func() time.Time) *CollectingEmitter {
	if clock == nil {
		clock = time.Now
	}
	return &CollectingEmitter{seq: sequencer{clock: clock}}
}

// Emit validates ordering, stamps and records the event.
func (e *CollectingEmitter) Emit(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.seq.stamp(&event); err != nil {
		return err
	}
	e.events = append(e.events, event)
	return nil
}

// Events returns the recorded sequence.
func (e *CollectingEmitter) Events() []StreamEvent {
	return e.events
}

// Final returns the content or error event that closed the stream, if
// any.
func (e *CollectingEmitter) Final() (content *StreamEvent, errEvent *StreamEvent) {
	for i := range e.events {
		switch e.events[i].Type {
		case EventContent:
			content = &e.events[i]
		case EventError:
			errEvent = &e.events[i]
		}
	}
	return content, errEvent
}

// WriteNDJSON writes one event as a newline-delimited JSON line.
func WriteNDJSON(w io.Writer, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
