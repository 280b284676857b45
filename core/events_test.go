package core

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// steppingClock returns a clock that advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(step)
		return now
	}
}

func TestCollectingEmitterRequiresStartFirst(t *testing.T) {
	e := NewCollectingEmitter(nil)

	err := e.Emit(context.Background(), StreamEvent{Type: EventThinking})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first event must be")
}

func TestCollectingEmitterRejectsDuplicateStart(t *testing.T) {
	e := NewCollectingEmitter(nil)
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, StreamEvent{Type: EventStart}))
	err := e.Emit(ctx, StreamEvent{Type: EventStart})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestCollectingEmitterRejectsEventsAfterTerminal(t *testing.T) {
	for _, terminal := range []EventType{EventEnd, EventError} {
		t.Run(string(terminal), func(t *testing.T) {
			e := NewCollectingEmitter(nil)
			ctx := context.Background()

			require.NoError(t, e.Emit(ctx, StreamEvent{Type: EventStart}))
			require.NoError(t, e.Emit(ctx, StreamEvent{Type: terminal}))

			err := e.Emit(ctx, StreamEvent{Type: EventDelta})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "after terminal event")
		})
	}
}

func TestTimestampsAreNonDecreasingWithBackwardClock(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Clock steps backward on every reading.
	e := NewCollectingEmitter(steppingClock(base, -time.Second))
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, StreamEvent{Type: EventStart}))
	require.NoError(t, e.Emit(ctx, StreamEvent{Type: EventThinking}))
	require.NoError(t, e.Emit(ctx, StreamEvent{Type: EventEnd}))

	events := e.Events()
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Timestamp, events[i-1].Timestamp)
	}
	assert.Equal(t, base.UnixMilli(), events[0].Timestamp)
}

func TestStreamEmitterDeliversAndClosesAfterTerminal(t *testing.T) {
	e := NewStreamEmitter(4, nil)
	ctx := context.Background()

	go func() {
		_ = e.Emit(ctx, StreamEvent{Type: EventStart, SessionID: "s1"})
		_ = e.Emit(ctx, StreamEvent{Type: EventDelta, Content: "partial"})
		_ = e.Emit(ctx, StreamEvent{Type: EventEnd, SessionID: "s1"})
	}()

	var received []StreamEvent
	for event := range e.Events() {
		received = append(received, event)
	}

	require.Len(t, received, 3)
	assert.Equal(t, EventStart, received[0].Type)
	assert.Equal(t, "partial", received[1].Content)
	assert.Equal(t, EventEnd, received[2].Type)
}

func TestStreamEmitterBlocksUntilConsumerOrCancel(t *testing.T) {
	e := NewStreamEmitter(1, nil)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, e.Emit(ctx, StreamEvent{Type: EventStart}))
	// Buffer is full now; the next emit blocks until cancellation.
	done := make(chan error, 1)
	go func() {
		done <- e.Emit(ctx, StreamEvent{Type: EventThinking})
	}()

	select {
	case err := <-done:
		t.Fatalf("emit returned before cancellation: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("emit did not unblock after cancellation")
	}
}

func TestStreamEmitterCloseReleasesConsumer(t *testing.T) {
	e := NewStreamEmitter(4, nil)
	require.NoError(t, e.Emit(context.Background(), StreamEvent{Type: EventStart}))

	e.Close()
	e.Close() // safe to call twice

	var count int
	for range e.Events() {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestCollectingEmitterFinal(t *testing.T) {
	e := NewCollectingEmitter(nil)
	ctx := context.Background()

	require.NoError(t, e.Emit(ctx, StreamEvent{Type: EventStart}))
	require.NoError(t, e.Emit(ctx, StreamEvent{Type: EventContent, Content: "answer", ToolOutputs: []string{"o1"}}))
	require.NoError(t, e.Emit(ctx, StreamEvent{Type: EventEnd}))

	content, errEvent := e.Final()
	require.NotNil(t, content)
	assert.Equal(t, "answer", content.Content)
	assert.Nil(t, errEvent)
}

func TestWriteNDJSON(t *testing.T) {
	var buf bytes.Buffer
	event := StreamEvent{Type: EventToolResult, ToolName: "search_web", FormattedResult: "digest", Timestamp: 42}

	require.NoError(t, WriteNDJSON(&buf, event))

	line := buf.String()
	assert.Equal(t, byte('\n'), line[len(line)-1])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "tool_result", decoded["type"])
	assert.Equal(t, "search_web", decoded["tool_name"])
	assert.Equal(t, float64(42), decoded["timestamp"])
}
