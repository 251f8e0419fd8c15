// ABOUTME: Tests for SSE frame parsing.
// ABOUTME: Covers multi-line data, comments, missing trailing blank lines, and cancellation.

package client

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectSSE(t *testing.T, body string) []Event {
	t.Helper()
	out := make(chan Event, 32)
	err := readSSE(context.Background(), strings.NewReader(body), out)
	require.NoError(t, err)
	close(out)

	var events []Event
	for ev := range out {
		events = append(events, ev)
	}
	return events
}

func TestReadSSE_Basic(t *testing.T) {
	events := collectSSE(t, "event: text\ndata: {\"text\":\"hi\"}\n\n")

	require.Len(t, events, 1)
	assert.Equal(t, "text", events[0].Type)
	p, err := events[0].Payload()
	require.NoError(t, err)
	assert.Equal(t, "hi", p.Text)
}

func TestReadSSE_MultiLineData(t *testing.T) {
	events := collectSSE(t, "event: raw\ndata: line one\ndata: line two\n\n")

	require.Len(t, events, 1)
	assert.Equal(t, "line one\nline two", string(events[0].Data))
}

func TestReadSSE_NoTrailingBlankLine(t *testing.T) {
	events := collectSSE(t, "event: done\ndata: {}")

	require.Len(t, events, 1, "a final event without a trailing blank line still counts")
	assert.Equal(t, "done", events[0].Type)
}

func TestReadSSE_IgnoresComments(t *testing.T) {
	events := collectSSE(t, ": keep-alive\n\nevent: text\ndata: {}\n\n")

	require.Len(t, events, 1)
	assert.Equal(t, "text", events[0].Type)
}

func TestReadSSE_EmptyBody(t *testing.T) {
	events := collectSSE(t, "")
	assert.Empty(t, events)
}

func TestEventPayload_Empty(t *testing.T) {
	p, err := Event{Type: "done"}.Payload()
	require.NoError(t, err)
	assert.Equal(t, Payload{}, p)
}

func TestEventPayload_Invalid(t *testing.T) {
	_, err := Event{Type: "text", Data: []byte("{not json")}.Payload()
	assert.Error(t, err)
}
