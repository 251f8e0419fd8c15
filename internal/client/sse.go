// ABOUTME: Server-Sent Events parsing for the gateway's response stream.
// ABOUTME: Accumulates event/data lines into typed Event values.

package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// Event is one parsed Server-Sent Event from the gateway.
type Event struct {
	Type string
	Data json.RawMessage
}

// Payload is the set of fields gateway events carry. Individual event types
// populate only some of them.
type Payload struct {
	Text     string `json:"text,omitempty"`
	Partial  bool   `json:"partial,omitempty"`
	Name     string `json:"name,omitempty"`
	State    string `json:"state,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Output   string `json:"output,omitempty"`
	IsError  bool   `json:"is_error,omitempty"`
	Filename string `json:"filename,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Payload decodes the event's data. Events with no body decode to the zero
// Payload without error.
func (e Event) Payload() (Payload, error) {
	var p Payload
	if len(e.Data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// readSSE parses an SSE body into events until EOF or ctx cancellation.
// Multi-line data fields are joined with newlines per the SSE format.
func readSSE(ctx context.Context, body io.Reader, out chan<- Event) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var eventType string
	var dataLines []string

	flush := func() bool {
		if eventType == "" && len(dataLines) == 0 {
			return true
		}
		ev := Event{Type: eventType}
		if len(dataLines) > 0 {
			ev.Data = json.RawMessage(strings.Join(dataLines, "\n"))
		}
		eventType = ""
		dataLines = nil

		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()

		// Empty line terminates the current event.
		if line == "" {
			if !flush() {
				return ctx.Err()
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if strings.HasPrefix(line, "data:") {
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			continue
		}
		// Comments and unknown fields are ignored.
	}

	// A final event without a trailing blank line still counts.
	flush()

	return scanner.Err()
}
