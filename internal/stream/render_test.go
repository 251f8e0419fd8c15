// ABOUTME: Tests for the terminal renderer and markdown flattening.
// ABOUTME: Validates preview truncation, line accounting, in-place redraw, and styling.

package stream

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"bold stripped", "this is **important** text", "this is important text"},
		{"emphasis stripped", "an _emphasized_ word", "an emphasized word"},
		{"heading", "# Title\n\nbody", "Title\nbody"},
		{"inline code", "run `go test` now", "run go test now"},
		{
			"fenced code kept literal",
			"before\n\n```go\nfmt.Println(\"hi\")\n```",
			"before\nfmt.Println(\"hi\")",
		},
		{"list items", "- one\n- two", "one\ntwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, flattenMarkdown(tt.in))
		})
	}
}

func TestTailPreview(t *testing.T) {
	assert.Equal(t, "short", tailPreview("short", 100))

	// Over-limit text keeps the tail, cut at a line boundary.
	long := "line one\nline two\nline three"
	got := tailPreview(long, 15)
	assert.Equal(t, "line three", got)
}

func TestLineCount(t *testing.T) {
	assert.Equal(t, 1, lineCount("one"))
	assert.Equal(t, 2, lineCount("one\ntwo"))
	assert.Equal(t, 1, lineCount("one\n"))
}

func TestPrefixLines(t *testing.T) {
	assert.Equal(t, "$ a\n$ b", prefixLines("$ ", "a\nb"))
}

func TestTerminal_FinalRender(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, TerminalOptions{NoColor: true})

	term.Render(KindText, "some **bold** output", true)

	out := buf.String()
	assert.Contains(t, out, "some bold output")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestTerminal_PartialRedrawMovesCursor(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, TerminalOptions{NoColor: true})

	term.Render(KindText, "one\ntwo", false)
	term.Render(KindText, "one\ntwo\nthree", false)

	// The second partial must move the cursor up over the two lines of the
	// first and clear them before redrawing.
	assert.Contains(t, buf.String(), "\033[2A\033[0J")
}

func TestTerminal_ThinkingPrefix(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, TerminalOptions{NoColor: true})

	term.Render(KindThinking, "working it out", true)
	assert.Contains(t, buf.String(), "[thinking] working it out")
}

func TestTerminal_CommandPrefix(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, TerminalOptions{NoColor: true})

	term.Render(KindCommand, "ls -la", true)
	assert.Contains(t, buf.String(), "$ ls -la")
}

func TestTerminal_SpinThenRenderClearsSpinner(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, TerminalOptions{NoColor: true})

	term.Spin()
	require.Contains(t, buf.String(), "thinking...")

	term.Render(KindText, "content", true)
	// The render clears the spinner line before printing.
	assert.Contains(t, buf.String(), "\r\033[2K")
	assert.Contains(t, buf.String(), "content")
}

func TestTerminal_SpinSuppressedWhileTextVisible(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, TerminalOptions{NoColor: true})

	term.Render(KindText, "partial text", false)
	before := buf.Len()

	term.Spin()
	assert.Equal(t, before, buf.Len(), "spinner must not draw over rendered text")
}

func TestTerminal_Note(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, TerminalOptions{NoColor: true})

	term.Note("tool", "read_file src/main.go")
	assert.Equal(t, "[tool] read_file src/main.go\n", buf.String())
}

func TestTerminal_PreviewTruncation(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, TerminalOptions{NoColor: true, MaxPreview: 20})

	long := strings.Repeat("x", 50) + "\n" + "visible tail"
	term.Render(KindText, long, false)

	out := buf.String()
	assert.Contains(t, out, "visible tail")
	assert.NotContains(t, out, strings.Repeat("x", 50))
}