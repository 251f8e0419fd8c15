// ABOUTME: Terminal renderer for streaming sessions with in-place partial redraws.
// ABOUTME: Flattens markdown via goldmark and styles output with ANSI colors.

package stream

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

const defaultMaxPreview = 400

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// TerminalOptions configures a Terminal renderer.
type TerminalOptions struct {
	// MaxPreview caps the tail of text shown during partial renders. Final
	// renders are never truncated.
	MaxPreview int
	// NoColor disables ANSI styling (also respected via fatih/color's own
	// NO_COLOR handling).
	NoColor bool
}

// Terminal renders sessions to a terminal writer. Partial renders are redrawn
// in place using cursor movement; the final render replaces them permanently.
type Terminal struct {
	mu          sync.Mutex
	w           io.Writer
	maxPreview  int
	lastLines   int
	spinFrame   int
	spinVisible bool

	thinking *color.Color
	command  *color.Color
	label    *color.Color
}

// NewTerminal creates a renderer writing to w.
func NewTerminal(w io.Writer, opts TerminalOptions) *Terminal {
	if opts.MaxPreview <= 0 {
		opts.MaxPreview = defaultMaxPreview
	}
	t := &Terminal{
		w:          w,
		maxPreview: opts.MaxPreview,
		thinking:   color.New(color.Faint),
		command:    color.New(color.FgYellow),
		label:      color.New(color.FgCyan),
	}
	if opts.NoColor {
		t.thinking.DisableColor()
		t.command.DisableColor()
		t.label.DisableColor()
	}
	return t
}

// Render implements Renderer. A partial render shows a truncated preview and
// remembers how many lines it drew so the next render can overwrite them.
func (t *Terminal) Render(kind Kind, text string, final bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clearLocked()

	if !final {
		preview := tailPreview(text, t.maxPreview)
		out := t.styleLocked(kind, preview)
		fmt.Fprint(t.w, out)
		if !strings.HasSuffix(out, "\n") {
			fmt.Fprintln(t.w)
		}
		t.lastLines = lineCount(out)
		return
	}

	body := text
	if kind == KindText {
		body = flattenMarkdown(text)
	}
	out := t.styleLocked(kind, body)
	fmt.Fprint(t.w, out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Fprintln(t.w)
	}
	t.lastLines = 0
}

// Note implements Renderer.
func (t *Terminal) Note(label, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clearLocked()
	fmt.Fprintf(t.w, "%s %s\n", t.label.Sprintf("[%s]", label), text)
}

// Spin implements Renderer, advancing the thinking indicator one frame.
func (t *Terminal) Spin() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lastLines > 0 {
		// Text is already on screen; the indicator would only smear it.
		return
	}
	frame := spinnerFrames[t.spinFrame%len(spinnerFrames)]
	t.spinFrame++
	fmt.Fprintf(t.w, "\r\033[2K%s %s", frame, t.thinking.Sprint("thinking..."))
	t.spinVisible = true
}

// clearLocked erases the spinner line and any lines drawn by the previous
// partial render.
func (t *Terminal) clearLocked() {
	if t.spinVisible {
		fmt.Fprint(t.w, "\r\033[2K")
		t.spinVisible = false
	}
	if t.lastLines > 0 {
		fmt.Fprintf(t.w, "\033[%dA\033[0J", t.lastLines)
		t.lastLines = 0
	}
}

func (t *Terminal) styleLocked(kind Kind, text string) string {
	switch kind {
	case KindThinking:
		return t.thinking.Sprint(prefixLines("[thinking] ", text))
	case KindCommand:
		return t.command.Sprint(prefixLines("$ ", text))
	default:
		return text
	}
}

// tailPreview returns the last max bytes of text, cut at a line boundary so
// a partial redraw never starts mid-line.
func tailPreview(text string, max int) string {
	if len(text) <= max {
		return text
	}
	tail := text[len(text)-max:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i+1 < len(tail) {
		tail = tail[i+1:]
	}
	return tail
}

func prefixLines(prefix, text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

func lineCount(s string) int {
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// flattenMarkdown reduces markdown to plain text for terminal display:
// emphasis markers drop away, block structure becomes blank lines, and code
// blocks keep their literal content.
func flattenMarkdown(src string) string {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote:
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimRight(b.String(), "\n")
}
