// ABOUTME: Streaming session state machine with throttled, coalescing renders.
// ABOUTME: At most one session is active; rapid partial updates collapse into one render.

package stream

import (
	"log/slog"
	"sync"
	"time"
)

// Kind classifies a streaming session.
type Kind string

const (
	KindText     Kind = "text"
	KindThinking Kind = "thinking"
	KindCommand  Kind = "command"
)

// Message is one event from the gateway's event stream.
type Message struct {
	Say     string `json:"say"`
	Text    string `json:"text,omitempty"`
	Partial bool   `json:"partial,omitempty"`
}

// Renderer receives the handler's output. Implementations must be safe for
// concurrent use: Spin is called from a spinner goroutine while Render may
// be called from timer callbacks and the caller's goroutine.
type Renderer interface {
	// Render draws the accumulated text of a session. Partial renders
	// (final == false) may be overwritten by later renders of the same
	// session; the final render is permanent.
	Render(kind Kind, text string, final bool)
	// Note prints a standalone labelled line outside any session.
	Note(label, text string)
	// Spin advances the thinking indicator by one frame.
	Spin()
}

const (
	defaultThrottle        = 100 * time.Millisecond
	defaultSpinnerInterval = 120 * time.Millisecond
)

// Options configures a Handler. The zero value gets sensible defaults.
type Options struct {
	// Throttle is the minimum interval between partial renders. Updates
	// arriving faster are coalesced, last write wins.
	Throttle time.Duration
	// HidePartials suppresses partial renders entirely; only final content
	// is drawn.
	HidePartials bool
	// SpinnerInterval is the frame period of the thinking indicator.
	SpinnerInterval time.Duration
	Logger          *slog.Logger
}

func (o *Options) applyDefaults() {
	if o.Throttle <= 0 {
		o.Throttle = defaultThrottle
	}
	if o.SpinnerInterval <= 0 {
		o.SpinnerInterval = defaultSpinnerInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default().With("component", "stream")
	}
}

// session is the state of one active stream. The caller always supplies the
// full text so far, so text replaces rather than appends.
type session struct {
	kind       Kind
	started    time.Time
	lastRender time.Time
	text       string
	dirty      bool
	finalized  bool
}

// Handler manages at most one streaming session at a time, throttling
// partial renders and guaranteeing exactly one final flush per session.
type Handler struct {
	mu         sync.Mutex
	r          Renderer
	opts       Options
	sess       *session
	flushTimer *time.Timer
	spinStop   chan struct{}
	logger     *slog.Logger
	closed     bool
}

// NewHandler creates a Handler that draws through r.
func NewHandler(r Renderer, opts Options) *Handler {
	opts.applyDefaults()
	return &Handler{
		r:      r,
		opts:   opts,
		logger: opts.Logger,
	}
}

// StartStream opens a new session of the given kind, force-ending any
// existing session first (its unflushed content is rendered exactly once).
// A thinking session starts the spinner immediately.
func (h *Handler) StartStream(kind Kind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.startLocked(kind)
}

func (h *Handler) startLocked(kind Kind) {
	h.endLocked()
	h.sess = &session{kind: kind, started: time.Now()}
	h.logger.Debug("stream started", "kind", kind)
	if kind == KindThinking {
		h.startSpinnerLocked()
	}
}

// UpdateStream records the full text received so far. With no active session
// the text is rendered as a standalone complete message. Partial updates
// inside the throttle window schedule one deferred render; newer updates
// before it fires just replace the stored text.
func (h *Handler) UpdateStream(text string, partial bool) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	if h.sess == nil {
		h.mu.Unlock()
		h.r.Render(KindText, text, true)
		return
	}
	defer h.mu.Unlock()

	s := h.sess
	s.text = text
	s.dirty = true
	s.finalized = false

	if !partial {
		h.renderLocked(true)
		return
	}
	if h.opts.HidePartials {
		return
	}

	since := time.Since(s.lastRender)
	if since < h.opts.Throttle {
		if h.flushTimer == nil {
			h.flushTimer = time.AfterFunc(h.opts.Throttle-since, h.flushDeferred)
		}
		return
	}
	h.renderLocked(false)
}

// EndStream cancels any deferred render and the spinner, flushes unflushed
// text once, and returns to idle.
func (h *Handler) EndStream() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endLocked()
}

// HandleMessage drives the state machine from a gateway event. Known say
// types map to session kinds; anything else ends the current session and is
// printed as a labelled note.
func (h *Handler) HandleMessage(m Message) {
	switch m.Say {
	case "text":
		h.ensure(KindText)
		h.UpdateStream(m.Text, m.Partial)
	case "reasoning", "thinking":
		h.ensure(KindThinking)
		h.UpdateStream(m.Text, m.Partial)
	case "command":
		h.ensure(KindCommand)
		h.UpdateStream(m.Text, m.Partial)
	case "":
		// Keep-alive or malformed event.
	default:
		h.EndStream()
		if m.Text != "" {
			h.r.Note(m.Say, m.Text)
		}
	}
}

// ensure opens a session of the given kind unless one is already active.
// A session of a different kind is force-ended first.
func (h *Handler) ensure(kind Kind) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.sess != nil && h.sess.kind == kind {
		return
	}
	h.startLocked(kind)
}

// Close ends any active session and rejects further updates. Safe to call
// multiple times.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.endLocked()
	h.closed = true
}

// renderLocked draws the current session text and stops the spinner: once
// real content flows, the indicator is noise.
func (h *Handler) renderLocked(final bool) {
	s := h.sess
	h.stopSpinnerLocked()
	h.r.Render(s.kind, s.text, final)
	s.lastRender = time.Now()
	s.dirty = false
	if final {
		s.finalized = true
	}
}

// flushDeferred is the deferred-render timer callback.
func (h *Handler) flushDeferred() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushTimer = nil
	if h.sess != nil && h.sess.dirty {
		h.renderLocked(false)
	}
}

// endLocked tears down the active session, flushing its content exactly once
// if a final render has not happened yet.
func (h *Handler) endLocked() {
	if h.flushTimer != nil {
		h.flushTimer.Stop()
		h.flushTimer = nil
	}
	h.stopSpinnerLocked()

	s := h.sess
	if s == nil {
		return
	}
	if s.text != "" && !s.finalized {
		h.r.Render(s.kind, s.text, true)
	}
	h.logger.Debug("stream ended", "kind", s.kind, "duration", time.Since(s.started))
	h.sess = nil
}

func (h *Handler) startSpinnerLocked() {
	if h.spinStop != nil {
		return
	}
	stop := make(chan struct{})
	h.spinStop = stop

	go func() {
		ticker := time.NewTicker(h.opts.SpinnerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.r.Spin()
			case <-stop:
				return
			}
		}
	}()
}

func (h *Handler) stopSpinnerLocked() {
	if h.spinStop != nil {
		close(h.spinStop)
		h.spinStop = nil
	}
}
