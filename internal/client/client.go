// ABOUTME: HTTP client for the agent gateway with deduplicated read calls.
// ABOUTME: Concurrent identical reads share one request; results cache briefly.

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/emberhq/ember/internal/dedupe"
	"github.com/emberhq/ember/internal/task"
)

// Deduplication namespaces. Read calls for different subsystems get their
// own Deduplicator so key strings cannot collide.
const (
	nsAPI     = "api"
	nsHistory = "history"
	nsTask    = "task"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Sender  string
	// Dedupe coordinates concurrent identical read calls. Required.
	Dedupe     *dedupe.Manager
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the gateway's HTTP API and streams responses over SSE.
type Client struct {
	baseURL string
	token   string
	sender  string
	httpc   *http.Client
	dedupe  *dedupe.Manager
	logger  *slog.Logger
}

// New creates a gateway client.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "client")
	}
	return &Client{
		baseURL: opts.BaseURL,
		token:   opts.Token,
		sender:  opts.Sender,
		httpc:   opts.HTTPClient,
		dedupe:  opts.Dedupe,
		logger:  opts.Logger,
	}
}

// Agent describes a connected agent as reported by the gateway.
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

// Agents lists connected agents. Concurrent calls share one request.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	key := dedupe.DefaultKey("agents")
	return dedupe.Do(ctx, c.dedupe.Get(nsAPI), key, func(ctx context.Context) ([]Agent, error) {
		var agents []Agent
		if err := c.getJSON(ctx, "/api/agents", &agents); err != nil {
			return nil, fmt.Errorf("fetching agents: %w", err)
		}
		return agents, nil
	})
}

// HistoryEvent is one event in an agent's conversation history.
type HistoryEvent struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	Author    string `json:"author"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text,omitempty"`
}

// HistoryPage is a page of conversation history for one agent.
type HistoryPage struct {
	AgentID string         `json:"agent_id"`
	Events  []HistoryEvent `json:"events"`
	Count   int            `json:"count"`
	HasMore bool           `json:"has_more"`
}

// History fetches recent conversation history for an agent. Concurrent calls
// with the same agent and limit share one request.
func (c *Client) History(ctx context.Context, agentID string, limit int) (*HistoryPage, error) {
	key := dedupe.DefaultKey("history", agentID, limit)
	return dedupe.Do(ctx, c.dedupe.Get(nsHistory), key, func(ctx context.Context) (*HistoryPage, error) {
		var page HistoryPage
		path := fmt.Sprintf("/api/agents/%s/history?limit=%d", agentID, limit)
		if err := c.getJSON(ctx, path, &page); err != nil {
			return nil, fmt.Errorf("fetching history: %w", err)
		}
		return &page, nil
	})
}

// taskStateResponse is the JSON response from GET /api/threads/{id}/task.
type taskStateResponse struct {
	CurrentItem string `json:"current_item"`
}

// TaskState fetches the gateway's view of the active task on a thread.
// Backs the task.Controller used by completion polling. Concurrent pollers
// share one request, but results are never cached: polling needs the live
// state, and a TTL-stale snapshot would stall completion detection.
func (c *Client) TaskState(ctx context.Context, threadID string) (task.State, error) {
	d := c.dedupe.GetWith(nsTask, dedupe.Options{DisableCache: true})
	key := dedupe.DefaultKey("task-state", threadID)
	return dedupe.Do(ctx, d, key, func(ctx context.Context) (task.State, error) {
		var resp taskStateResponse
		path := fmt.Sprintf("/api/threads/%s/task", threadID)
		if err := c.getJSON(ctx, path, &resp); err != nil {
			return task.State{}, fmt.Errorf("fetching task state: %w", err)
		}
		return task.State{CurrentItem: resp.CurrentItem}, nil
	})
}

// SendRequest is the JSON body sent to POST /api/send.
type SendRequest struct {
	ThreadID string `json:"thread_id,omitempty"`
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	AgentID  string `json:"agent_id,omitempty"`
}

// NewThreadID returns a fresh thread identifier.
func NewThreadID() string {
	return uuid.New().String()
}

// Send posts a message and streams the agent's response events. The returned
// channel closes when the stream ends or ctx is cancelled.
func (c *Client) Send(ctx context.Context, req SendRequest) (<-chan Event, error) {
	if req.Sender == "" {
		req.Sender = c.sender
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/send", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("X-Request-Id", uuid.New().String())
	c.authorize(httpReq)

	// Streaming request: no client timeout, the ctx bounds it.
	streamClient := &http.Client{Transport: c.httpc.Transport}
	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, apiError(resp)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		if err := readSSE(ctx, resp.Body, events); err != nil {
			c.logger.Debug("event stream ended with error", "error", err)
		}
	}()

	return events, nil
}

// Health checks gateway liveness.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("reaching gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// getJSON performs an authorized GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// apiError extracts a server-provided error message when the body carries
// one, falling back to the status code.
func apiError(resp *http.Response) error {
	if resp.Header.Get("Content-Type") == "application/json" {
		var errResp map[string]string
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&errResp); err == nil {
			if msg, ok := errResp["error"]; ok && msg != "" {
				return fmt.Errorf("%s", msg)
			}
		}
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
