// ABOUTME: Interactive chat loop for the ember CLI.
// ABOUTME: Reads input, streams agent responses, and polls for task completion.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/emberhq/ember/internal/client"
	"github.com/emberhq/ember/internal/history"
	"github.com/emberhq/ember/internal/stream"
	"github.com/emberhq/ember/internal/task"
)

// gatewayController adapts the HTTP client to the task.Controller interface.
// A task is active from send until the gateway reports no current work item.
type gatewayController struct {
	client *client.Client

	mu      sync.Mutex
	current *task.Task
}

func (g *gatewayController) begin(threadID string) *task.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = task.NewTask(threadID)
	return g.current
}

func (g *gatewayController) end() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = nil
}

func (g *gatewayController) CurrentTask() *task.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current
}

func (g *gatewayController) State(ctx context.Context) (task.State, error) {
	t := g.CurrentTask()
	if t == nil {
		return task.State{}, nil
	}
	return g.client.TaskState(ctx, t.ID)
}

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	server := fs.String("server", "", "Gateway server URL (overrides config)")
	profile := fs.String("profile", "", "Connection profile name")
	threadID := fs.String("thread", "", "Thread ID for conversation continuity")
	agentID := fs.String("agent", "", "Pin all messages to one agent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*server, *profile)
	if err != nil {
		return err
	}
	defer a.close()

	thread := *threadID
	if thread == "" {
		thread = client.NewThreadID()
	}

	agent := *agentID
	if agent == "" {
		agent = a.profile.DefaultAgent
	}

	fmt.Printf("ember %s\n", version)
	fmt.Printf("thread: %s\n", thread)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	err = a.chatLoop(ctx, thread, agent)
	if err == nil || errors.Is(err, context.Canceled) {
		fmt.Println("\nGoodbye!")
		return nil
	}
	return err
}

func (a *app) chatLoop(ctx context.Context, thread, agentID string) error {
	scanner := bufio.NewScanner(os.Stdin)
	ctrl := &gatewayController{client: a.client}
	selectedAgent := agentID

	for {
		if selectedAgent != "" {
			fmt.Printf("[%s]> ", selectedAgent)
		} else {
			fmt.Print("> ")
		}

		input, err := readLine(ctx, scanner)
		if err != nil {
			if err == io.EOF || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch {
		case input == "/quit" || input == "/exit" || input == "/q":
			return nil

		case input == "/agents":
			agents, err := a.client.Agents(ctx)
			if err != nil {
				fmt.Printf("[error] %v\n", err)
			} else {
				printAgents(agents)
			}
			fmt.Println()
			continue

		case strings.HasPrefix(input, "/use"):
			arg := strings.TrimSpace(strings.TrimPrefix(input, "/use"))
			if arg == "" {
				selectedAgent = ""
				fmt.Println("Cleared agent selection, using router")
			} else {
				selectedAgent = arg
				fmt.Printf("Now using %s\n", selectedAgent)
			}
			fmt.Println()
			continue

		case input == "/new":
			thread = client.NewThreadID()
			fmt.Printf("Started new thread: %s\n\n", thread)
			continue

		case input == "/history":
			if err := a.showHistory(ctx, thread, selectedAgent); err != nil {
				fmt.Printf("[error] %v\n", err)
			}
			fmt.Println()
			continue

		case input == "/stats":
			a.printStats()
			fmt.Println()
			continue

		case input == "/help":
			printHelp()
			fmt.Println()
			continue
		}

		if err := a.send(ctx, ctrl, thread, selectedAgent, input); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Printf("[error] %v\n", err)
		}
		fmt.Println()
	}
}

// readLine reads one line of input without blocking signal shutdown.
func readLine(ctx context.Context, scanner *bufio.Scanner) (string, error) {
	inputCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		if scanner.Scan() {
			inputCh <- scanner.Text()
			return
		}
		if err := scanner.Err(); err != nil {
			errCh <- err
		} else {
			errCh <- io.EOF
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errCh:
		return "", err
	case input := <-inputCh:
		return input, nil
	}
}

// send posts a message, streams the response through the stream handler, and
// waits for the gateway to report the task finished.
func (a *app) send(ctx context.Context, ctrl *gatewayController, thread, agentID, content string) error {
	events, err := a.client.Send(ctx, client.SendRequest{
		ThreadID: thread,
		Content:  content,
		AgentID:  agentID,
	})
	if err != nil {
		return err
	}

	t := ctrl.begin(thread)
	defer ctrl.end()

	a.appendHistory(ctx, history.Entry{
		ThreadID: thread, AgentID: agentID, Role: "user", Text: content,
	})

	var reply strings.Builder
	for ev := range events {
		a.dispatch(ev, t, &reply)
	}
	a.handler.EndStream()

	// The stream can end before the gateway settles the task; poll until it
	// reports no active work item.
	if err := a.poller.WaitForCompletion(ctx, ctrl); err != nil {
		return err
	}

	if reply.Len() > 0 {
		a.appendHistory(ctx, history.Entry{
			ThreadID: thread, AgentID: agentID, Role: "agent", Text: reply.String(),
		})
	}
	return nil
}

// dispatch translates one gateway event into stream handler calls.
func (a *app) dispatch(ev client.Event, t *task.Task, reply *strings.Builder) {
	p, err := ev.Payload()
	if err != nil {
		a.logger.Debug("unparseable event", "type", ev.Type, "error", err)
		return
	}

	switch ev.Type {
	case "thinking":
		a.handler.HandleMessage(stream.Message{Say: "thinking", Text: p.Text, Partial: p.Partial})

	case "text":
		a.handler.HandleMessage(stream.Message{Say: "text", Text: p.Text, Partial: p.Partial})
		if !p.Partial {
			reply.WriteString(p.Text)
		}

	case "tool_use":
		a.handler.HandleMessage(stream.Message{Say: "tool", Text: p.Name})

	case "tool_result":
		if p.IsError {
			a.handler.HandleMessage(stream.Message{Say: "tool error", Text: truncate(p.Output, 100)})
		} else {
			a.handler.HandleMessage(stream.Message{Say: "tool", Text: "done"})
		}

	case "tool_state":
		if p.Detail != "" {
			a.handler.HandleMessage(stream.Message{Say: "tool", Text: p.State + " " + p.Detail})
		}

	case "tool_approval":
		a.handler.HandleMessage(stream.Message{Say: "approval", Text: p.Name + " - respond in web UI"})

	case "file":
		a.handler.HandleMessage(stream.Message{Say: "file", Text: p.Filename})

	case "usage":
		// Not shown in the terminal.

	case "done":
		a.handler.EndStream()

	case "cancelled":
		t.Abort()
		a.handler.HandleMessage(stream.Message{Say: "cancelled", Text: p.Reason})

	case "error":
		a.handler.HandleMessage(stream.Message{Say: "error", Text: p.Error})

	default:
		a.logger.Debug("ignoring unknown event", "type", ev.Type)
	}
}

// appendHistory writes to the local transcript mirror when it is enabled.
// Failures are logged, never fatal.
func (a *app) appendHistory(ctx context.Context, e history.Entry) {
	if a.store == nil {
		return
	}
	if err := a.store.Append(ctx, e); err != nil {
		a.logger.Warn("recording transcript entry", "error", err)
	}
}

// showHistory prefers the local transcript mirror and falls back to the
// gateway's per-agent history.
func (a *app) showHistory(ctx context.Context, thread, agentID string) error {
	if a.store != nil {
		entries, err := a.store.Recent(ctx, thread, 20)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No local history for this thread")
			return nil
		}
		for _, e := range entries {
			prefix := color.BlueString("→")
			if e.Role == "agent" {
				prefix = color.GreenString("←")
			}
			fmt.Printf("%s %s\n", prefix, truncate(e.Text, 200))
		}
		return nil
	}

	if agentID == "" {
		fmt.Println("No agent selected. Use /use <agent_id> first.")
		return nil
	}

	page, err := a.client.History(ctx, agentID, 20)
	if err != nil {
		return err
	}
	if len(page.Events) == 0 {
		fmt.Println("No conversation history")
		return nil
	}

	fmt.Printf("Recent history for %s (%d events):\n", agentID, page.Count)
	for _, evt := range page.Events {
		prefix := "  "
		switch evt.Direction {
		case "inbound_to_agent":
			prefix = color.BlueString("→") + " "
		case "outbound_from_agent":
			prefix = color.GreenString("←") + " "
		}
		switch evt.Type {
		case "message":
			fmt.Printf("%s%s\n", prefix, truncate(evt.Text, 200))
		case "tool_use":
			fmt.Printf("%s%s %s\n", prefix, color.YellowString("[tool]"), truncate(evt.Text, 60))
		default:
			if evt.Text != "" {
				fmt.Printf("%s[%s] %s\n", prefix, evt.Type, truncate(evt.Text, 60))
			}
		}
	}
	if page.HasMore {
		fmt.Println(color.New(color.Faint).Sprint("... more history available"))
	}
	return nil
}

// printStats shows per-namespace deduplication counters.
func (a *app) printStats() {
	stats := a.dedupe.AllStats()
	fmt.Println("Deduplication:")
	for name, s := range stats {
		fmt.Printf("  %-10s pending=%d cached=%d hits=%d misses=%d hit_rate=%.0f%%\n",
			name, s.Pending, s.Cached, s.Hits, s.Misses, s.HitRate())
	}
}

func printAgents(agents []client.Agent) {
	if len(agents) == 0 {
		fmt.Println("No agents connected")
		return
	}
	fmt.Println("Connected agents:")
	for _, ag := range agents {
		caps := strings.Join(ag.Capabilities, ", ")
		fmt.Printf("  %s: %s [%s]\n", ag.ID, ag.Name, caps)
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /agents        List connected agents")
	fmt.Println("  /use <id>      Set default agent for messages")
	fmt.Println("  /use           Clear agent selection, use router")
	fmt.Println("  /new           Start a new thread")
	fmt.Println("  /history       Show conversation history")
	fmt.Println("  /stats         Show request deduplication counters")
	fmt.Println("  /help          Show this help")
	fmt.Println("  /quit          Exit")
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
