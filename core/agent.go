/*
Agent runs the iterative reasoning loop at the heart of AlphaBot.

Each chat request drives one loop run: the agent rebuilds the
conversation context from stored history, probes the model with the
tool catalog attached, executes whatever tool calls come back, feeds
the results into the transcript, and probes again. When a probe
returns plain text instead of tool calls the loop re-issues the request
in streaming mode to produce the final answer, persists the turn, and
closes the stream.

Progress is reported through an Emitter so the same loop serves both the
streaming and the non-streaming API surface. Tool failures are data: the
error text is handed back to the model as the tool result so it can
recover or explain. Only completion failures and an out-of-control tool
loop abort the run.
*/
package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/x-pai/AlphaBot/tools"
)

// searchCommandPrefix triggers the direct search shortcut, bypassing the
// reasoning loop entirely.
const searchCommandPrefix = "/search"

// priceHistoryDisplayLimit caps the price history entry in the collected
// tool-output list. The full rendering still reaches both the model and
// the tool_result event.
const priceHistoryDisplayLimit = 100

// Agent orchestrates the reasoning loop. All collaborators are injected
// so tests can substitute scripted models and in-memory stores.
type Agent struct {
	registry *tools.Registry
	llm      CompletionClient
	store    *ConversationStore
	history  *HistoryBuilder
	usage    tools.UsageRecorder
	config   *Config
	logger   *logrus.Logger
	clock    func() time.Time
}

// NewAgent creates an agent over the given collaborators. A nil clock
// defaults to time.Now.
func NewAgent(registry *tools.Registry, llm CompletionClient, store *ConversationStore, history *HistoryBuilder, usage tools.UsageRecorder, config *Config, logger *logrus.Logger, clock func() time.Time) *Agent {
	if clock == nil {
		clock = time.Now
	}
	return &Agent{
		registry: registry,
		llm:      llm,
		store:    store,
		history:  history,
		usage:    usage,
		config:   config,
		logger:   logger,
		clock:    clock,
	}
}

// Run executes one reasoning loop for the request and reports progress
// through the emitter. It returns an error only when the run could not
// produce a terminal event: a cancelled context, a failed completion
// request, or a tool loop that exceeded the configured iteration cap.
// Tool execution failures do not abort the run.
func (a *Agent) Run(ctx context.Context, req ChatRequest, emit Emitter) error {
	requestLogger := a.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"user_id":    req.UserID,
	})
	requestLogger.WithField("content_length", len(req.Content)).Info("Starting reasoning loop")

	if err := emit.Emit(ctx, StreamEvent{Type: EventStart, SessionID: req.SessionID}); err != nil {
		return err
	}

	if query, ok := searchCommand(req.Content); ok {
		return a.runSearchCommand(ctx, req, query, emit, requestLogger)
	}

	messages := a.history.Build(req.Content, req.SessionID)
	if req.EnableWebSearch && a.registry.Has("search_web") {
		ApplySearchDirective(messages)
	}

	if err := emit.Emit(ctx, StreamEvent{Type: EventThinking, Content: "Analyzing your request..."}); err != nil {
		return err
	}

	catalog := a.registry.List()
	tc := tools.Context{UserID: req.UserID, Usage: a.usage, Logger: requestLogger}

	var (
		toolOutputs []string
		toolRecord  []Message
	)

	for iteration := 0; ; iteration++ {
		if iteration >= a.config.MaxToolIterations {
			requestLogger.WithField("iterations", iteration).Error("Tool call loop exceeded maximum iterations")
			return a.fail(ctx, emit, ErrToolLoopExceeded)
		}

		assistant, err := a.llm.Probe(ctx, messages, catalog, req.Model)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			requestLogger.WithError(err).Error("Completion request failed")
			return a.fail(ctx, emit, err)
		}

		if len(assistant.ToolCalls) == 0 {
			return a.finish(ctx, req, messages, catalog, toolOutputs, toolRecord, emit, requestLogger)
		}

		messages = append(messages, assistant)
		toolRecord = append(toolRecord, assistant)
		if err := emit.Emit(ctx, StreamEvent{Type: EventToolCalls, ToolCalls: assistant.ToolCalls}); err != nil {
			return err
		}

		for _, call := range assistant.ToolCalls {
			requestLogger.WithFields(logrus.Fields{
				"tool":      call.Name,
				"iteration": iteration,
			}).Info("Executing tool call")

			if err := emit.Emit(ctx, StreamEvent{Type: EventToolStart, ToolName: call.Name}); err != nil {
				return err
			}

			args := a.registry.ParseArguments(call.Name, call.Arguments)
			result, execErr := a.registry.Execute(ctx, call.Name, args, tc)
			if ctx.Err() != nil {
				return ctx.Err()
			}

			var payload any = result
			if execErr != nil {
				requestLogger.WithError(execErr).WithField("tool", call.Name).Warn("Tool call failed")
				payload = map[string]any{"error": execErr.Error()}
			}

			formatted := a.registry.FormatForDisplay(call.Name, payload)
			display := formatted
			if call.Name == "get_stock_price_history" {
				display = truncate(display, priceHistoryDisplayLimit)
			}
			if display != "" {
				toolOutputs = append(toolOutputs, display)
			}

			if err := emit.Emit(ctx, StreamEvent{Type: EventToolResult, ToolName: call.Name, FormattedResult: formatted}); err != nil {
				return err
			}

			raw, err := json.Marshal(payload)
			if err != nil {
				raw = []byte(`{"error": "tool result could not be serialized"}`)
			}
			toolMsg := ToolMessage(call.ID, call.Name, string(raw))
			messages = append(messages, toolMsg)
			toolRecord = append(toolRecord, toolMsg)
		}
	}
}

// Process runs the loop to completion and collects the outcome into a
// single response for the non-streaming API surface.
func (a *Agent) Process(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	collector := NewCollectingEmitter(a.clock)
	runErr := a.Run(ctx, req, collector)

	resp := ChatResponse{SessionID: req.SessionID}
	content, errEvent := collector.Final()
	if content != nil {
		resp.Content = content.Content
		resp.ToolOutputs = content.ToolOutputs
	}
	if errEvent != nil {
		resp.Error = errEvent.Error
		return resp, nil
	}
	if runErr != nil {
		return resp, runErr
	}
	return resp, nil
}

// finish streams the final answer, persists the turn and closes the
// stream. Called when a probe returns plain text instead of tool calls.
func (a *Agent) finish(ctx context.Context, req ChatRequest, messages []Message, catalog []tools.Definition, toolOutputs []string, toolRecord []Message, emit Emitter, requestLogger *logrus.Entry) error {
	final, err := a.llm.Stream(ctx, messages, catalog, req.Model, func(delta string) error {
		return emit.Emit(ctx, StreamEvent{Type: EventDelta, Content: delta})
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		requestLogger.WithError(err).Error("Final completion request failed")
		return a.fail(ctx, emit, err)
	}

	if err := emit.Emit(ctx, StreamEvent{Type: EventContent, Content: final, ToolOutputs: toolOutputs}); err != nil {
		return err
	}

	a.persistTurn(req, final, toolRecord, requestLogger)

	return emit.Emit(ctx, StreamEvent{Type: EventEnd, SessionID: req.SessionID})
}

// persistTurn writes the completed turn to the conversation store.
// Persistence failures are logged and swallowed: the user already has
// their answer.
func (a *Agent) persistTurn(req ChatRequest, assistantResponse string, toolRecord []Message, requestLogger *logrus.Entry) {
	record := ""
	if len(toolRecord) > 0 {
		raw, err := json.Marshal(toolRecord)
		if err != nil {
			requestLogger.WithError(err).Warn("Failed to serialize tool record")
		} else {
			record = string(raw)
		}
	}

	turn := Turn{
		SessionID:         req.SessionID,
		UserID:            req.UserID,
		UserMessage:       req.Content,
		AssistantResponse: assistantResponse,
		ToolRecord:        record,
		CreatedAt:         a.clock(),
	}
	if err := a.store.Append(turn); err != nil {
		requestLogger.WithError(err).Error("Failed to persist conversation turn")
		return
	}
	requestLogger.Info("Conversation turn persisted")
}

// fail emits a terminal error event and returns the original error. The
// emit is best-effort: when the consumer is already gone the run is
// treated as cancelled and no event is owed.
func (a *Agent) fail(ctx context.Context, emit Emitter, cause error) error {
	_ = emit.Emit(ctx, StreamEvent{Type: EventError, Error: cause.Error()})
	return cause
}

// runSearchCommand handles the /search shortcut: the query goes straight
// to the search tool and the result is returned without consulting the
// model.
func (a *Agent) runSearchCommand(ctx context.Context, req ChatRequest, query string, emit Emitter, requestLogger *logrus.Entry) error {
	if query == "" {
		if err := emit.Emit(ctx, StreamEvent{Type: EventContent, Content: "Please enter a search query, for example: /search NVIDIA earnings"}); err != nil {
			return err
		}
		return emit.Emit(ctx, StreamEvent{Type: EventEnd, SessionID: req.SessionID})
	}
	if !a.registry.Has("search_web") {
		if err := emit.Emit(ctx, StreamEvent{Type: EventContent, Content: "Web search is not enabled on this server."}); err != nil {
			return err
		}
		return emit.Emit(ctx, StreamEvent{Type: EventEnd, SessionID: req.SessionID})
	}

	requestLogger.WithField("query", truncate(query, 120)).Info("Running direct search command")

	if err := emit.Emit(ctx, StreamEvent{Type: EventToolStart, ToolName: "search_web"}); err != nil {
		return err
	}

	tc := tools.Context{UserID: req.UserID, Usage: a.usage, Logger: requestLogger}
	result, execErr := a.registry.Execute(ctx, "search_web", map[string]any{"query": query}, tc)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var payload any = result
	if execErr != nil {
		requestLogger.WithError(execErr).Warn("Direct search failed")
		payload = map[string]any{"error": execErr.Error()}
	}
	formatted := a.registry.FormatForDisplay("search_web", payload)

	if err := emit.Emit(ctx, StreamEvent{Type: EventToolResult, ToolName: "search_web", FormattedResult: formatted}); err != nil {
		return err
	}

	content := "I searched the web for \"" + query + "\". The results are shown above."
	if execErr != nil {
		content = "The search for \"" + query + "\" failed: " + execErr.Error()
	}
	var toolOutputs []string
	if formatted != "" {
		toolOutputs = append(toolOutputs, formatted)
	}

	if err := emit.Emit(ctx, StreamEvent{Type: EventContent, Content: content, ToolOutputs: toolOutputs}); err != nil {
		return err
	}

	a.persistTurn(req, content, nil, requestLogger)

	return emit.Emit(ctx, StreamEvent{Type: EventEnd, SessionID: req.SessionID})
}

// searchCommand extracts the query from a /search command message. The
// second return value reports whether the message is a search command at
// all.
func searchCommand(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == searchCommandPrefix {
		return "", true
	}
	if !strings.HasPrefix(trimmed, searchCommandPrefix+" ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(trimmed, searchCommandPrefix+" ")), true
}

// truncate shortens s to at most limit characters for display, cutting on
// rune boundaries so multi-byte content is never split mid-character.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
