/*
Package core provides conversation history reconstruction for the AlphaBot agent.

The history builder turns persisted turns back into the ordered message
list submitted to the completion endpoint: one system message first (the
persona plus the injected current date/time), then the most recent N turns
oldest-first — re-expanding each turn's serialized tool record into its
original assistant/tool message pairs — and finally the new user message.

History retrieval failure is never fatal to a request: the builder logs
the error and degrades to system prompt plus current message only.
*/
package core

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// HistoryBuilder reconstructs conversation context from the turn store.
type HistoryBuilder struct {
	store  *ConversationStore
	limit  int
	clock  func() time.Time
	logger *logrus.Logger
}

// NewHistoryBuilder creates a builder reading up to limit persisted turns
// per session. The clock supplies the date/time injected into the system
// message; tests pass a fixed clock.
func NewHistoryBuilder(store *ConversationStore, limit int, clock func() time.Time, logger *logrus.Logger) *HistoryBuilder {
	if clock == nil {
		clock = time.Now
	}
	return &HistoryBuilder{store: store, limit: limit, clock: clock, logger: logger}
}

// Build produces the ordered message list for one request: system message
// first, reconstructed history in the middle, the new user message last.
// An empty or unknown session id is a fresh session.
//
// Parameters:
//   - userMessage: The current request's user input
//   - sessionID: Session whose history to reconstruct
//
// Returns:
//   - []Message: Ordered conversation ready for the completion endpoint
func (b *HistoryBuilder) Build(userMessage, sessionID string) []Message {
	messages := []Message{SystemMessage(SystemPrompt(b.clock()))}

	turns, err := b.store.RecentTurns(sessionID, b.limit)
	if err != nil {
		// Degrade to system + current message; losing history must not
		// fail the request.
		b.logger.WithError(err).WithField("sessionID", sessionID).Error("Failed to load conversation history")
		turns = nil
	}

	// RecentTurns returns most-recent-first; replay oldest first.
	for i := len(turns) - 1; i >= 0; i-- {
		turn := turns[i]
		if turn.UserMessage != "" {
			messages = append(messages, UserMessage(turn.UserMessage))
		}
		if turn.ToolRecord != "" {
			messages = append(messages, b.expandToolRecord(turn)...)
		}
		if turn.AssistantResponse != "" {
			messages = append(messages, AssistantMessage(turn.AssistantResponse))
		}
	}

	return append(messages, UserMessage(userMessage))
}

// expandToolRecord deserializes a turn's tool record back into the
// assistant(toolCalls)/tool message pairs it was captured from,
// preserving original order. A corrupt record is skipped with a log line
// rather than failing the build.
func (b *HistoryBuilder) expandToolRecord(turn Turn) []Message {
	var recorded []Message
	if err := json.Unmarshal([]byte(turn.ToolRecord), &recorded); err != nil {
		b.logger.WithError(err).WithFields(logrus.Fields{
			"sessionID": turn.SessionID,
			"turnID":    turn.ID,
		}).Warn("Skipping unparseable tool record")
		return nil
	}
	return recorded
}

// ApplySearchDirective rewrites the last user message to instruct the
// model to prefer the web search tool for this turn. It targets the last
// message with a user role scanning backward, not the final array
// element.
func ApplySearchDirective(messages []Message) {
	if idx := LastUserIndex(messages); idx >= 0 {
		messages[idx].Content = messages[idx].Content + "\n\n" + searchDirective
	}
}
