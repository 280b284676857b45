package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	at := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestBuildFreshSession(t *testing.T) {
	store := testStore(t)
	builder := NewHistoryBuilder(store, 10, fixedClock(), quietLogger())

	messages := builder.Build("what is the price of AAPL", "new-session")

	require.Len(t, messages, 2)
	assert.Equal(t, RoleSystem, messages[0].Role)
	assert.Contains(t, messages[0].Content, "Current date and time: 2025-06-15 09:30")
	assert.Equal(t, RoleUser, messages[1].Role)
	assert.Equal(t, "what is the price of AAPL", messages[1].Content)
}

func TestBuildReplaysHistoryOldestFirst(t *testing.T) {
	store := testStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	appendTurn(t, store, "s1", "u1", "first question", "first answer", base)
	appendTurn(t, store, "s1", "u1", "second question", "second answer", base.Add(time.Minute))

	builder := NewHistoryBuilder(store, 10, fixedClock(), quietLogger())
	messages := builder.Build("third question", "s1")

	require.Len(t, messages, 6)
	assert.Equal(t, "first question", messages[1].Content)
	assert.Equal(t, "first answer", messages[2].Content)
	assert.Equal(t, "second question", messages[3].Content)
	assert.Equal(t, "second answer", messages[4].Content)
	assert.Equal(t, "third question", messages[5].Content)
	assert.Equal(t, RoleUser, messages[5].Role)
}

func TestBuildHonorsTurnLimit(t *testing.T) {
	store := testStore(t)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		appendTurn(t, store, "s1", "u1",
			"question "+string(rune('a'+i)),
			"answer "+string(rune('a'+i)),
			base.Add(time.Duration(i)*time.Minute))
	}

	builder := NewHistoryBuilder(store, 2, fixedClock(), quietLogger())
	messages := builder.Build("current", "s1")

	// system + 2 turns of question/answer + current message.
	require.Len(t, messages, 6)
	// Oldest retained turn comes first.
	assert.Equal(t, "question d", messages[1].Content)
	assert.Equal(t, "question e", messages[3].Content)
}

func TestBuildExpandsToolRecord(t *testing.T) {
	store := testStore(t)

	recorded := []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "get_stock_info", Arguments: `{"symbol":"AAPL"}`}}},
		ToolMessage("call_1", "get_stock_info", `{"stock":{"symbol":"AAPL"}}`),
	}
	record, err := json.Marshal(recorded)
	require.NoError(t, err)

	require.NoError(t, store.Append(Turn{
		SessionID:         "s1",
		UserID:            "u1",
		UserMessage:       "quote apple",
		AssistantResponse: "Apple trades at 230.",
		ToolRecord:        string(record),
		CreatedAt:         time.Now(),
	}))

	builder := NewHistoryBuilder(store, 10, fixedClock(), quietLogger())
	messages := builder.Build("and now?", "s1")

	// system, user, assistant(toolCalls), tool, assistant text, current user.
	require.Len(t, messages, 6)
	assert.Equal(t, RoleAssistant, messages[2].Role)
	require.Len(t, messages[2].ToolCalls, 1)
	assert.Equal(t, "call_1", messages[2].ToolCalls[0].ID)
	assert.Equal(t, RoleTool, messages[3].Role)
	assert.Equal(t, "call_1", messages[3].ToolCallID)
	assert.Equal(t, "Apple trades at 230.", messages[4].Content)

	// The rebuilt list satisfies the pairing invariant.
	_, err = ToLLMMessages(messages)
	require.NoError(t, err)
}

func TestBuildSkipsCorruptToolRecord(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Append(Turn{
		SessionID:         "s1",
		UserID:            "u1",
		UserMessage:       "quote apple",
		AssistantResponse: "Apple trades at 230.",
		ToolRecord:        `{"not": "an array"`,
		CreatedAt:         time.Now(),
	}))

	builder := NewHistoryBuilder(store, 10, fixedClock(), quietLogger())
	messages := builder.Build("and now?", "s1")

	// The corrupt record is dropped; the turn's text survives.
	require.Len(t, messages, 4)
	assert.Equal(t, "quote apple", messages[1].Content)
	assert.Equal(t, "Apple trades at 230.", messages[2].Content)
}

func TestApplySearchDirectiveTargetsLastUserMessage(t *testing.T) {
	messages := []Message{
		SystemMessage("persona"),
		UserMessage("find recent nvidia news"),
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_1", Name: "t"}}},
		ToolMessage("call_1", "t", "{}"),
	}

	ApplySearchDirective(messages)

	assert.Contains(t, messages[1].Content, "find recent nvidia news")
	assert.Contains(t, messages[1].Content, "search_web")
	// Non-user messages are untouched.
	assert.Equal(t, "{}", messages[3].Content)
}

func TestApplySearchDirectiveNoUserMessage(t *testing.T) {
	messages := []Message{SystemMessage("persona")}
	ApplySearchDirective(messages)
	assert.Equal(t, "persona", messages[0].Content)
}
