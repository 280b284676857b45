/*
Package core defines the conversation message model for the AlphaBot agent.

This file contains the Message and ToolCall types that represent one turn
element in a completion request, along with the conversion into the
langchaingo message format used by the completion client. The conversion
validates the tool-message pairing invariant: a tool-role message must
answer a tool call issued by the immediately preceding assistant message.
*/
package core

import (
	"fmt"

	"github.com/tmc/langchaingo/llms"
)

// Message roles as expected by OpenAI-compatible completion endpoints.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a single tool invocation requested by the model. Arguments
// is the raw JSON blob exactly as the model produced it; parsing is the
// dispatcher's concern.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one element of the conversation submitted to the completion
// endpoint. Content may be empty on assistant messages that only carry
// tool calls. ToolCallID and Name are set only on tool-role messages and
// tie a tool result back to the invocation that produced it.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage builds a tool-role message answering the given tool call id.
func ToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// ToLLMMessages converts the conversation into langchaingo message
// contents. A tool-role message whose ToolCallID does not match a tool
// call issued by the nearest preceding assistant message violates the
// completion endpoint's contract; this is a fatal request error rather
// than something to drop silently.
//
// Parameters:
//   - messages: Ordered conversation to convert
//
// Returns:
//   - []llms.MessageContent: Converted messages ready for GenerateContent
//   - error: Pairing violation or unknown role
func ToLLMMessages(messages []Message) ([]llms.MessageContent, error) {
	converted := make([]llms.MessageContent, 0, len(messages))

	// Tool call ids issued by the assistant message currently being
	// answered. Reset on every assistant message.
	pending := map[string]bool{}

	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			converted = append(converted, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))

		case RoleUser:
			converted = append(converted, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))

		case RoleAssistant:
			pending = map[string]bool{}
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				pending[call.ID] = true
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
			converted = append(converted, mc)

		case RoleTool:
			if !pending[msg.ToolCallID] {
				return nil, fmt.Errorf("message %d: tool result %q does not answer a tool call from the preceding assistant message", i, msg.ToolCallID)
			}
			converted = append(converted, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: msg.ToolCallID,
						Name:       msg.Name,
						Content:    msg.Content,
					},
				},
			})

		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, msg.Role)
		}
	}

	return converted, nil
}

// LastUserIndex returns the index of the last user-role message scanning
// backward, or -1 when the conversation holds none. Used when rewriting
// the current user turn; the true last user message is not necessarily the
// final array element.
func LastUserIndex(messages []Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}
