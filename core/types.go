/*
Package core contains the request/response types for the AlphaBot chat API.

These types are the contract between client and server: the chat request
that drives one reasoning loop run, the non-streaming response shape, and
the execution control types for stopping a running loop. The streaming
wire format is defined by StreamEvent in events.go.
*/
package core

// ChatRequest represents an incoming chat request from a client.
type ChatRequest struct {
	Content         string `json:"content"`                     // The user's message to the agent
	SessionID       string `json:"session_id,omitempty"`        // Optional session id for conversation continuity
	UserID          string `json:"-"`                           // Caller identity, resolved by the transport layer
	EnableWebSearch bool   `json:"enable_web_search,omitempty"` // Ask the model to prefer the web search tool this turn
	Stream          bool   `json:"stream,omitempty"`            // Deliver progress as newline-delimited JSON events
	Model           string `json:"model,omitempty"`             // Optional model override for this request
}

// ChatResponse is the non-streaming response shape. ToolOutputs carries
// the human-readable renderings of any tool results produced while
// answering.
type ChatResponse struct {
	Content     string   `json:"content"`
	SessionID   string   `json:"session_id"`
	ToolOutputs []string `json:"tool_outputs,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// StopRequest asks the server to cancel a running loop execution.
type StopRequest struct {
	ExecutionID string `json:"execution_id"` // Identifier of the execution to stop
}

// StopResponse reports the outcome of a stop request.
type StopResponse struct {
	Success bool   `json:"success"` // Whether the stop request was processed
	Message string `json:"message"` // Human-readable result description
	Stopped bool   `json:"stopped"` // Whether a running execution was actually cancelled
}
