/*
Package tools provides the tool catalog and dispatcher for the AlphaBot agent.

The registry holds the static tool catalog in declaration order plus any
dynamically enabled tools (web search), and dispatches named invocations
against handlers registered at startup. Adding a tool is a registration
call, not a branch in the reasoning loop.

Failure semantics: an unknown tool name or a failed handler produces a
typed Error value instead of aborting the exchange, so the reasoning loop
can feed the failure back to the model as a tool result. Malformed JSON
arguments degrade to an empty argument set; the parse failure is logged
for observability but the call proceeds.
*/
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorKind classifies recoverable tool failures.
type ErrorKind string

const (
	// KindUnknownTool means the dispatcher cannot resolve the tool name.
	KindUnknownTool ErrorKind = "unknown_tool"
	// KindExecution means the tool ran but returned an error.
	KindExecution ErrorKind = "execution_error"
)

// Error is a recoverable tool failure. It is data rather than control
// flow: the reasoning loop serializes it into the tool-result content so
// the model can adapt.
type Error struct {
	Kind ErrorKind
	Tool string
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnknownTool:
		return fmt.Sprintf("unknown tool: %s", e.Tool)
	default:
		return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Param describes one tool parameter in the catalog schema. A parameter
// is required unless it carries a default or is marked Optional.
type Param struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
	Optional    bool     `json:"-"`
}

// Definition is a static or dynamic tool descriptor exposed to the model
// and to the tool listing endpoint.
type Definition struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  map[string]Param `json:"parameters"`
}

// Schema renders the definition as the JSON-schema object shape expected
// by OpenAI-compatible completion endpoints.
func (d Definition) Schema() map[string]any {
	required := make([]string, 0, len(d.Parameters))
	properties := make(map[string]any, len(d.Parameters))
	for name, param := range d.Parameters {
		properties[name] = param
		if param.Default == nil && !param.Optional {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// UsageRecorder records billable tool usage for a user. Implementations
// must tolerate concurrent calls from independent requests.
type UsageRecorder interface {
	IncrementUsage(ctx context.Context, userID string) error
}

// Context carries the caller's identity and per-request hooks into tool
// handlers. It is opaque to the reasoning loop.
type Context struct {
	UserID string
	Usage  UsageRecorder
	Logger *logrus.Entry
}

// Handler executes one tool invocation against parsed arguments and
// returns a JSON-serializable result.
type Handler func(ctx context.Context, args map[string]any, tc Context) (any, error)

// Registry holds the tool catalog and dispatches invocations. It is built
// once at startup and read-only afterwards, so unsynchronized concurrent
// reads are safe.
type Registry struct {
	definitions []Definition
	handlers    map[string]Handler
	timeout     time.Duration
	logger      *logrus.Logger
}

// NewRegistry creates an empty registry. The timeout bounds each tool
// execution; zero disables the per-call deadline.
//
// Parameters:
//   - timeout: Per-call execution timeout
//   - logger: Logger for dispatch observability
//
// Returns:
//   - *Registry: Empty registry ready for registration calls
func NewRegistry(timeout time.Duration, logger *logrus.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		timeout:  timeout,
		logger:   logger,
	}
}

// Register appends a tool to the catalog. Registration order is preserved
// by List; some callers truncate a "top N tools" display, so order is
// significant. Registering a duplicate name panics: the catalog is wired
// at startup and a duplicate is a programming error.
func (r *Registry) Register(def Definition, handler Handler) {
	if _, exists := r.handlers[def.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate registration of %q", def.Name))
	}
	r.definitions = append(r.definitions, def)
	r.handlers[def.Name] = handler
}

// List returns the catalog in registration order. The returned slice is a
// copy to keep the registry immutable after startup.
func (r *Registry) List() []Definition {
	out := make([]Definition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// ParseArguments decodes a raw JSON argument blob into a map. Malformed
// JSON degrades to an empty argument set so the invocation can proceed;
// the parse failure is logged, not fatal.
func (r *Registry) ParseArguments(name, raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"tool":      name,
			"arguments": raw,
		}).Warn("Failed to parse tool arguments, proceeding with empty set")
		return map[string]any{}
	}
	return args
}

// Execute dispatches a named tool against parsed arguments. Unknown names
// and handler failures come back as *Error values; the caller decides how
// to surface them (the reasoning loop turns them into tool-result data).
//
// Parameters:
//   - ctx: Request context; a per-call timeout is layered on top
//   - name: Tool name as requested by the model
//   - args: Parsed argument map
//   - tc: Caller identity and hooks
//
// Returns:
//   - any: JSON-serializable tool result
//   - error: *Error on unknown tool or execution failure
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, tc Context) (any, error) {
	handler, ok := r.handlers[name]
	if !ok {
		return nil, &Error{Kind: KindUnknownTool, Tool: name}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	startTime := time.Now()
	result, err := handler(ctx, args, tc)
	executionTime := time.Since(startTime)

	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"tool":          name,
			"executionTime": executionTime,
		}).Error("Tool execution failed")
		return nil, &Error{Kind: KindExecution, Tool: name, Err: err}
	}

	r.logger.WithFields(logrus.Fields{
		"tool":          name,
		"executionTime": executionTime,
	}).Info("Tool execution completed")

	return result, nil
}

// StringArg extracts a string argument with a fallback default.
func StringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// IntArg extracts an integer argument with a fallback default. JSON
// numbers decode as float64, so both forms are accepted.
func IntArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
