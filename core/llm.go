/*
Package core provides the completion capability for the AlphaBot agent.

This file wraps a langchaingo model behind the narrow interface the
reasoning loop needs: a non-streaming probe that may come back with tool
calls, and a streaming call that forwards text fragments as they arrive.
Completion failures and timeouts surface as ErrCompletion, which is fatal
to the current loop iteration.
*/
package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"

	"github.com/x-pai/AlphaBot/tools"
)

// CompletionClient is the completion capability consumed by the reasoning
// loop. Probe asks for either tool calls or free text in one shot; Stream
// re-issues the request in streaming mode and forwards each text fragment
// through onDelta before returning the accumulated answer.
type CompletionClient interface {
	Probe(ctx context.Context, messages []Message, catalog []tools.Definition, model string) (Message, error)
	Stream(ctx context.Context, messages []Message, catalog []tools.Definition, model string, onDelta func(string) error) (string, error)
}

// LangChainClient implements CompletionClient over a langchaingo model
// pointed at an OpenAI-compatible endpoint.
type LangChainClient struct {
	model  llms.Model
	config *Config
	logger *logrus.Logger
}

// NewLangChainClient wraps a langchaingo model with the loop-facing
// completion interface.
//
// Parameters:
//   - model: The underlying language model
//   - config: Configuration carrying timeouts and generation parameters
//   - logger: Logger for monitoring completion calls
//
// Returns:
//   - *LangChainClient: Configured client ready for use
func NewLangChainClient(model llms.Model, config *Config, logger *logrus.Logger) *LangChainClient {
	return &LangChainClient{model: model, config: config, logger: logger}
}

// truncateForLog truncates text to a configurable length for logging
// purposes, preventing excessive log output while keeping useful context.
func (c *LangChainClient) truncateForLog(text string) string {
	if len(text) <= c.config.LogTruncateLength {
		return text
	}
	return text[:c.config.LogTruncateLength] + "..."
}

func (c *LangChainClient) callOptions(catalog []tools.Definition, model string) []llms.CallOption {
	opts := []llms.CallOption{
		llms.WithMaxTokens(c.config.OpenAIMaxTokens),
		llms.WithTemperature(c.config.OpenAITemperature),
	}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}
	if len(catalog) > 0 {
		opts = append(opts, llms.WithTools(renderToolSchema(catalog)), llms.WithToolChoice("auto"))
	}
	return opts
}

// Probe issues one non-streaming completion with the tool catalog and
// "auto" tool choice, returning the assistant message of the first
// choice: either free text or a set of requested tool calls.
func (c *LangChainClient) Probe(ctx context.Context, messages []Message, catalog []tools.Definition, model string) (Message, error) {
	converted, err := ToLLMMessages(messages)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.ProbeTimeout)
	defer cancel()

	response, err := c.model.GenerateContent(ctx, converted, c.callOptions(catalog, model)...)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	if len(response.Choices) == 0 {
		return Message{}, fmt.Errorf("%w: empty response", ErrCompletion)
	}

	choice := response.Choices[0]
	assistant := AssistantMessage(choice.Content)
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		assistant.ToolCalls = append(assistant.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.FunctionCall.Name,
			Arguments: call.FunctionCall.Arguments,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"toolCalls": len(assistant.ToolCalls),
		"content":   c.truncateForLog(assistant.Content),
	}).Debug("Completion probe finished")

	return assistant, nil
}

// Stream re-issues the request in streaming mode, forwarding every text
// fragment through onDelta as it arrives and returning the accumulated
// answer. An onDelta error cancels the stream (consumer gone).
func (c *LangChainClient) Stream(ctx context.Context, messages []Message, catalog []tools.Definition, model string, onDelta func(string) error) (string, error) {
	converted, err := ToLLMMessages(messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	var aggregated strings.Builder
	opts := append(c.callOptions(catalog, model), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		aggregated.Write(chunk)
		return onDelta(string(chunk))
	}))

	response, err := c.model.GenerateContent(ctx, converted, opts...)
	if err != nil {
		// A cancelled consumer propagates here via the streaming func.
		if ctx.Err() != nil {
			return aggregated.String(), ctx.Err()
		}
		return aggregated.String(), fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	final := aggregated.String()
	if final == "" && len(response.Choices) > 0 {
		final = response.Choices[0].Content
	}

	c.logger.WithField("responseLength", len(final)).Debug("Completion stream finished")
	return final, nil
}

// renderToolSchema converts the catalog into the function-tool schema
// shape expected by OpenAI-compatible endpoints.
func renderToolSchema(catalog []tools.Definition) []llms.Tool {
	rendered := make([]llms.Tool, 0, len(catalog))
	for _, def := range catalog {
		rendered = append(rendered, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Schema(),
			},
		})
	}
	return rendered
}

var _ CompletionClient = (*LangChainClient)(nil)
