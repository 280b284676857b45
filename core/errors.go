/*
Package core defines the error taxonomy for the AlphaBot agent.

Recoverable tool-level failures (unknown tool, malformed arguments, tool
execution errors) are data: they become the content of a tool-role message
so the model can reason about the failure and self-correct. Fatal failures
(completion endpoint errors, the iteration cap) abort the current loop and
surface as a single error event. Persistence failures are logged and never
change a response that has already been sent.
*/
package core

import "errors"

var (
	// ErrCompletion indicates the completion endpoint call failed or
	// timed out. Fatal to the current loop iteration.
	ErrCompletion = errors.New("completion request failed")

	// ErrToolLoopExceeded indicates the reasoning loop hit its bounded
	// iteration cap without the model converging on a direct answer.
	ErrToolLoopExceeded = errors.New("tool call loop exceeded maximum iterations")
)
