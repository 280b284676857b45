/*
Execution cancellation for running reasoning loops.

Each chat request is tracked as an execution keyed by session id. The
stop endpoint looks up the execution's cancel function and invokes it,
which cancels the request context and stops the loop at its next
suspension point. A cancelled run emits nothing further and persists
nothing.
*/
package core

import (
	"context"
	"sync"
)

// CancelManager tracks running loop executions and their cancellation
// functions. All methods are safe for concurrent use.
type CancelManager struct {
	executions map[string]context.CancelFunc
	mutex      sync.RWMutex
}

// NewCancelManager returns an empty manager ready to track executions.
func NewCancelManager() *CancelManager {
	return &CancelManager{
		executions: make(map[string]context.CancelFunc),
	}
}

// AddExecution registers a running execution. The cancel function must
// cancel the context driving the reasoning loop.
func (cm *CancelManager) AddExecution(executionID string, cancel context.CancelFunc) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.executions[executionID] = cancel
}

// RemoveExecution drops an execution from tracking. Call it when the
// loop finishes regardless of outcome.
func (cm *CancelManager) RemoveExecution(executionID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	delete(cm.executions, executionID)
}

// CancelExecution cancels a running execution by id. It reports whether
// an execution with that id was found.
func (cm *CancelManager) CancelExecution(executionID string) bool {
	cm.mutex.Lock()
	cancel, exists := cm.executions[executionID]
	if exists {
		delete(cm.executions, executionID)
	}
	cm.mutex.Unlock()

	if !exists {
		return false
	}
	cancel()
	return true
}

// ActiveExecutions returns the ids of all executions currently running.
func (cm *CancelManager) ActiveExecutions() []string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	executions := make([]string, 0, len(cm.executions))
	for id := range cm.executions {
		executions = append(executions, id)
	}
	return executions
}
