package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelManagerLifecycle(t *testing.T) {
	cm := NewCancelManager()
	assert.Empty(t, cm.ActiveExecutions())

	ctx, cancel := context.WithCancel(context.Background())
	cm.AddExecution("run-1", cancel)
	assert.Equal(t, []string{"run-1"}, cm.ActiveExecutions())

	require.True(t, cm.CancelExecution("run-1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Empty(t, cm.ActiveExecutions())

	// Already cancelled and removed.
	assert.False(t, cm.CancelExecution("run-1"))
}

func TestCancelManagerUnknownExecution(t *testing.T) {
	cm := NewCancelManager()
	assert.False(t, cm.CancelExecution("ghost"))
}

func TestCancelManagerRemoveWithoutCancel(t *testing.T) {
	cm := NewCancelManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cm.AddExecution("run-1", cancel)
	cm.RemoveExecution("run-1")

	assert.Empty(t, cm.ActiveExecutions())
	assert.NoError(t, ctx.Err())
}
