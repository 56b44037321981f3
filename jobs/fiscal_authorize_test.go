package jobs

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestFiscalAuthorizeTaskIsDedupedPerDocument(t *testing.T) {
	docID := uuid.New()

	task, err := NewFiscalAuthorizeTask(docID)
	require.NoError(t, err)
	require.Equal(t, TaskFiscalAuthorize, task.Type())

	var payload FiscalAuthorizePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, docID, payload.DocumentID)

	// Same document, same id; different document, different id.
	require.Equal(t, FiscalAuthorizeTaskID(docID), FiscalAuthorizeTaskID(docID))
	require.NotEqual(t, FiscalAuthorizeTaskID(docID), FiscalAuthorizeTaskID(uuid.New()))
}

func TestTerminalTaskState(t *testing.T) {
	// Archived and completed tasks keep their id but never run again, so a
	// manual retry must replace them instead of silently colliding.
	require.True(t, terminalTaskState(asynq.TaskStateArchived))
	require.True(t, terminalTaskState(asynq.TaskStateCompleted))

	require.False(t, terminalTaskState(asynq.TaskStatePending))
	require.False(t, terminalTaskState(asynq.TaskStateActive))
	require.False(t, terminalTaskState(asynq.TaskStateScheduled))
	require.False(t, terminalTaskState(asynq.TaskStateRetry))
	require.False(t, terminalTaskState(asynq.TaskStateAggregating))
}
