package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/taskfile"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func writeSampleTaskFile(t *testing.T, projectPath, milestoneDir string) {
	t.Helper()
	dir := filepath.Join(taskfile.ProjectTasksDir(projectPath), milestoneDir, string(taskfile.StateOpen))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := "---\ntargetRole: reviewer\nstepId: step-2\ndelayMinutes: 15\nconditional: step-1\n" +
		`verification: {"mustExist": "internal/scheduler/scheduler.go"}` + "\n---\nDo the thing.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "step-1.md"), []byte(body), 0o644))
}

func TestTaskAdvanceHandlerMovesFileAndReturnsHeader(t *testing.T) {
	projectPath := t.TempDir()
	writeSampleTaskFile(t, projectPath, "m1_setup")

	handler := taskAdvanceHandler(newTestLogger(t))
	result, err := handler(context.Background(), toolRequest(map[string]any{
		"project_path":  projectPath,
		"milestone_dir": "m1_setup",
		"file_name":     "step-1.md",
		"from_state":    "open",
		"to_state":      "in_progress",
	}))

	require.NoError(t, err)
	require.False(t, result.IsError)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "reviewer")

	_, statErr := os.Stat(filepath.Join(taskfile.ProjectTasksDir(projectPath), "m1_setup", "in_progress", "step-1.md"))
	assert.NoError(t, statErr)
}

func TestTaskAdvanceHandlerReturnsErrorResultOnMissingFile(t *testing.T) {
	projectPath := t.TempDir()

	handler := taskAdvanceHandler(newTestLogger(t))
	result, err := handler(context.Background(), toolRequest(map[string]any{
		"project_path":  projectPath,
		"milestone_dir": "m1_setup",
		"file_name":     "missing.md",
		"from_state":    "open",
		"to_state":      "in_progress",
	}))

	require.NoError(t, err)
	assert.True(t, result.IsError)
}

type fakeSessionEnder struct {
	sessionName, summary string
	err                  error
}

func (f *fakeSessionEnder) EndAgent(sessionName, summary string) error {
	f.sessionName, f.summary = sessionName, summary
	return f.err
}

func TestSessionEndHandlerDelegatesToEnder(t *testing.T) {
	ender := &fakeSessionEnder{}
	handler := sessionEndHandler(ender, newTestLogger(t))

	result, err := handler(context.Background(), toolRequest(map[string]any{
		"session_name": "agentmux-orc",
		"summary":      "finished the release checklist",
	}))

	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "agentmux-orc", ender.sessionName)
	assert.Equal(t, "finished the release checklist", ender.summary)
}

func TestSessionEndHandlerErrorsWhenEnderIsNil(t *testing.T) {
	handler := sessionEndHandler(nil, newTestLogger(t))

	result, err := handler(context.Background(), toolRequest(map[string]any{
		"session_name": "agentmux-orc",
		"summary":      "n/a",
	}))

	require.NoError(t, err)
	assert.True(t, result.IsError)
}
