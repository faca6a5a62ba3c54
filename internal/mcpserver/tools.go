package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/taskfile"
)

func registerTools(s *server.MCPServer, queue QueueStatusProvider, notes NoteWriter, ender SessionEnder, log *logger.Logger) {
	s.AddTool(
		mcp.NewTool("crewly_queue_status",
			mcp.WithDescription("Read the pending-message count and active status for this session's conversation queue."),
			mcp.WithString("conversation_id",
				mcp.Required(),
				mcp.Description("The conversation ID this session belongs to"),
			),
		),
		queueStatusHandler(queue, log),
	)

	s.AddTool(
		mcp.NewTool("crewly_note",
			mcp.WithDescription("Append a one-line note to this project's current_focus.md memory file."),
			mcp.WithString("project_path",
				mcp.Required(),
				mcp.Description("Absolute path to the project working directory"),
			),
			mcp.WithString("note",
				mcp.Required(),
				mcp.Description("The note text to append"),
			),
		),
		noteHandler(notes, log),
	)

	s.AddTool(
		mcp.NewTool("crewly_task_advance",
			mcp.WithDescription("Move a task file between its milestone's open/in_progress/done/blocked directories and return its header."),
			mcp.WithString("project_path", mcp.Required(), mcp.Description("Absolute path to the project working directory")),
			mcp.WithString("milestone_dir", mcp.Required(), mcp.Description("The milestone directory name, e.g. m1_setup")),
			mcp.WithString("file_name", mcp.Required(), mcp.Description("The task file's name within its state directory")),
			mcp.WithString("from_state", mcp.Required(), mcp.Description("Current state: open, in_progress, done, or blocked")),
			mcp.WithString("to_state", mcp.Required(), mcp.Description("Destination state: open, in_progress, done, or blocked")),
		),
		taskAdvanceHandler(log),
	)

	s.AddTool(
		mcp.NewTool("crewly_session_end",
			mcp.WithDescription("Declare this session's work finished: records an end-of-session summary and tears the session down."),
			mcp.WithString("session_name", mcp.Required(), mcp.Description("The session name to end")),
			mcp.WithString("summary", mcp.Required(), mcp.Description("End-of-session summary to persist to memory")),
		),
		sessionEndHandler(ender, log),
	)

	log.Info("registered mcp tools", zap.Int("count", 4))
}

func queueStatusHandler(queue QueueStatusProvider, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		conversationID, err := req.RequireString("conversation_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		snapshot, err := queue.StatusSnapshot(conversationID)
		if err != nil {
			log.Error("queue status lookup failed", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to read queue status: %v", err)), nil
		}

		body, err := json.MarshalIndent(snapshot, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode snapshot: %v", err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func noteHandler(notes NoteWriter, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectPath, err := req.RequireString("project_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		note, err := req.RequireString("note")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := notes.AppendFocusNote(ctx, projectPath, note); err != nil {
			log.Error("append focus note failed", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to append note: %v", err)), nil
		}
		return mcp.NewToolResultText("note recorded"), nil
	}
}

func taskAdvanceHandler(log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectPath, err := req.RequireString("project_path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		milestoneDir, err := req.RequireString("milestone_dir")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fileName, err := req.RequireString("file_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		fromState, err := req.RequireString("from_state")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		toState, err := req.RequireString("to_state")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		dir := filepath.Join(taskfile.ProjectTasksDir(projectPath), milestoneDir)
		store := taskfile.NewStore(dir)
		header, err := store.Advance(taskfile.State(fromState), taskfile.State(toState), fileName)
		if err != nil {
			log.Error("task advance failed", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to advance task file: %v", err)), nil
		}

		body, err := json.MarshalIndent(header, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode header: %v", err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

func sessionEndHandler(ender SessionEnder, log *logger.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ender == nil {
			return mcp.NewToolResultError("session teardown is unavailable from a standalone mcp-server process"), nil
		}

		sessionName, err := req.RequireString("session_name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		summary, err := req.RequireString("summary")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		if err := ender.EndAgent(sessionName, summary); err != nil {
			log.Error("session end failed", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to end session: %v", err)), nil
		}
		return mcp.NewToolResultText("session ended"), nil
	}
}
