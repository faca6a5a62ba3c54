// Package mcpserver exposes a Model Context Protocol tool server that the
// spawned CLI agents (claude-code, gemini-cli, codex-cli) can call back
// into, so an agent can introspect its own queue state, drop a note into
// its project's memory, advance a task file, or declare its own session
// finished, all without leaving its terminal session.
package mcpserver

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/logger"
)

// Config holds the MCP server identity.
type Config struct {
	Name    string
	Version string
}

// QueueStatusProvider answers crewly_queue_status lookups. Implemented by
// internal/messagequeue.Queue.
type QueueStatusProvider interface {
	StatusSnapshot(conversationID string) (QueueSnapshot, error)
}

// NoteWriter answers crewly_note appends. Implemented by
// internal/memory.GoalTracking.
type NoteWriter interface {
	AppendFocusNote(ctx context.Context, projectPath, note string) error
}

// SessionEnder answers crewly_session_end calls: an agent's own declaration
// that its session is finished. Implemented by *internal/agent.Manager; nil
// in the standalone mcp-server process, which has no live session backend
// to tear anything down on (see cmd/crewlyd's runStandaloneMCPServer).
type SessionEnder interface {
	EndAgent(sessionName, summary string) error
}

// QueueSnapshot is the read-only view returned by crewly_queue_status.
type QueueSnapshot struct {
	ConversationID string   `json:"conversationId"`
	PendingCount   int      `json:"pendingCount"`
	ActiveStatus   string   `json:"activeStatus"`
	PendingIDs     []string `json:"pendingIds"`
}

// Server wraps an MCP stdio server with lifecycle management. Crewly runs
// one server per crewlyd process, started over stdio rather than the
// teacher's SSE/Streamable-HTTP transports, since every collaborating CLI
// agent is a child process of the same host, not a remote MCP client.
type Server struct {
	cfg    Config
	queue  QueueStatusProvider
	notes  NoteWriter
	ender  SessionEnder
	logger *logger.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates a new MCP server bound to the given queue and memory
// services. ender may be nil, in which case crewly_session_end responds
// with an error rather than panicking.
func New(cfg Config, queue QueueStatusProvider, notes NoteWriter, ender SessionEnder, log *logger.Logger) *Server {
	if cfg.Name == "" {
		cfg.Name = "crewly-mcp"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	return &Server{
		cfg:    cfg,
		queue:  queue,
		notes:  notes,
		ender:  ender,
		logger: log.WithFields(zap.String("component", "mcp-server")),
	}
}

// Start runs the stdio server in a goroutine until ctx is cancelled or Stop
// is called. It returns once the server goroutine has been launched.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("mcp server already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	mcpServer := server.NewMCPServer(s.cfg.Name, s.cfg.Version, server.WithToolCapabilities(false))
	registerTools(mcpServer, s.queue, s.notes, s.ender, s.logger)

	stdio := server.NewStdioServer(mcpServer)

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		s.logger.Info("mcp stdio server listening")
		if err := stdio.Listen(runCtx, os.Stdin, os.Stdout); err != nil && runCtx.Err() == nil {
			s.logger.Error("mcp stdio server exited", zap.Error(err))
		}
	}()

	return nil
}

// Stop cancels the running server.
func (s *Server) Stop(context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
