// Package main is crewlyd's entry point: it loads configuration, wires
// every subsystem together, and runs the single-consumer dispatch loop
// until it receives SIGINT/SIGTERM.
//
// Init order follows the usual unified-binary shape: config, then logger,
// then tracing, then the database and audit log, then the event bus, then
// the domain services, then a signal-driven
// graceful shutdown. There is no HTTP server here: every external
// interface (the terminal-multiplexer sessions, the embedded MCP tool
// server) is process-local, not networked.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/agent"
	"github.com/crewly/crewly/internal/audit"
	"github.com/crewly/crewly/internal/common/config"
	"github.com/crewly/crewly/internal/common/database"
	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/events"
	"github.com/crewly/crewly/internal/mcpserver"
	"github.com/crewly/crewly/internal/memory"
	"github.com/crewly/crewly/internal/messagequeue"
	"github.com/crewly/crewly/internal/queueprocessor"
	"github.com/crewly/crewly/internal/router"
	"github.com/crewly/crewly/internal/runtime"
	"github.com/crewly/crewly/internal/scheduler"
	"github.com/crewly/crewly/internal/session"
	"github.com/crewly/crewly/internal/sessionstore"
	"github.com/crewly/crewly/internal/tracing"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "mcp-server" {
		runStandaloneMCPServer()
		return
	}
	runDaemon()
}

func runDaemon() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("starting crewlyd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Endpoint != "" {
		tracing.Init(ctx, cfg.Tracing.Endpoint)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := tracing.Shutdown(shutdownCtx); err != nil {
				log.Warn("tracing shutdown error", zap.Error(err))
			}
		}()
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	auditLog, err := audit.New(ctx, db, log)
	if err != nil {
		log.Fatal("failed to initialize audit log", zap.Error(err))
	}

	eventBus, eventBusCleanup, err := events.Provide(log)
	if err != nil {
		log.Fatal("failed to initialize event bus", zap.Error(err))
	}
	defer eventBusCleanup()
	chatBus := eventBus.Bus

	var backend session.Backend
	if cfg.Session.Backend == "tmux" {
		backend = session.NewTmuxBackend(log)
	} else {
		backend = session.NewPTYBackend(log)
	}

	store := sessionstore.New(cfg.Home, log)
	if restored, err := store.RestoreState(backend); err != nil {
		log.Warn("failed to restore session state, starting fresh", zap.Error(err))
	} else if restored > 0 {
		log.Info("restored persisted sessions", zap.Int("count", restored))
	}

	runtimeRegistry := runtime.NewRegistry(runtime.Config{
		PollInterval:    cfg.Session.PollInterval,
		ReadyTimeout:    cfg.Session.ReadyTimeout,
		SettleInterval:  200 * time.Millisecond,
		GrowthThreshold: 1,
	})

	agentMgr := agent.NewManager(backend, store, runtimeRegistry, cfg.Session.ReadyTimeout, log)

	queue := messagequeue.New(cfg.Queue.MaxSize, cfg.Queue.MaxHistory, chatBus, auditLog, log)

	respRouter := router.New(log, router.NewChatStore(chatBus))

	orchestratorStatus := queueprocessor.NewSessionBackendStatus(backend, v1.OrchestratorSessionName)

	processor := queueprocessor.New(queueprocessor.Config{
		OrchestratorSession:    v1.OrchestratorSessionName,
		RuntimeType:            v1.RuntimeClaudeCode,
		AgentReadyPollInterval: cfg.Session.PollInterval,
		AgentReadyTimeout:      cfg.Session.ReadyTimeout,
		MaxRequeueRetries:      cfg.Queue.MaxRetries,
		ResponseTimeout:        cfg.Queue.ResponseTimeout,
		InterMessageDelay:      cfg.Queue.InterMessage,
		PostIdleWait:           cfg.Queue.PostIdleWait,
	}, queue, agentMgr, respRouter, orchestratorStatus, chatBus, log)

	goalTracking := memory.NewGoalTracking()
	processor.SetOutcomeRecorder(goalTracking)

	schedulerStore, err := scheduler.NewStore(ctx, db)
	if err != nil {
		log.Fatal("failed to initialize scheduler store", zap.Error(err))
	}
	sched := scheduler.New(schedulerStore, queue, cfg.Scheduler, log)
	if err := sched.Start(ctx); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	memMgr := memory.New(cfg.Home)
	sessionMemory := memory.NewSessionMemory(memMgr)
	briefer := memory.NewBriefer(
		memory.NewAgentMemory(memMgr),
		memory.NewProjectMemory(),
		sessionMemory,
		memory.NewDailyLog(),
		goalTracking,
		cfg.Memory.MaxSectionChars,
	)
	agentMgr.SetMemory(briefer, sessionMemory)

	var mcpCleanup func() error
	if cfg.MCP.Enabled {
		_, cleanup, err := mcpserver.Provide(ctx, queue, goalTracking, agentMgr, log)
		if err != nil {
			log.Warn("failed to start embedded mcp server, continuing without it", zap.Error(err))
		} else {
			mcpCleanup = cleanup
		}
	}

	processor.Start(ctx)
	log.Info("crewlyd started",
		zap.String("home", cfg.Home),
		zap.String("sessionBackend", cfg.Session.Backend),
		zap.String("databaseDriver", cfg.Database.Driver),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down crewlyd")
	cancel()

	processor.Stop()
	sched.Stop()
	if mcpCleanup != nil {
		if err := mcpCleanup(); err != nil {
			log.Warn("mcp server shutdown error", zap.Error(err))
		}
	}

	log.Info("crewlyd stopped")
}

// runStandaloneMCPServer runs the MCP tool server as its own process,
// reached when a spawned CLI agent's MCP client execs "crewlyd mcp-server"
// per the descriptor internal/runtime.writeMCPDescriptor writes into each
// project. It cannot see the daemon's in-memory queue (that state is
// process-local to the one running crewlyd, by design), so
// crewly_queue_status here is served from the durable audit trail instead
// of the live queue: a best-effort, eventually-consistent view rather than
// the daemon-embedded server's exact one. This tradeoff is recorded in
// DESIGN.md.
func runStandaloneMCPServer() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	auditLog, err := audit.New(ctx, db, log)
	if err != nil {
		log.Fatal("failed to initialize audit log", zap.Error(err))
	}

	goalTracking := memory.NewGoalTracking()

	srv, cleanup, err := mcpserver.Provide(ctx, &auditQueueStatus{audit: auditLog}, goalTracking, nil, log)
	if err != nil {
		log.Fatal("failed to start mcp server", zap.Error(err))
	}
	_ = srv

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := cleanup(); err != nil {
		log.Warn("mcp server shutdown error", zap.Error(err))
	}
}

// auditQueueStatus answers mcpserver.QueueStatusProvider from the audit
// trail: pendingCount approximates "entries for this conversation whose
// most recent recorded event is not yet terminal".
type auditQueueStatus struct {
	audit *audit.Logger
}

func (a *auditQueueStatus) StatusSnapshot(conversationID string) (mcpserver.QueueSnapshot, error) {
	entries, err := a.audit.Recent(context.Background(), conversationID, 200)
	if err != nil {
		return mcpserver.QueueSnapshot{}, err
	}

	seen := make(map[string]bool)
	snapshot := mcpserver.QueueSnapshot{ConversationID: conversationID, ActiveStatus: "unknown"}
	for _, e := range entries {
		if seen[e.MessageID] {
			continue
		}
		seen[e.MessageID] = true
		if !v1.MessageStatus(e.Status).IsTerminal() {
			snapshot.PendingCount++
			snapshot.PendingIDs = append(snapshot.PendingIDs, e.MessageID)
		}
	}
	return snapshot, nil
}
