// Package agent implements Agent Registration (C4): launching a CLI tool
// inside an already-created session, blocking until it reports ready, and
// delivering prompts to it without waiting on a response.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/memory"
	"github.com/crewly/crewly/internal/runtime"
	"github.com/crewly/crewly/internal/session"
	"github.com/crewly/crewly/internal/sessionstore"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

var (
	_ Briefer         = (*memory.Briefer)(nil)
	_ SessionRecorder = (*memory.SessionMemory)(nil)
)

// SendResult is what sendMessageToAgent returns: success is purely about
// prompt injection, never about whether a response arrived.
type SendResult struct {
	Success bool
	Err     error
}

// Briefer generates an agent's startup briefing. Implemented by
// *internal/memory.Briefer.
type Briefer interface {
	GenerateStartupBriefing(agentID, role, projPath string, now time.Time) (string, error)
}

// SessionRecorder records an agent going active at session start and its
// summary at session end. Implemented by *internal/memory.SessionMemory.
type SessionRecorder interface {
	RecordAgentActive(projPath, agentID, role string, now time.Time) error
	WriteSummary(agentID string, now time.Time, summary string) error
}

// Manager wires C1 (session.Backend), C2 (sessionstore.Store), and C3
// (runtime.Registry) together into the operations spec.md §4.4 names.
type Manager struct {
	backend  session.Backend
	store    *sessionstore.Store
	registry *runtime.Registry
	logger   *logger.Logger

	initDeadline time.Duration

	briefer  Briefer
	sessions SessionRecorder
}

// NewManager builds a Manager. initDeadline bounds InitializeAgent's wait
// for the first ready signal. Memory services are wired separately via
// SetMemory, since not every caller (e.g. registration_test.go's
// lighter-weight setups) needs a startup briefing or session bookkeeping.
func NewManager(backend session.Backend, store *sessionstore.Store, registry *runtime.Registry, initDeadline time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		backend:      backend,
		store:        store,
		registry:     registry,
		logger:       log.WithFields(zap.String("component", "agent")),
		initDeadline: initDeadline,
	}
}

// SetMemory wires the startup-briefing and session-bookkeeping services into
// the manager. Either argument may be nil to leave that half disabled.
func (m *Manager) SetMemory(briefer Briefer, sessions SessionRecorder) {
	m.briefer = briefer
	m.sessions = sessions
}

// InitializeAgent launches the CLI tool inside sessionName's already-created
// shell session, runs the adapter's PostInitialize hook, and blocks until
// DetectReady returns true or the global init deadline elapses.
//
// Resume semantics: the launch command only carries a resume flag when the
// session store marks sessionName as restored *and* a runtimeSessionId was
// previously recorded — never baked into the persisted shell command
// itself (spec.md §4.3, §9).
func (m *Manager) InitializeAgent(ctx context.Context, sess v1.Session, role string, runtimeType v1.RuntimeType) error {
	adapter, err := m.registry.Resolve(runtimeType)
	if err != nil {
		return err
	}

	resume := ""
	if m.store.IsRestored(sess.Name) {
		if info, ok := m.store.SessionInfo(sess.Name); ok {
			resume = info.RuntimeSessionID
		}
	}

	launch := adapter.Launch(sess.Options, resume)
	command := launch.Command
	for _, arg := range launch.Args {
		command += " " + arg
	}
	if err := m.backend.SendText(sess.Name, command); err != nil {
		return fmt.Errorf("launch %s in session %q: %w", runtimeType, sess.Name, err)
	}
	if err := m.backend.SendEnter(sess.Name); err != nil {
		return fmt.Errorf("launch %s in session %q: %w", runtimeType, sess.Name, err)
	}

	if err := adapter.PostInitialize(ctx, sess.Options.Cwd); err != nil {
		m.logger.Warn("postInitialize failed, continuing", zap.String("session", sess.Name), zap.Error(err))
	}

	deadline := time.Now().Add(m.initDeadline)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		if adapter.DetectReady(ctx, m.backend, sess.Name) {
			m.store.RegisterSession(sess.Name, sess.Options, runtimeType, role, "", "")
			m.injectStartupBriefing(ctx, adapter, sess, role)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("agent %q did not become ready within %s", sess.Name, m.initDeadline)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// injectStartupBriefing records the agent as active and, if a briefing
// service is wired, assembles and injects its startup briefing into the
// session. Best-effort throughout: a missing memory service or a failure
// here never fails InitializeAgent, since the session is already usable
// without it.
func (m *Manager) injectStartupBriefing(ctx context.Context, adapter runtime.Adapter, sess v1.Session, role string) {
	now := time.Now()

	if m.sessions != nil {
		if err := m.sessions.RecordAgentActive(sess.Options.Cwd, sess.Name, role, now); err != nil {
			m.logger.Warn("record agent active failed", zap.String("session", sess.Name), zap.Error(err))
		}
	}

	if m.briefer == nil {
		return
	}

	briefing, err := m.briefer.GenerateStartupBriefing(sess.Name, role, sess.Options.Cwd, now)
	if err != nil {
		m.logger.Warn("generate startup briefing failed", zap.String("session", sess.Name), zap.Error(err))
		return
	}
	if briefing == "" {
		return
	}

	if err := adapter.InjectPrompt(m.backend, sess.Name, briefing); err != nil {
		m.logger.Warn("inject startup briefing failed", zap.String("session", sess.Name), zap.Error(err))
	}
}

// EndAgent records sessionName's end-of-session summary, unregisters it from
// the session store, and kills its backend session. Summary recording is
// best-effort; the teardown itself is not.
func (m *Manager) EndAgent(sessionName, summary string) error {
	if m.sessions != nil {
		if err := m.sessions.WriteSummary(sessionName, time.Now(), summary); err != nil {
			m.logger.Warn("write session summary failed", zap.String("session", sessionName), zap.Error(err))
		}
	}

	m.store.UnregisterSession(sessionName)

	if err := m.backend.KillSession(sessionName); err != nil {
		return fmt.Errorf("end session %q: %w", sessionName, err)
	}
	return nil
}

// WaitForAgentReady delegates to the adapter's DetectIdle.
func (m *Manager) WaitForAgentReady(ctx context.Context, sessionName string, timeout time.Duration, runtimeType v1.RuntimeType) bool {
	adapter, err := m.registry.Resolve(runtimeType)
	if err != nil {
		m.logger.Warn("no adapter for runtime type", zap.String("runtimeType", string(runtimeType)))
		return false
	}
	return adapter.DetectIdle(ctx, m.backend, sessionName, timeout)
}

// SendMessageToAgent validates the session exists, then injects content via
// the adapter. Success reflects injection only, never response receipt.
func (m *Manager) SendMessageToAgent(sessionName, content string, runtimeType v1.RuntimeType) SendResult {
	if !m.backend.HasSession(sessionName) {
		return SendResult{Success: false, Err: fmt.Errorf("session %q not found", sessionName)}
	}

	adapter, err := m.registry.Resolve(runtimeType)
	if err != nil {
		return SendResult{Success: false, Err: err}
	}

	if err := adapter.InjectPrompt(m.backend, sessionName, content); err != nil {
		return SendResult{Success: false, Err: err}
	}
	return SendResult{Success: true}
}
