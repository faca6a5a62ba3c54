package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/runtime"
	"github.com/crewly/crewly/internal/sessionstore"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

func newTestLogger(t *testing.T) *logger.Logger {
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "console", OutputPath: "stdout"})
	require.NoError(t, err)
	return log
}

type fakeBackend struct {
	hasSession bool
	sent       []string
	entered    int
}

func (f *fakeBackend) CreateSession(string, v1.SessionOptions) error { f.hasSession = true; return nil }
func (f *fakeBackend) KillSession(string) error                      { f.hasSession = false; return nil }
func (f *fakeBackend) ListSessions() []string                        { return nil }
func (f *fakeBackend) HasSession(string) bool                        { return f.hasSession }
func (f *fakeBackend) CapturePane(string, int) string {
	return "⎿ Tip: Press Enter to continue"
}
func (f *fakeBackend) GetRawHistory(string) string { return "" }
func (f *fakeBackend) SendKeys(string, string) error {
	return nil
}
func (f *fakeBackend) SendText(name, text string) error {
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeBackend) SendEnter(string) error               { f.entered++; return nil }
func (f *fakeBackend) SendEscape(string) error              { return nil }
func (f *fakeBackend) ClearCurrentCommandLine(string) error { return nil }
func (f *fakeBackend) Destroy()                             {}

func TestInitializeAgentBecomesReady(t *testing.T) {
	backend := &fakeBackend{hasSession: true}
	store := sessionstore.New(t.TempDir(), newTestLogger(t))
	registry := runtime.NewRegistry(runtime.Config{
		PollInterval:    5 * time.Millisecond,
		ReadyTimeout:    50 * time.Millisecond,
		SettleInterval:  5 * time.Millisecond,
		GrowthThreshold: 2,
	})
	mgr := NewManager(backend, store, registry, 200*time.Millisecond, newTestLogger(t))

	sess := v1.Session{Name: "agentmux-orc", Options: v1.SessionOptions{Cwd: "/tmp"}, RuntimeType: v1.RuntimeClaudeCode}
	err := mgr.InitializeAgent(context.Background(), sess, "orchestrator", v1.RuntimeClaudeCode)

	require.NoError(t, err)
	assert.NotEmpty(t, backend.sent)
	assert.Greater(t, backend.entered, 0)

	info, ok := store.SessionInfo("agentmux-orc")
	require.True(t, ok)
	assert.Equal(t, "orchestrator", info.Role)
}

func TestSendMessageToAgentFailsWhenSessionMissing(t *testing.T) {
	backend := &fakeBackend{hasSession: false}
	store := sessionstore.New(t.TempDir(), newTestLogger(t))
	registry := runtime.NewRegistry(runtime.DefaultConfig())
	mgr := NewManager(backend, store, registry, time.Second, newTestLogger(t))

	result := mgr.SendMessageToAgent("agentmux-orc", "hello", v1.RuntimeClaudeCode)

	assert.False(t, result.Success)
	assert.Error(t, result.Err)
}

func TestSendMessageToAgentSucceedsOnInjectionAlone(t *testing.T) {
	backend := &fakeBackend{hasSession: true}
	store := sessionstore.New(t.TempDir(), newTestLogger(t))
	registry := runtime.NewRegistry(runtime.DefaultConfig())
	mgr := NewManager(backend, store, registry, time.Second, newTestLogger(t))

	result := mgr.SendMessageToAgent("agentmux-orc", "[CHAT:c1] Hello", v1.RuntimeClaudeCode)

	require.True(t, result.Success)
	assert.Nil(t, result.Err)
	assert.Equal(t, []string{"[CHAT:c1] Hello"}, backend.sent)
	assert.Equal(t, 1, backend.entered)
}

type fakeBriefer struct {
	agentID, role, projPath string
	briefing                string
	err                     error
}

func (f *fakeBriefer) GenerateStartupBriefing(agentID, role, projPath string, _ time.Time) (string, error) {
	f.agentID, f.role, f.projPath = agentID, role, projPath
	return f.briefing, f.err
}

type fakeSessionRecorder struct {
	activeCalls int
	summaries   map[string]string
}

func (f *fakeSessionRecorder) RecordAgentActive(string, string, string, time.Time) error {
	f.activeCalls++
	return nil
}

func (f *fakeSessionRecorder) WriteSummary(agentID string, _ time.Time, summary string) error {
	if f.summaries == nil {
		f.summaries = make(map[string]string)
	}
	f.summaries[agentID] = summary
	return nil
}

func TestInitializeAgentInjectsStartupBriefingWhenMemoryWired(t *testing.T) {
	backend := &fakeBackend{hasSession: true}
	store := sessionstore.New(t.TempDir(), newTestLogger(t))
	registry := runtime.NewRegistry(runtime.Config{
		PollInterval:    5 * time.Millisecond,
		ReadyTimeout:    50 * time.Millisecond,
		SettleInterval:  5 * time.Millisecond,
		GrowthThreshold: 2,
	})
	mgr := NewManager(backend, store, registry, 200*time.Millisecond, newTestLogger(t))

	briefer := &fakeBriefer{briefing: "## Role\norchestrator"}
	sessions := &fakeSessionRecorder{}
	mgr.SetMemory(briefer, sessions)

	sess := v1.Session{Name: "agentmux-orc", Options: v1.SessionOptions{Cwd: "/tmp/proj"}, RuntimeType: v1.RuntimeClaudeCode}
	require.NoError(t, mgr.InitializeAgent(context.Background(), sess, "orchestrator", v1.RuntimeClaudeCode))

	assert.Equal(t, 1, sessions.activeCalls)
	assert.Equal(t, "agentmux-orc", briefer.agentID)
	assert.Equal(t, "orchestrator", briefer.role)
	assert.Equal(t, "/tmp/proj", briefer.projPath)
	assert.Contains(t, backend.sent, "## Role\norchestrator")
}

func TestInitializeAgentSkipsBriefingWithoutMemoryWired(t *testing.T) {
	backend := &fakeBackend{hasSession: true}
	store := sessionstore.New(t.TempDir(), newTestLogger(t))
	registry := runtime.NewRegistry(runtime.Config{
		PollInterval:    5 * time.Millisecond,
		ReadyTimeout:    50 * time.Millisecond,
		SettleInterval:  5 * time.Millisecond,
		GrowthThreshold: 2,
	})
	mgr := NewManager(backend, store, registry, 200*time.Millisecond, newTestLogger(t))

	sess := v1.Session{Name: "agentmux-orc", Options: v1.SessionOptions{Cwd: "/tmp"}, RuntimeType: v1.RuntimeClaudeCode}
	require.NoError(t, mgr.InitializeAgent(context.Background(), sess, "orchestrator", v1.RuntimeClaudeCode))
}

func TestEndAgentWritesSummaryUnregistersAndKillsSession(t *testing.T) {
	backend := &fakeBackend{hasSession: true}
	store := sessionstore.New(t.TempDir(), newTestLogger(t))
	registry := runtime.NewRegistry(runtime.DefaultConfig())
	mgr := NewManager(backend, store, registry, time.Second, newTestLogger(t))
	store.RegisterSession("agentmux-orc", v1.SessionOptions{Cwd: "/tmp"}, v1.RuntimeClaudeCode, "orchestrator", "", "")

	sessions := &fakeSessionRecorder{}
	mgr.SetMemory(nil, sessions)

	require.NoError(t, mgr.EndAgent("agentmux-orc", "wrapped up the release checklist"))

	assert.Equal(t, "wrapped up the release checklist", sessions.summaries["agentmux-orc"])
	_, ok := store.SessionInfo("agentmux-orc")
	assert.False(t, ok)
	assert.False(t, backend.hasSession)
}

func TestWaitForAgentReadyDelegatesToAdapter(t *testing.T) {
	backend := &fakeBackend{hasSession: true}
	store := sessionstore.New(t.TempDir(), newTestLogger(t))
	registry := runtime.NewRegistry(runtime.Config{
		PollInterval:    5 * time.Millisecond,
		ReadyTimeout:    50 * time.Millisecond,
		SettleInterval:  5 * time.Millisecond,
		GrowthThreshold: 2,
	})
	mgr := NewManager(backend, store, registry, time.Second, newTestLogger(t))

	ready := mgr.WaitForAgentReady(context.Background(), "agentmux-orc", 50*time.Millisecond, v1.RuntimeClaudeCode)

	assert.True(t, ready)
}
