package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// fakeBackend is an in-memory session.Backend double: CapturePane returns
// whatever script entry is queued for the current call.
type fakeBackend struct {
	panes     []string
	calls     int
	sent      []string
	entered   int
	escaped   int
	cleared   int
	noSession bool
}

func (f *fakeBackend) CreateSession(string, v1.SessionOptions) error { return nil }
func (f *fakeBackend) KillSession(string) error                      { return nil }
func (f *fakeBackend) ListSessions() []string                        { return nil }
func (f *fakeBackend) HasSession(string) bool                        { return !f.noSession }

func (f *fakeBackend) CapturePane(string, int) string {
	if f.calls >= len(f.panes) {
		return f.panes[len(f.panes)-1]
	}
	pane := f.panes[f.calls]
	f.calls++
	return pane
}

func (f *fakeBackend) GetRawHistory(string) string { return "" }
func (f *fakeBackend) SendKeys(string, string) error {
	f.sent = append(f.sent, "keys")
	return nil
}
func (f *fakeBackend) SendText(name, text string) error {
	f.sent = append(f.sent, text)
	return nil
}
func (f *fakeBackend) SendEnter(string) error {
	f.entered++
	return nil
}
func (f *fakeBackend) SendEscape(string) error {
	f.escaped++
	return nil
}
func (f *fakeBackend) ClearCurrentCommandLine(string) error {
	f.cleared++
	return nil
}
func (f *fakeBackend) Destroy() {}

func fastConfig() Config {
	return Config{
		PollInterval:    5 * time.Millisecond,
		ReadyTimeout:    200 * time.Millisecond,
		SettleInterval:  5 * time.Millisecond,
		GrowthThreshold: 2,
	}
}

func TestClaudeAdapterDetectReady_MatchesReadyPattern(t *testing.T) {
	backend := &fakeBackend{panes: []string{"⎿ Tip: Press Enter to continue"}}
	adapter := NewClaudeAdapter(fastConfig())

	ready := adapter.DetectReady(context.Background(), backend, "s1")

	assert.True(t, ready)
}

func TestClaudeAdapterDetectReady_FallsBackToGrowthProbe(t *testing.T) {
	backend := &fakeBackend{panes: []string{
		"working...",
		"working...",
		"working... suggestions appeared here",
	}}
	adapter := NewClaudeAdapter(fastConfig())

	ready := adapter.DetectReady(context.Background(), backend, "s1")

	assert.True(t, ready)
	assert.Equal(t, 2, backend.cleared)
	assert.Equal(t, 1, backend.escaped)
}

func TestClaudeAdapterDetectReady_NoSessionReturnsFalse(t *testing.T) {
	backend := &fakeBackend{panes: []string{""}, noSession: true}
	adapter := NewClaudeAdapter(fastConfig())

	assert.False(t, adapter.DetectReady(context.Background(), backend, "s1"))
}

func TestClaudeAdapterDetectError(t *testing.T) {
	adapter := NewClaudeAdapter(fastConfig())

	assert.True(t, adapter.DetectError("fatal: rate limit exceeded"))
	assert.False(t, adapter.DetectError("all good here"))
}

func TestCodexAdapterDetectIdle_RequiresStabilityWindow(t *testing.T) {
	backend := &fakeBackend{panes: []string{
		"─ Worked for 2m─────",
	}}
	adapter := NewCodexAdapter(fastConfig())

	idle := adapter.DetectIdle(context.Background(), backend, "s1", 50*time.Millisecond)

	assert.False(t, idle, "should not report idle before the stability window elapses")
}

func TestCodexAdapterDetectIdle_ReportsIdleAfterStabilityWindow(t *testing.T) {
	backend := &fakeBackend{panes: []string{"─ Worked for 2m─────"}}
	adapter := NewCodexAdapter(fastConfig())
	adapter.lastWorkingDetected = time.Now().Add(-2 * time.Second)

	idle := adapter.DetectIdle(context.Background(), backend, "s1", 50*time.Millisecond)

	assert.True(t, idle)
}

func TestShellAdapterDetectReady_AlwaysTrueWhenSessionExists(t *testing.T) {
	backend := &fakeBackend{panes: []string{""}}
	adapter := NewShellAdapter(fastConfig())

	assert.True(t, adapter.DetectReady(context.Background(), backend, "s1"))
}

func TestShellAdapterDetectIdle_WaitsForSilence(t *testing.T) {
	backend := &fakeBackend{panes: []string{"$ ", "$ ", "$ ", "$ "}}
	adapter := NewShellAdapter(fastConfig())

	idle := adapter.DetectIdle(context.Background(), backend, "s1", 200*time.Millisecond)

	assert.True(t, idle)
}

func TestInjectPromptSendsTextThenEnter(t *testing.T) {
	backend := &fakeBackend{panes: []string{""}}
	adapter := NewClaudeAdapter(fastConfig())

	require.NoError(t, adapter.InjectPrompt(backend, "s1", "hello there"))

	assert.Equal(t, []string{"hello there"}, backend.sent)
	assert.Equal(t, 1, backend.entered)
}

func TestShellAdapterInjectPromptWrapsMultilineContent(t *testing.T) {
	backend := &fakeBackend{panes: []string{""}}
	adapter := NewShellAdapter(fastConfig())

	require.NoError(t, adapter.InjectPrompt(backend, "s1", "line one\nline two"))

	require.Len(t, backend.sent, 1)
	assert.Contains(t, backend.sent[0], "base64 -d")
}

func TestLaunchAppendsResumeFlagOnlyWhenProvided(t *testing.T) {
	adapter := NewClaudeAdapter(fastConfig())

	fresh := adapter.Launch(v1.SessionOptions{}, "")
	assert.NotContains(t, fresh.Args, "--resume")

	resumed := adapter.Launch(v1.SessionOptions{}, "handle-123")
	assert.Contains(t, resumed.Args, "--resume")
	assert.Contains(t, resumed.Args, "handle-123")
}

func TestRegistryResolvesAllRuntimes(t *testing.T) {
	registry := NewRegistry(fastConfig())

	for _, rt := range []v1.RuntimeType{v1.RuntimeClaudeCode, v1.RuntimeGeminiCLI, v1.RuntimeCodexCLI, v1.RuntimeShell} {
		adapter, err := registry.Resolve(rt)
		require.NoError(t, err)
		assert.Equal(t, rt, adapter.RuntimeType())
	}

	_, err := registry.Resolve("unknown-runtime")
	assert.Error(t, err)
}
