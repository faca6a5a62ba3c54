// Package runtime implements the Runtime Adapter (C3): one variant per
// supported CLI tool (Claude-code, Gemini-cli, Codex-cli, generic shell)
// that knows how to launch its process, probe for readiness, detect idle,
// and inject prompts into a session's pane.
//
// Pattern tables and the probe/poll shape are grounded on the teacher's
// internal/agentctl/server/process/*_detector.go family, generalized from
// "classify the current TUI frame" into the ready/idle/error predicates
// spec.md names.
package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/crewly/crewly/internal/session"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// Config tunes probe and poll timing, sourced from config.SessionConfig.
type Config struct {
	PollInterval time.Duration
	ReadyTimeout time.Duration

	// SettleInterval bounds how long the ready-probe waits after injecting
	// its throwaway keystroke before re-capturing the pane.
	SettleInterval time.Duration

	// GrowthThreshold is the minimum byte growth between the pre- and
	// post-probe capture that counts as "the CLI responded".
	GrowthThreshold int
}

// DefaultConfig mirrors the teacher's detector timing constants.
func DefaultConfig() Config {
	return Config{
		PollInterval:    500 * time.Millisecond,
		ReadyTimeout:    60 * time.Second,
		SettleInterval:  300 * time.Millisecond,
		GrowthThreshold: 2,
	}
}

// LaunchSpec is what Adapter.Launch returns: the command and args C4 feeds
// into session.Backend.CreateSession, after PersistedSessionInfo restore
// logic has decided whether a resume flag applies.
type LaunchSpec struct {
	Command string
	Args    []string
}

// Adapter is the polymorphic contract every runtime variant satisfies, per
// spec.md §4.3: {detectReady, detectIdle, launch, postInitialize,
// injectPrompt, parseResponse, readyPatterns, errorPatterns, exitPatterns}.
type Adapter interface {
	// RuntimeType identifies which CLI this adapter drives.
	RuntimeType() v1.RuntimeType

	// Launch builds the shell command used to start the CLI. resume is the
	// adapter-specific resume handle recorded by C2's UpdateSessionID; it is
	// empty unless the session was both restored and has a recorded handle
	// (spec.md §4.3, "resume flag is never baked into the persisted shell
	// command itself").
	Launch(opts v1.SessionOptions, resume string) LaunchSpec

	// PostInitialize runs once, immediately after the CLI process is
	// launched inside its session, before the first detectReady probe. It
	// may write ancillary config (e.g. an MCP descriptor) into the
	// project's working directory.
	PostInitialize(ctx context.Context, projectPath string) error

	// DetectReady runs the runtime-specific probe sequence and/or matches
	// readyPatterns against the current pane. Returns true once the CLI is
	// ready to receive a prompt.
	DetectReady(ctx context.Context, backend session.Backend, sessionName string) bool

	// DetectIdle polls the pane at Config.PollInterval until readyPatterns
	// reappear stably for one poll cycle, or timeout elapses. Must respect
	// ctx cancellation.
	DetectIdle(ctx context.Context, backend session.Backend, sessionName string, timeout time.Duration) bool

	// DetectError matches the pane against errorPatterns (substrings) or
	// exitPatterns (regexes).
	DetectError(pane string) bool

	// InjectPrompt sends content into the session via sendText + sendEnter.
	// The shell adapter routes content with shell-unfriendly characters
	// through a base64 decode-and-run command; the other adapters send it
	// as-is.
	InjectPrompt(backend session.Backend, sessionName, content string) error

	// ParseResponse extracts the agent's reply text from a raw pane
	// capture, stripping TUI chrome the adapter recognizes.
	ParseResponse(pane string) string
}

// containsAny reports whether s contains any of the given substrings.
func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if sub == "" {
			continue
		}
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
