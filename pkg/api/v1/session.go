// Package v1 defines the data model shared across Crewly's internal
// packages: sessions, queued messages, runtime state, scheduled messages,
// and chat events. Nothing outside this module
// depends on it — it exists so C1 through C10 agree on one vocabulary
// instead of each owning a parallel struct.
package v1

import "time"

// RuntimeType names a supported CLI agent runtime.
type RuntimeType string

const (
	RuntimeClaudeCode RuntimeType = "claude-code"
	RuntimeGeminiCLI  RuntimeType = "gemini-cli"
	RuntimeCodexCLI   RuntimeType = "codex-cli"
	RuntimeShell      RuntimeType = "shell"
)

// OrchestratorSessionName is the fixed session name for the distinguished
// agent that receives all user messages and delegates to workers.
const OrchestratorSessionName = "agentmux-orc"

// SessionOptions describes how a session's process is spawned. It is the
// same shape persisted verbatim into session-state.json, and restored
// as-is by C2's restoreState — resume flags are never baked in here (see
// SPEC_FULL.md §9, "Restore + resume is two-phase by design").
type SessionOptions struct {
	Cwd     string            `json:"cwd"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// Session is an owned terminal process (C1). At most one live process may
// own a given Name at a time.
type Session struct {
	Name        string
	Options     SessionOptions
	RuntimeType RuntimeType
}

// PersistedSessionInfo is the durable snapshot of a Session plus the
// role/team/member assignment and the adapter-supplied resume handle (C2).
type PersistedSessionInfo struct {
	Name             string            `json:"name"`
	Cwd              string            `json:"cwd"`
	Command          string            `json:"command"`
	Args             []string          `json:"args"`
	Env              map[string]string `json:"env,omitempty"`
	RuntimeType      RuntimeType       `json:"runtimeType"`
	Role             string            `json:"role,omitempty"`
	TeamID           string            `json:"teamId,omitempty"`
	MemberID         string            `json:"memberId,omitempty"`
	RuntimeSessionID string            `json:"runtimeSessionId,omitempty"`
}

// SessionStateDocument is the bit-exact shape of session-state.json
// (SPEC_FULL.md §6, version 1).
type SessionStateDocument struct {
	Version  int                    `json:"version"`
	SavedAt  time.Time              `json:"savedAt"`
	Sessions []PersistedSessionInfo `json:"sessions"`
}

// CurrentSessionStateVersion is the only version restoreState accepts.
const CurrentSessionStateVersion = 1

// RuntimeState is the per-session lifecycle state driven by adapter
// detection (C3).
type RuntimeState string

const (
	RuntimeStarted RuntimeState = "started"
	RuntimeActive  RuntimeState = "active"
	RuntimeIdle    RuntimeState = "idle"
	RuntimeError   RuntimeState = "error"
)

// AgentInstance tracks lifecycle bookkeeping for a launched agent distinct
// from its Session, so C4/C6 can answer status queries without walking the
// session backend on every call. (SPEC_FULL.md §3 expansion.)
type AgentInstance struct {
	ID           string
	SessionName  string
	Role         string
	RuntimeType  RuntimeType
	TeamID       string
	MemberID     string
	LaunchedAt   time.Time
	LastReadyAt  time.Time
	State        RuntimeState
	Restored     bool
}
