// Package session implements the Session Backend (C1): it spawns, attaches
// to, and kills the terminal-multiplexer sessions that host agent runtimes,
// and captures their pane output for C3's runtime adapters.
//
// Two implementations share the Backend interface: PTYBackend (the
// default — no external binary dependency, grounded on the teacher's
// internal/agentctl/server/shell.Session) and TmuxBackend (shells out to
// the tmux binary, grounded on the gastown terminal.Backend interface).
package session

import (
	"errors"
	"time"

	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// ErrDuplicateSession is returned by CreateSession when a live process
// already owns the requested name.
var ErrDuplicateSession = errors.New("session: duplicate session name")

// captureCeiling bounds how long any Backend operation may block, per the
// "no operation blocks longer than a fixed ceiling" contract in §4.1.
const captureCeiling = 2 * time.Second

// Backend is the contract every session-hosting implementation satisfies.
// No operation may throw for a non-existent session — callers probe
// cheaply by name instead of catching errors for the common case.
type Backend interface {
	// CreateSession spawns a new session's process, detached from the
	// controlling terminal so it survives the parent. Returns
	// ErrDuplicateSession if name is already live.
	CreateSession(name string, opts v1.SessionOptions) error

	// KillSession tears down a session's process. Idempotent: killing an
	// absent session is not an error.
	KillSession(name string) error

	// ListSessions reflects currently-live processes only.
	ListSessions() []string

	// HasSession reports whether name currently owns a live process.
	HasSession(name string) bool

	// CapturePane returns the last tailLines rendered lines (after
	// escape-code interpretation). Always completes within a bounded
	// ceiling; returns "" on capture failure rather than erroring.
	CapturePane(name string, tailLines int) string

	// GetRawHistory returns the scrollback buffer including ANSI escape
	// sequences, used by C3's heuristic detectors.
	GetRawHistory(name string) string

	// SendKeys injects raw keystrokes into the session's input stream.
	SendKeys(name string, keys string) error

	// SendText injects literal text (no trailing Enter).
	SendText(name string, text string) error

	// SendEnter injects a single Enter keypress.
	SendEnter(name string) error

	// SendEscape injects a single Escape keypress.
	SendEscape(name string) error

	// ClearCurrentCommandLine clears whatever is currently typed at the
	// prompt without submitting it (Ctrl+U), so adapters can safely probe.
	ClearCurrentCommandLine(name string) error

	// Destroy tears down every session owned by this backend.
	Destroy()
}
