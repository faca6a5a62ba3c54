package runtime

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/crewly/crewly/internal/session"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// ShellAdapter drives a plain shell session with no TUI to parse, grounded
// on the teacher's IdleDetector: readiness is immediate (a shell prompt is
// always ready for input) and idleness is measured by output silence
// rather than pattern matching.
type ShellAdapter struct {
	cfg     Config
	command string
	args    []string

	// idleSilence is how long the pane must go unchanged before
	// DetectIdle reports true.
	idleSilence time.Duration
}

// NewShellAdapter builds a ShellAdapter, honoring the SHELL_CMD
// environment override and falling back to the user's login shell.
func NewShellAdapter(cfg Config) *ShellAdapter {
	command := os.Getenv("SHELL_CMD")
	var args []string
	if command == "" {
		if shell := os.Getenv("SHELL"); shell != "" {
			command = shell
			args = []string{"-l"}
		} else {
			command = "/bin/sh"
		}
	}
	return &ShellAdapter{cfg: cfg, command: command, args: args, idleSilence: 2 * cfg.PollInterval}
}

func (a *ShellAdapter) RuntimeType() v1.RuntimeType { return v1.RuntimeShell }

func (a *ShellAdapter) Launch(opts v1.SessionOptions, resume string) LaunchSpec {
	// Generic shells have no resume concept; resume is always ignored.
	args := a.args
	if len(opts.Args) > 0 {
		args = opts.Args
	}
	command := a.command
	if opts.Command != "" {
		command = opts.Command
	}
	return LaunchSpec{Command: command, Args: args}
}

func (a *ShellAdapter) PostInitialize(ctx context.Context, projectPath string) error {
	return nil
}

// DetectReady always returns true once the session exists: a shell prompt
// needs no probe sequence.
func (a *ShellAdapter) DetectReady(ctx context.Context, backend session.Backend, sessionName string) bool {
	return backend.HasSession(sessionName)
}

// DetectIdle polls until the pane stops changing for idleSilence, mirroring
// the teacher's comment that turn completion is driven by an idle timer
// rather than TUI content analysis.
func (a *ShellAdapter) DetectIdle(ctx context.Context, backend session.Backend, sessionName string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	last := backend.CapturePane(sessionName, 40)
	lastChange := time.Now()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		current := backend.CapturePane(sessionName, 40)
		if current != last {
			last = current
			lastChange = time.Now()
		} else if time.Since(lastChange) >= a.idleSilence {
			return true
		}

		if time.Now().After(deadline) {
			return false
		}
	}
}

// DetectError has no pattern table for a generic shell; callers rely on
// process-exit signaling from C1 instead.
func (a *ShellAdapter) DetectError(pane string) bool {
	return false
}

func (a *ShellAdapter) InjectPrompt(backend session.Backend, sessionName, content string) error {
	return injectShellCommand(backend, sessionName, content)
}

func (a *ShellAdapter) ParseResponse(pane string) string {
	return strings.TrimRight(pane, "\n ")
}
