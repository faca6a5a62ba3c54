package runtime

import (
	"context"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/crewly/crewly/internal/session"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// codexPatterns is a direct analogue of the teacher's CodexDetector
// patterns (codexWorkedPattern / codexApprovalPattern), narrowed to the
// literal-substring/regex vocabulary spec.md's adapter contract allows.
var codexPatterns = patterns{
	ready: []string{
		"Worked for",
		"codex>",
	},
	error: []string{
		"codex: command not found",
		"authentication error",
	},
	exit: []*regexp.Regexp{
		regexp.MustCompile(`(?i)stream\s+closed`),
	},
}

// codexMinWorkingExitInterval mirrors the teacher's stability window: codex
// has intermittent output while working, so DetectIdle requires the ready
// pattern to hold for this long before accepting an idle transition.
const codexMinWorkingExitInterval = 1000 * time.Millisecond

// CodexAdapter drives the Codex-cli CLI.
type CodexAdapter struct {
	cfg     Config
	command string

	mu                  sync.Mutex
	lastWorkingDetected time.Time
}

// NewCodexAdapter builds a CodexAdapter, honoring the CODEX_CMD
// environment override.
func NewCodexAdapter(cfg Config) *CodexAdapter {
	command := "codex"
	if override := os.Getenv("CODEX_CMD"); override != "" {
		command = override
	}
	return &CodexAdapter{cfg: cfg, command: command}
}

func (a *CodexAdapter) RuntimeType() v1.RuntimeType { return v1.RuntimeCodexCLI }

func (a *CodexAdapter) Launch(opts v1.SessionOptions, resume string) LaunchSpec {
	args := append([]string{}, opts.Args...)
	if resume != "" {
		args = append(args, "--resume", resume)
	}
	return LaunchSpec{Command: a.command, Args: args}
}

func (a *CodexAdapter) PostInitialize(ctx context.Context, projectPath string) error {
	return writeMCPDescriptor(projectPath)
}

func (a *CodexAdapter) DetectReady(ctx context.Context, backend session.Backend, sessionName string) bool {
	return probeReady(ctx, backend, sessionName, codexPatterns, a.cfg)
}

// DetectIdle requires the ready pattern to hold stably beyond
// codexMinWorkingExitInterval, since Codex's TUI intermittently redraws
// the working indicator even while genuinely idle.
func (a *CodexAdapter) DetectIdle(ctx context.Context, backend session.Backend, sessionName string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		pane := backend.CapturePane(sessionName, 80)
		// lastWorkingDetected marks when the current unbroken run of ready
		// captures began; a capture without the ready pattern clears it.
		if matchesReady(pane, codexPatterns) {
			a.mu.Lock()
			if a.lastWorkingDetected.IsZero() {
				a.lastWorkingDetected = time.Now()
			}
			stable := time.Since(a.lastWorkingDetected) >= codexMinWorkingExitInterval
			a.mu.Unlock()
			if stable {
				return true
			}
		} else {
			a.mu.Lock()
			a.lastWorkingDetected = time.Time{}
			a.mu.Unlock()
		}

		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(a.cfg.PollInterval):
		}
	}
}

func (a *CodexAdapter) DetectError(pane string) bool {
	return matchesError(pane, codexPatterns)
}

func (a *CodexAdapter) InjectPrompt(backend session.Backend, sessionName, content string) error {
	return injectPrompt(backend, sessionName, content)
}

func (a *CodexAdapter) ParseResponse(pane string) string {
	return stripChrome(pane, separatorTrimSet)
}
