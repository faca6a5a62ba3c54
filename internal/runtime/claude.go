package runtime

import (
	"context"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/crewly/crewly/internal/session"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// claudePatterns is grounded on the teacher's ClaudeCodeDetector: tip/hint
// lines and approval prompts signal waiting-for-input, which this package
// treats as "ready".
var claudePatterns = patterns{
	ready: []string{
		"Tip:", "Next:", "Hint:",
		"? for shortcuts",
		"Human:",
	},
	error: []string{
		"Claude Code is not installed",
		"command not found",
		"authentication required",
		"rate limit",
	},
	exit: []*regexp.Regexp{
		regexp.MustCompile(`(?i)process\s+exited`),
		regexp.MustCompile(`(?i)connection\s+closed`),
	},
}

// ClaudeAdapter drives the Claude-code CLI.
type ClaudeAdapter struct {
	cfg     Config
	command string
}

// NewClaudeAdapter builds a ClaudeAdapter, honoring the CLAUDE_CMD
// environment override for the binary path (spec.md §6).
func NewClaudeAdapter(cfg Config) *ClaudeAdapter {
	command := "claude"
	if override := os.Getenv("CLAUDE_CMD"); override != "" {
		command = override
	}
	return &ClaudeAdapter{cfg: cfg, command: command}
}

func (a *ClaudeAdapter) RuntimeType() v1.RuntimeType { return v1.RuntimeClaudeCode }

func (a *ClaudeAdapter) Launch(opts v1.SessionOptions, resume string) LaunchSpec {
	args := append([]string{}, opts.Args...)
	if resume != "" {
		args = append(args, "--resume", resume)
	}
	return LaunchSpec{Command: a.command, Args: args}
}

func (a *ClaudeAdapter) PostInitialize(ctx context.Context, projectPath string) error {
	return writeMCPDescriptor(projectPath)
}

func (a *ClaudeAdapter) DetectReady(ctx context.Context, backend session.Backend, sessionName string) bool {
	return probeReady(ctx, backend, sessionName, claudePatterns, a.cfg)
}

func (a *ClaudeAdapter) DetectIdle(ctx context.Context, backend session.Backend, sessionName string, timeout time.Duration) bool {
	return pollIdle(ctx, backend, sessionName, claudePatterns, a.cfg, timeout)
}

func (a *ClaudeAdapter) DetectError(pane string) bool {
	return matchesError(pane, claudePatterns)
}

func (a *ClaudeAdapter) InjectPrompt(backend session.Backend, sessionName, content string) error {
	return injectPrompt(backend, sessionName, content)
}

func (a *ClaudeAdapter) ParseResponse(pane string) string {
	return stripChrome(pane, separatorTrimSet)
}

// separatorTrimSet is the box-drawing character set claude-code's input
// box boundaries are made of, mirrored from separatorPattern.
var separatorTrimSet = "─━═┄┅┈┉-"

// stripChrome drops lines that are pure separator/box-drawing noise,
// leaving only content lines from a captured pane.
func stripChrome(pane string, trimSet string) string {
	lines := strings.Split(pane, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Trim(trimmed, trimSet) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
