package runtime

import (
	"context"
	"os"
	"regexp"
	"time"

	"github.com/crewly/crewly/internal/session"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// geminiPatterns is grounded on the same waiting-for-input/approval shape
// as the teacher's detector family, adapted to Gemini-cli's own TUI
// vocabulary (the teacher pack carries no dedicated gemini detector, so
// this table is built by analogy to codex_detector.go's approval/confirm
// phrasing).
var geminiPatterns = patterns{
	ready: []string{
		"Type your message",
		"> ",
		"waiting for input",
	},
	error: []string{
		"gemini: command not found",
		"authentication failed",
		"quota exceeded",
	},
	exit: []*regexp.Regexp{
		regexp.MustCompile(`(?i)session\s+ended`),
	},
}

// GeminiAdapter drives the Gemini-cli CLI.
type GeminiAdapter struct {
	cfg     Config
	command string
}

// NewGeminiAdapter builds a GeminiAdapter, honoring the GEMINI_CMD
// environment override.
func NewGeminiAdapter(cfg Config) *GeminiAdapter {
	command := "gemini"
	if override := os.Getenv("GEMINI_CMD"); override != "" {
		command = override
	}
	return &GeminiAdapter{cfg: cfg, command: command}
}

func (a *GeminiAdapter) RuntimeType() v1.RuntimeType { return v1.RuntimeGeminiCLI }

func (a *GeminiAdapter) Launch(opts v1.SessionOptions, resume string) LaunchSpec {
	args := append([]string{}, opts.Args...)
	if resume != "" {
		args = append(args, "--resume", resume)
	}
	return LaunchSpec{Command: a.command, Args: args}
}

func (a *GeminiAdapter) PostInitialize(ctx context.Context, projectPath string) error {
	return writeMCPDescriptor(projectPath)
}

func (a *GeminiAdapter) DetectReady(ctx context.Context, backend session.Backend, sessionName string) bool {
	return probeReady(ctx, backend, sessionName, geminiPatterns, a.cfg)
}

func (a *GeminiAdapter) DetectIdle(ctx context.Context, backend session.Backend, sessionName string, timeout time.Duration) bool {
	return pollIdle(ctx, backend, sessionName, geminiPatterns, a.cfg, timeout)
}

func (a *GeminiAdapter) DetectError(pane string) bool {
	return matchesError(pane, geminiPatterns)
}

func (a *GeminiAdapter) InjectPrompt(backend session.Backend, sessionName, content string) error {
	return injectPrompt(backend, sessionName, content)
}

func (a *GeminiAdapter) ParseResponse(pane string) string {
	return stripChrome(pane, separatorTrimSet)
}
