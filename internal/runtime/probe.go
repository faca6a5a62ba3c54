package runtime

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/crewly/crewly/internal/session"
)

// patterns is the table every pane-pattern-based adapter carries, named
// readyPatterns/errorPatterns/exitPatterns in spec.md §4.3.
type patterns struct {
	ready []string
	error []string
	exit  []*regexp.Regexp
}

// probeReady runs the generic slash-palette probe: clear whatever is
// currently typed, capture a baseline, inject "/", wait a bounded settle
// interval, capture again, and treat meaningful growth as "the CLI
// responded" — then dismiss the palette with Escape+Ctrl+U, never Ctrl+C,
// which would interrupt the CLI itself (spec.md §4.3).
//
// Any readyPatterns match against the live pane short-circuits the probe.
func probeReady(ctx context.Context, backend session.Backend, sessionName string, p patterns, cfg Config) bool {
	if !backend.HasSession(sessionName) {
		return false
	}

	if matchesReady(backend.CapturePane(sessionName, 80), p) {
		return true
	}

	_ = backend.ClearCurrentCommandLine(sessionName)
	before := backend.CapturePane(sessionName, 80)

	if err := backend.SendText(sessionName, "/"); err != nil {
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(cfg.SettleInterval):
	}

	after := backend.CapturePane(sessionName, 80)

	_ = backend.SendEscape(sessionName)
	_ = backend.ClearCurrentCommandLine(sessionName)

	if matchesReady(after, p) {
		return true
	}
	return len(after)-len(before) > cfg.GrowthThreshold
}

// pollIdle polls the pane at cfg.PollInterval until readyPatterns reappear
// stably for one poll cycle, or timeout elapses. Cancellable via ctx.
func pollIdle(ctx context.Context, backend session.Backend, sessionName string, p patterns, cfg Config, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	var stableSince time.Time
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		pane := backend.CapturePane(sessionName, 80)
		if matchesReady(pane, p) {
			if stableSince.IsZero() {
				stableSince = time.Now()
			} else if time.Since(stableSince) >= cfg.PollInterval {
				return true
			}
		} else {
			stableSince = time.Time{}
		}

		if time.Now().After(deadline) {
			return false
		}
	}
}

func matchesReady(pane string, p patterns) bool {
	return containsAny(pane, p.ready)
}

func matchesError(pane string, p patterns) bool {
	if containsAny(pane, p.error) {
		return true
	}
	for _, re := range p.exit {
		if re.MatchString(pane) {
			return true
		}
	}
	return false
}

// injectPrompt sends content into an interactive CLI's chat input via
// sendText+sendEnter. These TUIs read pasted multi-line text as-is, so no
// shell quoting is needed here — only injectShellCommand (used by the
// generic shell adapter, which hands content to an actual shell) needs
// the base64 here-document treatment.
func injectPrompt(backend session.Backend, sessionName, content string) error {
	if err := backend.SendText(sessionName, content); err != nil {
		return err
	}
	return backend.SendEnter(sessionName)
}

// injectShellCommand sends content to a literal shell prompt, routing
// content with shell-unfriendly characters (newlines, quotes, backticks)
// through a base64-wrapped decode-and-run command instead of typing it
// literally, per spec.md §4.3.
func injectShellCommand(backend session.Backend, sessionName, content string) error {
	if needsWrapping(content) {
		content = wrapAsBase64(content)
	}
	if err := backend.SendText(sessionName, content); err != nil {
		return err
	}
	return backend.SendEnter(sessionName)
}

func needsWrapping(content string) bool {
	return strings.ContainsAny(content, "\n\r\"'`$\\")
}

// wrapAsBase64 renders content as a single-line shell command that decodes
// and runs it, so the session's line-oriented input never has to carry raw
// newlines or quoting.
func wrapAsBase64(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	return fmt.Sprintf("echo %s | base64 -d | sh", encoded)
}
