package session

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/logger"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// TmuxBackend shells out to the tmux binary, grounded on the gastown
// terminal.Backend interface (CapturePane/SendKeys/HasSession/KillSession).
// Selected via config when the tmux binary is present and the operator
// wants sessions inspectable with a plain `tmux attach`.
type TmuxBackend struct {
	logger *logger.Logger
	binary string

	mu    sync.Mutex
	names map[string]struct{}
}

// NewTmuxBackend creates a TmuxBackend. It does not verify the tmux binary
// exists; CreateSession surfaces that as an ordinary error.
func NewTmuxBackend(log *logger.Logger) *TmuxBackend {
	return &TmuxBackend{
		logger: log.WithFields(zap.String("component", "session.tmux")),
		binary: "tmux",
		names:  make(map[string]struct{}),
	}
}

func (b *TmuxBackend) CreateSession(name string, opts v1.SessionOptions) error {
	if b.HasSession(name) {
		return ErrDuplicateSession
	}

	args := []string{"new-session", "-d", "-s", name, "-c", opts.Cwd}
	if opts.Command != "" {
		args = append(args, append([]string{opts.Command}, opts.Args...)...)
	}

	cmd := b.command(context.Background(), args...)
	cmd.Env = tmuxEnv(opts)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux new-session %q: %w", name, err)
	}

	b.mu.Lock()
	b.names[name] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *TmuxBackend) KillSession(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), captureCeiling)
	defer cancel()

	_ = b.command(ctx, "kill-session", "-t", name).Run() // idempotent: absent session is not an error

	b.mu.Lock()
	delete(b.names, name)
	b.mu.Unlock()
	return nil
}

func (b *TmuxBackend) ListSessions() []string {
	ctx, cancel := context.WithTimeout(context.Background(), captureCeiling)
	defer cancel()

	out, err := b.command(ctx, "list-sessions", "-F", "#{session_name}").Output()
	if err != nil {
		return nil
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

func (b *TmuxBackend) HasSession(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), captureCeiling)
	defer cancel()
	return b.command(ctx, "has-session", "-t", name).Run() == nil
}

func (b *TmuxBackend) CapturePane(name string, tailLines int) string {
	ctx, cancel := context.WithTimeout(context.Background(), captureCeiling)
	defer cancel()

	args := []string{"capture-pane", "-p", "-t", name}
	if tailLines > 0 {
		args = append(args, "-S", "-"+strconv.Itoa(tailLines))
	}
	out, err := b.command(ctx, args...).Output()
	if err != nil {
		return ""
	}
	return string(out)
}

func (b *TmuxBackend) GetRawHistory(name string) string {
	ctx, cancel := context.WithTimeout(context.Background(), captureCeiling)
	defer cancel()

	out, err := b.command(ctx, "capture-pane", "-p", "-e", "-t", name, "-S", "-").Output()
	if err != nil {
		return ""
	}
	return string(out)
}

func (b *TmuxBackend) SendKeys(name string, keys string) error {
	return b.sendKeysLiteral(name, keys)
}

func (b *TmuxBackend) SendText(name string, text string) error {
	return b.sendKeysLiteral(name, text)
}

func (b *TmuxBackend) SendEnter(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), captureCeiling)
	defer cancel()
	return b.command(ctx, "send-keys", "-t", name, "Enter").Run()
}

func (b *TmuxBackend) SendEscape(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), captureCeiling)
	defer cancel()
	return b.command(ctx, "send-keys", "-t", name, "Escape").Run()
}

func (b *TmuxBackend) ClearCurrentCommandLine(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), captureCeiling)
	defer cancel()
	return b.command(ctx, "send-keys", "-t", name, "C-u").Run()
}

func (b *TmuxBackend) Destroy() {
	b.mu.Lock()
	names := make([]string, 0, len(b.names))
	for name := range b.names {
		names = append(names, name)
	}
	b.mu.Unlock()

	for _, name := range names {
		_ = b.KillSession(name)
	}
}

func (b *TmuxBackend) sendKeysLiteral(name, text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), captureCeiling)
	defer cancel()
	return b.command(ctx, "send-keys", "-t", name, "-l", text).Run()
}

func (b *TmuxBackend) command(ctx context.Context, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, b.binary, args...)
}

func tmuxEnv(opts v1.SessionOptions) []string {
	if len(opts.Env) == 0 {
		return nil
	}
	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
