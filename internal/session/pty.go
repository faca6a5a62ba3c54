package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/logger"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// ptySession is one live process owned by PTYBackend, grounded on the
// teacher's internal/agentctl/server/shell.Session (ring-buffered output),
// generalized from a single embedded shell to one entry in a named session
// table. A process that exits is not restarted; the session is only marked
// as no longer running.
type ptySession struct {
	name     string
	opts     v1.SessionOptions
	proc     ptyProcess
	renderer *paneRenderer

	mu      sync.Mutex
	running bool
	killed  bool
	doneCh  chan struct{}
}

// ptyProcess abstracts the platform-specific pty handle (creack/pty on
// Unix, conpty on Windows) so ptySession's read/write/wait logic is
// shared across platforms.
type ptyProcess interface {
	io.ReadWriteCloser
	Pid() int
	Wait() error
}

// PTYBackend is the default session backend: it spawns each session's
// process directly via a pseudo-terminal rather than shelling out to tmux.
type PTYBackend struct {
	logger *logger.Logger

	mu       sync.Mutex
	sessions map[string]*ptySession
}

// NewPTYBackend creates an empty PTYBackend.
func NewPTYBackend(log *logger.Logger) *PTYBackend {
	return &PTYBackend{
		logger:   log.WithFields(zap.String("component", "session.pty")),
		sessions: make(map[string]*ptySession),
	}
}

func (b *PTYBackend) CreateSession(name string, opts v1.SessionOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.sessions[name]; ok && existing.isRunning() {
		return ErrDuplicateSession
	}

	sess, err := startPTYSession(name, opts, b.logger)
	if err != nil {
		return fmt.Errorf("session %q: %w", name, err)
	}
	b.sessions[name] = sess
	return nil
}

func (b *PTYBackend) KillSession(name string) error {
	b.mu.Lock()
	sess, ok := b.sessions[name]
	delete(b.sessions, name)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	sess.kill()
	return nil
}

func (b *PTYBackend) ListSessions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.sessions))
	for name, sess := range b.sessions {
		if sess.isRunning() {
			names = append(names, name)
		}
	}
	return names
}

func (b *PTYBackend) HasSession(name string) bool {
	b.mu.Lock()
	sess, ok := b.sessions[name]
	b.mu.Unlock()
	return ok && sess.isRunning()
}

func (b *PTYBackend) CapturePane(name string, tailLines int) string {
	sess, ok := b.get(name)
	if !ok {
		return ""
	}
	lines := sess.renderer.Lines(tailLines)
	return strings.Join(lines, "\n")
}

func (b *PTYBackend) GetRawHistory(name string) string {
	sess, ok := b.get(name)
	if !ok {
		return ""
	}
	return sess.renderer.RawHistory()
}

func (b *PTYBackend) SendKeys(name string, keys string) error {
	return b.write(name, []byte(keys))
}

func (b *PTYBackend) SendText(name string, text string) error {
	return b.write(name, []byte(text))
}

func (b *PTYBackend) SendEnter(name string) error {
	return b.write(name, []byte("\r"))
}

func (b *PTYBackend) SendEscape(name string) error {
	return b.write(name, []byte{0x1b})
}

func (b *PTYBackend) ClearCurrentCommandLine(name string) error {
	return b.write(name, []byte{0x15}) // Ctrl+U
}

func (b *PTYBackend) Destroy() {
	b.mu.Lock()
	sessions := make([]*ptySession, 0, len(b.sessions))
	for _, sess := range b.sessions {
		sessions = append(sessions, sess)
	}
	b.sessions = make(map[string]*ptySession)
	b.mu.Unlock()

	for _, sess := range sessions {
		sess.kill()
	}
}

func (b *PTYBackend) get(name string) (*ptySession, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sess, ok := b.sessions[name]
	return sess, ok
}

func (b *PTYBackend) write(name string, data []byte) error {
	sess, ok := b.get(name)
	if !ok {
		return nil // no-op: callers probe cheaply via HasSession
	}
	return sess.write(data)
}

func startPTYSession(name string, opts v1.SessionOptions, log *logger.Logger) (*ptySession, error) {
	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Cwd
	cmd.Env = buildEnv(opts)

	proc, err := spawnPTY(cmd)
	if err != nil {
		return nil, err
	}

	sess := &ptySession{
		name:     name,
		opts:     opts,
		proc:     proc,
		renderer: newPaneRenderer(120, 40),
		running:  true,
		doneCh:   make(chan struct{}),
	}

	go sess.readLoop(log)
	go sess.waitLoop(log)

	return sess, nil
}

func (s *ptySession) readLoop(log *logger.Logger) {
	buf := make([]byte, 4096)
	for {
		n, err := s.proc.Read(buf)
		if n > 0 {
			_, _ = s.renderer.Write(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				log.Debug("pty read error", zap.String("session", s.name), zap.Error(err))
			}
			return
		}
	}
}

func (s *ptySession) waitLoop(log *logger.Logger) {
	_ = s.proc.Wait()
	s.mu.Lock()
	s.running = false
	killed := s.killed
	s.mu.Unlock()
	close(s.doneCh)
	if !killed {
		log.Info("pty session exited", zap.String("session", s.name))
	}
}

func (s *ptySession) write(data []byte) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		return nil
	}
	_, err := s.proc.Write(data)
	return err
}

func (s *ptySession) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *ptySession) kill() {
	s.mu.Lock()
	s.killed = true
	s.mu.Unlock()
	_ = s.proc.Close()

	select {
	case <-s.doneCh:
	case <-time.After(captureCeiling):
	}
}

func buildEnv(opts v1.SessionOptions) []string {
	env := os.Environ()
	env = append(env, "TERM=xterm-256color")
	for k, v := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// detectShell mirrors the teacher's OS-aware shell detection. Nothing in
// this module calls it: the shell runtime adapter reads SHELL_CMD and SHELL
// itself.
func detectShell() (string, []string) {
	if runtime.GOOS == "windows" {
		if _, err := exec.LookPath("pwsh.exe"); err == nil {
			return "pwsh.exe", []string{"-NoLogo", "-NoExit"}
		}
		return "cmd.exe", nil
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell, []string{"-l"}
	}
	return "/bin/sh", nil
}
