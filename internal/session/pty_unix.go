//go:build !windows

package session

import (
	"os/exec"

	"github.com/creack/pty"
)

// unixPTY adapts *os.File (as returned by creack/pty) plus the owning
// *exec.Cmd to the ptyProcess interface.
type unixPTY struct {
	f   ptyFile
	cmd *exec.Cmd
}

type ptyFile interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

func (u *unixPTY) Read(p []byte) (int, error)  { return u.f.Read(p) }
func (u *unixPTY) Write(p []byte) (int, error) { return u.f.Write(p) }
func (u *unixPTY) Close() error                { return u.f.Close() }
func (u *unixPTY) Pid() int {
	if u.cmd.Process == nil {
		return 0
	}
	return u.cmd.Process.Pid
}
func (u *unixPTY) Wait() error { return u.cmd.Wait() }

// spawnPTY starts cmd attached to a new pseudo-terminal, detached from the
// controlling terminal so it survives the parent process.
func spawnPTY(cmd *exec.Cmd) (ptyProcess, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 120, Rows: 40})
	if err != nil {
		return nil, err
	}
	return &unixPTY{f: f, cmd: cmd}, nil
}
