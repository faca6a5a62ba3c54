//go:build windows

package session

import (
	"os/exec"
	"strings"

	"github.com/UserExistsError/conpty"
)

// conptyProcess adapts a Windows ConPTY handle to the ptyProcess interface.
type conptyProcess struct {
	cp *conpty.ConPty
}

func (c *conptyProcess) Read(p []byte) (int, error)  { return c.cp.Read(p) }
func (c *conptyProcess) Write(p []byte) (int, error) { return c.cp.Write(p) }
func (c *conptyProcess) Close() error                { return c.cp.Close() }
func (c *conptyProcess) Pid() int                    { return c.cp.Pid() }
func (c *conptyProcess) Wait() error {
	_, err := c.cp.Wait(nil)
	return err
}

// spawnPTY starts cmd attached to a new Windows pseudoconsole.
func spawnPTY(cmd *exec.Cmd) (ptyProcess, error) {
	commandLine := strings.Join(append([]string{cmd.Path}, cmd.Args[1:]...), " ")
	cp, err := conpty.Start(commandLine, conpty.ConPtyWorkDir(cmd.Dir), conpty.ConPtyEnv(cmd.Env))
	if err != nil {
		return nil, err
	}
	return &conptyProcess{cp: cp}, nil
}
