// Package memory implements the Memory Subsystem (C9): five small
// filesystem-backed services an agent's orchestrator consults to assemble a
// startup briefing, and that the MCP tool server (A5) lets a running agent
// append to mid-session.
//
// Grounded on the teacher's internal/task/repository file-oriented store
// conventions (one file or directory per entity, no database) and on
// internal/sessionstore's atomic-rename pattern, now shared via
// internal/common/atomicfile.
package memory

import (
	"fmt"
	"path/filepath"
	"time"
)

// Manager is the fixed home-directory root every service resolves paths
// against. It holds no state of its own beyond the two roots spec.md's
// filesystem layout names: the Crewly home (agent-scoped memory) and a
// project path (project-scoped memory), the latter supplied per call since
// one process serves many projects across its lifetime.
type Manager struct {
	home string
}

// New builds a Manager rooted at home (typically config.Config.Home).
func New(home string) *Manager {
	return &Manager{home: home}
}

// AgentDir returns ~/.crewly/agents/{agentId}.
func (m *Manager) AgentDir(agentID string) string {
	return filepath.Join(m.home, "agents", agentID)
}

// projectDir returns {projectPath}/.crewly.
func projectDir(projectPath string) string {
	return filepath.Join(projectPath, ".crewly")
}

// timestampFileName renders the YYYY-MM-DD-HH-MM basename spec.md's
// filesystem layout names for session summaries.
func timestampFileName(t time.Time) string {
	return fmt.Sprintf("%s.md", t.UTC().Format("2006-01-02-15-04"))
}

// dayFileName renders the YYYY-MM-DD basename for a daily log.
func dayFileName(t time.Time) string {
	return t.UTC().Format("2006-01-02") + ".md"
}
