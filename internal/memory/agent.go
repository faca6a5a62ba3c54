package memory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/crewly/crewly/internal/common/atomicfile"
)

// agentFile names the three per-agent documents spec.md's filesystem layout
// fixes under ~/.crewly/agents/{agentId}/.
type agentFile string

const (
	agentKnowledge   agentFile = "knowledge.md"
	agentPreferences agentFile = "preferences.md"
	agentPerformance agentFile = "performance.md"
)

// AgentMemory reads and appends to an agent's three persistent markdown
// files, independent of any particular project or session.
type AgentMemory struct {
	mgr *Manager
}

// NewAgentMemory builds an AgentMemory against mgr's home directory.
func NewAgentMemory(mgr *Manager) *AgentMemory {
	return &AgentMemory{mgr: mgr}
}

// Append adds a timestamped-by-caller entry to one of an agent's three
// documents. The file is created on first use.
func (a *AgentMemory) Append(agentID string, file agentFile, entry string) error {
	path := filepath.Join(a.mgr.AgentDir(agentID), string(file))
	if err := atomicfile.Append(path, []byte(entry+"\n"), 0o644); err != nil {
		return fmt.Errorf("memory: append agent %s: %w", file, err)
	}
	return nil
}

// AppendKnowledge records a fact the agent learned.
func (a *AgentMemory) AppendKnowledge(agentID, entry string) error {
	return a.Append(agentID, agentKnowledge, entry)
}

// AppendPreference records an operator-stated preference.
func (a *AgentMemory) AppendPreference(agentID, entry string) error {
	return a.Append(agentID, agentPreferences, entry)
}

// AppendPerformanceNote records an observation about the agent's own
// performance on a task.
func (a *AgentMemory) AppendPerformanceNote(agentID, entry string) error {
	return a.Append(agentID, agentPerformance, entry)
}

// Read returns the full contents of one of an agent's documents, or "" if
// it doesn't exist yet.
func (a *AgentMemory) Read(agentID string, file agentFile) (string, error) {
	path := filepath.Join(a.mgr.AgentDir(agentID), string(file))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read agent %s: %w", file, err)
	}
	return string(data), nil
}

// Knowledge, Preferences, and Performance are thin Read wrappers, named for
// what generateStartupBriefing's "agent context" section needs.
func (a *AgentMemory) Knowledge(agentID string) (string, error)   { return a.Read(agentID, agentKnowledge) }
func (a *AgentMemory) Preferences(agentID string) (string, error) { return a.Read(agentID, agentPreferences) }
func (a *AgentMemory) Performance(agentID string) (string, error) { return a.Read(agentID, agentPerformance) }
