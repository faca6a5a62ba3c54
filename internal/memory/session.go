package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crewly/crewly/internal/common/atomicfile"
)

// AgentIndexEntry is one row of a project's agents-index.json.
type AgentIndexEntry struct {
	AgentID    string    `json:"agentId"`
	Role       string    `json:"role"`
	LastActive time.Time `json:"lastActive"`
}

type agentIndexDocument struct {
	Agents []AgentIndexEntry `json:"agents"`
}

// SessionMemory writes a timestamped end-of-session summary per agent and
// maintains each project's agents-index.json roster.
type SessionMemory struct {
	mgr *Manager
}

// NewSessionMemory builds a SessionMemory against mgr's home directory.
func NewSessionMemory(mgr *Manager) *SessionMemory {
	return &SessionMemory{mgr: mgr}
}

// WriteSummary records summary under the agent's sessions/ directory, timestamped
// as of now, and mirrors it to latest-summary.md.
func (s *SessionMemory) WriteSummary(agentID string, now time.Time, summary string) error {
	sessionsDir := filepath.Join(s.mgr.AgentDir(agentID), "sessions")
	timestamped := filepath.Join(sessionsDir, timestampFileName(now))
	latest := filepath.Join(sessionsDir, "latest-summary.md")

	if err := atomicfile.Write(timestamped, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("memory: write session summary: %w", err)
	}
	if err := atomicfile.Write(latest, []byte(summary), 0o644); err != nil {
		return fmt.Errorf("memory: mirror latest session summary: %w", err)
	}
	return nil
}

// LatestSummary returns the contents of an agent's latest-summary.md, or ""
// if no session has ended yet.
func (s *SessionMemory) LatestSummary(agentID string) (string, error) {
	latest := filepath.Join(s.mgr.AgentDir(agentID), "sessions", "latest-summary.md")
	data, err := os.ReadFile(latest)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read latest session summary: %w", err)
	}
	return string(data), nil
}

// RecordAgentActive upserts agentId's row in projectPath's agents-index.json,
// creating the document if it doesn't exist yet.
func (s *SessionMemory) RecordAgentActive(projPath, agentID, role string, now time.Time) error {
	indexPath := filepath.Join(projectDir(projPath), "agents-index.json")

	doc, err := readAgentIndex(indexPath)
	if err != nil {
		return err
	}

	found := false
	for i := range doc.Agents {
		if doc.Agents[i].AgentID == agentID {
			doc.Agents[i].Role = role
			doc.Agents[i].LastActive = now
			found = true
			break
		}
	}
	if !found {
		doc.Agents = append(doc.Agents, AgentIndexEntry{AgentID: agentID, Role: role, LastActive: now})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: marshal agents index: %w", err)
	}
	if err := atomicfile.Write(indexPath, data, 0o644); err != nil {
		return fmt.Errorf("memory: write agents index: %w", err)
	}
	return nil
}

// AgentIndex returns projectPath's current agents-index.json roster, or an
// empty roster if no agent has recorded activity yet.
func (s *SessionMemory) AgentIndex(projPath string) ([]AgentIndexEntry, error) {
	doc, err := readAgentIndex(filepath.Join(projectDir(projPath), "agents-index.json"))
	if err != nil {
		return nil, err
	}
	return doc.Agents, nil
}

func readAgentIndex(path string) (agentIndexDocument, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return agentIndexDocument{}, nil
	}
	if err != nil {
		return agentIndexDocument{}, fmt.Errorf("memory: read agents index: %w", err)
	}

	var doc agentIndexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return agentIndexDocument{}, fmt.Errorf("memory: parse agents index: %w", err)
	}
	return doc, nil
}
