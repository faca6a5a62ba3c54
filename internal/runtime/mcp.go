package runtime

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// mcpDescriptor is the shape every supported CLI's MCP config file expects
// for a stdio-transport server entry, grounded on the teacher's
// internal/agent/mcpconfig.Service.
type mcpDescriptor struct {
	MCPServers map[string]mcpServerEntry `json:"mcpServers"`
}

type mcpServerEntry struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// writeMCPDescriptor writes .crewly/mcp.json into projectPath, pointing at
// the embedded MCP tool server (A5) started via the same binary in
// `mcp-server` mode, so the spawned CLI can call crewly_queue_status /
// crewly_note without a network hop.
func writeMCPDescriptor(projectPath string) error {
	if projectPath == "" {
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		exe = "crewlyd"
	}

	doc := mcpDescriptor{
		MCPServers: map[string]mcpServerEntry{
			"crewly": {
				Command: exe,
				Args:    []string{"mcp-server"},
			},
		},
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mcp descriptor: %w", err)
	}

	dir := filepath.Join(projectPath, ".crewly")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create mcp descriptor dir: %w", err)
	}

	path := filepath.Join(dir, "mcp.json")
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp mcp descriptor: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename mcp descriptor: %w", err)
	}
	return nil
}
