package taskfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store resolves and moves the task files of a single milestone directory.
// Exposed to the MCP tool server so a running agent can advance its own
// task through open/in_progress/done/blocked without shelling out.
type Store struct {
	milestoneDir string
}

// NewStore builds a Store rooted at milestoneDir (see MilestoneDir,
// ProjectTasksDir).
func NewStore(milestoneDir string) *Store {
	return &Store{milestoneDir: milestoneDir}
}

// Read parses the task file named fileName out of its current state
// directory.
func (s *Store) Read(state State, fileName string) (Document, error) {
	data, err := os.ReadFile(Path(s.milestoneDir, state, fileName))
	if err != nil {
		return Document{}, fmt.Errorf("taskfile: read %s: %w", fileName, err)
	}
	return Parse(data)
}

// Advance moves fileName from one state directory to another and returns
// its header, re-read from its new location.
func (s *Store) Advance(from, to State, fileName string) (Header, error) {
	if err := Move(s.milestoneDir, from, to, fileName); err != nil {
		return Header{}, err
	}
	doc, err := s.Read(to, fileName)
	if err != nil {
		return Header{}, err
	}
	return doc.Header, nil
}

// List returns the task file names currently in state, skipping
// subdirectories. Returns an empty slice, not an error, if state's
// directory doesn't exist yet.
func (s *Store) List(state State) ([]string, error) {
	dir := filepath.Join(s.milestoneDir, string(state))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskfile: list %s: %w", state, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
