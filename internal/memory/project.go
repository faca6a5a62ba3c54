package memory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/crewly/crewly/internal/common/atomicfile"
)

type projectFile string

const (
	projectPatterns projectFile = "patterns.md"
	projectGotchas  projectFile = "gotchas.md"
)

// ProjectMemory reads and appends to the two project-wide markdown files
// shared by every agent that ever works in a given project.
type ProjectMemory struct{}

// NewProjectMemory builds a ProjectMemory. It holds no state of its own:
// every call is scoped by the projectPath argument.
func NewProjectMemory() *ProjectMemory {
	return &ProjectMemory{}
}

func (p *ProjectMemory) append(projPath string, file projectFile, entry string) error {
	path := filepath.Join(projectDir(projPath), string(file))
	if err := atomicfile.Append(path, []byte(entry+"\n"), 0o644); err != nil {
		return fmt.Errorf("memory: append project %s: %w", file, err)
	}
	return nil
}

// AppendPattern records a reusable code or workflow pattern discovered in
// this project.
func (p *ProjectMemory) AppendPattern(projPath, entry string) error {
	return p.append(projPath, projectPatterns, entry)
}

// AppendGotcha records a pitfall future agents in this project should avoid.
func (p *ProjectMemory) AppendGotcha(projPath, entry string) error {
	return p.append(projPath, projectGotchas, entry)
}

func (p *ProjectMemory) read(projPath string, file projectFile) (string, error) {
	path := filepath.Join(projectDir(projPath), string(file))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read project %s: %w", file, err)
	}
	return string(data), nil
}

// Context concatenates patterns.md and gotchas.md for generateStartupBriefing's
// "project context" section, omitting either half that doesn't exist yet.
func (p *ProjectMemory) Context(projPath string) (string, error) {
	patterns, err := p.read(projPath, projectPatterns)
	if err != nil {
		return "", err
	}
	gotchas, err := p.read(projPath, projectGotchas)
	if err != nil {
		return "", err
	}

	switch {
	case patterns == "" && gotchas == "":
		return "", nil
	case patterns == "":
		return gotchas, nil
	case gotchas == "":
		return patterns, nil
	default:
		return patterns + "\n" + gotchas, nil
	}
}
