package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/crewly/crewly/internal/common/atomicfile"
	"github.com/crewly/crewly/internal/common/stringutil"
)

// GoalTracking owns a project's goals.md (append-only), current_focus.md
// (always a full atomic overwrite), and decisions_log.md (append-only
// entries whose outcome line is later updated in place).
type GoalTracking struct{}

// NewGoalTracking builds a GoalTracking. It holds no state: every call is
// scoped by the projectPath argument.
func NewGoalTracking() *GoalTracking {
	return &GoalTracking{}
}

// AppendGoal adds one goal line to goals.md.
func (g *GoalTracking) AppendGoal(projPath, goal string) error {
	path := filepath.Join(projectDir(projPath), "goals", "goals.md")
	if err := atomicfile.Append(path, []byte("- "+goal+"\n"), 0o644); err != nil {
		return fmt.Errorf("memory: append goal: %w", err)
	}
	return nil
}

// Goals returns the full contents of goals.md, or "" if none exist yet.
func (g *GoalTracking) Goals(projPath string) (string, error) {
	path := filepath.Join(projectDir(projPath), "goals", "goals.md")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read goals: %w", err)
	}
	return string(data), nil
}

// SetFocus overwrites current_focus.md with focus in its entirety. Unlike
// goals.md and decisions_log.md this is never appended to: only the most
// recent focus matters.
func (g *GoalTracking) SetFocus(projPath, focus string) error {
	path := filepath.Join(projectDir(projPath), "goals", "current_focus.md")
	if err := atomicfile.Write(path, []byte(focus), 0o644); err != nil {
		return fmt.Errorf("memory: set current focus: %w", err)
	}
	return nil
}

// AppendFocusNote appends note to the current focus document, implemented
// as a read-modify-atomic-overwrite since current_focus.md is always a
// full document rather than an append-only log. Satisfies
// internal/mcpserver.NoteWriter for the crewly_note tool.
func (g *GoalTracking) AppendFocusNote(_ context.Context, projPath, note string) error {
	path := filepath.Join(projectDir(projPath), "goals", "current_focus.md")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("memory: read current focus: %w", err)
	}

	updated := strings.TrimRight(string(data), "\n")
	if updated != "" {
		updated += "\n"
	}
	updated += "- " + note + "\n"

	if err := atomicfile.Write(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("memory: append focus note: %w", err)
	}
	return nil
}

// CurrentFocus returns the contents of current_focus.md, or "" if unset.
func (g *GoalTracking) CurrentFocus(projPath string) (string, error) {
	path := filepath.Join(projectDir(projPath), "goals", "current_focus.md")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read current focus: %w", err)
	}
	return string(data), nil
}

const decisionOutcomePending = "pending"

// RecordDecision appends a new entry to decisions_log.md with outcome
// "pending", returning the decision id later passed to UpdateOutcome.
func (g *GoalTracking) RecordDecision(projPath string, now time.Time, text string) (string, error) {
	id := uuid.New().String()
	path := filepath.Join(projectDir(projPath), "goals", "decisions_log.md")
	entry := fmt.Sprintf("## decision-%s %s\n%s\nOutcome: %s\n\n", id, now.UTC().Format(time.RFC3339), text, decisionOutcomePending)
	if err := atomicfile.Append(path, []byte(entry), 0o644); err != nil {
		return "", fmt.Errorf("memory: record decision: %w", err)
	}
	return id, nil
}

// UpdateOutcome rewrites the "Outcome:" line of decision id in place,
// requiring a full read-modify-atomic-overwrite since decisions_log.md's
// individual entries are mutated after being appended.
func (g *GoalTracking) UpdateOutcome(projPath, id, outcome string) error {
	path := filepath.Join(projectDir(projPath), "goals", "decisions_log.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("memory: read decisions log: %w", err)
	}

	header := "## decision-" + id + " "
	lines := strings.Split(string(data), "\n")
	inBlock := false
	updated := false
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, header):
			inBlock = true
		case inBlock && strings.HasPrefix(line, "## decision-"):
			inBlock = false
		case inBlock && strings.HasPrefix(line, "Outcome:"):
			lines[i] = "Outcome: " + outcome
			updated = true
			inBlock = false
		}
	}
	if !updated {
		return fmt.Errorf("memory: decision %s not found in decisions log", id)
	}

	if err := atomicfile.Write(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("memory: update decision outcome: %w", err)
	}
	return nil
}

// DecisionsLog returns the full contents of decisions_log.md, or "" if none
// have been recorded yet.
func (g *GoalTracking) DecisionsLog(projPath string) (string, error) {
	path := filepath.Join(projectDir(projPath), "goals", "decisions_log.md")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read decisions log: %w", err)
	}
	return string(data), nil
}

// learningFile names the two outcome-excerpt files under
// {projectPath}/.crewly/learning/, written by RecordOutcome.
type learningFile string

const (
	learningWorked learningFile = "what_worked.md"
	learningFailed learningFile = "what_failed.md"
)

// RecordOutcome appends text to what_worked.md or what_failed.md depending
// on kind ("worked" or "failed"). Supplements spec.md's briefing assembly,
// which reads these two files but never named a write path for them
// (SPEC_FULL.md §4.9). kind values other than "worked"/"failed" are a no-op,
// matching system_event sources that supply no outcome signal.
func (g *GoalTracking) RecordOutcome(projPath, kind, text string) error {
	var file learningFile
	switch kind {
	case "worked":
		file = learningWorked
	case "failed":
		file = learningFailed
	default:
		return nil
	}

	path := filepath.Join(projectDir(projPath), "learning", string(file))
	if err := atomicfile.Append(path, []byte(text+"\n"), 0o644); err != nil {
		return fmt.Errorf("memory: record outcome: %w", err)
	}
	return nil
}

// learningTail returns the last maxChars characters of what_worked.md or
// what_failed.md, or "" if the file doesn't exist yet.
func learningTail(projPath string, file learningFile, maxChars int) (string, error) {
	path := filepath.Join(projectDir(projPath), "learning", string(file))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read %s: %w", file, err)
	}
	return stringutil.TailString(string(data), maxChars), nil
}
