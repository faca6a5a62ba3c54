package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/crewly/crewly/internal/common/atomicfile"
)

// DailyLog appends one entry per call to a project's per-day markdown log.
type DailyLog struct{}

// NewDailyLog builds a DailyLog. It holds no state: every call is scoped by
// the projectPath argument.
func NewDailyLog() *DailyLog {
	return &DailyLog{}
}

// Append adds one "## [role / agentId] HH:MM" heading followed by a bullet
// line to today's (as of now) log file, creating it if needed.
func (d *DailyLog) Append(projPath, role, agentID string, now time.Time, note string) error {
	path := filepath.Join(projectDir(projPath), "logs", "daily", dayFileName(now))
	entry := fmt.Sprintf("## [%s / %s] %s\n- %s\n\n", role, agentID, now.UTC().Format("15:04"), note)
	if err := atomicfile.Append(path, []byte(entry), 0o644); err != nil {
		return fmt.Errorf("memory: append daily log: %w", err)
	}
	return nil
}

// Today returns the contents of projectPath's log for now's date, or "" if
// no entry has been written yet.
func (d *DailyLog) Today(projPath string, now time.Time) (string, error) {
	path := filepath.Join(projectDir(projPath), "logs", "daily", dayFileName(now))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: read daily log: %w", err)
	}
	return string(data), nil
}
