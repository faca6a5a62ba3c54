package memory

import (
	"strings"
	"time"

	"github.com/crewly/crewly/internal/common/stringutil"
)

// Briefer assembles a startup briefing for an agent from the five memory
// services, each section independently bounded to maxSectionChars.
type Briefer struct {
	agent    *AgentMemory
	project  *ProjectMemory
	sessions *SessionMemory
	daily    *DailyLog
	goals    *GoalTracking

	maxSectionChars int
}

// NewBriefer wires the five services together with the configured section
// bound (config.MemoryConfig.MaxSectionChars).
func NewBriefer(agent *AgentMemory, project *ProjectMemory, sessions *SessionMemory, daily *DailyLog, goals *GoalTracking, maxSectionChars int) *Briefer {
	if maxSectionChars <= 0 {
		maxSectionChars = 2000
	}
	return &Briefer{
		agent:           agent,
		project:         project,
		sessions:        sessions,
		daily:           daily,
		goals:           goals,
		maxSectionChars: maxSectionChars,
	}
}

// GenerateStartupBriefing concatenates, in order: the agent's role, latest session summary,
// agent context, project context, today's daily log, active goals, the
// tail of what_failed.md, and the tail of what_worked.md. Each section is
// independently truncated; sections with no content are omitted entirely
// (no placeholder heading).
func (b *Briefer) GenerateStartupBriefing(agentID, role, projPath string, now time.Time) (string, error) {
	sections := make([]string, 0, 8)

	sections = appendSection(sections, "Role", role, b.maxSectionChars)

	summary, err := b.sessions.LatestSummary(agentID)
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, "Previous Session", summary, b.maxSectionChars)

	agentContext, err := b.agentContext(agentID)
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, "Agent Context", agentContext, b.maxSectionChars)

	projectContext, err := b.project.Context(projPath)
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, "Project Context", projectContext, b.maxSectionChars)

	todayLog, err := b.daily.Today(projPath, now)
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, "Today's Activity", todayLog, b.maxSectionChars)

	goals, err := b.goals.Goals(projPath)
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, "Active Goals", goals, b.maxSectionChars)

	failed, err := learningTail(projPath, learningFailed, b.maxSectionChars)
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, "What Failed", failed, b.maxSectionChars)

	worked, err := learningTail(projPath, learningWorked, b.maxSectionChars)
	if err != nil {
		return "", err
	}
	sections = appendSection(sections, "What Worked", worked, b.maxSectionChars)

	return strings.Join(sections, "\n\n"), nil
}

// agentContext concatenates an agent's knowledge and preferences documents
// for the briefing's "agent context" section.
func (b *Briefer) agentContext(agentID string) (string, error) {
	knowledge, err := b.agent.Knowledge(agentID)
	if err != nil {
		return "", err
	}
	preferences, err := b.agent.Preferences(agentID)
	if err != nil {
		return "", err
	}

	switch {
	case knowledge == "" && preferences == "":
		return "", nil
	case knowledge == "":
		return preferences, nil
	case preferences == "":
		return knowledge, nil
	default:
		return knowledge + "\n" + preferences, nil
	}
}

// appendSection bounds content to maxChars and, if non-empty, appends it
// under heading to sections. An empty section is omitted entirely.
func appendSection(sections []string, heading, content string, maxChars int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return sections
	}
	return append(sections, "## "+heading+"\n"+stringutil.TruncateString(content, maxChars))
}
