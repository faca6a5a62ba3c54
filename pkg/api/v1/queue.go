package v1

import "time"

// MessageSource names where a QueuedMessage originated.
type MessageSource string

const (
	SourceWebChat     MessageSource = "web_chat"
	SourceSystemEvent MessageSource = "system_event"
	SourceSlack       MessageSource = "slack"
	SourceWhatsApp    MessageSource = "whatsapp"
	SourceDiscord     MessageSource = "discord"
)

// MessageStatus is the lifecycle state of a QueuedMessage (C5).
type MessageStatus string

const (
	StatusPending    MessageStatus = "pending"
	StatusProcessing MessageStatus = "processing"
	StatusCompleted  MessageStatus = "completed"
	StatusFailed     MessageStatus = "failed"
	StatusCancelled  MessageStatus = "cancelled"
)

// IsTerminal reports whether status is one a message cannot leave.
func (s MessageStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// SourceMetadata is the closed sum type replacing the original's untyped
// per-source metadata bag (SPEC_FULL.md §9 design note). Exactly one field
// is populated, matching the message's Source.
type SourceMetadata struct {
	WebChat     *WebChatMetadata
	Slack       *SlackMetadata
	WhatsApp    *WhatsAppMetadata
	Discord     *DiscordMetadata
	SystemEvent *SystemEventMetadata
}

// WebChatMetadata carries nothing extra: the chat event bus already
// delivers responses to the websocket layer by conversationId.
type WebChatMetadata struct{}

// SlackMetadata carries the channel to reply on and an acknowledgement
// callback invoked by the response router (C7) on completion.
type SlackMetadata struct {
	ChannelID string
	Ack       func(responseText string) error
}

// WhatsAppMetadata carries the chat to reply to.
type WhatsAppMetadata struct {
	ChatID string
	Reply  func(responseText string) error
}

// DiscordMetadata carries the channel to reply to.
type DiscordMetadata struct {
	ChannelID string
	Reply     func(responseText string) error
}

// SystemEventMetadata carries an optional outcome signal the orchestrator's
// response implies, used by C9's GoalTracking.RecordOutcome.
type SystemEventMetadata struct {
	OutcomeKind string // "worked", "failed", or "" if not applicable
	// ProjectPath names the project whose memory (C9) the outcome belongs
	// to. Left empty for system events with no project context (e.g. a
	// scheduled message with no auto-assign target), which makes
	// recordOutcome a no-op.
	ProjectPath string
}

// QueuedMessage is one entry in the FIFO message queue (C5).
type QueuedMessage struct {
	ID             string
	Content        string
	ConversationID string
	Source         MessageSource
	SourceMetadata SourceMetadata
	EnqueuedAt     time.Time
	Status         MessageStatus
	RetryCount     int
	// TraceID propagates an OpenTelemetry trace/span id so a message's full
	// lifecycle can be correlated in logs and traces (SPEC_FULL.md §3 expansion).
	TraceID string
}

// HistoryEntry is a terminal-status record retained after a message leaves
// the pending set, bounded by MAX_HISTORY_SIZE.
type HistoryEntry struct {
	Message     QueuedMessage
	FinishedAt  time.Time
	ResponseRef string
	Err         string
}

// ScheduledMessage is a delayed or recurring reminder that C8 arms as a
// timer and, on fire, enqueues into C5.
type ScheduledMessage struct {
	ID            string
	Name          string
	TargetTeam    string
	TargetProject string
	Body          string
	Delay         Duration
	IsRecurring   bool
	IsActive      bool
	LastRun       *time.Time
	NextRun       *time.Time
	// AutoAssign marks messages that must run through the scheduler's
	// sequential auto-assignment sub-queue (SPEC_FULL.md §4.8).
	AutoAssign bool
}

// Duration is an amount+unit pair, matching the wire shape of a
// ScheduledMessage's delay field.
type Duration struct {
	Amount int64
	Unit   DurationUnit
}

// DurationUnit is the unit a Duration.Amount is expressed in.
type DurationUnit string

const (
	UnitSeconds DurationUnit = "seconds"
	UnitMinutes DurationUnit = "minutes"
	UnitHours   DurationUnit = "hours"
	UnitDays    DurationUnit = "days"
)

// AsTimeDuration converts a Duration to a time.Duration.
func (d Duration) AsTimeDuration() time.Duration {
	switch d.Unit {
	case UnitSeconds:
		return time.Duration(d.Amount) * time.Second
	case UnitMinutes:
		return time.Duration(d.Amount) * time.Minute
	case UnitHours:
		return time.Duration(d.Amount) * time.Hour
	case UnitDays:
		return time.Duration(d.Amount) * 24 * time.Hour
	default:
		return time.Duration(d.Amount) * time.Second
	}
}
