package events

import (
	"context"
	"time"

	"github.com/crewly/crewly/internal/events/bus"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// PublishChatEvent publishes chatEvent onto BuildChatSubject(chatEvent.ConversationID).
// The orchestrator session (C1) calls this once it produces a reply; the
// queue processor's response correlation (C6) is the intended subscriber.
func PublishChatEvent(ctx context.Context, b bus.EventBus, source string, chatEvent v1.ChatEvent) error {
	subject := BuildChatSubject(chatEvent.ConversationID)
	event := bus.NewEvent(subject, source, map[string]interface{}{
		"conversationId": chatEvent.ConversationID,
		"fromType":       string(chatEvent.From.Type),
		"content":        chatEvent.Content,
		"emittedAt":      chatEvent.EmittedAt.Format(time.RFC3339Nano),
	})
	return b.Publish(ctx, subject, event)
}

// DecodeChatEvent extracts a v1.ChatEvent from a bus.Event published by
// PublishChatEvent. ok is false if the event carries no conversationId.
func DecodeChatEvent(event *bus.Event) (v1.ChatEvent, bool) {
	conversationID, _ := event.Data["conversationId"].(string)
	if conversationID == "" {
		return v1.ChatEvent{}, false
	}
	fromType, _ := event.Data["fromType"].(string)
	content, _ := event.Data["content"].(string)

	emittedAt := event.Timestamp
	if raw, ok := event.Data["emittedAt"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			emittedAt = parsed
		}
	}

	return v1.ChatEvent{
		ConversationID: conversationID,
		From:           v1.ChatParticipant{Type: v1.ParticipantType(fromType)},
		Content:        content,
		EmittedAt:      emittedAt,
	}, true
}
