package router

import (
	"context"
	"time"

	"github.com/crewly/crewly/internal/events"
	"github.com/crewly/crewly/internal/events/bus"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// busChatStore implements ChatStore by publishing onto the same chat event
// bus (C10) the orchestrator's own replies travel over, authored as
// v1.ParticipantSystem so subscribers (the websocket layer, C6's response
// correlation) can tell a delivery-failure notice apart from a real reply.
type busChatStore struct {
	bus bus.EventBus
}

// NewChatStore builds a ChatStore over b. A nil b is valid: every post then
// silently no-ops, matching Router's own nil-chatStore behavior.
func NewChatStore(b bus.EventBus) ChatStore {
	return &busChatStore{bus: b}
}

func (s *busChatStore) PostSystemMessage(ctx context.Context, conversationID, text string) error {
	if s.bus == nil {
		return nil
	}
	return events.PublishChatEvent(ctx, s.bus, "router", v1.ChatEvent{
		ConversationID: conversationID,
		From:           v1.ChatParticipant{Type: v1.ParticipantSystem},
		Content:        text,
		EmittedAt:      time.Now(),
	})
}
