// Package router implements the Response Router (C7): delivering a
// processed message's response (or error) back to whichever external
// surface it came from.
//
// sourceMetadata is a closed sum type (pkg/api/v1.SourceMetadata) — routing
// switches on which field is populated rather than on a type-asserted
// `any`.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/common/logger"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// ChatStore posts a system-authored notification into a conversation's chat
// history — the same surface (C10) the orchestrator's own replies travel
// over. Implemented by busChatStore.
type ChatStore interface {
	PostSystemMessage(ctx context.Context, conversationID, text string) error
}

// Router dispatches a completed or failed message's outcome to its source.
type Router struct {
	logger    *logger.Logger
	chatStore ChatStore
}

// New builds a Router. chatStore may be nil, in which case permanent
// delivery failures are routed to their per-channel callback only, with no
// chat-store notification.
func New(log *logger.Logger, chatStore ChatStore) *Router {
	return &Router{
		logger:    log.WithFields(zap.String("component", "router")),
		chatStore: chatStore,
	}
}

// RouteResponse delivers responseText to msg's originating surface.
func (r *Router) RouteResponse(msg v1.QueuedMessage, responseText string) error {
	return r.dispatch(msg, responseText)
}

// RouteError delivers a delivery-failure notice to msg's originating
// surface, using the same callbacks as a successful response, and posts a
// "Message delivery failed" notification to the conversation's chat store
// so the failure is visible there regardless of source.
func (r *Router) RouteError(msg v1.QueuedMessage, cause error) error {
	if r.chatStore != nil {
		text := fmt.Sprintf("Message delivery failed: %v", cause)
		if err := r.chatStore.PostSystemMessage(context.Background(), msg.ConversationID, text); err != nil {
			r.logger.Warn("post system chat message failed", zap.String("messageId", msg.ID), zap.Error(err))
		}
	}
	return r.dispatch(msg, fmt.Sprintf("delivery error: %v", cause))
}

func (r *Router) dispatch(msg v1.QueuedMessage, text string) error {
	meta := msg.SourceMetadata
	switch {
	case meta.Slack != nil:
		if meta.Slack.Ack == nil {
			return nil
		}
		if err := meta.Slack.Ack(text); err != nil {
			r.logger.Warn("slack ack failed", zap.String("messageId", msg.ID), zap.Error(err))
			return err
		}
	case meta.WhatsApp != nil:
		if meta.WhatsApp.Reply == nil {
			return nil
		}
		if err := meta.WhatsApp.Reply(text); err != nil {
			r.logger.Warn("whatsapp reply failed", zap.String("messageId", msg.ID), zap.Error(err))
			return err
		}
	case meta.Discord != nil:
		if meta.Discord.Reply == nil {
			return nil
		}
		if err := meta.Discord.Reply(text); err != nil {
			r.logger.Warn("discord reply failed", zap.String("messageId", msg.ID), zap.Error(err))
			return err
		}
	case meta.WebChat != nil:
		// The websocket layer already receives responses via the chat
		// event bus (C10) subscription keyed by conversationId; nothing
		// further to dispatch here.
	case meta.SystemEvent != nil:
		// System-originated messages have no reply surface.
	default:
		r.logger.Debug("message has no source metadata to route", zap.String("messageId", msg.ID), zap.String("source", string(msg.Source)))
	}
	return nil
}
