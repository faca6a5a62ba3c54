// Package queueprocessor implements the Queue Processor (C6), the heart of
// crewlyd: a single-consumer state-machine loop that serializes delivery of
// queued messages to the one orchestrator agent.
//
// The loop is cooperative, never busy-polling: every wait is a select over
// a timer, the stop channel, and (where applicable) a wake-up or response
// channel, matching spec.md §4.6's five suspension points:
//
//  1. orchestrator-status gate (deferral, not retry)
//  2. pre-dispatch readiness poll (requeue up to MAX_REQUEUE_RETRIES)
//  3. chat-event subscription wait (response correlation)
//  4. post-completion idle wait (bounded, advances regardless of outcome)
//  5. inter-message sleep
//
// Grounded on the teacher's orchestrator dispatch loop style: explicit
// sentinel states transitioned under a small set of named methods, no
// channel-of-channels indirection, select-driven cancellation throughout.
package queueprocessor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/crewly/crewly/internal/agent"
	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/events"
	"github.com/crewly/crewly/internal/events/bus"
	"github.com/crewly/crewly/internal/messagequeue"
	"github.com/crewly/crewly/internal/router"
	"github.com/crewly/crewly/internal/tracing"
	v1 "github.com/crewly/crewly/pkg/api/v1"
)

// idleFallbackInterval is how often the loop re-peeks an empty queue while
// there is nothing to wake it.
const idleFallbackInterval = 1 * time.Second

// Queue is the subset of *messagequeue.Queue the processor drives.
type Queue interface {
	Peek() *v1.QueuedMessage
	StartProcessing(id string) error
	Complete(id string, responseRef string) error
	Fail(id string, cause error) error
	Requeue(id string) error
}

// AgentSender is the subset of *agent.Manager the processor drives.
type AgentSender interface {
	WaitForAgentReady(ctx context.Context, sessionName string, timeout time.Duration, runtimeType v1.RuntimeType) bool
	SendMessageToAgent(sessionName, content string, runtimeType v1.RuntimeType) agent.SendResult
}

// ResponseRouter is the subset of *router.Router the processor drives.
type ResponseRouter interface {
	RouteResponse(msg v1.QueuedMessage, responseText string) error
	RouteError(msg v1.QueuedMessage, cause error) error
}

// OrchestratorStatus reports whether the orchestrator can currently receive
// a dispatch. Backed by SessionBackendStatus in production.
type OrchestratorStatus interface {
	IsActive(ctx context.Context) bool
}

// OutcomeRecorder records a system_event source's optional outcome signal
// into the memory subsystem's learning log (C9). Implemented by
// internal/memory.GoalTracking. Wired via SetOutcomeRecorder rather than
// New, since most sources never populate SystemEvent and a processor with
// none set simply skips the call.
type OutcomeRecorder interface {
	RecordOutcome(projectPath, kind, text string) error
}

// Config tunes the processor. Field names mirror spec.md's named constants.
type Config struct {
	OrchestratorSession string
	RuntimeType         v1.RuntimeType

	// AgentReadyPollInterval is AGENT_READY_POLL_INTERVAL: the gate's
	// deferral interval and the readiness requeue's retry interval.
	AgentReadyPollInterval time.Duration
	// AgentReadyTimeout is AGENT_READY_TIMEOUT, passed to waitForAgentReady
	// before each dispatch attempt.
	AgentReadyTimeout time.Duration
	// MaxRequeueRetries is MAX_REQUEUE_RETRIES.
	MaxRequeueRetries int
	// ResponseTimeout is DEFAULT_MESSAGE_TIMEOUT: how long response
	// correlation waits on the chat event bus.
	ResponseTimeout time.Duration
	// InterMessageDelay is INTER_MESSAGE_DELAY.
	InterMessageDelay time.Duration
	// PostIdleWait bounds the post-completion idle wait.
	PostIdleWait time.Duration
}

// Stats is a point-in-time snapshot of the processor's lifetime counters.
type Stats struct {
	TotalProcessed int64
	TotalFailed    int64
}

// Processor runs the single-consumer dispatch loop.
type Processor struct {
	cfg     Config
	queue   Queue
	agents  AgentSender
	router  ResponseRouter
	status   OrchestratorStatus
	chatBus  bus.EventBus
	outcomes OutcomeRecorder
	logger   *logger.Logger
	tracer   trace.Tracer

	wake chan struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	inFlight       int32
	totalProcessed int64
	totalFailed    int64
}

// New builds a Processor. chatBus may be nil (response correlation then
// always times out, which is still well-defined behavior per spec.md §4.6).
func New(cfg Config, queue Queue, agents AgentSender, respRouter ResponseRouter, status OrchestratorStatus, chatBus bus.EventBus, log *logger.Logger) *Processor {
	return &Processor{
		cfg:     cfg,
		queue:   queue,
		agents:  agents,
		router:  respRouter,
		status:  status,
		chatBus: chatBus,
		logger:  log.WithFields(zap.String("component", "queueprocessor")),
		tracer:  tracing.Tracer("queueprocessor"),
		wake:    make(chan struct{}, 1),
	}
}

// SetOutcomeRecorder wires C9's GoalTracking in so a system_event message's
// optional outcome signal is recorded after a successful dispatch. Safe to
// call before Start; a nil recorder (the default) makes this a no-op.
func (p *Processor) SetOutcomeRecorder(r OutcomeRecorder) {
	p.outcomes = r
}

// Notify wakes a sleeping loop to re-peek the queue immediately, e.g. right
// after Enqueue. Non-blocking: a pending wake-up is never lost but multiple
// notifications before it is consumed collapse into one.
func (p *Processor) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start launches the dispatch loop in a background goroutine. A second call
// while already running is a no-op.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh := p.stopCh
	doneCh := p.doneCh
	p.mu.Unlock()

	go p.run(ctx, stopCh, doneCh)
}

// Stop signals the loop to exit at its next suspension point and blocks
// until it does. Per spec.md §5, there is no forced cancellation of
// in-flight I/O: a shutdown may wait up to one DEFAULT_MESSAGE_TIMEOUT.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh
}

// IsProcessingMessage reports whether a message is currently between
// StartProcessing and its terminal transition.
func (p *Processor) IsProcessingMessage() bool {
	return atomic.LoadInt32(&p.inFlight) == 1
}

// Stats returns the processor's lifetime counters.
func (p *Processor) Stats() Stats {
	return Stats{
		TotalProcessed: atomic.LoadInt64(&p.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&p.totalFailed),
	}
}

func (p *Processor) run(ctx context.Context, stopCh chan struct{}, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg := p.queue.Peek()
		if msg == nil {
			if !p.wait(ctx, stopCh, idleFallbackInterval, p.wake) {
				return
			}
			continue
		}

		// Suspension point 1: orchestrator init gate. Not active is a
		// deferral, never a retry — retryCount is untouched.
		if !p.status.IsActive(ctx) {
			if !p.wait(ctx, stopCh, p.cfg.AgentReadyPollInterval, nil) {
				return
			}
			continue
		}

		if !p.dispatch(ctx, stopCh, msg) {
			return
		}
	}
}

// dispatch carries one message through readiness, injection, response
// correlation, and the post-completion idle wait. Returns false only when
// the loop should stop (ctx cancelled or Stop called) mid-flight.
func (p *Processor) dispatch(ctx context.Context, stopCh chan struct{}, msg *v1.QueuedMessage) bool {
	ctx, span := p.tracer.Start(ctx, "queueprocessor.dispatch")
	span.SetAttributes(
		attribute.String("conversationId", msg.ConversationID),
		attribute.String("messageId", msg.ID),
	)
	defer span.End()

	// Suspension point 2: pre-dispatch readiness.
	if !p.agents.WaitForAgentReady(ctx, p.cfg.OrchestratorSession, p.cfg.AgentReadyTimeout, p.cfg.RuntimeType) {
		if msg.RetryCount >= p.cfg.MaxRequeueRetries {
			cause := fmt.Errorf("delivery failed, agent not available after %d retries", msg.RetryCount)
			p.failAndRoute(*msg, cause)
			return p.wait(ctx, stopCh, p.cfg.InterMessageDelay, nil)
		}
		if err := p.queue.Requeue(msg.ID); err != nil {
			p.logger.Warn("requeue failed", zap.String("messageId", msg.ID), zap.Error(err))
		}
		return p.wait(ctx, stopCh, p.cfg.AgentReadyPollInterval, nil)
	}

	if err := p.queue.StartProcessing(msg.ID); err != nil {
		// Another in-flight slot owner, or the message vanished (cancelled
		// concurrently). Either way, move on without counting a failure.
		p.logger.Warn("startProcessing declined", zap.String("messageId", msg.ID), zap.Error(err))
		return p.wait(ctx, stopCh, p.cfg.InterMessageDelay, nil)
	}
	atomic.StoreInt32(&p.inFlight, 1)
	defer atomic.StoreInt32(&p.inFlight, 0)

	// Conversation binding: frame the content with its conversationId so the
	// orchestrator's own chat-surface reply carries the same id back.
	framed := fmt.Sprintf("[CHAT:%s] %s", msg.ConversationID, msg.Content)

	sub, responseCh := p.subscribeForResponse(msg.ConversationID)
	if sub != nil {
		defer func() { _ = sub.Unsubscribe() }()
	}

	result := p.agents.SendMessageToAgent(p.cfg.OrchestratorSession, framed, p.cfg.RuntimeType)
	if !result.Success {
		span.RecordError(result.Err)
		if err := p.queue.Fail(msg.ID, result.Err); err != nil {
			p.logger.Warn("fail failed", zap.String("messageId", msg.ID), zap.Error(err))
		}
		atomic.AddInt64(&p.totalFailed, 1)
		if err := p.router.RouteError(*msg, result.Err); err != nil {
			p.logger.Warn("routeError failed", zap.String("messageId", msg.ID), zap.Error(err))
		}
		// No idle wait on delivery failure: nothing was sent for the agent
		// to settle from.
		return p.wait(ctx, stopCh, p.cfg.InterMessageDelay, nil)
	}

	// Suspension point 3: response correlation.
	responseText, timedOut := p.awaitResponse(ctx, stopCh, responseCh, p.cfg.ResponseTimeout)
	atomic.AddInt64(&p.totalProcessed, 1)
	if timedOut {
		span.SetAttributes(attribute.Bool("timedOut", true))
	}

	if err := p.queue.Complete(msg.ID, responseText); err != nil {
		p.logger.Warn("complete failed", zap.String("messageId", msg.ID), zap.Error(err))
	}
	if err := p.router.RouteResponse(*msg, responseText); err != nil {
		p.logger.Warn("routeResponse failed", zap.String("messageId", msg.ID), zap.Error(err))
	}
	p.recordOutcome(*msg)

	// Suspension point 4: post-completion idle wait. Bounded, non-fatal,
	// advance-only — a timeout here never requeues the message that already
	// completed; it only delays the next dispatch attempt.
	if !p.agents.WaitForAgentReady(ctx, p.cfg.OrchestratorSession, p.cfg.PostIdleWait, p.cfg.RuntimeType) {
		p.logger.Debug("agent still busy after post-completion idle wait, advancing anyway",
			zap.String("messageId", msg.ID))
	}

	// Suspension point 5: inter-message gap.
	return p.wait(ctx, stopCh, p.cfg.InterMessageDelay, nil)
}

// recordOutcome forwards a system_event source's optional outcome signal to
// C9. A no-op whenever no recorder is wired, the source isn't system_event,
// or the source carries no project path / outcome kind.
func (p *Processor) recordOutcome(msg v1.QueuedMessage) {
	if p.outcomes == nil {
		return
	}
	se := msg.SourceMetadata.SystemEvent
	if se == nil || se.OutcomeKind == "" || se.ProjectPath == "" {
		return
	}
	if err := p.outcomes.RecordOutcome(se.ProjectPath, se.OutcomeKind, msg.Content); err != nil {
		p.logger.Warn("record outcome failed", zap.String("messageId", msg.ID), zap.Error(err))
	}
}

func (p *Processor) failAndRoute(msg v1.QueuedMessage, cause error) {
	if err := p.queue.Fail(msg.ID, cause); err != nil {
		p.logger.Warn("fail failed", zap.String("messageId", msg.ID), zap.Error(err))
	}
	atomic.AddInt64(&p.totalFailed, 1)
	if err := p.router.RouteError(msg, cause); err != nil {
		p.logger.Warn("routeError failed", zap.String("messageId", msg.ID), zap.Error(err))
	}
}

// subscribeForResponse opens the chat-event subscription for one
// conversationId. Returns nil, nil if no chat bus is wired.
func (p *Processor) subscribeForResponse(conversationID string) (bus.Subscription, chan v1.ChatEvent) {
	if p.chatBus == nil {
		return nil, nil
	}

	ch := make(chan v1.ChatEvent, 1)
	subject := events.BuildChatSubject(conversationID)
	sub, err := p.chatBus.Subscribe(subject, func(_ context.Context, event *bus.Event) error {
		chatEvent, ok := events.DecodeChatEvent(event)
		if !ok {
			return nil
		}
		if chatEvent.ConversationID != conversationID || chatEvent.From.Type != v1.ParticipantOrchestrator {
			return nil
		}
		select {
		case ch <- chatEvent:
		default:
		}
		return nil
	})
	if err != nil {
		p.logger.Warn("failed to subscribe for response correlation",
			zap.String("conversationId", conversationID), zap.Error(err))
		return nil, nil
	}
	return sub, ch
}

// awaitResponse blocks for at most timeout, returning the first matching
// chat event's content, or ("", true) on timeout/cancellation. A nil
// responseCh (no chat bus wired) always reports a timeout after waiting out
// the window, matching spec.md's "no event arrives in the window" path.
func (p *Processor) awaitResponse(ctx context.Context, stopCh chan struct{}, responseCh chan v1.ChatEvent, timeout time.Duration) (string, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", true
		case <-stopCh:
			return "", true
		case <-timer.C:
			return "", true
		case evt, ok := <-responseCh:
			if !ok {
				return "", true
			}
			return evt.Content, false
		}
	}
}

// wait sleeps for d, waking early on ctx cancellation, a stop signal, or
// (if non-nil) wake. Returns false when the loop should exit.
func (p *Processor) wait(ctx context.Context, stopCh chan struct{}, d time.Duration, wake chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	case <-timer.C:
		return true
	case <-wake:
		return true
	}
}

var (
	_ Queue          = (*messagequeue.Queue)(nil)
	_ AgentSender    = (*agent.Manager)(nil)
	_ ResponseRouter = (*router.Router)(nil)
)
