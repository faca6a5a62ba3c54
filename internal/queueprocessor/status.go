package queueprocessor

import (
	"context"

	"github.com/crewly/crewly/internal/session"
)

// SessionBackendStatus implements OrchestratorStatus by treating "the
// orchestrator's external status is active" as "its session still exists".
// Grounded on spec.md §4.6's orchestrator init gate: no heavier status
// channel is needed since C1 already tracks session liveness.
type SessionBackendStatus struct {
	backend     session.Backend
	sessionName string
}

// NewSessionBackendStatus builds an OrchestratorStatus backed by backend.
func NewSessionBackendStatus(backend session.Backend, sessionName string) *SessionBackendStatus {
	return &SessionBackendStatus{backend: backend, sessionName: sessionName}
}

// IsActive reports whether the orchestrator's session is still alive.
func (s *SessionBackendStatus) IsActive(_ context.Context) bool {
	return s.backend.HasSession(s.sessionName)
}

var _ OrchestratorStatus = (*SessionBackendStatus)(nil)
