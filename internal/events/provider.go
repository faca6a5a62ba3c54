package events

import (
	"github.com/crewly/crewly/internal/common/logger"
	"github.com/crewly/crewly/internal/events/bus"
)

// ProvidedBus wraps the active event bus implementation. Crewly is a
// single-node system, so the in-memory bus
// is the only implementation wired in crewlyd; the interface stays usable
// by anything that wants to swap it in tests.
type ProvidedBus struct {
	Bus    bus.EventBus
	Memory *bus.MemoryEventBus
}

// Provide builds the in-memory event bus used by C10.
func Provide(log *logger.Logger) (*ProvidedBus, func() error, error) {
	memBus := bus.NewMemoryEventBus(log)
	return &ProvidedBus{Bus: memBus, Memory: memBus}, func() error { return nil }, nil
}
