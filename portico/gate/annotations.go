package gate

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Handle lifecycle
	HandleOpened = "handle/opened"
	HandleClosed = "handle/closed"

	// Query lifecycle
	QueryInvoked  = "query/invoked"
	QueryComplete = "query/completed"
	QueryFailed   = "query/failed"

	// Snapshot lifecycle
	BackupComplete  = "backup/completed"
	RestoreComplete = "restore/completed"

	// Foreign-call adapter
	HostUnlocked = "host/unlocked"
	HostRelocked = "host/relocked"
)

// Event represents a single annotation event during gateway operation.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// collector fans events out to an optional handler. Emitting with no
// handler installed is a no-op so instrumented paths stay silent by
// default.
type collector struct {
	mu      sync.RWMutex
	handler Handler
}

func (c *collector) setHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *collector) emit(name string, start time.Time, data map[string]interface{}) {
	c.mu.RLock()
	h := c.handler
	c.mu.RUnlock()
	if h == nil {
		return
	}
	end := time.Now()
	h(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}
