package feed

import (
	"sync"
	"sync/atomic"
	"time"
)

// Health tracks the live condition of one feed.
type Health struct {
	// Flags and counters, accessed atomically.
	running   uint32
	connected uint32
	messages  uint64
	retries   uint64

	mu           sync.RWMutex
	lastMessage  time.Time
	connectionID string
}

// Status is a point-in-time copy of a feed's health.
type Status struct {
	Name         string    `json:"name"`
	Running      bool      `json:"running"`
	Connected    bool      `json:"connected"`
	Messages     uint64    `json:"messages"`
	Retries      uint64    `json:"retries"`
	LastMessage  time.Time `json:"last_message"`
	ConnectionID string    `json:"connection_id"`
}

func newHealth() *Health {
	return &Health{}
}

func (h *Health) setRunning(v bool) {
	atomic.StoreUint32(&h.running, boolFlag(v))
}

func (h *Health) setConnected(v bool) {
	atomic.StoreUint32(&h.connected, boolFlag(v))
}

func (h *Health) setConnectionID(id string) {
	h.mu.Lock()
	h.connectionID = id
	h.mu.Unlock()
}

// markMessage counts one consumed message and stamps its arrival time.
func (h *Health) markMessage(ts time.Time) {
	atomic.AddUint64(&h.messages, 1)
	h.mu.Lock()
	if ts.After(h.lastMessage) {
		h.lastMessage = ts
	}
	h.mu.Unlock()
}

// markRetry increments the consecutive failure counter and returns it.
func (h *Health) markRetry() uint64 {
	return atomic.AddUint64(&h.retries, 1)
}

func (h *Health) resetRetries() {
	atomic.StoreUint64(&h.retries, 0)
}

// Snapshot returns a copy of the current health under the given feed name.
func (h *Health) Snapshot(name string) Status {
	h.mu.RLock()
	lastMessage := h.lastMessage
	connectionID := h.connectionID
	h.mu.RUnlock()

	return Status{
		Name:         name,
		Running:      atomic.LoadUint32(&h.running) == 1,
		Connected:    atomic.LoadUint32(&h.connected) == 1,
		Messages:     atomic.LoadUint64(&h.messages),
		Retries:      atomic.LoadUint64(&h.retries),
		LastMessage:  lastMessage,
		ConnectionID: connectionID,
	}
}

func boolFlag(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
