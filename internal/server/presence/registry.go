// Package presence tracks which identities currently hold a live connection.
//
// The shipped implementation is process-local in-memory state, which means
// presence is not shared across multiple server instances. The Registry
// interface is the seam for an externally backed implementation (shared
// cache) in a multi-instance deployment.
package presence

import (
	"sync"
	"time"

	"github.com/peertutor/tutorchat/internal/server/events"
)

// Entry is one online identity as reported to newly joined connections.
type Entry struct {
	UserID   string
	FullName string
}

// Registry maps connected identities to their live connection handle.
// At most one record exists per identity; registering again overwrites the
// previous record (last-connected-wins, the older connection is orphaned,
// not closed). Unregister removes the record only when the departing handle
// is the registered one, so a late unregister never clobbers a newer
// connection.
type Registry interface {
	Register(userID, fullName string, sink events.Sink)
	Unregister(userID string, sink events.Sink) bool
	Lookup(userID string) (events.Sink, bool)
	Snapshot() []Entry
	Broadcast(event string, payload any)
}

type record struct {
	fullName string
	sink     events.Sink
}

// InMemoryRegistry is the single-instance Registry backed by a map.
type InMemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]record
	nowFn   func() time.Time
}

// NewInMemory creates an empty registry.
func NewInMemory() *InMemoryRegistry {
	return &InMemoryRegistry{
		records: make(map[string]record),
		nowFn:   time.Now,
	}
}

// Register inserts or overwrites the record for userID and announces
// user_online to every registered connection, the new one included.
func (r *InMemoryRegistry) Register(userID, fullName string, sink events.Sink) {
	r.mu.Lock()
	r.records[userID] = record{fullName: fullName, sink: sink}
	sinks := r.sinksLocked()
	now := r.nowFn()
	r.mu.Unlock()

	payload := events.PresenceChange{UserID: userID, FullName: fullName, Timestamp: now}
	for _, s := range sinks {
		s.Send(events.TypeUserOnline, payload)
	}
}

// Unregister removes the record for userID if sink is the registered handle
// and announces user_offline. A stale unregister (a newer connection already
// replaced the record) is a no-op and returns false.
func (r *InMemoryRegistry) Unregister(userID string, sink events.Sink) bool {
	r.mu.Lock()
	rec, ok := r.records[userID]
	if !ok || rec.sink.ID() != sink.ID() {
		r.mu.Unlock()
		return false
	}
	delete(r.records, userID)
	sinks := r.sinksLocked()
	now := r.nowFn()
	r.mu.Unlock()

	payload := events.PresenceChange{UserID: userID, FullName: rec.fullName, Timestamp: now}
	for _, s := range sinks {
		s.Send(events.TypeUserOffline, payload)
	}
	return true
}

// Lookup returns the live handle for userID, if any.
func (r *InMemoryRegistry) Lookup(userID string) (events.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, false
	}
	return rec.sink, true
}

// Snapshot lists everyone currently online, for newly joined connections.
func (r *InMemoryRegistry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.records))
	for id, rec := range r.records {
		out = append(out, Entry{UserID: id, FullName: rec.fullName})
	}
	return out
}

// Broadcast sends an event to every registered connection.
func (r *InMemoryRegistry) Broadcast(event string, payload any) {
	r.mu.RLock()
	sinks := r.sinksLocked()
	r.mu.RUnlock()

	for _, s := range sinks {
		s.Send(event, payload)
	}
}

// sinksLocked copies the current sinks; callers hold at least a read lock.
// Sends happen outside the lock so a slow connection cannot stall the map.
func (r *InMemoryRegistry) sinksLocked() []events.Sink {
	sinks := make([]events.Sink, 0, len(r.records))
	for _, rec := range r.records {
		sinks = append(sinks, rec.sink)
	}
	return sinks
}
