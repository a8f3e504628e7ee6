// Package session keeps a bounded, process-lifetime cache of recent
// exchanges per conversation. It is not authoritative: prompts are always
// rebuilt from storage and the cache is lost on restart.
package session

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of exchanges kept per conversation when no
// capacity is configured.
const DefaultCapacity = 10

// Entry is one cached exchange.
type Entry struct {
	User      string    `json:"user"`
	Assistant string    `json:"assistant"`
	Tokens    int       `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

// Registry maps conversation ids to their most recent entries, evicting the
// oldest entry once a conversation exceeds capacity.
type Registry struct {
	mu       sync.Mutex
	capacity int
	sessions map[string][]Entry
}

// New returns an empty Registry. A capacity below 1 uses DefaultCapacity.
func New(capacity int) *Registry {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	return &Registry{
		capacity: capacity,
		sessions: make(map[string][]Entry),
	}
}

// Capacity returns the per-conversation bound.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Init registers an empty session for id if none exists.
func (r *Registry) Init(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		r.sessions[id] = []Entry{}
	}
}

// Append adds e to id's session, evicting the oldest entries beyond capacity.
func (r *Registry) Append(id string, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := append(r.sessions[id], e)
	if over := len(entries) - r.capacity; over > 0 {
		entries = append([]Entry(nil), entries[over:]...)
	}
	r.sessions[id] = entries
}

// Entries returns a copy of id's entries, oldest first.
func (r *Registry) Entries(id string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Entry(nil), r.sessions[id]...)
}

// Delete drops id's session.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
}

// Clear drops every session.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.sessions)
}

// Len returns the number of tracked conversations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}
