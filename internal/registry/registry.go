// Package registry holds the process-wide set of live HID sessions, keyed
// by network connection identity.
//
// The spec's source material keeps sessions in a hand-rolled doubly-linked
// list and has a known deletion bug in it (a stray tl = hd.next where
// tl = tl.next was intended). A plain ordered slice sidesteps that class of
// bug entirely: there is only one way to remove an element and preserve
// the order of the rest.
package registry

import "sync"

// Session is the minimal surface the registry needs from a session: its
// connection identity. The concrete session type lives in package session;
// registry only deals in this interface so it does not depend on package
// session (the dispatcher owns the registry and inserts/removes sessions).
type Session interface {
	ConnID() string
}

// Registry is an insertion-ordered, connection-identity-unique set of
// sessions. Linear search is explicitly acceptable per the design: a
// process bridges a handful of devices at a time, never hundreds.
//
// Registry is single-writer by contract: only the event-loop goroutine
// calls Insert/Remove/Finalize. Reader goroutines never touch it, so no
// internal lock is required for that traffic; the mutex here exists only
// to make Count/Find safe to call from tests or diagnostics off the event
// loop without additional ceremony.
type Registry struct {
	mu       sync.Mutex
	sessions []Session
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Find returns the session for connID, or false if none exists.
func (r *Registry) Find(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ConnID() == connID {
			return s, true
		}
	}
	return nil, false
}

// Insert appends s. The caller must have already confirmed via Find that
// no session with this connection identity exists; Insert does not
// re-check uniqueness.
func (r *Registry) Insert(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

// Remove deletes and returns the session for connID, preserving the order
// of the remaining entries.
func (r *Registry) Remove(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sessions {
		if s.ConnID() == connID {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return s, true
		}
	}
	return nil, false
}

// Finalize destroys every session via release, in insertion order, then
// empties the registry. release is expected to tear the session down
// completely (signal, join, close); Finalize does not call Remove for
// each entry since it discards the whole backing slice at the end.
func (r *Registry) Finalize(release func(Session)) {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = nil
	r.mu.Unlock()

	for _, s := range sessions {
		release(s)
	}
}
