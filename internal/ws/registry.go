package ws

import (
	"sync"
)

// Close codes sent by the gateway.
const (
	// CloseInvalidIdentity rejects a connect attempt with malformed
	// identifiers (policy violation).
	CloseInvalidIdentity = 1008
	// CloseDuplicateSession closes the superseded connection when a new one
	// is admitted for the same (user, scope).
	CloseDuplicateSession = 4001
)

// Scope binds a connection to one gig conversation from the connecting
// user's viewpoint. The zero Scope is a notification-only connection.
type Scope struct {
	GigID         string
	CounterpartID string
}

// IsZero reports whether the connection has no conversation scope.
func (s Scope) IsZero() bool { return s.GigID == "" && s.CounterpartID == "" }

// Conn is the write side of a live connection. It is an interface so the
// registry and router can be tested with fakes instead of real sockets.
type Conn interface {
	Send(v any) error
	CloseWithCode(code int, reason string)
}

// Handle is one admitted live connection.
type Handle struct {
	UserID string
	Scope  Scope
	conn   Conn
}

// Send writes a payload to the underlying connection.
func (h *Handle) Send(v any) error { return h.conn.Send(v) }

// Registry tracks live connections, indexed by user id and by gig scope so
// fan-out touches only the handles that can match. It enforces at most one
// active session per (user, scope): admitting a new connection closes the
// prior one with CloseDuplicateSession.
//
// The registry owns no message state and the store owns no connection state;
// the router is the only component reading both.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[*Handle]struct{}
	byGig  map[string]map[*Handle]struct{} // conversation-scoped handles only
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[*Handle]struct{}),
		byGig:  make(map[string]map[*Handle]struct{}),
	}
}

// Admit registers a new connection and returns its handle. Any live handle
// with the identical (userID, scope) is detached first and closed after the
// lock is released, so the new session is the only survivor.
func (r *Registry) Admit(userID string, scope Scope, conn Conn) *Handle {
	h := &Handle{UserID: userID, Scope: scope, conn: conn}

	var stale []*Handle
	r.mu.Lock()
	for prior := range r.byUser[userID] {
		if prior.Scope == scope {
			r.detachLocked(prior)
			stale = append(stale, prior)
		}
	}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[*Handle]struct{})
	}
	r.byUser[userID][h] = struct{}{}
	if !scope.IsZero() {
		if r.byGig[scope.GigID] == nil {
			r.byGig[scope.GigID] = make(map[*Handle]struct{})
		}
		r.byGig[scope.GigID][h] = struct{}{}
	}
	r.mu.Unlock()

	for _, prior := range stale {
		prior.conn.CloseWithCode(CloseDuplicateSession, "duplicate session")
	}
	return h
}

// Remove drops a handle from the registry. Idempotent; safe to call from
// both the connection's own teardown and the router's dead-peer pruning.
func (r *Registry) Remove(h *Handle) {
	r.mu.Lock()
	r.detachLocked(h)
	r.mu.Unlock()
}

func (r *Registry) detachLocked(h *Handle) {
	if handles, ok := r.byUser[h.UserID]; ok {
		delete(handles, h)
		if len(handles) == 0 {
			delete(r.byUser, h.UserID)
		}
	}
	if !h.Scope.IsZero() {
		if handles, ok := r.byGig[h.Scope.GigID]; ok {
			delete(handles, h)
			if len(handles) == 0 {
				delete(r.byGig, h.Scope.GigID)
			}
		}
	}
}

// ConversationHandles returns a snapshot of the live handles scoped to the
// given gig.
func (r *Registry) ConversationHandles(gigID string) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*Handle, 0, len(r.byGig[gigID]))
	for h := range r.byGig[gigID] {
		res = append(res, h)
	}
	return res
}

// NotificationHandles returns a snapshot of the user's handles that carry no
// conversation scope.
func (r *Registry) NotificationHandles(userID string) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []*Handle
	for h := range r.byUser[userID] {
		if h.Scope.IsZero() {
			res = append(res, h)
		}
	}
	return res
}

// Len reports the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, handles := range r.byUser {
		n += len(handles)
	}
	return n
}
