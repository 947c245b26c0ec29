// Package registry implements the Connection Registry: the process-local
// set of open push channels keyed by (session, user), with safe
// concurrent fan-out primitives. It never touches the fast store — it is
// purely in-memory bookkeeping for one process's live connections, exactly
// as the component design requires (multi-process deployments need sticky
// routing or a pub/sub relay, out of scope here).
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// writeDeadline bounds how long a single fan-out send may block a
// connection's outbound channel before the connection is considered dead.
const writeDeadline = 5 * time.Second

// Connection is one open push channel, identified by the (code, user) pair
// it belongs to. Send is a buffered channel consumed by the connection's
// write pump; the registry never writes to the socket directly.
type Connection struct {
	Code   string
	UserID string
	IsHost bool
	Send   chan []byte
}

// Registry is the Connection Registry. The zero value is not usable; use
// New.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]map[string]*Connection
	users    map[string]string
	roles    map[string]map[string]bool
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]*Connection),
		users:    make(map[string]string),
		roles:    make(map[string]map[string]bool),
	}
}

// Attach registers a connection. If the user already has a connection for
// the same session, it is detached first so the new one (typically a
// reconnect) wins.
func (r *Registry) Attach(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bucket, ok := r.sessions[conn.Code]; ok {
		if existing, ok := bucket[conn.UserID]; ok {
			close(existing.Send)
			delete(bucket, conn.UserID)
		}
	} else {
		r.sessions[conn.Code] = make(map[string]*Connection)
	}

	r.sessions[conn.Code][conn.UserID] = conn
	r.users[conn.UserID] = conn.Code

	if _, ok := r.roles[conn.Code]; !ok {
		r.roles[conn.Code] = make(map[string]bool)
	}
	r.roles[conn.Code][conn.UserID] = conn.IsHost
}

// Detach removes a connection. conn is compared by identity so a stale
// detach (e.g. from an old connection's deferred cleanup after Attach
// already replaced it) does not remove the new one.
func (r *Registry) Detach(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked(conn)
}

func (r *Registry) detachLocked(conn *Connection) {
	bucket, ok := r.sessions[conn.Code]
	if !ok {
		return
	}
	current, ok := bucket[conn.UserID]
	if !ok || current != conn {
		return
	}

	delete(bucket, conn.UserID)
	close(conn.Send)
	if len(bucket) == 0 {
		delete(r.sessions, conn.Code)
	}
	if r.users[conn.UserID] == conn.Code {
		delete(r.users, conn.UserID)
	}
	if roleBucket, ok := r.roles[conn.Code]; ok {
		delete(roleBucket, conn.UserID)
		if len(roleBucket) == 0 {
			delete(r.roles, conn.Code)
		}
	}
}

// IsHost reports the host flag recorded at Attach time for (code, user).
func (r *Registry) IsHost(code, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roles[code][userID]
}

// SessionOf returns the session code a user is currently connected to, if
// any.
func (r *Registry) SessionOf(userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.users[userID]
	return code, ok
}

// snapshot takes a point-in-time copy of a session's connections so
// fan-out can proceed without holding the registry lock across sends.
func (r *Registry) snapshot(code string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket, ok := r.sessions[code]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(bucket))
	for _, c := range bucket {
		out = append(out, c)
	}
	return out
}

// SendOne delivers message to a single user's connection for code, under a
// bounded write deadline. On timeout or a closed channel, the connection
// is detached.
func (r *Registry) SendOne(code, userID string, message []byte) {
	r.mu.Lock()
	bucket, ok := r.sessions[code]
	var conn *Connection
	if ok {
		conn = bucket[userID]
	}
	r.mu.Unlock()
	if conn == nil {
		return
	}
	r.send(conn, message)
}

func (r *Registry) send(conn *Connection, message []byte) {
	defer func() {
		// Send may have been closed by a concurrent Detach after the caller
		// looked the connection up; treat that as a failed send.
		if recover() != nil {
			r.Detach(conn)
		}
	}()
	select {
	case conn.Send <- message:
	case <-time.After(writeDeadline):
		log.Warn().Str("code", conn.Code).Str("user_id", conn.UserID).Msg("connection write deadline exceeded, detaching")
		r.Detach(conn)
	}
}

// broadcast fans a message out to every connection for which filter
// returns true, sending concurrently so one slow client cannot stall
// delivery to the rest (head-of-line blocking avoidance).
func (r *Registry) broadcast(code string, message []byte, filter func(*Connection) bool) {
	conns := r.snapshot(code)
	if len(conns) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, conn := range conns {
		if filter != nil && !filter(conn) {
			continue
		}
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			r.send(c, message)
		}(conn)
	}
	wg.Wait()
}

// Broadcast sends message to every connection in a session.
func (r *Registry) Broadcast(code string, message []byte) {
	r.broadcast(code, message, nil)
}

// BroadcastParticipants sends message to every non-host connection in a
// session.
func (r *Registry) BroadcastParticipants(code string, message []byte) {
	r.broadcast(code, message, func(c *Connection) bool { return !c.IsHost })
}

// BroadcastHost sends message to the host connection only, if attached.
func (r *Registry) BroadcastHost(code, hostID string, message []byte) {
	r.SendOne(code, hostID, message)
}

// BroadcastExcept sends message to every connection in a session except
// the one belonging to exclude.
func (r *Registry) BroadcastExcept(code, exclude string, message []byte) {
	r.broadcast(code, message, func(c *Connection) bool { return c.UserID != exclude })
}

// Count returns the number of attached connections for a session (host
// included), used by the Gateway for the participant_count it reports in
// session_update.
func (r *Registry) Count(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[code])
}
