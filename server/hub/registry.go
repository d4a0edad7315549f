package hub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"
)

// DefaultOutboundBuffer is the number of events a slow client may fall behind
// before further events are dropped.
const DefaultOutboundBuffer = 64

// Conn is one live client connection. The transport drains Outbound on its own
// writer goroutine, stops when Done is closed and then calls FinishWriting.
type Conn struct {
	UserID int32

	out       chan OutboundEvent
	done      chan struct{}
	closeOnce sync.Once

	written     chan struct{}
	writtenOnce sync.Once
}

// Outbound returns the queue of events to write to the client.
func (c *Conn) Outbound() <-chan OutboundEvent {
	return c.out
}

// Done is closed when the connection is superseded or disconnected.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// FinishWriting tells the registry the writer has flushed and stopped.
func (c *Conn) FinishWriting() {
	c.writtenOnce.Do(func() { close(c.written) })
}

// deliver enqueues ev without blocking. It reports false when the connection
// is closed or its buffer is full.
func (c *Conn) deliver(ev OutboundEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- ev:
		return true
	default:
		return false
	}
}

// Registry tracks at most one live connection per user and the session each
// connection is bound to.
type Registry struct {
	buffer int

	mu       sync.RWMutex
	conns    map[int32]*Conn
	sessions map[int32]string
}

// NewRegistry creates a registry. A non-positive buffer uses DefaultOutboundBuffer.
func NewRegistry(buffer int) *Registry {
	if buffer <= 0 {
		buffer = DefaultOutboundBuffer
	}
	return &Registry{
		buffer:   buffer,
		conns:    make(map[int32]*Conn),
		sessions: make(map[int32]string),
	}
}

// Connect registers a new connection for userID. Any prior connection of the
// same user is closed and its session binding dropped.
func (r *Registry) Connect(userID int32) *Conn {
	conn := &Conn{
		UserID: userID,
		out:     make(chan OutboundEvent, r.buffer),
		done:    make(chan struct{}),
		written: make(chan struct{}),
	}

	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	delete(r.sessions, userID)
	r.mu.Unlock()

	if prev != nil {
		prev.close()
		slog.Info("connection superseded", "user_id", userID)
	}
	return conn
}

// Disconnect removes the user's connection and session binding.
func (r *Registry) Disconnect(userID int32) {
	r.mu.Lock()
	conn := r.conns[userID]
	delete(r.conns, userID)
	delete(r.sessions, userID)
	r.mu.Unlock()

	if conn != nil {
		conn.close()
	}
}

// Release disconnects conn only if it is still the user's current connection.
// A superseded connection calls this on exit without touching its successor.
func (r *Registry) Release(conn *Conn) {
	r.mu.Lock()
	if r.conns[conn.UserID] == conn {
		delete(r.conns, conn.UserID)
		delete(r.sessions, conn.UserID)
	}
	r.mu.Unlock()

	conn.close()
}

// Bind associates the user's connection with a session.
func (r *Registry) Bind(userID int32, sessionUID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[userID]; ok {
		r.sessions[userID] = sessionUID
	}
}

// BindConn binds conn to a session if conn is still the user's current
// connection. It reports whether the binding was made.
func (r *Registry) BindConn(conn *Conn, sessionUID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[conn.UserID] != conn {
		return false
	}
	r.sessions[conn.UserID] = sessionUID
	return true
}

// SessionOf returns the session the user's connection is bound to.
func (r *Registry) SessionOf(userID int32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionUID, ok := r.sessions[userID]
	return sessionUID, ok
}

// SessionOfConn returns the session conn is bound to. A superseded connection
// has none.
func (r *Registry) SessionOfConn(conn *Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.conns[conn.UserID] != conn {
		return "", false
	}
	sessionUID, ok := r.sessions[conn.UserID]
	return sessionUID, ok
}

// Send delivers ev to the user's live connection. It is a no-op when the user
// has no connection; when the client is not keeping up the event is dropped.
func (r *Registry) Send(userID int32, ev OutboundEvent) {
	r.mu.RLock()
	conn := r.conns[userID]
	r.mu.RUnlock()

	if conn == nil {
		return
	}
	if !conn.deliver(ev) {
		slog.Warn("dropped outbound event",
			"user_id", userID,
			"kind", ev.Kind)
	}
}

// SendTo delivers ev to conn while it is still the user's current
// connection. Events for a superseded or released connection are dropped, so
// a turn started on one socket never surfaces on its successor.
func (r *Registry) SendTo(conn *Conn, ev OutboundEvent) {
	r.mu.RLock()
	current := r.conns[conn.UserID] == conn
	r.mu.RUnlock()

	if !current {
		return
	}
	if !conn.deliver(ev) {
		slog.Warn("dropped outbound event",
			"user_id", conn.UserID,
			"kind", ev.Kind)
	}
}

// Broadcast delivers ev to every live connection.
func (r *Registry) Broadcast(ev OutboundEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conn := range r.conns {
		if !conn.deliver(ev) {
			slog.Warn("dropped broadcast event",
				"user_id", conn.UserID,
				"kind", ev.Kind)
		}
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll disconnects every live connection and waits until each writer has
// flushed its queue, or ctx ends. It returns the number of writers that did
// not finish in time.
func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[int32]*Conn)
	r.sessions = make(map[int32]string)
	r.mu.Unlock()

	var (
		wg      conc.WaitGroup
		mu      sync.Mutex
		pending int
	)
	for _, conn := range conns {
		wg.Go(func() {
			conn.close()
			select {
			case <-conn.written:
			case <-ctx.Done():
				mu.Lock()
				pending++
				mu.Unlock()
				slog.Warn("connection not flushed before shutdown", "user_id", conn.UserID)
			}
		})
	}
	wg.Wait()
	return pending
}
