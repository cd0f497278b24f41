// Package livebus multiplexes structured messages to observer sessions with
// per-session failure isolation (spec.md §4.6). Generalized from the
// teacher's internal/events.Hub channel-per-subscriber fan-out into the
// session/envelope shape spec.md requires.
package livebus

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message is the LiveBus wire envelope (spec.md §6): every outbound message
// carries a type, a version, the UTC timestamp, and a data payload.
type Message struct {
	Type  string `json:"type"`
	V     int    `json:"v"`
	TSUTC string `json:"ts_utc"`
	Data  any    `json:"data"`
}

const messageVersion = 1

func newMessage(msgType string, data any) Message {
	return Message{
		Type:  msgType,
		V:     messageVersion,
		TSUTC: time.Now().UTC().Format("2006-01-02T15:04:05-07:00"),
		Data:  data,
	}
}

// Session is one attached observer. Messages arrive on Ch; the consumer
// must not close it — call Detach.
type Session struct {
	ID uuid.UUID
	Ch <-chan Message

	send chan Message
}

// LiveBus holds the attached session set. A single mutex guards set
// operations; broadcast never blocks holding the lock — sends are
// non-blocking against each session's buffered channel, per spec.md's "no
// nested awaits while held" constraint.
type LiveBus struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	bufSize  int
}

func New() *LiveBus {
	return &LiveBus{
		sessions: make(map[uuid.UUID]*Session),
		bufSize:  32,
	}
}

// Attach registers a new observer session and returns it along with a
// detach function. The session immediately receives a "hello" handshake
// message per spec.md §6.
func (b *LiveBus) Attach() (*Session, func()) {
	id := uuid.New()
	ch := make(chan Message, b.bufSize)
	sess := &Session{ID: id, Ch: ch, send: ch}

	b.mu.Lock()
	b.sessions[id] = sess
	b.mu.Unlock()

	hello := newMessage("hello", map[string]any{
		"server_time_utc": time.Now().UTC().Format("2006-01-02T15:04:05-07:00"),
		"message":         "connected",
	})
	select {
	case ch <- hello:
	default:
	}

	return sess, func() { b.Detach(id) }
}

// Detach removes a session and closes its channel. Safe to call more than
// once.
func (b *LiveBus) Detach(id uuid.UUID) {
	b.mu.Lock()
	sess, ok := b.sessions[id]
	if ok {
		delete(b.sessions, id)
	}
	b.mu.Unlock()
	if ok {
		close(sess.send)
	}
}

// Broadcast delivers msgType/data to every attached session. A session
// whose buffer is full is treated as dead per spec.md §7 ("observer send
// failure: mark session dead, close quietly") and is detached without
// propagating an error to the caller.
func (b *LiveBus) Broadcast(msgType string, data any) {
	msg := newMessage(msgType, data)

	b.mu.Lock()
	targets := make([]*Session, 0, len(b.sessions))
	for _, s := range b.sessions {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	var dead []uuid.UUID
	for _, s := range targets {
		select {
		case s.send <- msg:
		default:
			dead = append(dead, s.ID)
		}
	}
	for _, id := range dead {
		b.Detach(id)
	}
}

// Count returns the number of currently attached sessions, used by the
// scheduler's "≥1 observer" broadcast gate for processes/listening_ports.
func (b *LiveBus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// CloseAll detaches every session, used on shutdown.
func (b *LiveBus) CloseAll() {
	b.mu.Lock()
	ids := make([]uuid.UUID, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	b.mu.Unlock()
	for _, id := range ids {
		b.Detach(id)
	}
}
