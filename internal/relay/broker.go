package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultMaxConns is the per-role connection cap.
const DefaultMaxConns = 2

// Broker queues and broadcasts messages between the two roles. Unlike the
// storage engine, the broker is genuinely concurrent: connections come and
// go on independent goroutines.
type Broker struct {
	mu       sync.Mutex
	conns    map[Role]map[*websocket.Conn]bool
	queues   map[Role][]Message
	maxConns int
	log      *slog.Logger
}

// NewBroker creates a broker. maxConns <= 0 uses DefaultMaxConns.
func NewBroker(maxConns int, log *slog.Logger) *Broker {
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		conns: map[Role]map[*websocket.Conn]bool{
			RoleAgent:       {},
			RoleCounterpart: {},
		},
		queues: map[Role][]Message{
			RoleAgent:       nil,
			RoleCounterpart: nil,
		},
		maxConns: maxConns,
		log:      log,
	}
}

// Attach admits a connection for a role and flushes the role's queued
// messages to it. Dead connections for the same role are pruned first; an
// over-cap connection is rejected with ErrRoleFull and existing connections
// are untouched. The flush runs under the broker lock: all writes to a
// connection happen under b.mu, so a concurrent Send can never race it.
// Messages that fail to write go back to the head of the queue.
func (b *Broker) Attach(role Role, conn *websocket.Conn) error {
	if !role.Valid() {
		return ErrInvalidRole
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneLocked(role)

	if len(b.conns[role]) >= b.maxConns {
		return ErrRoleFull
	}
	b.conns[role][conn] = true

	queued := b.queues[role]
	b.queues[role] = nil
	for i, msg := range queued {
		if err := conn.WriteJSON(msg); err != nil {
			b.queues[role] = queued[i:]
			conn.Close()
			delete(b.conns[role], conn)
			b.log.Warn("relay flush failed", "role", string(role), "requeued", len(queued)-i)
			return nil
		}
	}

	b.log.Info("relay connection attached", "role", string(role), "live", len(b.conns[role]), "flushed", len(queued))
	return nil
}

// Detach removes a connection.
func (b *Broker) Detach(role Role, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns[role], conn)
}

// pruneLocked drops connections that fail a ping. Called under b.mu on each
// new connection attempt for the role; there is no background sweep.
func (b *Broker) pruneLocked(role Role) {
	for conn := range b.conns[role] {
		deadline := time.Now().Add(time.Second)
		if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
			conn.Close()
			delete(b.conns[role], conn)
			b.log.Debug("pruned dead relay connection", "role", string(role))
		}
	}
}

// Send enqueues a message for the opposite role and broadcasts it to that
// role's live connections fire-and-forget. Delivery failure to a
// disconnected role never surfaces as an error; the message is queued and
// the delivery status says so.
func (b *Broker) Send(from Role, t MessageType, content string) (Delivery, error) {
	if !from.Valid() {
		return Delivery{}, ErrInvalidRole
	}
	if !t.Valid() {
		return Delivery{}, ErrInvalidType
	}

	msg := NewMessage(from, t, content)
	target := from.Other()

	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for conn := range b.conns[target] {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(b.conns[target], conn)
			continue
		}
		delivered++
	}

	if delivered == 0 {
		b.queues[target] = append(b.queues[target], msg)
		return Delivery{Queued: true}, nil
	}
	return Delivery{Delivered: delivered}, nil
}

// CheckMessages drains the role's queue atomically: a second immediate call
// returns empty.
func (b *Broker) CheckMessages(role Role) ([]Message, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.queues[role]
	b.queues[role] = nil
	return msgs, nil
}

// QueueLen reports the pending message count for a role.
func (b *Broker) QueueLen(role Role) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[role])
}

// LiveConns reports the live connection count for a role.
func (b *Broker) LiveConns(role Role) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns[role])
}
