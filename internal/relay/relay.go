// Package relay implements a two-role message broker. Each role has an
// inbound queue; sends target the opposite role and broadcast to its live
// connections, queueing when nobody is connected.
package relay

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role is one of exactly two fixed relay identities.
type Role string

const (
	RoleAgent       Role = "agent"
	RoleCounterpart Role = "counterpart"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAgent || r == RoleCounterpart
}

// Other returns the opposite role.
func (r Role) Other() Role {
	if r == RoleAgent {
		return RoleCounterpart
	}
	return RoleAgent
}

// MessageType enumerates the four wire message kinds.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeStatus   MessageType = "status"
	TypeQuery    MessageType = "query"
	TypeResponse MessageType = "response"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeStatus, TypeQuery, TypeResponse:
		return true
	}
	return false
}

// Message is the relay wire format, shared by the socket and long-poll
// channels.
type Message struct {
	ID        string      `json:"id"`
	From      Role        `json:"from"`
	Type      MessageType `json:"type"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage builds a message with a fresh id and current timestamp.
func NewMessage(from Role, t MessageType, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		From:      from,
		Type:      t,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Delivery reports how a send was handled.
type Delivery struct {
	Delivered int  `json:"delivered"` // live connections reached
	Queued    bool `json:"queued"`    // true when nobody was connected
}

var (
	// ErrInvalidRole rejects connections and sends with an unknown role.
	ErrInvalidRole = errors.New("invalid relay role")

	// ErrInvalidType rejects sends with an unknown message type.
	ErrInvalidType = errors.New("invalid message type")

	// ErrRoleFull rejects connections over the per-role cap.
	ErrRoleFull = errors.New("role connection cap reached")
)

// CloseRoleFull is the websocket close code sent to over-cap connections.
const CloseRoleFull = 4029
