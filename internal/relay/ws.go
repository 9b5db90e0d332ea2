package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// HandshakeTimeout bounds the initial role announcement. This is the only
// timeout in the relay.
const HandshakeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handshake is the first frame a connecting client sends.
type handshake struct {
	Role Role `json:"role"`
}

// ServeWS upgrades an HTTP request to a relay socket. The role comes from
// the ?role query parameter or, absent that, a handshake frame. Queued
// messages for the role are flushed on attach.
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	role := Role(r.URL.Query().Get("role"))
	if role == "" {
		conn.SetReadDeadline(time.Now().Add(HandshakeTimeout))
		var hs handshake
		if err := conn.ReadJSON(&hs); err != nil {
			conn.Close()
			return
		}
		role = hs.Role
		conn.SetReadDeadline(time.Time{})
	}

	if !role.Valid() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown role"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	// Attach flushes anything queued while the role was offline.
	if err := b.Attach(role, conn); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseRoleFull, "connection cap reached"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go b.readLoop(role, conn)
}

// readLoop consumes inbound frames until the connection dies. Inbound
// frames are sends from this role to the other.
func (b *Broker) readLoop(role Role, conn *websocket.Conn) {
	defer func() {
		b.Detach(role, conn)
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if !msg.Type.Valid() {
			continue
		}
		b.Send(role, msg.Type, msg.Content)
	}
}

// sendRequest is the long-poll/HTTP send body.
type sendRequest struct {
	From    Role        `json:"from"`
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

// ServeSend handles POST sends for hosts that cannot hold a socket open.
func (b *Broker) ServeSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d, err := b.Send(req.From, req.Type, req.Content)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d)
}

// ServePoll handles the long-poll channel: it waits up to ?wait (default
// 30s) for queued messages, draining them on delivery.
func (b *Broker) ServePoll(w http.ResponseWriter, r *http.Request) {
	role := Role(r.URL.Query().Get("role"))
	if !role.Valid() {
		http.Error(w, ErrInvalidRole.Error(), http.StatusBadRequest)
		return
	}

	wait := 30 * time.Second
	if v := r.URL.Query().Get("wait"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			wait = d
		}
	}

	deadline := time.Now().Add(wait)
	for {
		msgs, _ := b.CheckMessages(role)
		if len(msgs) > 0 || time.Now().After(deadline) {
			w.Header().Set("Content-Type", "application/json")
			if msgs == nil {
				msgs = []Message{}
			}
			json.NewEncoder(w).Encode(msgs)
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
}
