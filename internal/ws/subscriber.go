package ws

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// Subscriber is one authenticated websocket connection. It lives from
// handshake to disconnect, error, or hub shutdown.
type Subscriber struct {
	id           uuid.UUID
	subject      string
	conn         *websocket.Conn
	send         chan Message
	createdAt    time.Time
	lastDelivery atomic.Int64
}

func NewSubscriber(conn *websocket.Conn, subject string) *Subscriber {
	return &Subscriber{
		id:        uuid.New(),
		subject:   subject,
		conn:      conn,
		send:      make(chan Message, sendBuffer),
		createdAt: time.Now(),
	}
}

func (s *Subscriber) ID() uuid.UUID { return s.id }

// Subject is the authorized principal's email from the handshake.
func (s *Subscriber) Subject() string { return s.subject }

func (s *Subscriber) markDelivery() {
	s.lastDelivery.Store(time.Now().UnixNano())
}

// readPump consumes inbound frames until the connection dies. The only
// client-initiated message is ping, answered with pong on the send
// channel so it serializes with broadcasts.
func (s *Subscriber) readPump(hub *Hub) {
	defer func() {
		hub.Drop(s, "read closed")
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("subscriber read error", "subscriber_id", s.id, "error", err)
			}
			return
		}

		if msg.Type == MessageTypePing {
			select {
			case s.send <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

// writePump serializes all frames to the connection: broadcast
// snapshots, pong replies, and protocol-level keepalive pings. A
// closed send channel (hub drop or shutdown) ends it with a close
// frame.
func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
