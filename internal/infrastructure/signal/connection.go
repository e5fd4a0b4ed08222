package signal

import (
	"sync"

	"carebridge/internal/core/domain"
	apperrors "carebridge/pkg/errors"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// connection is the domain.Channel of one WebSocket participant.
type connection struct {
	id      domain.ParticipantID
	role    domain.Role
	ws      *websocket.Conn
	limiter *rate.Limiter

	send      chan domain.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(id domain.ParticipantID, role domain.Role, ws *websocket.Conn, buffer int) *connection {
	return &connection{
		id:   id,
		role: role,
		ws:   ws,
		send: make(chan domain.Envelope, buffer),
		done: make(chan struct{}),
	}
}

// Send queues msg for the writer. A full buffer means the peer stopped
// reading; the connection is closed rather than blocking the caller.
func (c *connection) Send(msg domain.Envelope) error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errConnectionClosed
	default:
		c.Close()
		return errSendBufferFull
	}
}

func (c *connection) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *connection) requireRole(role domain.Role) error {
	if c.role != role {
		return apperrors.NewInvalidInputError("only a " + string(role) + " can send this event")
	}
	return nil
}
