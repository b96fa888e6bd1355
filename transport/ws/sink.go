package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"gameroom-lab/domain/event"
)

// ConnSink bridges the fanout to one websocket connection. Events are
// buffered and written by a single goroutine, because a websocket
// connection allows only one concurrent writer. When the buffer is full
// the event is dropped rather than blocking the fanout; the client state
// converges on the next full-state broadcast.
type ConnSink struct {
	conn   *websocket.Conn
	buffer chan event.DomainEvent
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger
}

func NewConnSink(conn *websocket.Conn, bufferSize int, log *slog.Logger) *ConnSink {
	s := &ConnSink{
		conn:   conn,
		buffer: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
		log:    log,
	}
	go s.writeLoop()
	return s
}

func (s *ConnSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case s.buffer <- e:
	case <-s.done:
	default:
		s.log.Warn("Connection buffer full, dropping event", "event", e.Type())
	}
	return nil
}

func (s *ConnSink) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.buffer:
			if err := s.conn.WriteJSON(outEnvelope{Type: e.Type(), Payload: e}); err != nil {
				s.log.Debug("Write to connection failed", "event", e.Type(), "error", err)
				return
			}
		}
	}
}

// Close stops the writer goroutine. The websocket itself is closed by the
// handler owning the read loop.
func (s *ConnSink) Close() {
	s.once.Do(func() { close(s.done) })
}
