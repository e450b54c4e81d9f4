package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"livequiz/internal/protocol"
)

// link is one physical websocket connection. A client replaces its link on
// every reconnect; requests in flight on a dead link fail.
type link struct {
	id   uint64
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}

	closeOnce sync.Once
	err       error
}

func newLink(id uint64, conn *websocket.Conn) *link {
	return &link{
		id:   id,
		conn: conn,
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (l *link) close(err error) {
	l.closeOnce.Do(func() {
		l.err = err
		close(l.done)
		_ = l.conn.Close()
	})
}

// writePump serializes writes and keeps the connection alive with pings.
func (c *Client) writePump(l *link) {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-l.out:
			_ = l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := l.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Error().Err(err).Uint64("link", l.id).Msg("failed to write frame")
				c.linkLost(l, err)
				return
			}
		case <-ticker.Chan():
			_ = l.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Uint64("link", l.id).Msg("failed to send ping")
				c.linkLost(l, err)
				return
			}
		case <-l.done:
			return
		}
	}
}

// readPump resolves acks and queues every other frame for ordered dispatch.
func (c *Client) readPump(l *link) {
	l.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = l.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	l.conn.SetPongHandler(func(string) error {
		return l.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Uint64("link", l.id).Msg("unexpected websocket close")
			}
			c.linkLost(l, err)
			return
		}
		_ = l.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		var frame protocol.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Warn().Err(err).Uint64("link", l.id).Msg("dropping unparseable frame")
			continue
		}
		if frame.Type == protocol.FrameAck {
			c.resolve(frame)
			continue
		}
		select {
		case c.queue <- item{frame: &frame}:
		case <-l.done:
			return
		case <-c.done:
			return
		}
	}
}

// write queues an encoded frame on the link.
func (l *link) write(msg []byte, abort <-chan struct{}) error {
	select {
	case l.out <- msg:
		return nil
	case <-l.done:
		return errLinkLost
	case <-abort:
		return errAborted
	}
}
