package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"candidnotes/internal/common"
	"candidnotes/internal/config"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// inbound is the envelope every client frame arrives in.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outbound struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Connection is one authenticated websocket. Reads happen on the gateway
// goroutine that owns it; all writes go through writeLoop.
type Connection struct {
	id       string
	identity common.Identity
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}

	closeOnce sync.Once
	cfg       config.RealtimeConfig
	log       *logrus.Entry
}

func newConnection(id string, identity common.Identity, conn *websocket.Conn, cfg config.RealtimeConfig, log *logrus.Entry) *Connection {
	return &Connection{
		id:       id,
		identity: identity,
		ws:       conn,
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
		cfg:      cfg,
		log:      log.WithFields(logrus.Fields{"conn_id": id, "user_id": identity.UserID}),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.identity.UserID }

func (c *Connection) Identity() common.Identity { return c.identity }

// Send queues one frame without blocking.
func (c *Connection) Send(event string, payload interface{}) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.WithError(err).Debug("write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.WithError(err).Debug("ping failed")
				c.Close()
				return
			}
		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteWait))
			return
		}
	}
}
