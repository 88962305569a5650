// Package server bridges browser WebSocket clients into the chat registry,
// handling upgrades, keepalive pings, and text frame transport.
package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsWriteWait  = 10 * time.Second
)

// wsTransport carries one chat message per WebSocket text frame.
type wsTransport struct {
	conn      *websocket.Conn
	addr      string
	logger    logrus.FieldLogger
	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketTransport wraps an upgraded connection and starts its keepalive
// pinger. addr is the peer address as reported by the HTTP request.
func NewWebSocketTransport(conn *websocket.Conn, addr string, maxSize int64, logger logrus.FieldLogger) Transport {
	t := &wsTransport{
		conn:   conn,
		addr:   addr,
		logger: logger,
		done:   make(chan struct{}),
	}
	conn.SetReadLimit(maxSize)
	t.setupReadConnection()
	go t.pingLoop()
	return t
}

// setupReadConnection configures read deadlines and the pong handler.
func (t *wsTransport) setupReadConnection() {
	if err := t.conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		t.logger.WithError(err).Warn("Error setting initial read deadline")
	}
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
}

func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			// WriteControl may run concurrently with WriteMessage.
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				if !isExpectedCloseError(err) {
					t.logger.WithError(err).Warn("Error writing ping message")
				}
				return
			}
		}
	}
}

func (t *wsTransport) ReadMessage() (string, error) {
	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (t *wsTransport) WriteMessage(message string) error {
	return t.conn.WriteMessage(websocket.TextMessage, []byte(message))
}

func (t *wsTransport) SetWriteDeadline(deadline time.Time) error {
	return t.conn.SetWriteDeadline(deadline)
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}

func (t *wsTransport) RemoteAddr() string {
	return t.addr
}
