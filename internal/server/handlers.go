// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, registry status, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Status is the JSON body served by UsersHandler.
type Status struct {
	Connections int      `json:"connections"`
	UserCount   int      `json:"user_count"`
	Users       []string `json:"users"`
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "RKchat server is running!")
}

// UsersHandler reports the connection count and registered usernames.
func UsersHandler(registry *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		status := Status{
			Connections: registry.Count(),
			UserCount:   registry.UserCount(),
			Users:       registry.Usernames(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logrus.WithError(err).Warn("Error writing status response")
		}
	}
}

// WebSocketHandler upgrades browser connections and attaches them to the chat
// server as ordinary sessions.
type WebSocketHandler struct {
	srv      *Server
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler whose upgrades are checked against the
// server's configured origins.
func NewWebSocketHandler(srv *Server) *WebSocketHandler {
	policy := newOriginPolicy(srv.Config().AllowedOrigins, srv.Logger())
	return &WebSocketHandler{
		srv: srv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
	}
}

// ServeHTTP upgrades the request and hands the connection to the server.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.srv.Logger().WithError(err).WithField("conn", r.RemoteAddr).Warn("WebSocket upgrade failed")
		return
	}

	logger := h.srv.Logger().WithField("conn", r.RemoteAddr)
	transport := NewWebSocketTransport(conn, r.RemoteAddr, h.srv.Config().MaxMessageSize, logger)
	h.srv.Attach(transport)
}

// TestPageHandler serves an HTML page for trying the chat from a browser over
// the WebSocket bridge.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		logrus.WithError(err).Warn("Error writing HTML response")
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>RKchat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>RKchat Test</h1>
    <div id="status">Disconnected</div>
    <div>
        <input type="text" id="nameInput" placeholder="Username">
        <button onclick="register()">Register</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="chat()">Send</button>
    </div>
    <div id="messages"></div>
    <script>
        const messages = document.getElementById('messages');
        const status = document.getElementById('status');
        const ws = new WebSocket('ws://' + location.host + '/ws');

        function addMessage(text) {
            const el = document.createElement('div');
            el.textContent = text;
            messages.appendChild(el);
            messages.scrollTop = messages.scrollHeight;
        }

        ws.onopen = () => { status.textContent = 'Connected'; };
        ws.onclose = () => { status.textContent = 'Disconnected'; };
        ws.onmessage = (event) => addMessage(event.data);

        function send(tag, input) {
            const value = document.getElementById(input).value.trim();
            if (value && ws.readyState === WebSocket.OPEN) {
                ws.send(tag + ':' + value);
                document.getElementById(input).value = '';
            }
        }
        function register() { send('1', 'nameInput'); }
        function chat() { send('0', 'messageInput'); }
    </script>
</body>
</html>`
