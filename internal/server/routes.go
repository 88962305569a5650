// Package server wires HTTP handlers into a gorilla/mux router for the RKchat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures and returns a router with all HTTP routes for srv.
// It sets up handlers for the health check, user status, the WebSocket
// bridge, and the browser test page.
func SetupRoutes(srv *Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/users", UsersHandler(srv.Registry())).Methods(http.MethodGet)
	r.Handle("/ws", NewWebSocketHandler(srv)).Methods(http.MethodGet)
	r.HandleFunc("/test", TestPageHandler).Methods(http.MethodGet)
	return r
}
