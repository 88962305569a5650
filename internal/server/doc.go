// Package server implements the RKchat broadcast server: the connection
// registry, broadcast fan-out, per-connection sessions, the TCP listener, and
// an HTTP surface with a WebSocket bridge.
//
// The implementation is organized into specialized files for configuration,
// transports, connections, the registry, broadcasting, sessions, and HTTP
// handlers to keep the codebase maintainable and testable.
package server
