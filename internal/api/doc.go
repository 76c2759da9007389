// Package api implements the HTTP REST API and WebSocket server for Runtrack Core.
//
// This package provides:
//   - REST endpoints for device CRUD, runtime state, and session history
//   - WebSocket hub for real-time runtime event broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces and the runtime engine's
// persisted state. All runtime data is read-only through the API: the
// engine owns the state rows and session history, and the API only
// reads them. Device registration is the one write surface, guarded by
// the admin role.
//
// Live updates flow the other way: the event dispatcher broadcasts every
// delivered runtime event through the WebSocket hub, so clients
// subscribed to the "events" channel see session starts, ends, and
// connectivity changes as they happen.
//
// # Security
//
// Authentication uses signed HS256 JWT tokens issued by POST /auth/login
// against the user store. WebSocket connections use single-use tickets
// to prevent token leakage in URLs; the ticket carries the requesting
// user's identity onto the connection.
package api
