// Package httpserver provides the HTTP API over the session pool.
//
// The httpserver package is a thin adapter: it translates authenticated
// HTTP requests into calls on the session pool and execution dispatcher
// and serializes the results as JSON. Every route except the root banner
// requires the configured bearer token.
//
// Endpoints:
//
//	POST   /execute         run code, optionally reusing a session
//	POST   /session/create  pre-warm a session for a language/library set
//	DELETE /session/{id}    destroy a session by id
//	GET    /pool/stats      session counts and pool configuration
//	GET    /languages       supported language names
//	GET    /health          liveness probe
package httpserver
