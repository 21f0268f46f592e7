// Package main is the entry point for the runbox server.
//
// Runbox exposes remote code execution backed by a bounded pool of warm
// sandbox sessions. The server runs an authenticated HTTP API and,
// optionally, an MCP server over stdio or HTTP, both thin adapters over
// the same session pool and execution dispatcher.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
