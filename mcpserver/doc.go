// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package is a thin adapter exposing the session pool and
// execution dispatcher as MCP tools using the mark3labs/mcp-go library:
// execute_code, create_session, close_session, get_supported_languages,
// get_pool_stats and get_health_status.
//
// The server supports both stdio and streamable HTTP transports as
// configured by the application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, sessionPool, dispatcher)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
