package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/pool"
)

// Executor is the execution boundary the MCP layer depends on,
// implemented by pool.Dispatcher
type Executor interface {
	Execute(ctx context.Context, req pool.ExecuteRequest) (pool.ExecuteResult, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	pool      *pool.SessionPool
	executor  Executor
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sessionPool *pool.SessionPool, executor Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		pool:     sessionPool,
		executor: executor,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("server.mcp_transport", cfg.Server.MCPTransport),
		zap.String("provider.backend", cfg.Provider.Backend),
		zap.Int("pool.max_sessions_per_language", cfg.Pool.MaxSessionsPerLanguage),
		zap.Int("pool.session_timeout_sec", cfg.Pool.SessionTimeoutSec),
		zap.Int("pool.cleanup_interval_sec", cfg.Pool.CleanupIntervalSec),
		zap.Strings("languages", cfg.SupportedLanguages()),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("runbox", "Remote code execution with pooled sandbox sessions")

	s.registerTools()

	return s, nil
}

func (s *MCPServer) registerTools() {
	executeTool := mcp.Tool{
		Name: "execute_code",
		Description: "Execute code in a sandboxed environment. Use the 'libraries' parameter " +
			"to install packages instead of running installer commands in the code. Reuse the " +
			"same session_id for consecutive executions to keep state between runs.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "The code to execute",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Programming language (default: python)",
					"enum":        s.config.SupportedLanguages(),
				},
				"libraries": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Libraries to install into the session (e.g. [\"numpy\", \"pandas\"])",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": "Execution timeout in seconds",
				},
				"session_id": map[string]any{
					"type":        "string",
					"description": "Session ID for session persistence (reuse unless language or libraries change)",
				},
			},
			Required: []string{"code"},
		},
	}
	s.mcpServer.AddTool(executeTool, s.handleExecuteCode)

	createSessionTool := mcp.Tool{
		Name:        "create_session",
		Description: "Create a new execution session with optional pre-installed libraries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Programming language for the session (default: python)",
					"enum":        s.config.SupportedLanguages(),
				},
				"libraries": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Libraries to pre-install",
				},
			},
		},
	}
	s.mcpServer.AddTool(createSessionTool, s.handleCreateSession)

	closeSessionTool := mcp.Tool{
		Name:        "close_session",
		Description: "Close an execution session and free its sandbox",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": map[string]any{
					"type":        "string",
					"description": "The session ID to close",
				},
			},
			Required: []string{"session_id"},
		},
	}
	s.mcpServer.AddTool(closeSessionTool, s.handleCloseSession)

	languagesTool := mcp.Tool{
		Name:        "get_supported_languages",
		Description: "Get the list of supported programming languages",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}
	s.mcpServer.AddTool(languagesTool, s.handleSupportedLanguages)

	statsTool := mcp.Tool{
		Name:        "get_pool_stats",
		Description: "Get session pool statistics",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}
	s.mcpServer.AddTool(statsTool, s.handlePoolStats)

	healthTool := mcp.Tool{
		Name:        "get_health_status",
		Description: "Check the health status of the code execution service",
		InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]any{}},
	}
	s.mcpServer.AddTool(healthTool, s.handleHealthStatus)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}
	if strings.TrimSpace(code) == "" {
		return errorResult("code cannot be empty"), nil
	}

	language := request.GetString("language", "python")
	if _, ok := s.config.Languages[language]; !ok {
		return errorResult(fmt.Sprintf("unsupported language: %s", language)), nil
	}

	libraries := parseLibraries(request.GetArguments()["libraries"])
	timeoutSec := request.GetInt("timeout", s.config.Provider.DefaultExecTimeoutSec)
	sessionID := request.GetString("session_id", "")

	s.logger.Info("code execution requested",
		zap.String("language", language),
		zap.Strings("libraries", libraries),
		zap.String("session_id", sessionID))

	result, err := s.executor.Execute(ctx, pool.ExecuteRequest{
		Language:  language,
		Code:      code,
		Libraries: libraries,
		Timeout:   time.Duration(timeoutSec) * time.Second,
		SessionID: sessionID,
	})
	if err != nil {
		s.logger.Error("execution request failed",
			zap.String("language", language),
			zap.Error(err))
		return errorResult(fmt.Sprintf("execution failed: %v", err)), nil
	}

	return jsonResult(result)
}

// handleCreateSession handles the create_session tool
func (s *MCPServer) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	language := request.GetString("language", "python")
	if _, ok := s.config.Languages[language]; !ok {
		return errorResult(fmt.Sprintf("unsupported language: %s", language)), nil
	}
	libraries := parseLibraries(request.GetArguments()["libraries"])

	session, err := s.pool.Acquire(ctx, language, libraries, "")
	if err != nil {
		s.logger.Error("session creation failed",
			zap.String("language", language),
			zap.Error(err))
		return errorResult(fmt.Sprintf("session creation failed: %v", err)), nil
	}

	libs := session.Libraries
	if libs == nil {
		libs = []string{}
	}
	return jsonResult(map[string]any{
		"session_id": session.ID,
		"language":   session.Language,
		"libraries":  libs,
		"created_at": session.CreatedAt,
	})
}

// handleCloseSession handles the close_session tool
func (s *MCPServer) handleCloseSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id parameter is required: %w", err)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errorResult("session ID cannot be empty"), nil
	}

	if !s.pool.CloseByID(ctx, sessionID) {
		return errorResult(fmt.Sprintf("session %s not found", sessionID)), nil
	}
	return jsonResult(map[string]string{"message": fmt.Sprintf("session %s closed", sessionID)})
}

// handleSupportedLanguages handles the get_supported_languages tool
func (s *MCPServer) handleSupportedLanguages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string][]string{"languages": s.config.SupportedLanguages()})
}

// handlePoolStats handles the get_pool_stats tool
func (s *MCPServer) handlePoolStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.pool.Stats())
}

// handleHealthStatus handles the get_health_status tool
func (s *MCPServer) handleHealthStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]string{"status": "healthy"})
}

// parseLibraries normalizes the libraries argument. Clients send it as a
// JSON array, a JSON-encoded string, or a comma separated string.
func parseLibraries(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return cleanLibraryList(v)
	case []any:
		libs := make([]string, 0, len(v))
		for _, item := range v {
			libs = append(libs, fmt.Sprintf("%v", item))
		}
		return cleanLibraryList(libs)
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		var parsed []string
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			return cleanLibraryList(parsed)
		}
		return cleanLibraryList(strings.Split(v, ","))
	default:
		return nil
	}
}

func cleanLibraryList(libs []string) []string {
	cleaned := make([]string, 0, len(libs))
	for _, lib := range libs {
		if trimmed := strings.TrimSpace(lib); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.MCPHTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
