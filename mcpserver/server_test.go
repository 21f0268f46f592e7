package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/pool"
	"github.com/isdmx/runbox/provider"
)

// stubProvider implements provider.Provider without real sandboxes
type stubProvider struct {
	created int
}

func (s *stubProvider) Create(_ context.Context, language string) (provider.Handle, error) {
	s.created++
	return provider.Handle{Language: language, Ref: fmt.Sprintf("stub-%d", s.created)}, nil
}

func (*stubProvider) Run(_ context.Context, _ provider.Handle, _ string) (provider.RunResult, error) {
	return provider.RunResult{}, nil
}

func (*stubProvider) InstallLibraries(_ context.Context, _ provider.Handle, _ []string) (provider.InstallResult, error) {
	return provider.InstallResult{}, nil
}

func (*stubProvider) Destroy(_ context.Context, _ provider.Handle) error {
	return nil
}

// stubExecutor implements Executor and records the last request
type stubExecutor struct {
	lastRequest pool.ExecuteRequest
	result      pool.ExecuteResult
	err         error
}

func (s *stubExecutor) Execute(_ context.Context, req pool.ExecuteRequest) (pool.ExecuteResult, error) {
	s.lastRequest = req
	return s.result, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPPort: 8080, MCPTransport: "stdio", MCPHTTPPort: 8081},
		Auth:   config.AuthConfig{Token: "test-token"},
		Pool: config.PoolConfig{
			MaxSessionsPerLanguage: 5,
			SessionTimeoutSec:      300,
			CleanupIntervalSec:     60,
		},
		Provider: config.ProviderConfig{
			Backend:               "docker",
			MemoryMB:              512,
			DefaultExecTimeoutSec: 30,
			MaxExecTimeoutSec:     300,
		},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
		Languages: map[string]config.Language{
			"python": {Image: "python:3.11-slim", FileName: "main.py", RunCmd: "python main.py"},
		},
	}
}

func newTestServer(t *testing.T, executor Executor) (*MCPServer, *pool.SessionPool) {
	t.Helper()
	cfg := testConfig()
	p, err := pool.New(zaptest.NewLogger(t), pool.Config{
		MaxSessionsPerLanguage: cfg.Pool.MaxSessionsPerLanguage,
		SessionTimeout:         cfg.GetSessionTimeout(),
		CleanupInterval:        cfg.GetCleanupInterval(),
	}, &stubProvider{})
	require.NoError(t, err)
	t.Cleanup(func() { p.Shutdown(context.Background()) })

	s, err := New(cfg, zaptest.NewLogger(t), p, executor)
	require.NoError(t, err)
	return s, p
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: args},
	}
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewMCPServer(t *testing.T) {
	s, p := newTestServer(t, &stubExecutor{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.Equal(t, p, s.pool)
	assert.NotNil(t, s.GetMCPServer())
}

func TestHandleExecuteCode(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		executor := &stubExecutor{
			result: pool.ExecuteResult{Success: true, Stdout: "42\n", SessionID: "sess-1"},
		}
		s, _ := newTestServer(t, executor)

		result, err := s.handleExecuteCode(context.Background(), toolRequest(map[string]any{
			"code":       "print(42)",
			"language":   "python",
			"libraries":  []any{"numpy"},
			"timeout":    60,
			"session_id": "sess-1",
		}))
		require.NoError(t, err)
		require.False(t, result.IsError)

		assert.Equal(t, "print(42)", executor.lastRequest.Code)
		assert.Equal(t, []string{"numpy"}, executor.lastRequest.Libraries)
		assert.Equal(t, 60*time.Second, executor.lastRequest.Timeout)
		assert.Equal(t, "sess-1", executor.lastRequest.SessionID)

		var decoded pool.ExecuteResult
		require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &decoded))
		assert.True(t, decoded.Success)
		assert.Equal(t, "42\n", decoded.Stdout)
	})

	t.Run("MissingCode", func(t *testing.T) {
		s, _ := newTestServer(t, &stubExecutor{})
		_, err := s.handleExecuteCode(context.Background(), toolRequest(map[string]any{}))
		require.Error(t, err)
	})

	t.Run("BlankCode", func(t *testing.T) {
		s, _ := newTestServer(t, &stubExecutor{})
		result, err := s.handleExecuteCode(context.Background(), toolRequest(map[string]any{"code": "   "}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("UnsupportedLanguage", func(t *testing.T) {
		s, _ := newTestServer(t, &stubExecutor{})
		result, err := s.handleExecuteCode(context.Background(), toolRequest(map[string]any{
			"code":     "print(1)",
			"language": "cobol",
		}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("SystemFaultIsToolError", func(t *testing.T) {
		s, _ := newTestServer(t, &stubExecutor{err: errors.New("daemon unreachable")})
		result, err := s.handleExecuteCode(context.Background(), toolRequest(map[string]any{"code": "print(1)"}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, textContent(t, result), "daemon unreachable")
	})

	t.Run("DefaultTimeoutComesFromConfig", func(t *testing.T) {
		executor := &stubExecutor{}
		s, _ := newTestServer(t, executor)
		_, err := s.handleExecuteCode(context.Background(), toolRequest(map[string]any{"code": "print(1)"}))
		require.NoError(t, err)
		assert.Equal(t, 30*time.Second, executor.lastRequest.Timeout)
	})
}

func TestHandleSessionTools(t *testing.T) {
	s, p := newTestServer(t, &stubExecutor{})
	ctx := context.Background()

	result, err := s.handleCreateSession(ctx, toolRequest(map[string]any{
		"language":  "python",
		"libraries": "numpy, pandas",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var created struct {
		SessionID string   `json:"session_id"`
		Language  string   `json:"language"`
		Libraries []string `json:"libraries"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &created))
	assert.NotEmpty(t, created.SessionID)
	assert.Equal(t, "python", created.Language)
	assert.Equal(t, []string{"numpy", "pandas"}, created.Libraries)
	assert.Equal(t, 1, p.Stats().TotalSessions)

	t.Run("CloseExisting", func(t *testing.T) {
		result, err := s.handleCloseSession(ctx, toolRequest(map[string]any{"session_id": created.SessionID}))
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Equal(t, 0, p.Stats().TotalSessions)
	})

	t.Run("CloseUnknown", func(t *testing.T) {
		result, err := s.handleCloseSession(ctx, toolRequest(map[string]any{"session_id": created.SessionID}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("CloseBlankID", func(t *testing.T) {
		result, err := s.handleCloseSession(ctx, toolRequest(map[string]any{"session_id": "  "}))
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestInfoTools(t *testing.T) {
	s, _ := newTestServer(t, &stubExecutor{})
	ctx := context.Background()

	t.Run("SupportedLanguages", func(t *testing.T) {
		result, err := s.handleSupportedLanguages(ctx, toolRequest(nil))
		require.NoError(t, err)
		assert.Contains(t, textContent(t, result), "python")
	})

	t.Run("HealthStatus", func(t *testing.T) {
		result, err := s.handleHealthStatus(ctx, toolRequest(nil))
		require.NoError(t, err)
		assert.Contains(t, textContent(t, result), "healthy")
	})

	t.Run("PoolStats", func(t *testing.T) {
		result, err := s.handlePoolStats(ctx, toolRequest(nil))
		require.NoError(t, err)

		var stats pool.Stats
		require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &stats))
		assert.Equal(t, 5, stats.Config.MaxSessionsPerLanguage)
	})
}

func TestParseLibraries(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  []string
	}{
		{"Nil", nil, nil},
		{"StringSlice", []string{"numpy", "pandas"}, []string{"numpy", "pandas"}},
		{"AnySlice", []any{"numpy", "pandas"}, []string{"numpy", "pandas"}},
		{"JSONString", `["numpy", "pandas"]`, []string{"numpy", "pandas"}},
		{"CommaSeparated", "numpy, pandas", []string{"numpy", "pandas"}},
		{"SingleName", "numpy", []string{"numpy"}},
		{"EmptyString", "  ", nil},
		{"BlankEntriesDropped", []any{"numpy", "", "  "}, []string{"numpy"}},
		{"UnsupportedType", 42, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLibraries(tt.input))
		})
	}
}
