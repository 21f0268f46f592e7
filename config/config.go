package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Auth      AuthConfig          `mapstructure:"auth"`
	Pool      PoolConfig          `mapstructure:"pool"`
	Provider  ProviderConfig      `mapstructure:"provider"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	Languages map[string]Language `mapstructure:"languages"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort     int    `mapstructure:"http_port"`
	MCPTransport string `mapstructure:"mcp_transport"`
	MCPHTTPPort  int    `mapstructure:"mcp_http_port"`
}

// AuthConfig holds the bearer token required by the HTTP API.
// The token is read from the AUTH_TOKEN environment variable.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// PoolConfig holds session pool configuration
type PoolConfig struct {
	MaxSessionsPerLanguage int `mapstructure:"max_sessions_per_language"`
	SessionTimeoutSec      int `mapstructure:"session_timeout_sec"`
	CleanupIntervalSec     int `mapstructure:"cleanup_interval_sec"`
}

// ProviderConfig holds sandbox provider configuration
type ProviderConfig struct {
	Backend               string `mapstructure:"backend"`
	EnableLocalBackend    bool   `mapstructure:"enable_local_backend"`
	MemoryMB              int    `mapstructure:"memory_mb"`
	NetworkEnabled        bool   `mapstructure:"network_enabled"`
	CreateTimeoutSec      int    `mapstructure:"create_timeout_sec"`
	DefaultExecTimeoutSec int    `mapstructure:"default_exec_timeout_sec"`
	MaxExecTimeoutSec     int    `mapstructure:"max_exec_timeout_sec"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// Language holds the per-language sandbox settings
type Language struct {
	Image       string            `mapstructure:"image"`
	FileName    string            `mapstructure:"file_name"`
	RunCmd      string            `mapstructure:"run_cmd"`
	InstallCmd  string            `mapstructure:"install_cmd"`
	Environment map[string]string `mapstructure:"environment"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.mcp_transport", "stdio")
	viper.SetDefault("server.mcp_http_port", 8081)
	viper.SetDefault("pool.max_sessions_per_language", 5)
	viper.SetDefault("pool.session_timeout_sec", 300)
	viper.SetDefault("pool.cleanup_interval_sec", 60)
	viper.SetDefault("provider.backend", "docker")
	viper.SetDefault("provider.enable_local_backend", false)
	viper.SetDefault("provider.memory_mb", 512)
	viper.SetDefault("provider.network_enabled", false)
	viper.SetDefault("provider.create_timeout_sec", 120)
	viper.SetDefault("provider.default_exec_timeout_sec", 30)
	viper.SetDefault("provider.max_exec_timeout_sec", 300)
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	// Python defaults
	viper.SetDefault("languages.python.image", "python:3.11-slim")
	viper.SetDefault("languages.python.file_name", "main.py")
	viper.SetDefault("languages.python.run_cmd", "python main.py")
	viper.SetDefault("languages.python.install_cmd", "pip install --no-cache-dir")

	// JavaScript defaults
	viper.SetDefault("languages.javascript.image", "node:20-alpine")
	viper.SetDefault("languages.javascript.file_name", "index.js")
	viper.SetDefault("languages.javascript.run_cmd", "node index.js")
	viper.SetDefault("languages.javascript.install_cmd", "npm install --no-audit --no-fund")

	// Java defaults (single-file source launch)
	viper.SetDefault("languages.java.image", "eclipse-temurin:21")
	viper.SetDefault("languages.java.file_name", "Main.java")
	viper.SetDefault("languages.java.run_cmd", "java Main.java")
	viper.SetDefault("languages.java.install_cmd", "")

	// C++ defaults
	viper.SetDefault("languages.cpp.image", "gcc:13")
	viper.SetDefault("languages.cpp.file_name", "main.cpp")
	viper.SetDefault("languages.cpp.run_cmd", "g++ -std=c++17 -O2 -o app main.cpp && ./app")
	viper.SetDefault("languages.cpp.install_cmd", "")

	// Go defaults
	viper.SetDefault("languages.go.image", "golang:1.23-alpine")
	viper.SetDefault("languages.go.file_name", "main.go")
	viper.SetDefault("languages.go.run_cmd", "go run main.go")
	viper.SetDefault("languages.go.install_cmd", "go get")

	// R defaults
	viper.SetDefault("languages.r.image", "r-base:4.3.2")
	viper.SetDefault("languages.r.file_name", "main.R")
	viper.SetDefault("languages.r.run_cmd", "Rscript main.R")
	viper.SetDefault("languages.r.install_cmd", "")

	// The bearer token comes from the environment, never from the file
	if err := viper.BindEnv("auth.token", "AUTH_TOKEN"); err != nil {
		return nil, fmt.Errorf("error binding auth.token: %w", err)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.HTTPPort <= 0 {
		return fmt.Errorf("server.http_port must be positive, got: %d", c.Server.HTTPPort)
	}

	switch c.Server.MCPTransport {
	case "stdio", "http", "off":
	default:
		return fmt.Errorf("invalid server.mcp_transport: %s, must be 'stdio', 'http' or 'off'", c.Server.MCPTransport)
	}

	if c.Auth.Token == "" {
		return fmt.Errorf("auth.token is not set, export AUTH_TOKEN")
	}

	if c.Pool.MaxSessionsPerLanguage <= 0 {
		return fmt.Errorf("pool.max_sessions_per_language must be positive, got: %d", c.Pool.MaxSessionsPerLanguage)
	}

	if c.Pool.SessionTimeoutSec <= 0 {
		return fmt.Errorf("pool.session_timeout_sec must be positive, got: %d", c.Pool.SessionTimeoutSec)
	}

	if c.Pool.CleanupIntervalSec <= 0 {
		return fmt.Errorf("pool.cleanup_interval_sec must be positive, got: %d", c.Pool.CleanupIntervalSec)
	}

	if c.Provider.MemoryMB <= 0 {
		return fmt.Errorf("provider.memory_mb must be positive, got: %d", c.Provider.MemoryMB)
	}

	if c.Provider.DefaultExecTimeoutSec <= 0 {
		return fmt.Errorf("provider.default_exec_timeout_sec must be positive, got: %d", c.Provider.DefaultExecTimeoutSec)
	}

	if c.Provider.MaxExecTimeoutSec < c.Provider.DefaultExecTimeoutSec {
		return fmt.Errorf("provider.max_exec_timeout_sec must be >= default_exec_timeout_sec, got: %d", c.Provider.MaxExecTimeoutSec)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  c.Provider.EnableLocalBackend, // local only enabled if specifically allowed
	}

	if !supportedBackends[c.Provider.Backend] {
		return fmt.Errorf("unsupported provider.backend: %s", c.Provider.Backend)
	}

	switch c.Logging.Mode {
	case "production", "development":
	default:
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	if len(c.Languages) == 0 {
		return fmt.Errorf("at least one language must be configured")
	}

	for name, lang := range c.Languages {
		if lang.FileName == "" {
			return fmt.Errorf("languages.%s.file_name must be set", name)
		}
		if lang.RunCmd == "" {
			return fmt.Errorf("languages.%s.run_cmd must be set", name)
		}
		if c.Provider.Backend != "local" && lang.Image == "" {
			return fmt.Errorf("languages.%s.image must be set for backend %s", name, c.Provider.Backend)
		}
	}

	return nil
}

// SupportedLanguages returns the configured language names in a stable order
func (c *Config) SupportedLanguages() []string {
	names := make([]string, 0, len(c.Languages))
	for name := range c.Languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetSessionTimeout returns the idle session timeout as a duration
func (c *Config) GetSessionTimeout() time.Duration {
	return time.Duration(c.Pool.SessionTimeoutSec) * time.Second
}

// GetCleanupInterval returns the reaper period as a duration
func (c *Config) GetCleanupInterval() time.Duration {
	return time.Duration(c.Pool.CleanupIntervalSec) * time.Second
}

// GetCreateTimeout returns the sandbox creation timeout as a duration
func (c *Config) GetCreateTimeout() time.Duration {
	return time.Duration(c.Provider.CreateTimeoutSec) * time.Second
}

// GetDefaultExecTimeout returns the default execution timeout as a duration
func (c *Config) GetDefaultExecTimeout() time.Duration {
	return time.Duration(c.Provider.DefaultExecTimeoutSec) * time.Second
}

// GetMaxExecTimeout returns the maximum allowed execution timeout as a duration
func (c *Config) GetMaxExecTimeout() time.Duration {
	return time.Duration(c.Provider.MaxExecTimeoutSec) * time.Second
}
