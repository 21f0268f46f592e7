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

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/httpserver"
	"github.com/isdmx/runbox/logger"
	"github.com/isdmx/runbox/mcpserver"
	"github.com/isdmx/runbox/pool"
	"github.com/isdmx/runbox/provider"
)

func newSessionPool(cfg *config.Config, log *zap.Logger, prov provider.Provider) (*pool.SessionPool, error) {
	return pool.New(log, pool.Config{
		MaxSessionsPerLanguage: cfg.Pool.MaxSessionsPerLanguage,
		SessionTimeout:         cfg.GetSessionTimeout(),
		CleanupInterval:        cfg.GetCleanupInterval(),
	}, prov)
}

func newDispatcher(cfg *config.Config, log *zap.Logger, p *pool.SessionPool, prov provider.Provider) *pool.Dispatcher {
	return pool.NewDispatcher(log, pool.DispatcherConfig{
		DefaultTimeout: cfg.GetDefaultExecTimeout(),
		MaxTimeout:     cfg.GetMaxExecTimeout(),
	}, p, prov)
}

func newHTTPServer(cfg *config.Config, log *zap.Logger, p *pool.SessionPool, d *pool.Dispatcher) *httpserver.Server {
	return httpserver.New(cfg, log, p, d)
}

func newMCPServer(cfg *config.Config, log *zap.Logger, p *pool.SessionPool, d *pool.Dispatcher) (*mcpserver.MCPServer, error) {
	return mcpserver.New(cfg, log, p, d)
}

func main() {
	app := fx.New(
		fx.Provide(
			config.New,
			logger.NewFromConfig,
			provider.NewFromConfig,
			newSessionPool,
			newDispatcher,
			newHTTPServer,
			newMCPServer,
		),

		fx.Invoke(registerLifecycle),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

func registerLifecycle(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	log *zap.Logger,
	p *pool.SessionPool,
	httpSrv *httpserver.Server,
	mcpSrv *mcpserver.MCPServer,
) {
	// Appended first so it stops last: adapters drain before the pool
	// tears down the sessions they hand out.
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			p.Shutdown(ctx)
			return nil
		},
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP server failed", zap.Error(err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: httpSrv.Shutdown,
	})

	switch cfg.Server.MCPTransport {
	case "stdio":
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := mcpSrv.ServeStdio(); err != nil {
						log.Error("MCP stdio server failed", zap.Error(err))
						_ = shutdowner.Shutdown()
					}
				}()
				return nil
			},
		})
	case "http":
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := mcpSrv.ServeHTTP(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("MCP HTTP server failed", zap.Error(err))
						_ = shutdowner.Shutdown()
					}
				}()
				return nil
			},
		})
	case "off":
		log.Info("MCP transport disabled")
	}
}
