package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/sensorql/pkg/app"
	"github.com/ekaya-inc/sensorql/pkg/config"
	"github.com/ekaya-inc/sensorql/pkg/handlers"
	"github.com/ekaya-inc/sensorql/pkg/mcp"
	"github.com/ekaya-inc/sensorql/pkg/middleware"
)

// Version is set at build time via ldflags
var Version = "dev"

const historyPruneInterval = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"), Version)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Server.Env),
		zap.String("base_url", cfg.Server.BaseURL),
		zap.String("backend", cfg.Backend.Type),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("fallback", cfg.Fallback.Provider),
		zap.Bool("history", cfg.History.Enabled))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.PruneHistory(ctx, cfg.History.Retention, historyPruneInterval)

	mcpServer := mcp.NewSensorServer(cfg.Version, a.Queries, a.Health, a.Catalog, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(a.Health, cfg.Version, cfg.Server.Env, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(a.Queries, a.History, logger).RegisterRoutes(mux)
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      middleware.RequestLogger(logger)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Query.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Server shutdown did not complete", zap.Error(err))
		}
	}()

	defer func() {
		for name, st := range mcpServer.ToolStats() {
			logger.Info("MCP tool usage",
				zap.String("tool", name),
				zap.Int("calls", st.Calls),
				zap.Int("failures", st.Failures),
				zap.Duration("total", st.Total))
		}
	}()

	logger.Info("Starting sensorql",
		zap.String("addr", srv.Addr),
		zap.String("mcp", cfg.Server.BaseURL+"/mcp"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
