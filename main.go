package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speechd/config"
	"speechd/internal/bootstrap"
	"speechd/internal/logger"
	"speechd/internal/router"
)

func main() {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.json"
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	lcfg := cfg.Logging
	logger.InitFromConfig(
		lcfg.Level,
		lcfg.Format,
		lcfg.Output,
		lcfg.FilePath,
		lcfg.MaxSize,
		lcfg.MaxBackups,
		lcfg.MaxAge,
		lcfg.Compress,
	)
	logger.Info("configuration_loaded", "config", cfg.PrintCompact())

	deps, err := bootstrap.InitApp(cfg, configFile)
	if err != nil {
		logger.Error("failed_to_initialize_app_dependencies", "error", err)
		os.Exit(1)
	}

	r := router.NewRouter(deps)

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     deps.RateLimiter.Middleware(r),
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting_down_server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("server_forced_to_shutdown", "error", err)
		}
		deps.HotReloadMgr.Stop()
		if err := deps.VADPool.Close(); err != nil {
			logger.Error("vad_pool_close_failed", "error", err)
		}
		if err := deps.Store.Close(); err != nil {
			logger.Error("store_close_failed", "error", err)
		}
		if err := logger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", err)
		}
		logger.Info("server_shutdown_complete")
	}()

	logger.Info("server_started",
		"addr", cfg.Addr(),
		"websocket", fmt.Sprintf("ws://%s/ws/transcribe", cfg.Addr()),
		"health", fmt.Sprintf("http://%s/health", cfg.Addr()),
	)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server_error", "error", err)
		os.Exit(1)
	}
}
