package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mindpalace/backend/pkg/config"
	"mindpalace/backend/pkg/di"
	"mindpalace/backend/pkg/grpcsrv"
	"mindpalace/backend/pkg/logger"
	"mindpalace/backend/pkg/router"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting realtime gateway", "version", router.Version, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := config.OpenDB(cfg)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	container, err := di.New(ctx, cfg, db, log, di.Options{})
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	container.Start(ctx)

	r := router.New(ctx, container)
	r.SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()

	if cfg.Server.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			log.LogError(err, "Failed to listen for gRPC health", "port", cfg.Server.GRPCPort)
			os.Exit(1)
		}
		go func() {
			if err := grpcsrv.New(container.Health, 5*time.Second, log).Serve(ctx, lis); err != nil {
				log.LogError(err, "gRPC health server stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	if err := container.Close(shutdownCtx); err != nil {
		log.LogError(err, "Failed to release resources")
	}

	log.Info("Server exited gracefully")
}
