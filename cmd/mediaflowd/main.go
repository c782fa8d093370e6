package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/adapters"
	"github.com/feitianbubu/mediaflow/backend/httpexec"
	"github.com/feitianbubu/mediaflow/config"
	"github.com/feitianbubu/mediaflow/server"
	"github.com/feitianbubu/mediaflow/taskmanager"
	"github.com/feitianbubu/mediaflow/workspace"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	backend := httpexec.New(
		httpexec.WithTimeout(cfg.Backend.Timeout),
		httpexec.WithLogger(logger.Named("backend")),
	)

	images := mediaflow.NewImageRegistry(logger)
	videos := mediaflow.NewVideoRegistry(logger)
	adapters.RegisterDefaults(backend, images, videos)
	texts := mediaflow.NewTextRegistry(logger)
	adapters.RegisterTextDefaults(backend, texts)

	client := mediaflow.NewClient(images, videos, cfg,
		mediaflow.WithLogger(logger),
		mediaflow.WithPolling(cfg.Tasks.PollInterval, cfg.Tasks.MaxAttempts),
		mediaflow.WithTextRegistry(texts))

	var (
		memory   *workspace.Memory
		canvases workspace.CanvasStore
	)
	if cfg.Redis.URL != "" {
		rdb, err := workspace.Connect(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		canvases = workspace.NewRedisStore(rdb, cfg.Redis.TTL)
		memory = workspace.NewMemory(workspace.WithBackingStore(canvases))
		logger.Info("canvas state is stored in redis")
	} else {
		memory = workspace.NewMemory()
		canvases = memory
	}

	tasks := taskmanager.New(client, canvases, memory,
		taskmanager.WithLogger(logger.Named("tasks")),
		taskmanager.WithCleanupSpec(cfg.Tasks.CleanupSpec))
	if err := tasks.Start(); err != nil {
		logger.Fatal("failed to start task manager", zap.Error(err))
	}

	srv := server.New(client, tasks, memory, cfg.Server, logger.Named("http"))
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := tasks.Shutdown(ctx); err != nil {
		logger.Warn("task manager shutdown", zap.Error(err))
	}
}
