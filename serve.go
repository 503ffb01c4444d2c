package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shopassist/internal/api"
	"shopassist/internal/redis"
	"shopassist/internal/service/agent"
	"shopassist/internal/service/ai"
	"shopassist/internal/service/catalog"
	"shopassist/internal/service/conversation"
	"shopassist/internal/service/tools"
	"shopassist/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("opening database", zap.String("driver", cfg.Database))
	db, err := storage.Open(cfg.Database, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("create redis client: %w", err)
		}
		defer rdb.Close()
	}

	embedder, err := ai.NewEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	chatModel, err := ai.NewChatModel(ctx, cfg, cfg.Agent.Provider, cfg.Agent.Temperature)
	if err != nil {
		return err
	}

	items := catalog.NewStore(db, embedder, catalog.Options{
		Dimensions: cfg.Embedding.Dimensions,
		MinScore:   cfg.Embedding.MinScore,
		Logger:     logger,
	})
	threads := conversation.NewStore(db, cfg.Database, rdb, logger)
	lookup := tools.NewItemLookup(items, logger)

	assistant, err := agent.New(ctx, chatModel, []tool.BaseTool{lookup.Tool()}, threads, agent.Options{
		MaxSteps: cfg.Agent.MaxSteps,
		Retry:    retryPolicy(cfg, logger),
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("init agent: %w", err)
	}

	if !cfg.BasicConfig.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(assistant, threads, logger)
	srv := &http.Server{
		Addr:    cfg.BasicConfig.ServerAddress,
		Handler: api.NewRouter(handler, cfg.BasicConfig.AllowedOrigins),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
