package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"shopassist/internal/models"
	"shopassist/internal/service/ai"
	"shopassist/internal/service/catalog"
	"shopassist/internal/service/seed"
	"shopassist/internal/storage"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Replace the catalog with freshly embedded items",
	Long: `Replace the catalog with freshly embedded items.

Items are generated by the configured chat model unless --from points to a
JSON array of items. The catalog is cleared before the new batch is written.

Examples:
  shopassist seed
  shopassist seed --count 25
  shopassist seed --from ./items.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		count, _ := cmd.Flags().GetInt("count")
		return runSeed(from, count)
	},
}

func init() {
	seedCmd.Flags().String("from", "", "read items from a JSON file instead of generating them")
	seedCmd.Flags().Int("count", 0, "number of items to generate (default from config)")
}

func runSeed(from string, count int) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Database, cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	policy := retryPolicy(cfg, logger)

	var items []models.Item
	if from != "" {
		items, err = seed.LoadItemsFile(from)
		if err != nil {
			return err
		}
		logger.Info("loaded items", zap.String("file", from), zap.Int("items", len(items)))
	} else {
		if count <= 0 {
			count = cfg.Seed.Count
		}
		chatModel, err := ai.NewChatModel(ctx, cfg, cfg.Seed.Provider, cfg.Seed.Temperature)
		if err != nil {
			return err
		}
		logger.Info("generating synthetic items", zap.Int("count", count))
		items, err = seed.NewGenerator(chatModel, policy).Generate(ctx, count)
		if err != nil {
			return err
		}
	}

	embedder, err := ai.NewEmbedder(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	store := catalog.NewStore(db, embedder, catalog.Options{
		Dimensions: cfg.Embedding.Dimensions,
		Logger:     logger,
	})
	return seed.NewSeeder(store, embedder, cfg.Embedding.Dimensions, policy, logger).Run(ctx, items)
}
