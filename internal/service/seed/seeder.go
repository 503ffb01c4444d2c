package seed

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopassist/internal/logging"
	"shopassist/internal/models"
	"shopassist/internal/retry"
)

// embedConcurrency bounds parallel embedding requests.
const embedConcurrency = 4

// CatalogWriter receives the freshly embedded catalog.
type CatalogWriter interface {
	Replace(ctx context.Context, items []models.Item) error
}

type Seeder struct {
	catalog    CatalogWriter
	embedder   embedding.Embedder
	dimensions int
	retry      retry.Policy
	logger     *zap.Logger
}

func NewSeeder(catalog CatalogWriter, embedder embedding.Embedder, dimensions int, policy retry.Policy, logger *zap.Logger) *Seeder {
	return &Seeder{
		catalog:    catalog,
		embedder:   embedder,
		dimensions: dimensions,
		retry:      policy,
		logger:     logging.OrNop(logger),
	}
}

// Run summarizes and embeds items, then replaces the catalog with them.
// The catalog is left untouched when any item fails.
func (s *Seeder) Run(ctx context.Context, items []models.Item) error {
	if err := validateItems(items); err != nil {
		return err
	}
	prepared := make([]models.Item, len(items))
	copy(prepared, items)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i := range prepared {
		g.Go(func() error {
			it := &prepared[i]
			it.EmbeddingText = Summary(*it)
			vec, err := s.embed(gCtx, it.EmbeddingText)
			if err != nil {
				return fmt.Errorf("embed item %s: %w", it.ItemID, err)
			}
			it.Embedding = vec
			s.logger.Info("item embedded", zap.String("item_id", it.ItemID))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.catalog.Replace(ctx, prepared); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}
	s.logger.Info("catalog seeded", zap.Int("items", len(prepared)))
	return nil
}

func (s *Seeder) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := retry.Do(ctx, s.retry, func(ctx context.Context) ([][]float64, error) {
		return s.embedder.EmbedStrings(ctx, []string{text})
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("got %d vectors for one text", len(vecs))
	}
	if s.dimensions > 0 && len(vecs[0]) != s.dimensions {
		return nil, fmt.Errorf("expected %d dimensions, got %d", s.dimensions, len(vecs[0]))
	}
	out := make([]float32, len(vecs[0]))
	for i, v := range vecs[0] {
		out[i] = float32(v)
	}
	return out, nil
}

// LoadItemsFile reads a JSON array of items, e.g. a previously generated catalog.
func LoadItemsFile(path string) ([]models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items file: %w", err)
	}
	return ParseItems(string(data))
}
