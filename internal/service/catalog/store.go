package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"

	"shopassist/internal/logging"
	"shopassist/internal/models"
)

// ErrDimensionMismatch is returned when a vector does not have the store's width.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Options configures a Store.
type Options struct {
	// Dimensions every stored and query vector must have.
	Dimensions int
	// MinScore drops similarity matches scoring below it; 0 keeps every match.
	MinScore float32
	Logger   *zap.Logger
}

// Store is the inventory catalog kept in SQL, searched by cosine similarity
// over embedded summaries with a substring fallback.
type Store struct {
	db       *sql.DB
	embedder embedding.Embedder
	dims     int
	minScore float32
	logger   *zap.Logger
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB, embedder embedding.Embedder, opts Options) *Store {
	return &Store{
		db:       db,
		embedder: embedder,
		dims:     opts.Dimensions,
		minScore: opts.MinScore,
		logger:   logging.OrNop(opts.Logger),
	}
}

// Count returns the number of items in the catalog.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// Replace clears the catalog and inserts items in one transaction. Every item
// needs a summary and an embedding of the configured width, otherwise nothing
// is written.
func (s *Store) Replace(ctx context.Context, items []models.Item) error {
	for _, it := range items {
		if err := s.checkItem(it); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO items (
		item_id, item_name, item_description, brand, manufacturer_address, prices,
		categories, user_reviews, notes, embedding_text, embedding, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare item insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, it := range items {
		cols, err := encodeColumns(it)
		if err != nil {
			return fmt.Errorf("encode item %s: %w", it.ItemID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			it.ItemID, it.ItemName, it.ItemDescription, it.Brand,
			cols.address, cols.prices, cols.categories, cols.reviews,
			it.Notes, it.EmbeddingText, encodeFloat32s(it.Embedding), now,
		); err != nil {
			return fmt.Errorf("insert item %s: %w", it.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog tx: %w", err)
	}
	s.logger.Info("catalog replaced", zap.Int("items", len(items)))
	return nil
}

// All returns every item ordered by id, without embeddings.
func (s *Store) All(ctx context.Context) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY item_id`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *Store) checkItem(it models.Item) error {
	if strings.TrimSpace(it.ItemID) == "" {
		return errors.New("item id is required")
	}
	if strings.TrimSpace(it.EmbeddingText) == "" {
		return fmt.Errorf("item %s: summary is required", it.ItemID)
	}
	if len(it.Embedding) == 0 || (s.dims > 0 && len(it.Embedding) != s.dims) {
		return fmt.Errorf("item %s: %w: want %d, got %d", it.ItemID, ErrDimensionMismatch, s.dims, len(it.Embedding))
	}
	return nil
}

const itemColumns = `item_id, item_name, item_description, brand, manufacturer_address,
	prices, categories, user_reviews, notes, embedding_text`

type encodedColumns struct {
	address, prices, categories, reviews string
}

func encodeColumns(it models.Item) (encodedColumns, error) {
	var (
		out encodedColumns
		err error
	)
	if out.address, err = marshalString(it.ManufacturerAddress); err != nil {
		return out, err
	}
	if out.prices, err = marshalString(it.Prices); err != nil {
		return out, err
	}
	categories := it.Categories
	if categories == nil {
		categories = []string{}
	}
	if out.categories, err = marshalString(categories); err != nil {
		return out, err
	}
	reviews := it.UserReviews
	if reviews == nil {
		reviews = []models.Review{}
	}
	if out.reviews, err = marshalString(reviews); err != nil {
		return out, err
	}
	return out, nil
}

func marshalString(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var (
		it                                    models.Item
		address, prices, categories, reviews string
	)
	if err := row.Scan(
		&it.ItemID, &it.ItemName, &it.ItemDescription, &it.Brand,
		&address, &prices, &categories, &reviews, &it.Notes, &it.EmbeddingText,
	); err != nil {
		return it, err
	}
	if err := json.Unmarshal([]byte(address), &it.ManufacturerAddress); err != nil {
		return it, fmt.Errorf("decode manufacturer_address of %s: %w", it.ItemID, err)
	}
	if err := json.Unmarshal([]byte(prices), &it.Prices); err != nil {
		return it, fmt.Errorf("decode prices of %s: %w", it.ItemID, err)
	}
	if err := json.Unmarshal([]byte(categories), &it.Categories); err != nil {
		return it, fmt.Errorf("decode categories of %s: %w", it.ItemID, err)
	}
	if err := json.Unmarshal([]byte(reviews), &it.UserReviews); err != nil {
		return it, fmt.Errorf("decode user_reviews of %s: %w", it.ItemID, err)
	}
	return it, nil
}

func scanItems(rows *sql.Rows) ([]models.Item, error) {
	var items []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
