package catalog

import (
	"container/heap"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"shopassist/internal/models"
)

// SimilaritySearch embeds query and returns up to limit items ordered by
// descending cosine similarity to it.
func (s *Store) SimilaritySearch(ctx context.Context, query string, limit int) ([]models.ScoredItem, error) {
	if limit <= 0 {
		return nil, nil
	}
	vecs, err := s.embedder.EmbedStrings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	vector := toFloat32s(vecs[0])
	if s.dims > 0 && len(vector) != s.dims {
		return nil, fmt.Errorf("query vector: %w: want %d, got %d", ErrDimensionMismatch, s.dims, len(vector))
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT item_id, embedding FROM items`)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	var buf []float32
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding of %s: %w", id, err)
		}
		score := cosine(vector, buf, queryNorm)
		if s.minScore > 0 && score < s.minScore {
			continue
		}
		if h.Len() < limit {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}
	if h.Len() == 0 {
		return nil, nil
	}

	top := make([]idScore, h.Len())
	for i := len(top) - 1; i >= 0; i-- {
		top[i] = heap.Pop(h).(idScore)
	}

	ids := make([]string, len(top))
	for i, c := range top {
		ids[i] = c.ID
	}
	byID, err := s.itemsByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.ScoredItem, 0, len(top))
	for _, c := range top {
		it, ok := byID[c.ID]
		if !ok {
			// removed between the two queries
			continue
		}
		out = append(out, models.ScoredItem{Item: it, Score: c.Score})
	}
	s.logger.Debug("similarity search", zap.String("query", query), zap.Int("matches", len(out)))
	return out, nil
}

// TextSearch returns up to limit items whose name, description, categories or
// summary contain query, ignoring case.
func (s *Store) TextSearch(ctx context.Context, query string, limit int) ([]models.ScoredItem, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items
		WHERE LOWER(item_name) LIKE ? ESCAPE '!'
			OR LOWER(item_description) LIKE ? ESCAPE '!'
			OR LOWER(categories) LIKE ? ESCAPE '!'
			OR LOWER(embedding_text) LIKE ? ESCAPE '!'
		ORDER BY item_id
		LIMIT ?`, pattern, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.ScoredItem, len(items))
	for i, it := range items {
		out[i] = models.ScoredItem{Item: it}
	}
	s.logger.Debug("text search", zap.String("query", query), zap.Int("matches", len(out)))
	return out, nil
}

func (s *Store) itemsByID(ctx context.Context, ids []string) (map[string]models.Item, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE item_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Item, len(items))
	for _, it := range items {
		byID[it.ItemID] = it
	}
	return byID, nil
}

// escapeLike escapes LIKE wildcards with '!' so the query matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
