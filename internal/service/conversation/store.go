package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"shopassist/internal/logging"
	"shopassist/internal/models"
	"shopassist/internal/redis"
	"shopassist/internal/storage"
)

// ErrThreadNotFound is returned for a thread id that has no stored messages.
var ErrThreadNotFound = errors.New("thread not found")

// Store persists thread histories in SQL, with an optional redis cache in front of reads.
type Store struct {
	db      *sql.DB
	dialect string
	cache   *historyCache
	logger  *zap.Logger
}

// NewStore builds the thread store. cache may be nil.
func NewStore(db *sql.DB, driver string, cache *redis.Client, logger *zap.Logger) *Store {
	logger = logging.OrNop(logger)
	s := &Store{db: db, dialect: storage.Dialect(driver), logger: logger}
	if cache != nil {
		s.cache = &historyCache{client: cache, logger: logger}
	}
	return s
}

// Load returns the thread's messages in append order. Unknown threads have an empty history.
func (s *Store) Load(ctx context.Context, threadID string) ([]models.Message, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, errors.New("thread id is required")
	}
	if history, ok := s.cache.get(ctx, threadID); ok {
		return history, nil
	}
	version, cacheable := s.cache.version(ctx, threadID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, seq, role, content, tool_calls, tool_call_id, tool_name, created_at
		FROM thread_messages WHERE thread_id = ? ORDER BY seq ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var history []models.Message
	for rows.Next() {
		var (
			m         models.Message
			toolCalls string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Seq, &m.Role, &m.Content, &toolCalls, &m.ToolCallID, &m.ToolName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls of message %d: %w", m.ID, err)
			}
		}
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if cacheable {
		s.cache.set(ctx, threadID, version, history)
	}
	return history, nil
}

// Append stores messages at the end of the thread, creating the thread when needed.
// Either all messages are written or none are.
func (s *Store) Append(ctx context.Context, threadID string, messages []models.Message) (err error) {
	if strings.TrimSpace(threadID) == "" {
		return errors.New("thread id is required")
	}
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx, s.upsertThreadSQL(), threadID, now, now); err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}

	var next int
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM thread_messages WHERE thread_id = ?`, threadID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	for i, msg := range messages {
		var toolCalls string
		if len(msg.ToolCalls) > 0 {
			data, mErr := json.Marshal(msg.ToolCalls)
			if mErr != nil {
				err = fmt.Errorf("encode tool calls: %w", mErr)
				return err
			}
			toolCalls = string(data)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO thread_messages (thread_id, seq, role, content, tool_calls, tool_call_id, tool_name, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			threadID, next+i, msg.Role, msg.Content, toolCalls, msg.ToolCallID, msg.ToolName, now,
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit messages: %w", err)
	}
	s.cache.invalidate(ctx, threadID)
	s.logger.Debug("thread appended", zap.String("thread_id", threadID), zap.Int("messages", len(messages)))
	return nil
}

// Thread returns the thread record, or ErrThreadNotFound.
func (s *Store) Thread(ctx context.Context, threadID string) (*models.Thread, error) {
	var t models.Thread
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at FROM threads WHERE id = ?`, threadID,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return &t, nil
}

func (s *Store) upsertThreadSQL() string {
	if s.dialect == "mysql" {
		return `INSERT INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE updated_at = VALUES(updated_at)`
	}
	return `INSERT INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`
}
