package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"shopassist/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured for dbType.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// every pooled connection to :memory: would otherwise see its own empty database
		if strings.Contains(dbCfg.DSN, ":memory:") || strings.Contains(dbCfg.DSN, "mode=memory") {
			db.SetMaxOpenConns(1)
		}
	case "mysql":
		params := dbCfg.Params
		// thread timestamps are scanned into time.Time
		if !strings.Contains(params, "parseTime") {
			params = strings.TrimPrefix(params+"&parseTime=true", "&")
		}
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Dialect normalizes a configured driver name to "sqlite3" or "mysql".
func Dialect(dbType string) string {
	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "mysql":
		return "mysql"
	}
	return strings.ToLower(dbType)
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch Dialect(driver) {
	case "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS items (
				item_id TEXT PRIMARY KEY,
				item_name TEXT NOT NULL,
				item_description TEXT NOT NULL,
				brand TEXT NOT NULL,
				manufacturer_address TEXT NOT NULL,
				prices TEXT NOT NULL,
				categories TEXT NOT NULL,
				user_reviews TEXT NOT NULL,
				notes TEXT NOT NULL,
				embedding_text TEXT NOT NULL,
				embedding BLOB NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS threads (
				id TEXT PRIMARY KEY,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS thread_messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				thread_id TEXT NOT NULL,
				seq INTEGER NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				tool_calls TEXT NOT NULL DEFAULT '',
				tool_call_id TEXT NOT NULL DEFAULT '',
				tool_name TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				UNIQUE(thread_id, seq),
				FOREIGN KEY(thread_id) REFERENCES threads(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_threads_updated_at ON threads(updated_at DESC)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS items (
				item_id VARCHAR(255) NOT NULL,
				item_name VARCHAR(512) NOT NULL,
				item_description TEXT NOT NULL,
				brand VARCHAR(255) NOT NULL,
				manufacturer_address TEXT NOT NULL,
				prices TEXT NOT NULL,
				categories TEXT NOT NULL,
				user_reviews MEDIUMTEXT NOT NULL,
				notes TEXT NOT NULL,
				embedding_text MEDIUMTEXT NOT NULL,
				embedding MEDIUMBLOB NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (item_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS threads (
				id VARCHAR(64) NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_threads_updated_at (updated_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS thread_messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				thread_id VARCHAR(64) NOT NULL,
				seq INT NOT NULL,
				role VARCHAR(50) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				tool_calls MEDIUMTEXT NOT NULL,
				tool_call_id VARCHAR(255) NOT NULL DEFAULT '',
				tool_name VARCHAR(255) NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_thread_seq (thread_id, seq),
				CONSTRAINT fk_thread_messages_thread FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
