package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database and verifies the connection.
func Open(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("storage dsn must be provided")
	}

	var (
		db  *sql.DB
		err error
	)
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
	case "mysql":
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the kv table is present.
func Migrate(db *sql.DB, driver string) error {
	var stmt string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmt = `CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`
	case "mysql":
		stmt = `CREATE TABLE IF NOT EXISTS kv (
			` + "`key`" + ` VARCHAR(255) NOT NULL PRIMARY KEY,
			value MEDIUMTEXT NOT NULL,
			updated_at DATETIME NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("migrate (%s): %w", driver, err)
	}
	return nil
}

// SQLKV stores keys in the kv table of a sqlite or mysql database.
type SQLKV struct {
	db    *sql.DB
	mysql bool
}

// NewSQLKV wraps an opened, migrated database.
func NewSQLKV(db *sql.DB, driver string) *SQLKV {
	return &SQLKV{db: db, mysql: strings.ToLower(driver) == "mysql"}
}

func (s *SQLKV) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.stmt(`SELECT value FROM kv WHERE key = ?`), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLKV) Set(ctx context.Context, key, value string) error {
	upsert := `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if s.mysql {
		upsert = "INSERT INTO kv (`key`, value, updated_at) VALUES (?, ?, ?)" +
			" ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)"
	}
	if _, err := s.db.ExecContext(ctx, upsert, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLKV) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.stmt(`DELETE FROM kv WHERE key = ?`), key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// stmt quotes the key column for mysql, where key is reserved.
func (s *SQLKV) stmt(q string) string {
	if s.mysql {
		return strings.Replace(q, "key = ?", "`key` = ?", 1)
	}
	return q
}
