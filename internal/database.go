package internal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// SecretService is the fixed service ID the API key is stored under
	SecretService = "chat-session"
	// SecretAccount is the fixed account ID the API key is stored under
	SecretAccount = "api-key"
)

// SecretStore round-trips UTF-8 secrets keyed by service and account
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
	Delete(service, account string) error
}

const createSecretsTableSQL = `
CREATE TABLE IF NOT EXISTS secrets (
	service    TEXT NOT NULL,
	account    TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (service, account)
)`

// SQLiteSecretStore keeps secrets in a local SQLite database
type SQLiteSecretStore struct {
	db *sql.DB
}

// OpenDatabase opens (creating if needed) a SQLite database in read-write mode
func OpenDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return db, nil
}

// OpenSecretStore opens the secret database at path and makes sure the schema exists
func OpenSecretStore(path string) (*SQLiteSecretStore, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLiteSecretStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteSecretStore wraps an open database
func NewSQLiteSecretStore(db *sql.DB) (*SQLiteSecretStore, error) {
	if _, err := db.Exec(createSecretsTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create secrets table: %w", err)
	}
	return &SQLiteSecretStore{db: db}, nil
}

// Get returns the stored value or ErrSecretNotFound
func (s *SQLiteSecretStore) Get(service, account string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM secrets WHERE service = ? AND account = ?", service, account).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	return value, nil
}

// Set stores value, replacing any previous one
func (s *SQLiteSecretStore) Set(service, account, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO secrets (service, account, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(service, account) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		service, account, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

// Delete removes the secret; deleting a missing secret is not an error
func (s *SQLiteSecretStore) Delete(service, account string) error {
	if _, err := s.db.Exec("DELETE FROM secrets WHERE service = ? AND account = ?", service, account); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteSecretStore) Close() error {
	return s.db.Close()
}
