package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
)

// CreateInMemoryDB creates an empty in-memory SQLite database for testing.
// A single connection is used so every query sees the same database.
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// CreateSecretsDB creates an in-memory database with a populated secrets table
func CreateSecretsDB(t *testing.T, secrets map[[2]string]string) *sql.DB {
	t.Helper()
	db := CreateInMemoryDB(t)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS secrets (
		service    TEXT NOT NULL,
		account    TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (service, account)
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		t.Fatalf("Failed to create secrets table: %v", err)
	}

	for key, value := range secrets {
		if _, err := db.Exec("INSERT INTO secrets (service, account, value, updated_at) VALUES (?, ?, ?, 0)", key[0], key[1], value); err != nil {
			t.Fatalf("Failed to insert secret: %v", err)
		}
	}
	return db
}
