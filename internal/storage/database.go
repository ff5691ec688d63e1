package storage

import (
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn    *sqlx.DB
	content *ContentStore
	cards   *CardStore
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps per-connection pragmas.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{
		conn:    conn,
		content: &ContentStore{conn: conn},
		cards:   &CardStore{conn: conn},
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Content returns the store for exam records and results.
func (db *DB) Content() *ContentStore {
	return db.content
}

// Cards returns the store for flashcards.
func (db *DB) Cards() *CardStore {
	return db.cards
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeStrings(vs []string) (string, error) {
	if vs == nil {
		return "[]", nil
	}
	return encodeJSON(vs)
}

func decodeStrings(s string) ([]string, error) {
	var out []string
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
