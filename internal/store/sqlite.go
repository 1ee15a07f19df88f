package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteTime is fixed width so created_at sorts and compares as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		UNIQUE (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_collection_created ON documents (collection, created_at)`,
}

// SQLite is a single-file Backend for single-node deployments. Documents
// are JSON text queried with the json1 functions.
type SQLite struct {
	Client *sql.DB
	now    func() time.Time
}

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return newSQLite(db), nil
}

func newSQLite(db *sql.DB) *SQLite {
	return &SQLite{Client: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate applies the schema. Statements are idempotent.
func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Create implements Backend.
func (s *SQLite) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.Client.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at)
		VALUES (?, ?, ?, ?)
	`, collection, id, string(raw), s.now().UTC().Format(sqliteTime))
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get implements Backend.
func (s *SQLite) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.Client.QueryRowContext(ctx, `
		SELECT id, data, created_at FROM documents
		WHERE collection = ? AND id = ?
	`, collection, id)
	doc, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// Find implements Backend. JSON booleans are stored as 0/1 by json_extract,
// so boolean filter values are bound the same way.
func (s *SQLite) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	query := `SELECT id, data, created_at FROM documents`
	args := []any{collection}
	clauses := []string{"collection = ?"}
	for _, f := range q.Where {
		clauses = append(clauses, "json_extract(data, ?) = ?")
		args = append(args, "$."+f.Field, sqliteValue(f.Value))
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, q.Since.UTC().Format(sqliteTime))
	}
	query += " WHERE " + strings.Join(clauses, " AND ")
	if q.Newest {
		query += " ORDER BY seq DESC"
	} else {
		query += " ORDER BY seq ASC"
	}
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.Client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Document
	for rows.Next() {
		doc, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, doc)
	}
	return res, rows.Err()
}

// Update implements Backend with json_patch. A null value in patch removes
// the key.
func (s *SQLite) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	res, err := s.Client.ExecContext(ctx, `
		UPDATE documents SET data = json_patch(data, ?)
		WHERE collection = ? AND id = ?
	`, string(raw), collection, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Delete implements Backend.
func (s *SQLite) Delete(ctx context.Context, collection, id string) error {
	res, err := s.Client.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Close()
}

func sqliteValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

func scanSQLite(sc scanner) (Document, error) {
	var (
		doc     Document
		raw     string
		created string
	)
	if err := sc.Scan(&doc.ID, &raw, &created); err != nil {
		return Document{}, err
	}
	ts, err := time.Parse(sqliteTime, created)
	if err != nil {
		return Document{}, fmt.Errorf("decode created_at of %s: %w", doc.ID, err)
	}
	doc.CreatedAt = ts
	doc.Data = map[string]any{}
	if err := json.Unmarshal([]byte(raw), &doc.Data); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return doc, nil
}
