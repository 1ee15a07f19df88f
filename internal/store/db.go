package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// schema creates the single documents table every collection shares.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		data       JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
		seq        BIGSERIAL,
		PRIMARY KEY (collection, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_collection_seq ON documents (collection, seq)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops)`,
}

// DB is a Postgres Backend over database/sql using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return &DB{Client: db}, db.PingContext(ctx)
}

// Migrate applies the schema. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Create implements Backend.
func (d *DB) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = d.Client.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
	`, collection, id, string(raw))
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get implements Backend.
func (d *DB) Get(ctx context.Context, collection, id string) (Document, error) {
	row := d.Client.QueryRowContext(ctx, `
		SELECT id, data, created_at FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

// Find implements Backend. Field names are bound as parameters to ->>.
func (d *DB) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	query := `SELECT id, data, created_at FROM documents`
	args := []any{collection}
	clauses := []string{"collection = $1"}
	for _, f := range q.Where {
		clauses = append(clauses, fmt.Sprintf("data ->> $%d = $%d", len(args)+1, len(args)+2))
		args = append(args, f.Field, fmt.Sprint(f.Value))
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, q.Since)
	}
	query += " WHERE " + strings.Join(clauses, " AND ")
	if q.Newest {
		query += " ORDER BY seq DESC"
	} else {
		query += " ORDER BY seq ASC"
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := d.Client.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, doc)
	}
	return res, rows.Err()
}

// Update implements Backend with a shallow jsonb merge.
func (d *DB) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	res, err := d.Client.ExecContext(ctx, `
		UPDATE documents SET data = data || $3::jsonb
		WHERE collection = $1 AND id = $2
	`, collection, id, string(raw))
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Delete implements Backend.
func (d *DB) Delete(ctx context.Context, collection, id string) error {
	res, err := d.Client.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (Document, error) {
	var (
		doc Document
		raw []byte
	)
	if err := s.Scan(&doc.ID, &raw, &doc.CreatedAt); err != nil {
		return Document{}, err
	}
	doc.Data = map[string]any{}
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return doc, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
