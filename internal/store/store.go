// Package store is the document persistence layer. A Backend stores
// JSON-shaped documents in named collections; Collection gives typed access.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("store: document not found")

// Document is a raw stored document.
type Document struct {
	ID        string
	Data      map[string]any
	CreatedAt time.Time
}

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Query selects documents from one collection. Results are ordered by
// creation time, oldest first unless Newest is set.
type Query struct {
	Where  []Filter
	Since  time.Time // zero means unbounded
	Newest bool
	Limit  int // 0 means no limit
}

// Backend is implemented by each persistence engine.
type Backend interface {
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	Get(ctx context.Context, collection, id string) (Document, error)
	Find(ctx context.Context, collection string, q Query) ([]Document, error)
	Update(ctx context.Context, collection, id string, patch map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Close() error
}

// Collection is typed access to one collection. T must be a JSON-encodable
// struct with an `id` field; the id is stripped on write and filled on read.
type Collection[T any] struct {
	backend Backend
	name    string
}

// NewCollection binds a typed collection to a backend.
func NewCollection[T any](b Backend, name string) Collection[T] {
	return Collection[T]{backend: b, name: name}
}

// Name returns the collection name.
func (c Collection[T]) Name() string { return c.name }

// Create stores v and returns the generated id.
func (c Collection[T]) Create(ctx context.Context, v T) (string, error) {
	data, err := toMap(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", c.name, err)
	}
	delete(data, "id")
	return c.backend.Create(ctx, c.name, data)
}

// Get loads the document with the given id.
func (c Collection[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	doc, err := c.backend.Get(ctx, c.name, id)
	if err != nil {
		return out, err
	}
	return decode[T](doc)
}

// Find runs q and decodes every match.
func (c Collection[T]) Find(ctx context.Context, q Query) ([]T, error) {
	docs, err := c.backend.Find(ctx, c.name, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Update merges patch into the document. Values are normalized through
// JSON so every backend stores the same shapes.
func (c Collection[T]) Update(ctx context.Context, id string, patch map[string]any) error {
	norm, err := toMap(patch)
	if err != nil {
		return fmt.Errorf("encode %s patch: %w", c.name, err)
	}
	delete(norm, "id")
	return c.backend.Update(ctx, c.name, id, norm)
}

// Delete removes the document.
func (c Collection[T]) Delete(ctx context.Context, id string) error {
	return c.backend.Delete(ctx, c.name, id)
}

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decode[T any](doc Document) (T, error) {
	var out T
	data := make(map[string]any, len(doc.Data)+1)
	for k, v := range doc.Data {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		data[k] = v
	}
	data["id"] = doc.ID
	raw, err := json.Marshal(data)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return out, nil
}
