package store

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// createdField holds the backend-managed creation time used for ordering.
const createdField = "_createdAt"

// Firestore is a Backend over Cloud Firestore collections.
type Firestore struct {
	client *firestore.Client
	now    func() time.Time
}

// NewFirestore wraps an initialized Firestore client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client, now: func() time.Time { return time.Now().UTC() }}
}

// Create implements Backend.
func (f *Firestore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	doc := make(map[string]any, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}
	doc[createdField] = f.now()
	ref, _, err := f.client.Collection(collection).Add(ctx, doc)
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

// Get implements Backend.
func (f *Firestore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return fromSnapshot(snap), nil
}

// Find implements Backend. Equality filters combined with ordering on the
// creation field need a composite index per filtered field.
func (f *Firestore) Find(ctx context.Context, collection string, q Query) ([]Document, error) {
	query := f.client.Collection(collection).Query
	for _, w := range q.Where {
		query = query.Where(w.Field, "==", w.Value)
	}
	if !q.Since.IsZero() {
		query = query.Where(createdField, ">=", q.Since)
	}
	dir := firestore.Asc
	if q.Newest {
		dir = firestore.Desc
	}
	query = query.OrderBy(createdField, dir)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()
	var res []Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		res = append(res, fromSnapshot(snap))
	}
	return res, nil
}

// Update implements Backend. Missing documents report ErrNotFound.
func (f *Firestore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	if len(patch) == 0 {
		_, err := f.Get(ctx, collection, id)
		return err
	}
	updates := make([]firestore.Update, 0, len(patch))
	for k, v := range patch {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err := f.client.Collection(collection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// Delete implements Backend.
func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	_, err := f.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// Close releases the client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func fromSnapshot(snap *firestore.DocumentSnapshot) Document {
	data := snap.Data()
	doc := Document{ID: snap.Ref.ID, Data: data, CreatedAt: snap.CreateTime}
	if ts, ok := data[createdField].(time.Time); ok {
		doc.CreatedAt = ts
	}
	delete(data, createdField)
	return doc
}
