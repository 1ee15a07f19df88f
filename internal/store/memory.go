package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Backend for dev and tests. It records every
// write so tests can assert on side effects.
type Memory struct {
	mu     sync.Mutex
	colls  map[string]map[string]*memDoc
	seq    int64
	now    func() time.Time
	writes []Write
	fail   map[string]error
}

type memDoc struct {
	data    map[string]any
	created time.Time
	seq     int64
}

// Write describes one mutating call observed by Memory.
type Write struct {
	Op         string // create, update, delete
	Collection string
	ID         string
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		colls: make(map[string]map[string]*memDoc),
		now:   func() time.Time { return time.Now().UTC() },
		fail:  make(map[string]error),
	}
}

// SetClock overrides the creation-time source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// FailOn makes every op ("create", "update", "get", "find", "delete") on
// collection return err. A nil err clears the failure.
func (m *Memory) FailOn(op, collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := op + ":" + collection
	if err == nil {
		delete(m.fail, key)
		return
	}
	m.fail[key] = err
}

// Writes returns the mutating calls seen so far.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// Create implements Backend.
func (m *Memory) Create(_ context.Context, collection string, data map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["create:"+collection]; err != nil {
		return "", err
	}
	norm, err := clone(data)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	m.seq++
	coll := m.colls[collection]
	if coll == nil {
		coll = make(map[string]*memDoc)
		m.colls[collection] = coll
	}
	coll[id] = &memDoc{data: norm, created: m.now(), seq: m.seq}
	m.writes = append(m.writes, Write{Op: "create", Collection: collection, ID: id})
	return id, nil
}

// Get implements Backend.
func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["get:"+collection]; err != nil {
		return Document{}, err
	}
	d, ok := m.colls[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return m.export(id, d)
}

// Find implements Backend.
func (m *Memory) Find(_ context.Context, collection string, q Query) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["find:"+collection]; err != nil {
		return nil, err
	}
	type hit struct {
		id string
		d  *memDoc
	}
	var hits []hit
	for id, d := range m.colls[collection] {
		if !q.Since.IsZero() && d.created.Before(q.Since) {
			continue
		}
		if !matches(d.data, q.Where) {
			continue
		}
		hits = append(hits, hit{id: id, d: d})
	}
	sort.Slice(hits, func(i, j int) bool {
		if q.Newest {
			return hits[i].d.seq > hits[j].d.seq
		}
		return hits[i].d.seq < hits[j].d.seq
	})
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}
	out := make([]Document, 0, len(hits))
	for _, h := range hits {
		doc, err := m.export(h.id, h.d)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Update implements Backend.
func (m *Memory) Update(_ context.Context, collection, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["update:"+collection]; err != nil {
		return err
	}
	d, ok := m.colls[collection][id]
	if !ok {
		return ErrNotFound
	}
	norm, err := clone(patch)
	if err != nil {
		return err
	}
	for k, v := range norm {
		d.data[k] = v
	}
	m.writes = append(m.writes, Write{Op: "update", Collection: collection, ID: id})
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail["delete:"+collection]; err != nil {
		return err
	}
	if _, ok := m.colls[collection][id]; !ok {
		return ErrNotFound
	}
	delete(m.colls[collection], id)
	m.writes = append(m.writes, Write{Op: "delete", Collection: collection, ID: id})
	return nil
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }

func (m *Memory) export(id string, d *memDoc) (Document, error) {
	data, err := clone(d.data)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Data: data, CreatedAt: d.created}, nil
}

func matches(data map[string]any, where []Filter) bool {
	for _, f := range where {
		v, ok := data[f.Field]
		if !ok || fmt.Sprint(v) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

// clone deep-copies through JSON so stored values never alias caller maps.
func clone(in map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
