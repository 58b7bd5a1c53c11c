package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore keeps documents in process memory. It backs tests and the
// "memory" driver; contents are lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[Collection]map[string]*memoryDoc
}

type memoryDoc struct {
	version int64
	data    []byte
	fields  map[string]any
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[Collection]map[string]*memoryDoc)}
}

func (m *MemoryStore) collection(c Collection) map[string]*memoryDoc {
	docs, ok := m.collections[c]
	if !ok {
		docs = make(map[string]*memoryDoc)
		m.collections[c] = docs
	}
	return docs
}

// Create implements Store.
func (m *MemoryStore) Create(ctx context.Context, c Collection, id string, data []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fields, err := decodeFields(data)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collection(c)
	if _, exists := docs[id]; exists {
		return 0, fmt.Errorf("%w: %s/%s already exists", ErrDuplicate, c, id)
	}
	if err := m.checkUnique(c, id, fields); err != nil {
		return 0, err
	}
	docs[id] = &memoryDoc{version: 1, data: clone(data), fields: fields}
	return 1, nil
}

// Get implements Store.
func (m *MemoryStore) Get(ctx context.Context, c Collection, id string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[c][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Record{ID: id, Version: doc.version, Data: clone(doc.data)}, nil
}

// Query implements Store. Results are ordered by id so callers see a stable order.
func (m *MemoryStore) Query(ctx context.Context, c Collection, filter ...Condition) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for id, doc := range m.collections[c] {
		if matches(doc.fields, filter) {
			out = append(out, &Record{ID: id, Version: doc.version, Data: clone(doc.data)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Replace implements Store.
func (m *MemoryStore) Replace(ctx context.Context, c Collection, id string, data []byte, expected int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fields, err := decodeFields(data)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[c][id]
	if !ok {
		return 0, ErrNotFound
	}
	if doc.version != expected {
		return 0, fmt.Errorf("%w: %s/%s at version %d, expected %d", ErrVersionConflict, c, id, doc.version, expected)
	}
	if err := m.checkUnique(c, id, fields); err != nil {
		return 0, err
	}
	doc.version++
	doc.data = clone(data)
	doc.fields = fields
	return doc.version, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, c Collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[c]
	if _, ok := docs[id]; !ok {
		return ErrNotFound
	}
	delete(docs, id)
	return nil
}

// DeleteVersion implements Store.
func (m *MemoryStore) DeleteVersion(ctx context.Context, c Collection, id string, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := m.collections[c]
	doc, ok := docs[id]
	if !ok {
		return ErrNotFound
	}
	if doc.version != expected {
		return fmt.Errorf("%w: %s/%s at version %d, expected %d", ErrVersionConflict, c, id, doc.version, expected)
	}
	delete(docs, id)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// checkUnique must be called with m.mu held.
func (m *MemoryStore) checkUnique(c Collection, id string, fields map[string]any) error {
	for _, group := range uniqueFields[c] {
		key, ok := uniqueKey(fields, group)
		if !ok {
			continue
		}
		for otherID, other := range m.collections[c] {
			if otherID == id {
				continue
			}
			if otherKey, ok := uniqueKey(other.fields, group); ok && otherKey == key {
				return fmt.Errorf("%w: %s.%s", ErrDuplicate, c, strings.Join(group, ","))
			}
		}
	}
	return nil
}

func uniqueKey(fields map[string]any, group []string) (string, bool) {
	parts := make([]string, 0, len(group))
	for _, f := range group {
		s, ok := fields[f].(string)
		if !ok {
			return "", false
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "\x00"), true
}

func matches(fields map[string]any, filter []Condition) bool {
	for _, cond := range filter {
		s, ok := fields[cond.Field].(string)
		if !ok {
			return false
		}
		if cond.Prefix {
			if !strings.HasPrefix(s, cond.Value) {
				return false
			}
		} else if s != cond.Value {
			return false
		}
	}
	return true
}

func decodeFields(data []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("store: document is not a JSON object: %w", err)
	}
	return fields, nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
