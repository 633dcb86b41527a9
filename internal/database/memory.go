package database

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps collections in process memory. It backs local
// development when no DATABASE_URL is configured, and the handler tests.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// Collection returns the named collection, creating it on first use.
func (s *MemoryStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[name]
	if !ok {
		coll = &memoryCollection{name: name}
		s.collections[name] = coll
	}
	return coll
}

// Health reports the store as up along with its document count.
func (s *MemoryStore) Health(ctx context.Context) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, coll := range s.collections {
		total += coll.len()
	}
	return map[string]string{
		"status":    "up",
		"driver":    "memory",
		"documents": strconv.Itoa(total),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

type memoryCollection struct {
	mu   sync.RWMutex
	name string
	docs []Document
}

func (c *memoryCollection) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

func (c *memoryCollection) Find(ctx context.Context, filter Filter) ([]Document, error) {
	f, err := normalizeFilter(filter)
	if err != nil {
		return nil, &StoreError{Op: "find", Collection: c.name, Err: err}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	result := []Document{}
	for _, doc := range c.docs {
		if matches(doc, f) {
			copied, err := normalize(doc)
			if err != nil {
				return nil, &StoreError{Op: "find", Collection: c.name, Err: err}
			}
			result = append(result, copied)
		}
	}
	return result, nil
}

func (c *memoryCollection) FindOne(ctx context.Context, filter Filter) (Document, error) {
	f, err := normalizeFilter(filter)
	if err != nil {
		return nil, &StoreError{Op: "findOne", Collection: c.name, Err: err}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if i := c.indexOf(f); i >= 0 {
		copied, err := normalize(c.docs[i])
		if err != nil {
			return nil, &StoreError{Op: "findOne", Collection: c.name, Err: err}
		}
		return copied, nil
	}
	return nil, ErrNoDocuments
}

func (c *memoryCollection) InsertOne(ctx context.Context, doc Document) (InsertResult, error) {
	stored, err := normalize(doc)
	if err != nil {
		return InsertResult{}, &StoreError{Op: "insertOne", Collection: c.name, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
	} else if c.indexOf(Filter{IDField: id}) >= 0 {
		return InsertResult{}, &StoreError{Op: "insertOne", Collection: c.name, Err: fmt.Errorf("%w: %s", ErrDuplicateID, id)}
	}
	stored[IDField] = id
	c.docs = append(c.docs, stored)

	return InsertResult{Acknowledged: true, InsertedID: id}, nil
}

func (c *memoryCollection) UpdateOne(ctx context.Context, filter Filter, update Update, opts UpdateOptions) (UpdateResult, error) {
	f, err := normalizeFilter(filter)
	if err != nil {
		return UpdateResult{}, &StoreError{Op: "updateOne", Collection: c.name, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(f)
	if i < 0 {
		if !opts.Upsert {
			return UpdateResult{Acknowledged: true}, nil
		}
		doc, _, err := ApplySet(seedFromFilter(f), update.Set)
		if err != nil {
			return UpdateResult{}, &StoreError{Op: "updateOne", Collection: c.name, Err: err}
		}
		id := doc.ID()
		if id == "" {
			id = uuid.NewString()
			doc[IDField] = id
		} else if c.indexOf(Filter{IDField: id}) >= 0 {
			// the id exists but the rest of the filter did not match
			return UpdateResult{}, &StoreError{Op: "updateOne", Collection: c.name, Err: fmt.Errorf("%w: %s", ErrDuplicateID, id)}
		}
		c.docs = append(c.docs, doc)
		return UpdateResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: &id}, nil
	}

	doc, changed, err := ApplySet(c.docs[i], update.Set)
	if err != nil {
		return UpdateResult{}, &StoreError{Op: "updateOne", Collection: c.name, Err: err}
	}
	result := UpdateResult{Acknowledged: true, MatchedCount: 1}
	if changed {
		c.docs[i] = doc
		result.ModifiedCount = 1
	}
	return result, nil
}

func (c *memoryCollection) DeleteOne(ctx context.Context, filter Filter) (DeleteResult, error) {
	f, err := normalizeFilter(filter)
	if err != nil {
		return DeleteResult{}, &StoreError{Op: "deleteOne", Collection: c.name, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(f)
	if i < 0 {
		return DeleteResult{Acknowledged: true}, nil
	}
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
	return DeleteResult{Acknowledged: true, DeletedCount: 1}, nil
}

// indexOf must be called with c.mu held.
func (c *memoryCollection) indexOf(f Filter) int {
	for i, doc := range c.docs {
		if matches(doc, f) {
			return i
		}
	}
	return -1
}
