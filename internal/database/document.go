// Package database provides the document collections behind jobs and bids.
// A collection supports find, findOne, insertOne, updateOne and deleteOne
// over JSON documents. Filters are equality matches keyed by dotted paths
// ("buyer.email"); updates are $set style.
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// IDField is the document key holding its id.
const IDField = "_id"

var (
	// ErrNoDocuments is returned by FindOne when nothing matches.
	ErrNoDocuments = errors.New("no documents in result")
	// ErrDuplicateID is returned by InsertOne when the id already exists.
	ErrDuplicateID = errors.New("duplicate document id")
	// ErrInvalidID is returned by ParseID for anything but a UUID.
	ErrInvalidID = errors.New("invalid id")
)

// ParseID validates a document id taken from a request and returns its
// canonical form.
func ParseID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return id.String(), nil
}

// Document is a JSON object stored in a collection.
type Document map[string]any

// ID returns the document id, or "" if it has none.
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Filter maps dotted field paths to the value they must equal.
type Filter map[string]any

// Update describes field assignments applied to one document.
type Update struct {
	Set Document
}

// UpdateOptions controls UpdateOne.
type UpdateOptions struct {
	// Upsert inserts a document built from the filter and Set when nothing matches.
	Upsert bool
}

// InsertResult reports an insertOne.
type InsertResult struct {
	Acknowledged bool   `json:"acknowledged"`
	InsertedID   string `json:"insertedId"`
}

// UpdateResult reports an updateOne.
type UpdateResult struct {
	Acknowledged  bool    `json:"acknowledged"`
	MatchedCount  int64   `json:"matchedCount"`
	ModifiedCount int64   `json:"modifiedCount"`
	UpsertedCount int64   `json:"upsertedCount"`
	UpsertedID    *string `json:"upsertedId"`
}

// DeleteResult reports a deleteOne.
type DeleteResult struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}

// Collection is a named set of documents.
type Collection interface {
	Find(ctx context.Context, filter Filter) ([]Document, error)
	FindOne(ctx context.Context, filter Filter) (Document, error)
	InsertOne(ctx context.Context, doc Document) (InsertResult, error)
	UpdateOne(ctx context.Context, filter Filter, update Update, opts UpdateOptions) (UpdateResult, error)
	DeleteOne(ctx context.Context, filter Filter) (DeleteResult, error)
}

// Service is a connected store handle. It is created once at startup,
// injected into repositories and closed on shutdown.
type Service interface {
	Collection(name string) Collection
	Health(ctx context.Context) map[string]string
	Close() error
}

// ByID matches the document with id and every condition in guard.
func ByID(id string, guard Filter) Filter {
	filter := Filter{IDField: id}
	for path, value := range guard {
		if path != IDField {
			filter[path] = value
		}
	}
	return filter
}

// StoreError wraps a failure from the underlying store. Its message is for
// logs; callers answer clients with a generic error.
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Lookup resolves a dotted path inside doc.
func Lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// LookupString resolves a dotted path and returns it when it holds a string.
func LookupString(doc map[string]any, path string) (string, bool) {
	v, ok := Lookup(doc, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ApplySet returns a copy of doc with each Set path assigned, creating
// intermediate objects as needed. The id is never reassigned. changed
// reports whether the result differs from doc.
func ApplySet(doc Document, set Document) (Document, bool, error) {
	before, err := normalize(doc)
	if err != nil {
		return nil, false, err
	}
	values, err := normalize(set)
	if err != nil {
		return nil, false, err
	}

	after, err := normalize(before)
	if err != nil {
		return nil, false, err
	}
	for _, key := range sortedKeys(values) {
		if key == IDField {
			continue
		}
		setPath(after, strings.Split(key, "."), values[key])
	}

	return after, !reflect.DeepEqual(before, after), nil
}

// seedFromFilter builds the document an upsert starts from: every filter
// path becomes a nested field.
func seedFromFilter(filter Filter) Document {
	seed := Document{}
	for _, key := range sortedKeys(filter) {
		setPath(seed, strings.Split(key, "."), filter[key])
	}
	return seed
}

func matches(doc Document, filter Filter) bool {
	for path, want := range filter {
		got, ok := Lookup(doc, path)
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func setPath(m map[string]any, parts []string, value any) {
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(m[part])
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}

// normalize deep-copies v through JSON so numbers, nested objects and
// arrays have the same shape they have after a round trip through the store.
func normalize[M ~map[string]any](v M) (Document, error) {
	if v == nil {
		return Document{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	out := Document{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}

func normalizeFilter(filter Filter) (Filter, error) {
	doc, err := normalize(filter)
	if err != nil {
		return nil, err
	}
	return Filter(doc), nil
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
