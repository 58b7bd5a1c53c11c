// Package store is the document store every service persists through. It
// offers create, read-by-id, query-by-filter, replace and delete, each scoped
// to a named collection and keyed by id. Documents carry a version that
// Replace checks, so read-modify-write cycles detect concurrent writers.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Collection names a group of documents.
type Collection string

const (
	Users    Collection = "users"
	Invites  Collection = "user_invites"
	Projects Collection = "projects"
	Agents   Collection = "agents"
	Prompts  Collection = "agent_prompts"
	APIKeys  Collection = "project_api_keys"
)

// Collections lists every collection the service uses.
var Collections = []Collection{Users, Invites, Projects, Agents, Prompts, APIKeys}

var (
	ErrNotFound        = errors.New("store: document not found")
	ErrDuplicate       = errors.New("store: duplicate value for unique field")
	ErrVersionConflict = errors.New("store: version conflict")
	ErrUnavailable     = errors.New("store: unavailable")
	ErrInvalidFilter   = errors.New("store: invalid filter")
)

// uniqueFields declares the field groups that must be unique per collection.
// Backends enforce them atomically with the write.
var uniqueFields = map[Collection][][]string{
	Users:   {{"email"}},
	Invites: {{"token"}},
	APIKeys: {{"apiKey"}},
	Agents:  {{"projectId", "name"}},
}

// Record is a stored document.
type Record struct {
	ID      string
	Version int64
	Data    []byte // JSON
}

// Condition matches a top-level string field of a document.
type Condition struct {
	Field  string
	Value  string
	Prefix bool
}

// Eq matches documents whose field equals value.
func Eq(field, value string) Condition {
	return Condition{Field: field, Value: value}
}

// HasPrefix matches documents whose field starts with value.
func HasPrefix(field, value string) Condition {
	return Condition{Field: field, Value: value, Prefix: true}
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateFilter rejects field names that are not plain identifiers.
func ValidateFilter(filter []Condition) error {
	for _, cond := range filter {
		if !fieldPattern.MatchString(cond.Field) {
			return fmt.Errorf("%w: field %q", ErrInvalidFilter, cond.Field)
		}
	}
	return nil
}

// Store is the document store contract.
type Store interface {
	// Create inserts a new document and returns its initial version (1).
	Create(ctx context.Context, c Collection, id string, data []byte) (int64, error)
	// Get reads one document by id.
	Get(ctx context.Context, c Collection, id string) (*Record, error)
	// Query returns every document matching all conditions. An empty filter matches all.
	Query(ctx context.Context, c Collection, filter ...Condition) ([]*Record, error)
	// Replace overwrites a document when its stored version equals expected
	// and returns the new version.
	Replace(ctx context.Context, c Collection, id string, data []byte, expected int64) (int64, error)
	// Delete removes a document. Deleting a missing document returns ErrNotFound.
	Delete(ctx context.Context, c Collection, id string) error
	// DeleteVersion removes a document only while its stored version equals
	// expected, failing with ErrVersionConflict otherwise.
	DeleteVersion(ctx context.Context, c Collection, id string, expected int64) error
	Close() error
}

// IsDomainError reports whether err is one of the store's sentinel outcomes
// (as opposed to an infrastructure failure).
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrInvalidFilter)
}
