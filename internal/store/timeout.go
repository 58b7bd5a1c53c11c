package store

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single backend call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// timeoutStore bounds every call and folds infrastructure failures into
// ErrUnavailable, so callers can tell "retry later" apart from domain outcomes.
type timeoutStore struct {
	next    Store
	timeout time.Duration
}

// WithTimeout wraps s so each call runs under its own deadline.
func WithTimeout(s Store, timeout time.Duration) Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutStore{next: s, timeout: timeout}
}

func (t *timeoutStore) Create(ctx context.Context, c Collection, id string, data []byte) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	v, err := t.next.Create(ctx, c, id, data)
	return v, classify(err)
}

func (t *timeoutStore) Get(ctx context.Context, c Collection, id string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	rec, err := t.next.Get(ctx, c, id)
	return rec, classify(err)
}

func (t *timeoutStore) Query(ctx context.Context, c Collection, filter ...Condition) ([]*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	recs, err := t.next.Query(ctx, c, filter...)
	return recs, classify(err)
}

func (t *timeoutStore) Replace(ctx context.Context, c Collection, id string, data []byte, expected int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	v, err := t.next.Replace(ctx, c, id, data, expected)
	return v, classify(err)
}

func (t *timeoutStore) Delete(ctx context.Context, c Collection, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return classify(t.next.Delete(ctx, c, id))
}

func (t *timeoutStore) DeleteVersion(ctx context.Context, c Collection, id string, expected int64) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return classify(t.next.DeleteVersion(ctx, c, id, expected))
}

func (t *timeoutStore) Close() error { return t.next.Close() }

func classify(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
