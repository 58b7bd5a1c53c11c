package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps documents as JSONB rows in the documents table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a PostgresStore on an open pool. The schema must
// already be migrated.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, c Collection, id string, data []byte) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx,
		"INSERT INTO documents (collection, id, version, doc) VALUES ($1, $2, 1, $3) RETURNING version",
		string(c), id, data,
	).Scan(&version)
	if err != nil {
		if isPgUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s/%s", ErrDuplicate, c, id)
		}
		return 0, fmt.Errorf("failed to create %s document: %w", c, err)
	}
	return version, nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, c Collection, id string) (*Record, error) {
	rec := &Record{ID: id}
	err := s.pool.QueryRow(ctx,
		"SELECT version, doc FROM documents WHERE collection = $1 AND id = $2",
		string(c), id,
	).Scan(&rec.Version, &rec.Data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s document: %w", c, err)
	}
	return rec, nil
}

// Query implements Store.
func (s *PostgresStore) Query(ctx context.Context, c Collection, filter ...Condition) ([]*Record, error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, version, doc FROM documents WHERE collection = $1")
	args := []any{string(c)}
	for _, cond := range filter {
		args = append(args, cond.Field)
		fieldArg := len(args)
		if cond.Prefix {
			args = append(args, escapeLike(cond.Value)+"%")
			fmt.Fprintf(&sb, " AND doc->>($%d::text) LIKE $%d", fieldArg, len(args))
		} else {
			args = append(args, cond.Value)
			fmt.Fprintf(&sb, " AND doc->>($%d::text) = $%d", fieldArg, len(args))
		}
	}
	sb.WriteString(" ORDER BY id")

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ID, &rec.Version, &rec.Data); err != nil {
			return nil, fmt.Errorf("failed to scan %s document: %w", c, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", c, err)
	}
	return out, nil
}

// Replace implements Store.
func (s *PostgresStore) Replace(ctx context.Context, c Collection, id string, data []byte, expected int64) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx,
		`UPDATE documents SET doc = $1, version = version + 1, updated_at = now()
		 WHERE collection = $2 AND id = $3 AND version = $4
		 RETURNING version`,
		data, string(c), id, expected,
	).Scan(&version)
	if err == nil {
		return version, nil
	}
	if isPgUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %s/%s", ErrDuplicate, c, id)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to replace %s document: %w", c, err)
	}

	// No row matched: either the document is gone or someone else wrote first.
	if _, getErr := s.Get(ctx, c, id); getErr != nil {
		return 0, getErr
	}
	return 0, fmt.Errorf("%w: %s/%s expected version %d", ErrVersionConflict, c, id, expected)
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, c Collection, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM documents WHERE collection = $1 AND id = $2", string(c), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s document: %w", c, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVersion implements Store.
func (s *PostgresStore) DeleteVersion(ctx context.Context, c Collection, id string, expected int64) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM documents WHERE collection = $1 AND id = $2 AND version = $3",
		string(c), id, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s document: %w", c, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, getErr := s.Get(ctx, c, id); getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: %s/%s expected version %d", ErrVersionConflict, c, id, expected)
}

// Close implements Store. The pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
