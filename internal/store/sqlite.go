package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore keeps documents as JSON text in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLiteStore on an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, c Collection, id string, data []byte) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, version, doc) VALUES (?, ?, 1, ?)",
		string(c), id, string(data),
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return 0, fmt.Errorf("%w: %s/%s", ErrDuplicate, c, id)
		}
		return 0, fmt.Errorf("failed to create %s document: %w", c, err)
	}
	return 1, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, c Collection, id string) (*Record, error) {
	rec := &Record{ID: id}
	var doc string
	err := s.db.QueryRowContext(ctx,
		"SELECT version, doc FROM documents WHERE collection = ? AND id = ?",
		string(c), id,
	).Scan(&rec.Version, &doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s document: %w", c, err)
	}
	rec.Data = []byte(doc)
	return rec, nil
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, c Collection, filter ...Condition) ([]*Record, error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, version, doc FROM documents WHERE collection = ?")
	args := []any{string(c)}
	for _, cond := range filter {
		// Field names are validated identifiers, safe to inline in the JSON path.
		path := "'$." + cond.Field + "'"
		if cond.Prefix {
			sb.WriteString(" AND substr(json_extract(doc, " + path + "), 1, length(?)) = ?")
			args = append(args, cond.Value, cond.Value)
		} else {
			sb.WriteString(" AND json_extract(doc, " + path + ") = ?")
			args = append(args, cond.Value)
		}
	}
	sb.WriteString(" ORDER BY id")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		var doc string
		if err := rows.Scan(&rec.ID, &rec.Version, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan %s document: %w", c, err)
		}
		rec.Data = []byte(doc)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", c, err)
	}
	return out, nil
}

// Replace implements Store.
func (s *SQLiteStore) Replace(ctx context.Context, c Collection, id string, data []byte, expected int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET doc = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE collection = ? AND id = ? AND version = ?`,
		string(data), string(c), id, expected,
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return 0, fmt.Errorf("%w: %s/%s", ErrDuplicate, c, id)
		}
		return 0, fmt.Errorf("failed to replace %s document: %w", c, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to replace %s document: %w", c, err)
	}
	if n == 1 {
		return expected + 1, nil
	}

	if _, getErr := s.Get(ctx, c, id); getErr != nil {
		return 0, getErr
	}
	return 0, fmt.Errorf("%w: %s/%s expected version %d", ErrVersionConflict, c, id, expected)
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, c Collection, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", string(c), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s document: %w", c, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s document: %w", c, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVersion implements Store.
func (s *SQLiteStore) DeleteVersion(ctx context.Context, c Collection, id string, expected int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ? AND version = ?",
		string(c), id, expected,
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s document: %w", c, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete %s document: %w", c, err)
	}
	if n == 1 {
		return nil
	}
	if _, getErr := s.Get(ctx, c, id); getErr != nil {
		return getErr
	}
	return fmt.Errorf("%w: %s/%s expected version %d", ErrVersionConflict, c, id, expected)
}

// Close implements Store. The database handle is owned by the caller.
func (s *SQLiteStore) Close() error { return nil }

func isSQLiteConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	// Extended codes keep the primary code in the low byte.
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
