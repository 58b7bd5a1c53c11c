package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kaenova/prompty/internal/database"
	"github.com/kaenova/prompty/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID        string `json:"id"`
	Version   int64  `json:"version"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
}

func (n *note) DocumentID() string         { return n.ID }
func (n *note) DocumentVersion() int64     { return n.Version }
func (n *note) SetDocumentVersion(v int64) { n.Version = v }

func backends(t *testing.T) map[string]store.Store {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "prompty.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]store.Store{
		"memory": store.NewMemoryStore(),
		"sqlite": store.NewSQLiteStore(db),
	}
}

func TestStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			t.Run("create and get", func(t *testing.T) { testCreateGet(t, s) })
			t.Run("query", func(t *testing.T) { testQuery(t, s) })
			t.Run("replace", func(t *testing.T) { testReplace(t, s) })
			t.Run("delete", func(t *testing.T) { testDelete(t, s) })
			t.Run("versioned delete", func(t *testing.T) { testDeleteVersion(t, s) })
			t.Run("unique fields", func(t *testing.T) { testUnique(t, s) })
			t.Run("concurrent replace", func(t *testing.T) { testConcurrentReplace(t, s) })
		})
	}
}

func testCreateGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	n := &note{ID: "cg-1", ProjectID: "p-cg", Name: "alpha"}
	require.NoError(t, store.Insert(ctx, s, store.Agents, n))
	assert.Equal(t, int64(1), n.Version)

	got, err := store.Fetch[note](ctx, s, store.Agents, "cg-1")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
	assert.Equal(t, int64(1), got.Version)

	_, err = store.Fetch[note](ctx, s, store.Agents, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = store.Insert(ctx, s, store.Agents, &note{ID: "cg-1", ProjectID: "p-cg", Name: "other"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func testQuery(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, n := range []*note{
		{ID: "q-2", ProjectID: "p-q", Name: "beta"},
		{ID: "q-1", ProjectID: "p-q", Name: "alpha"},
		{ID: "q-3", ProjectID: "p-other", Name: "alpha"},
		{ID: "q-4", ProjectID: "p-q%", Name: "gamma"},
	} {
		require.NoError(t, store.Insert(ctx, s, store.Agents, n))
	}

	docs, err := store.Find[note](ctx, s, store.Agents, store.Eq("projectId", "p-q"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "q-1", docs[0].ID)
	assert.Equal(t, "q-2", docs[1].ID)

	docs, err = store.Find[note](ctx, s, store.Agents, store.Eq("projectId", "p-q"), store.Eq("name", "alpha"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "q-1", docs[0].ID)

	docs, err = store.Find[note](ctx, s, store.Agents, store.HasPrefix("projectId", "p-q%"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "q-4", docs[0].ID)

	_, err = store.FindOne[note](ctx, s, store.Agents, store.Eq("projectId", "nope"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Query(ctx, store.Agents, store.Eq("name') OR 1=1 --", "x"))
	assert.ErrorIs(t, err, store.ErrInvalidFilter)
}

func testReplace(t *testing.T, s store.Store) {
	ctx := context.Background()
	n := &note{ID: "r-1", ProjectID: "p-r", Name: "first"}
	require.NoError(t, store.Insert(ctx, s, store.Agents, n))

	stale := *n
	n.Name = "second"
	require.NoError(t, store.Save(ctx, s, store.Agents, n))
	assert.Equal(t, int64(2), n.Version)

	stale.Name = "lost update"
	err := store.Save(ctx, s, store.Agents, &stale)
	assert.ErrorIs(t, err, store.ErrVersionConflict)

	got, err := store.Fetch[note](ctx, s, store.Agents, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)

	data, _ := json.Marshal(&note{ID: "ghost"})
	_, err = s.Replace(ctx, store.Agents, "ghost", data, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, s, store.Agents, &note{ID: "d-1", ProjectID: "p-d", Name: "x"}))
	require.NoError(t, s.Delete(ctx, store.Agents, "d-1"))
	assert.ErrorIs(t, s.Delete(ctx, store.Agents, "d-1"), store.ErrNotFound)
}

func testDeleteVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	stale := &note{ID: "dv-1", ProjectID: "p-dv", Name: "x"}
	require.NoError(t, store.Insert(ctx, s, store.Agents, stale))

	fresh := *stale
	fresh.Name = "y"
	require.NoError(t, store.Save(ctx, s, store.Agents, &fresh))

	assert.ErrorIs(t, store.Remove(ctx, s, store.Agents, stale), store.ErrVersionConflict)
	_, err := s.Get(ctx, store.Agents, "dv-1")
	require.NoError(t, err, "a rejected delete leaves the document in place")

	require.NoError(t, store.Remove(ctx, s, store.Agents, &fresh))
	assert.ErrorIs(t, store.Remove(ctx, s, store.Agents, &fresh), store.ErrNotFound)
}

func testUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, s, store.Agents, &note{ID: "u-1", ProjectID: "p-u", Name: "same"}))

	err := store.Insert(ctx, s, store.Agents, &note{ID: "u-2", ProjectID: "p-u", Name: "same"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// Same name in another project is fine.
	require.NoError(t, store.Insert(ctx, s, store.Agents, &note{ID: "u-3", ProjectID: "p-u2", Name: "same"}))

	// Renaming onto a taken name is rejected too.
	other := &note{ID: "u-4", ProjectID: "p-u", Name: "different"}
	require.NoError(t, store.Insert(ctx, s, store.Agents, other))
	other.Name = "same"
	assert.ErrorIs(t, store.Save(ctx, s, store.Agents, other), store.ErrDuplicate)

	require.NoError(t, store.Insert(ctx, s, store.Users, &note{ID: "user-1", Email: "a@example.com"}))
	err = store.Insert(ctx, s, store.Users, &note{ID: "user-2", Email: "a@example.com"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func testConcurrentReplace(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, s, store.Projects, &note{ID: "c-1", Name: "0"}))

	const writers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			data, _ := json.Marshal(&note{ID: "c-1", Name: "w"})
			_, err := s.Replace(ctx, store.Projects, "c-1", data, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrVersionConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
}

func TestRetryOnConflict(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, s, store.Projects, &note{ID: "p-1", Name: "0"}))

	calls := 0
	err := store.RetryOnConflict(ctx, "test", func() error {
		calls++
		n, err := store.Fetch[note](ctx, s, store.Projects, "p-1")
		if err != nil {
			return err
		}
		if calls == 1 {
			// A competing writer lands between our read and write.
			rival := *n
			rival.Name = "rival"
			require.NoError(t, store.Save(ctx, s, store.Projects, &rival))
		}
		n.Name = n.Name + "+mine"
		return store.Save(ctx, s, store.Projects, n)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	got, err := store.Fetch[note](ctx, s, store.Projects, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "rival+mine", got.Name)
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := store.RetryOnConflict(context.Background(), "test", func() error {
		calls++
		return store.ErrVersionConflict
	})
	assert.ErrorIs(t, err, store.ErrVersionConflict)
	assert.Equal(t, int(store.ConflictAttempts), calls)
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := store.RetryOnConflict(context.Background(), "test", func() error {
		calls++
		return store.ErrNotFound
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1, calls)
}

type slowStore struct{ store.Store }

func (slowStore) Get(ctx context.Context, _ store.Collection, _ string) (*store.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithTimeoutClassifiesFailures(t *testing.T) {
	s := store.WithTimeout(slowStore{store.NewMemoryStore()}, 10*time.Millisecond)

	_, err := s.Get(context.Background(), store.Users, "x")
	assert.ErrorIs(t, err, store.ErrUnavailable)

	// Domain outcomes pass through untouched.
	_, err = s.Query(context.Background(), store.Users, store.Eq("bad field", "x"))
	assert.ErrorIs(t, err, store.ErrInvalidFilter)
	assert.NotErrorIs(t, err, store.ErrUnavailable)
}
