package shelfstate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saaga0h/shelf-bridge/pkg/config"
	"github.com/saaga0h/shelf-bridge/pkg/postgres"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRedis is an in-memory stand-in for redis.Client
type fakeRedis struct {
	mu      sync.Mutex
	hashes  map[string]map[string]string
	failSet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: make(map[string]map[string]string)}
}

func (f *fakeRedis) HSetFields(ctx context.Context, key string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return f.failSet
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v.(string)
	}
	return nil
}

func (f *fakeRedis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }
func (f *fakeRedis) Close() error                   { return nil }

// storeContract runs the behaviour every Store must share
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	_, err := store.Read(ctx, 2)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Upsert(ctx, 1, FieldPrimaryDistance, 470))
	require.NoError(t, store.Upsert(ctx, 1, FieldPrimaryDistance, 470))

	st, err := store.Read(ctx, 1)
	require.NoError(t, err)
	v, ok := st.Value(FieldPrimaryDistance)
	assert.True(t, ok)
	assert.Equal(t, 470.0, v)
	assert.Nil(t, st.D2mm)
	assert.Nil(t, st.WeightG)
	assert.False(t, st.UpdatedAt.IsZero())

	// A second field on the same shelf leaves the first untouched
	require.NoError(t, store.Upsert(ctx, 1, FieldWeight, 12.5))
	st, err = store.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 470.0, *st.D1mm)
	assert.Equal(t, 12.5, *st.WeightG)

	// Other shelves are isolated
	_, err = store.Read(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Upsert(ctx, 4, FieldWeight, 1), ErrInvalidShelf)
	assert.ErrorIs(t, store.Upsert(ctx, 1, Field("price"), 1), ErrUnknownField)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	storeContract(t, NewRedisStore(newFakeRedis(), testLogger()))
}

func TestRedisStoreLayout(t *testing.T) {
	fake := newFakeRedis()
	store := NewRedisStore(fake, testLogger())
	store.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, store.Upsert(context.Background(), 3, FieldWeight, 1600))

	assert.Equal(t, map[string]string{
		"weight_g":   "1600",
		"updated_at": "2025-03-01T12:00:00Z",
	}, fake.hashes["shelf:state:3"])
}

func TestRedisStoreUpsertError(t *testing.T) {
	fake := newFakeRedis()
	fake.failSet = errors.New("connection refused")
	store := NewRedisStore(fake, testLogger())

	err := store.Upsert(context.Background(), 1, FieldPrimaryDistance, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisStoreSkipsCorruptField(t *testing.T) {
	fake := newFakeRedis()
	fake.hashes["shelf:state:2"] = map[string]string{"d2_mm": "n/a", "weight_g": "5"}
	store := NewRedisStore(fake, testLogger())

	st, err := store.Read(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, st.D2mm)
	assert.Equal(t, 5.0, *st.WeightG)
}

func TestFieldForShelf(t *testing.T) {
	tests := []struct {
		shelf   int
		want    Field
		wantErr bool
	}{
		{1, FieldPrimaryDistance, false},
		{2, FieldSecondaryDistance, false},
		{3, FieldWeight, false},
		{0, "", true},
		{4, "", true},
	}

	for _, tt := range tests {
		got, err := FieldForShelf(tt.shelf)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidShelf)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestUpsertQueryTargetsOneColumn(t *testing.T) {
	q := upsertQuery(FieldSecondaryDistance)
	assert.Contains(t, q, "INSERT INTO shelf_state (shelf, d2_mm, updated_at)")
	assert.Contains(t, q, "d2_mm = EXCLUDED.d2_mm")
	assert.NotContains(t, q, "d1_mm")
	assert.NotContains(t, q, "weight_g")
}

// setupTestPostgres connects to SHELF_TEST_POSTGRES_HOST when set
func setupTestPostgres(t *testing.T) postgres.Client {
	host := os.Getenv("SHELF_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("Integration test - requires PostgreSQL (set SHELF_TEST_POSTGRES_HOST)")
	}

	cfg := config.NewConfig()
	cfg.PostgresHost = host
	cfg.LoadFromEnv()

	client := postgres.NewClient(cfg, testLogger())
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { client.Disconnect() })

	_, err := client.Exec(context.Background(), "DROP TABLE IF EXISTS shelf_state")
	require.NoError(t, err)
	return client
}

func TestPostgresStore(t *testing.T) {
	client := setupTestPostgres(t)
	store := NewPostgresStore(client, testLogger())
	ctx := context.Background()

	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx), "schema bootstrap is repeatable")

	// Seeded rows exist but carry no readings
	st, err := store.Read(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, st.D2mm)

	require.NoError(t, store.Upsert(ctx, 1, FieldPrimaryDistance, 470))
	st, err = store.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 470.0, *st.D1mm)

	err = store.Upsert(ctx, 1, Field(strings.Repeat("x", 3)), 1)
	assert.ErrorIs(t, err, ErrUnknownField)
}
