package history

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aisdlc/copilot/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	r := NewRecord(KindPyTest, "login tests")

	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, KindPyTest, r.Kind)
	assert.Equal(t, "login tests", r.Summary)
	assert.WithinDuration(t, time.Now(), r.CreatedAt, time.Second)
	assert.Equal(t, time.UTC, r.CreatedAt.Location())
}

func TestMemoryStore_SaveAndList(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, NewRecord(KindTestCases, fmt.Sprintf("req %d", i))))
	}

	records, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "req 2", records[0].Summary, "newest first")
	assert.Equal(t, "req 0", records[2].Summary)

	records, err = s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "req 1", records[1].Summary)
}

func TestMemoryStore_Empty(t *testing.T) {
	s := NewMemoryStore(0)
	assert.Equal(t, DefaultCapacity, s.capacity)

	records, err := s.List(context.Background(), 5)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestMemoryStore_DropsOldest(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()

	for _, summary := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, NewRecord(KindPyTest, summary)))
	}

	records, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].Summary)
	assert.Equal(t, "b", records[1].Summary)
}

func TestMemoryStore_SavesCopy(t *testing.T) {
	s := NewMemoryStore(2)
	r := NewRecord(KindPyTest, "original")
	require.NoError(t, s.Save(context.Background(), r))

	r.Summary = "mutated"

	records, _ := s.List(context.Background(), 1)
	assert.Equal(t, "original", records[0].Summary)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Save(ctx, NewRecord(KindTestCases, "x"))
			_, _ = s.List(ctx, 5)
		}()
	}
	wg.Wait()

	records, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 50)
}

func TestPostgresStore(t *testing.T) {
	testDB := testutil.RequireDB(t, "generation_history")
	ctx := context.Background()

	s, err := NewPostgresStoreWithPool(ctx, testDB.Pool)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	older := NewRecord(KindTestCases, "first")
	older.CreatedAt = time.Now().Add(-time.Minute).UTC()
	older.Count = 5
	older.Provider = "groq"

	newer := NewRecord(KindPyTest, "second")
	newer.ModuleName = "test_login"
	newer.Count = 3
	newer.Provider = "gemini"
	newer.Model = "gemini-2.0-flash"
	newer.DurationMS = 1200

	require.NoError(t, s.Save(ctx, older))
	require.NoError(t, s.Save(ctx, newer))

	records, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	got := records[0]
	assert.Equal(t, newer.ID, got.ID)
	assert.Equal(t, KindPyTest, got.Kind)
	assert.Equal(t, "test_login", got.ModuleName)
	assert.Equal(t, 3, got.Count)
	assert.Equal(t, "gemini-2.0-flash", got.Model)
	assert.Equal(t, int64(1200), got.DurationMS)
	assert.Equal(t, older.ID, records[1].ID)

	records, err = s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
