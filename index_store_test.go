package kivaquery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEntries = []CacheEntry{
	{Type: "Loans", Query: "https://api.kivaws.org/v1/loans/newest.json?page=1", File: "/cache/Loans/queryCache_1.json"},
	{Type: "Lenders", Query: "https://api.kivaws.org/v1/lenders/matt.json", File: "/cache/Lenders/queryCache_1.json"},
}

func TestFileIndexStore(t *testing.T) {
	ctx := context.Background()
	s := FileIndexStore{Path: filepath.Join(t.TempDir(), "data", "query_cache.json")}

	entries, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.Save(ctx, testEntries))

	entries, err = s.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(testEntries, entries); diff != "" {
		t.Errorf("loaded entries mismatch (-want +got):\n%s", diff)
	}

	_, err = os.Stat(s.Path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileIndexStoreSavesEmptyList(t *testing.T) {
	s := FileIndexStore{Path: filepath.Join(t.TempDir(), "query_cache.json")}
	require.NoError(t, s.Save(context.Background(), nil))

	data, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestRedisIndexStore(t *testing.T) {
	addr := os.Getenv("KIVAQUERY_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KIVAQUERY_TEST_REDIS_ADDR is not set")
	}

	ctx := context.Background()
	s, err := NewRedisIndexStore(ctx, RedisConfig{Addr: addr, Prefix: "kivaquery_test_" + t.Name() + "_"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(ctx, nil))
	entries, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.Save(ctx, testEntries))
	entries, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, testEntries, entries)
}
