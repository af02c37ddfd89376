package kivaquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheEntry records which file holds the cached result of one query url
type CacheEntry struct {
	Type  string `json:"type"`
	Query string `json:"query"`
	File  string `json:"file"`
}

// IndexStore persists the list of cached queries between runs
type IndexStore interface {
	Load(ctx context.Context) ([]CacheEntry, error)
	Save(ctx context.Context, entries []CacheEntry) error
}

type FileIndexStore struct {
	Path string
}

func (s FileIndexStore) Load(ctx context.Context) ([]CacheEntry, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read cache index %q: %w", s.Path, err)
	}

	var entries []CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unable to decode cache index %q: %w", s.Path, err)
	}

	return entries, nil
}

func (s FileIndexStore) Save(ctx context.Context, entries []CacheEntry) error {
	if entries == nil {
		entries = []CacheEntry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to encode cache index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("unable to create cache index dir: %w", err)
	}

	return writeFileAtomic(s.Path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("unable to write %q: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("unable to finalize %q: %w", path, err)
	}

	return nil
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	Timeout     time.Duration
	Prefix      string
}

// RedisIndexStore keeps the cache index as one json value so several machines sharing a cache dir see the same queries
type RedisIndexStore struct {
	client *redis.Client
	key    string
}

func NewRedisIndexStore(ctx context.Context, cfg RedisConfig) (*RedisIndexStore, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("unable to connect to redis at %q: %w", cfg.Addr, err)
	}

	return &RedisIndexStore{client: rdb, key: cfg.Prefix + "query_cache"}, nil
}

func (s *RedisIndexStore) Load(ctx context.Context) ([]CacheEntry, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to get cache index from redis: %w", err)
	}

	var entries []CacheEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unable to decode cache index from redis: %w", err)
	}

	return entries, nil
}

func (s *RedisIndexStore) Save(ctx context.Context, entries []CacheEntry) error {
	if entries == nil {
		entries = []CacheEntry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("unable to encode cache index: %w", err)
	}

	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("unable to save cache index to redis: %w", err)
	}

	return nil
}

func (s *RedisIndexStore) Close() error {
	return s.client.Close()
}
