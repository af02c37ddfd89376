package kivaquery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"kivaquery/kiva"
)

type queryFiles struct {
	order []string
	files map[string]string
}

// ResultManager answers query urls from files cached on disk and only goes to the api on a miss
type ResultManager struct {
	fetcher  kiva.Fetcher
	cacheDir string
	index    IndexStore
	logger   *zap.Logger

	mu      sync.Mutex
	types   []QueryType
	entries map[QueryType]*queryFiles
	queries int
}

func NewResultManager(fetcher kiva.Fetcher, cacheDir string, index IndexStore, logger *zap.Logger) *ResultManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResultManager{
		fetcher:  fetcher,
		cacheDir: cacheDir,
		index:    index,
		logger:   logger,
		entries:  map[QueryType]*queryFiles{},
	}
}

func (m *ResultManager) addQueryFile(qt QueryType, queryURL string, file string) {
	sub, ok := m.entries[qt]
	if !ok {
		sub = &queryFiles{files: map[string]string{}}
		m.entries[qt] = sub
		m.types = append(m.types, qt)
	}

	if _, exists := sub.files[queryURL]; !exists {
		sub.order = append(sub.order, queryURL)
	}
	sub.files[queryURL] = file
}

// Load replaces the in memory index with the one held by the index store
func (m *ResultManager) Load(ctx context.Context) error {
	entries, err := m.index.Load(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.types = nil
	m.entries = map[QueryType]*queryFiles{}
	for _, e := range entries {
		qt, err := ParseQueryType(e.Type)
		if err != nil {
			return fmt.Errorf("unable to load cache entry for \"%s\": %w", e.Query, err)
		}
		m.addQueryFile(qt, e.Query, e.File)
	}

	m.logger.Debug("loaded query cache index", zap.Int("entries", len(entries)))
	return nil
}

func (m *ResultManager) snapshot() []CacheEntry {
	var entries []CacheEntry
	for _, qt := range m.types {
		sub := m.entries[qt]
		for _, q := range sub.order {
			entries = append(entries, CacheEntry{Type: qt.String(), Query: q, File: sub.files[q]})
		}
	}

	return entries
}

func (m *ResultManager) Save(ctx context.Context) error {
	m.mu.Lock()
	entries := m.snapshot()
	m.mu.Unlock()

	if err := m.index.Save(ctx, entries); err != nil {
		return fmt.Errorf("unable to save query cache index: %w", err)
	}

	return nil
}

// Results returns the body for queryURL, reading the cached file when one exists
func (m *ResultManager) Results(ctx context.Context, qt QueryType, queryURL string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.entries[qt]; ok {
		if file, ok := sub.files[queryURL]; ok {
			data, err := os.ReadFile(file)
			if err == nil {
				return data, nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("unable to read cached result %q: %w", file, err)
			}
			m.logger.Info("cached result is gone, querying again", zap.String("file", file))
		}
	}

	return m.queryAndCache(ctx, qt, queryURL)
}

// QueryAndCache always goes to the api and writes the formatted result to the cache
func (m *ResultManager) QueryAndCache(ctx context.Context, qt QueryType, queryURL string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.queryAndCache(ctx, qt, queryURL)
}

func (m *ResultManager) queryAndCache(ctx context.Context, qt QueryType, queryURL string) ([]byte, error) {
	m.queries++

	body, err := m.fetcher.Fetch(ctx, queryURL)
	if err != nil {
		return nil, err
	}

	formatted, err := FormatJSON(body)
	if err != nil {
		return nil, err
	}

	file, err := m.cacheFile(qt, filepath.Join(m.cacheDir, qt.String()), queryURL)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("unable to create cache dir for %q: %w", file, err)
	}

	if err := writeFileAtomic(file, formatted); err != nil {
		return nil, err
	}

	m.addQueryFile(qt, queryURL, file)
	m.logger.Debug("cached query", zap.Stringer("type", qt), zap.String("query", queryURL), zap.String("file", file))

	return formatted, nil
}

// cacheFile reuses the file of an already indexed query so a refresh overwrites it in place
func (m *ResultManager) cacheFile(qt QueryType, dir string, queryURL string) (string, error) {
	n := 1
	if sub, ok := m.entries[qt]; ok {
		if file, ok := sub.files[queryURL]; ok {
			return file, nil
		}
		n = len(sub.order) + 1
	}

	file, err := filepath.Abs(filepath.Join(dir, fmt.Sprintf("queryCache_%d.json", n)))
	if err != nil {
		return "", fmt.Errorf("unable to resolve cache file path: %w", err)
	}

	return file, nil
}

// FormatJSON re-indents data by two spaces with object keys sorted
func FormatJSON(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("unable to decode json for formatting: %w", err)
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("unable to format json: %w", err)
	}

	return buf.Bytes(), nil
}

// Clear deletes the cached files of the given types, or of every type when none are given, then saves the index
func (m *ResultManager) Clear(ctx context.Context, types ...QueryType) error {
	if len(types) == 0 {
		types = AllQueryTypes
	}

	m.mu.Lock()
	for _, qt := range types {
		sub, ok := m.entries[qt]
		if !ok {
			continue
		}

		for _, f := range sub.files {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				m.logger.Warn("unable to remove cached file", zap.String("file", f), zap.Error(err))
			}
		}

		delete(m.entries, qt)
		for i, t := range m.types {
			if t == qt {
				m.types = append(m.types[:i], m.types[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()

	return m.Save(ctx)
}

type TypeCount struct {
	Type    QueryType
	Entries int
}

type CacheStats struct {
	Types   []TypeCount
	Queries int
}

func (s CacheStats) Entries() int {
	total := 0
	for _, tc := range s.Types {
		total += tc.Entries
	}

	return total
}

func (m *ResultManager) Stats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := CacheStats{Queries: m.queries}
	for _, qt := range m.types {
		stats.Types = append(stats.Types, TypeCount{Type: qt, Entries: len(m.entries[qt].order)})
	}

	return stats
}

func (m *ResultManager) Entries() []CacheEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snapshot()
}

func (m *ResultManager) WriteSummary(w io.Writer, verbose bool) error {
	stats := m.Stats()

	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "Kiva query cache contains %d entries:\n", stats.Entries())
	for _, tc := range stats.Types {
		fmt.Fprintf(buf, "\t%s: %d\n", tc.Type, tc.Entries)
	}
	fmt.Fprintf(buf, "Required %d queries for cache misses\n", stats.Queries)

	if verbose {
		for _, e := range m.Entries() {
			fmt.Fprintf(buf, "%s\t%s\n", e.Query, e.File)
		}
	}

	_, err := buf.WriteTo(w)
	return err
}
