package loader

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ammar0144/postloader/internal/testdb"
	"github.com/ammar0144/postloader/pkg/db"
)

// countingStore records every statement passed to the wrapped store
type countingStore struct {
	*db.Manager

	mu      sync.Mutex
	queries []string
	fail    error
}

func (s *countingStore) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	fail := s.fail
	s.mu.Unlock()
	if fail != nil {
		return fail
	}
	return s.Manager.Select(ctx, dest, query, args...)
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

func (s *countingStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = nil
}

func (s *countingStore) countMatching(fragment string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, q := range s.queries {
		if strings.Contains(q, fragment) {
			n++
		}
	}
	return n
}

// mapCache is an inspectable in-memory cache with namespace generations
type mapCache struct {
	mu          sync.Mutex
	entries     map[string][]byte
	generations map[string]int
	failGets    bool
}

func newMapCache() *mapCache {
	return &mapCache{
		entries:     make(map[string][]byte),
		generations: make(map[string]int),
	}
}

var errCacheDown = errors.New("cache down")

func (c *mapCache) full(ns, key string) string {
	return ns + ":" + strconv.Itoa(c.generations[ns]) + ":" + key
}

func (c *mapCache) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGets {
		return nil, false, errCacheDown
	}
	v, ok := c.entries[c.full(ns, key)]
	return v, ok, nil
}

func (c *mapCache) GetMany(_ context.Context, ns string, keys []string) (map[string][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGets {
		return nil, errCacheDown
	}
	out := make(map[string][]byte)
	for _, k := range keys {
		if v, ok := c.entries[c.full(ns, k)]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (c *mapCache) Set(_ context.Context, ns, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.full(ns, key)] = value
	return nil
}

func (c *mapCache) FlushNamespace(_ context.Context, ns string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[ns]++
	return nil
}

func (c *mapCache) delete(ns, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, c.full(ns, key))
}

func (c *mapCache) has(ns, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[c.full(ns, key)]
	return ok
}

type env struct {
	store    *countingStore
	cache    *mapCache
	fixtures *testdb.Fixtures
}

func newEnv(t *testing.T) *env {
	t.Helper()
	m := testdb.New(t)
	return &env{
		store:    &countingStore{Manager: m},
		cache:    newMapCache(),
		fixtures: testdb.NewFixtures(t, m),
	}
}

func (e *env) loader(opts ...Option) *Loader {
	return New(e.store, append([]Option{WithCache(e.cache)}, opts...)...)
}
