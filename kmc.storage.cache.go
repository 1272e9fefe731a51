package kmc

import (
	"context"
	"sync"
	"time"
)

// CachedStorage wraps a DocumentStorage and caches latest-version lookups.
// Writes through the wrapper invalidate the affected name; writes made
// directly to the wrapped storage become visible after TTL.
type CachedStorage struct {
	storage DocumentStorage
	config  CacheConfig

	mu      sync.Mutex
	entries map[string]*cacheEntry
	hits    int
	misses  int
	closed  bool
}

// CacheConfig configures CachedStorage.
type CacheConfig struct {
	// TTL is how long a cached document stays valid.
	// Default: 5 minutes
	TTL time.Duration

	// MaxEntries bounds the cache; the least recently used entry is evicted.
	// Default: 1000
	MaxEntries int

	// NegativeTTL caches "not found" results. Zero disables negative caching.
	NegativeTTL time.Duration
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries  int
	Negative int
	Hits     int
	Misses   int
}

type cacheEntry struct {
	doc      *StoredDocument // nil for a negative entry
	cachedAt time.Time
	usedAt   time.Time
}

// DefaultCacheConfig returns the default caching configuration.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        DefaultCacheTTL,
		MaxEntries: DefaultCacheMaxEntries,
	}
}

// NewCachedStorage wraps storage. Zero config fields take their defaults.
func NewCachedStorage(storage DocumentStorage, config CacheConfig) *CachedStorage {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheTTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheMaxEntries
	}
	return &CachedStorage{
		storage: storage,
		config:  config,
		entries: make(map[string]*cacheEntry),
	}
}

// Unwrap returns the wrapped storage.
func (s *CachedStorage) Unwrap() DocumentStorage {
	return s.storage
}

// Get returns the latest version of name, from the cache when possible.
func (s *CachedStorage) Get(ctx context.Context, name string) (*StoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, NewStorageClosedError()
	}
	if entry, ok := s.lookup(name); ok {
		s.hits++
		s.mu.Unlock()
		if entry.doc == nil {
			return nil, NewStorageDocumentNotFoundError(name)
		}
		return copyStoredDocument(entry.doc), nil
	}
	s.misses++
	s.mu.Unlock()

	doc, err := s.storage.Get(ctx, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, NewStorageClosedError()
	}
	if err != nil {
		if IsNotFound(err) && s.config.NegativeTTL > 0 {
			s.store(name, nil)
		}
		return nil, err
	}
	s.store(name, copyStoredDocument(doc))
	return doc, nil
}

// GetVersion reads through to the wrapped storage.
func (s *CachedStorage) GetVersion(ctx context.Context, name string, version int) (*StoredDocument, error) {
	return s.storage.GetVersion(ctx, name, version)
}

// Save stores doc and invalidates its name.
func (s *CachedStorage) Save(ctx context.Context, doc *StoredDocument) error {
	if err := s.storage.Save(ctx, doc); err != nil {
		return err
	}
	s.Invalidate(doc.Name)
	return nil
}

// Delete removes name and invalidates it.
func (s *CachedStorage) Delete(ctx context.Context, name string) error {
	err := s.storage.Delete(ctx, name)
	s.Invalidate(name)
	return err
}

// List reads through to the wrapped storage.
func (s *CachedStorage) List(ctx context.Context, query *DocumentQuery) ([]*StoredDocument, error) {
	return s.storage.List(ctx, query)
}

// Exists answers from the cache when name has a valid entry.
func (s *CachedStorage) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, NewStorageClosedError()
	}
	if entry, ok := s.lookup(name); ok {
		s.hits++
		s.mu.Unlock()
		return entry.doc != nil, nil
	}
	s.mu.Unlock()

	return s.storage.Exists(ctx, name)
}

// ListVersions reads through to the wrapped storage.
func (s *CachedStorage) ListVersions(ctx context.Context, name string) ([]int, error) {
	return s.storage.ListVersions(ctx, name)
}

// Close drops the cache and closes the wrapped storage.
func (s *CachedStorage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.entries = make(map[string]*cacheEntry)
	s.mu.Unlock()
	return s.storage.Close()
}

// Invalidate drops the cached entry for name.
func (s *CachedStorage) Invalidate(name string) {
	s.mu.Lock()
	delete(s.entries, name)
	s.mu.Unlock()
}

// InvalidateAll empties the cache.
func (s *CachedStorage) InvalidateAll() {
	s.mu.Lock()
	s.entries = make(map[string]*cacheEntry)
	s.mu.Unlock()
}

// Stats returns the current counters. Expired entries are not counted.
func (s *CachedStorage) Stats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := CacheStats{Hits: s.hits, Misses: s.misses}
	now := time.Now()
	for _, entry := range s.entries {
		if !s.valid(entry, now) {
			continue
		}
		stats.Entries++
		if entry.doc == nil {
			stats.Negative++
		}
	}
	return stats
}

// lookup returns a valid entry and marks it used. Caller holds mu.
func (s *CachedStorage) lookup(name string) (*cacheEntry, bool) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	now := time.Now()
	if !s.valid(entry, now) {
		delete(s.entries, name)
		return nil, false
	}
	entry.usedAt = now
	return entry, true
}

func (s *CachedStorage) valid(entry *cacheEntry, now time.Time) bool {
	ttl := s.config.TTL
	if entry.doc == nil {
		ttl = s.config.NegativeTTL
	}
	return now.Sub(entry.cachedAt) < ttl
}

// store adds an entry, evicting the least recently used one when full.
// Caller holds mu.
func (s *CachedStorage) store(name string, doc *StoredDocument) {
	if _, exists := s.entries[name]; !exists && len(s.entries) >= s.config.MaxEntries {
		var oldest string
		var oldestAt time.Time
		for key, entry := range s.entries {
			if oldest == "" || entry.usedAt.Before(oldestAt) {
				oldest, oldestAt = key, entry.usedAt
			}
		}
		delete(s.entries, oldest)
	}
	now := time.Now()
	s.entries[name] = &cacheEntry{doc: doc, cachedAt: now, usedAt: now}
}
