package storage

import "sort"

type cacheEntry struct {
	value   []byte
	deleted bool
}

// CacheStore buffers writes on top of a Database. Reads observe pending writes
// first. Nothing reaches the parent until Write, which applies every pending
// change in a single batch; Discard drops them.
type CacheStore struct {
	parent  Database
	pending map[string]cacheEntry
}

// NewCacheStore creates an empty overlay on parent.
func NewCacheStore(parent Database) *CacheStore {
	return &CacheStore{parent: parent, pending: make(map[string]cacheEntry)}
}

func (c *CacheStore) Get(key []byte) ([]byte, error) {
	if entry, ok := c.pending[string(key)]; ok {
		if entry.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return c.parent.Get(key)
}

func (c *CacheStore) Has(key []byte) (bool, error) {
	if entry, ok := c.pending[string(key)]; ok {
		return !entry.deleted, nil
	}
	return c.parent.Has(key)
}

func (c *CacheStore) Put(key []byte, value []byte) error {
	c.pending[string(key)] = cacheEntry{value: append([]byte(nil), value...)}
	return nil
}

func (c *CacheStore) Delete(key []byte) error {
	c.pending[string(key)] = cacheEntry{deleted: true}
	return nil
}

// Dirty reports the number of pending writes.
func (c *CacheStore) Dirty() int { return len(c.pending) }

// Write flushes pending writes to the parent atomically. Keys are applied in
// sorted order so the batch content is deterministic.
func (c *CacheStore) Write() error {
	if len(c.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := c.parent.NewBatch()
	for _, k := range keys {
		entry := c.pending[k]
		if entry.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), entry.value)
	}
	if err := batch.Write(); err != nil {
		return err
	}
	c.Discard()
	return nil
}

// Discard drops every pending write.
func (c *CacheStore) Discard() {
	c.pending = make(map[string]cacheEntry)
}
