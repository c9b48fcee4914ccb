// Package blobcache implements a simple cache. It is backed by a store, so it
// can be entirely in memory or disk-backed.
//
// While the cached contents are kept in the store, the list recording usage
// information is kept only in memory. On startup the items in the store are
// enumerated and taken to populate the cache list in an undetermined order.
//
// The cache uses an LRU item replacement policy.
package blobcache

import (
	"container/list"
	"errors"
	"sync"

	"github.com/ndlib/ans104/store"
)

// A Cache holds copies of blobs. Get returns a nil ReadAtCloser on a miss.
type Cache interface {
	Contains(id string) bool
	Get(id string) (store.ReadAtCloser, int64, error)
	Put(id string) (store.Writer, error)
}

// LRU is a Cache of bounded size.
type LRU struct {
	// this is the place where cached items are stored
	s store.Store

	m sync.RWMutex // protects everything below

	// total size used to store items in cache
	size int64

	maxSize int64 // The maximum amount of space we may use

	// front of list is MRU, tail is LRU.
	lru *list.List // list of cache contents
}

type entry struct {
	id   string
	size int64
}

var (
	ErrCacheFull = errors.New("Cache is full and no more items can be removed")
)

// NewLRU creates and initializes a new cache structure. The given store
// may already have items in it. Call Scan() either inline or in a goroutine
// to scan the store and add the items inside it to the LRU list.
func NewLRU(s store.Store, maxSize int64) *LRU {
	return &LRU{s: s, maxSize: maxSize, lru: list.New()}
}

// Scan enumerates the items in the given store and adds them to the cache.
// Items which do not fit are deleted. Blocks until it is completely finished.
func (t *LRU) Scan() {
	for key := range t.s.List() {
		if t.Contains(key) {
			continue
		}
		rc, size, err := t.s.Open(key)
		if err != nil {
			continue
		}
		rc.Close()
		err = t.reserve(size)
		if err != nil {
			// this item is too big for the cache.
			t.s.Delete(key)
			continue
		}
		t.linkEntry(entry{id: key, size: size})
	}
}

// Contains returns true if the given item is in the cache. It does not
// update the LRU status, and does not guarantee the item will be in the
// cache when Get() is called.
func (t *LRU) Contains(id string) bool {
	t.m.RLock()
	defer t.m.RUnlock()
	return t.find(id) != nil
}

// Get returns a reader for the given item and updates the LRU list. If
// the item is not in the cache nil is returned for the ReadAtCloser. (NOTE:
// it is not an error for an item to not be in the cache. Check the
// ReadAtCloser to see.)
func (t *LRU) Get(id string) (store.ReadAtCloser, int64, error) {
	t.m.Lock()
	e := t.find(id)
	if e == nil {
		t.m.Unlock()
		return nil, 0, nil
	}
	t.lru.MoveToFront(e)
	t.m.Unlock()
	return t.s.Open(id)
}

// find must be called with t.m held.
func (t *LRU) find(id string) *list.Element {
	for e := t.lru.Front(); e != nil; e = e.Next() {
		if e.Value.(entry).id == id {
			return e
		}
	}
	return nil
}

// Put returns a Writer which saves writes to it in the cache under the
// provided id key. Items are evicted from the cache as content is written to
// the Writer. The item is not added to the cache until the Writer is
// closed, and an aborted Writer gives back the space it reserved.
//
// Only one writer to a given id should be active at a time.
func (t *LRU) Put(id string) (store.Writer, error) {
	w, err := t.s.Create(id)
	if err != nil {
		return nil, err
	}
	return &writer{parent: t, key: id, w: w}, nil
}

// linkEntry adds the given entry into our LRU list, replacing any older
// entry with the same id.
func (t *LRU) linkEntry(ent entry) {
	t.m.Lock()
	defer t.m.Unlock()

	if e := t.find(ent.id); e != nil {
		t.size -= t.lru.Remove(e).(entry).size
	}
	t.lru.PushFront(ent)
}

// reserve space for the passed in size, evicting items if necessary to stay
// under maxSize. Size can be negative to cancel a previous reservation.
// Nothing is reserved if there is an error.
func (t *LRU) reserve(size int64) error {
	t.m.Lock()
	defer t.m.Unlock()

	t.size += size
	for t.size > t.maxSize {
		// LRU eviction
		e := t.lru.Back()
		if e == nil {
			t.size -= size
			return ErrCacheFull
		}
		entry := t.lru.Remove(e).(entry)
		err := t.s.Delete(entry.id)
		if err != nil {
			t.size -= size
			return err
		}
		t.size -= entry.size
	}
	return nil
}

func (t *LRU) save(w *writer) {
	t.linkEntry(entry{id: w.key, size: w.size})
}

func (t *LRU) discard(w *writer) {
	t.reserve(-w.size)
}
