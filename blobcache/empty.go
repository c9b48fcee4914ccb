package blobcache

import (
	"io/ioutil"

	"github.com/ndlib/ans104/store"
)

// An EmptyCache always misses. It contains nothing and saves nothing.
type EmptyCache struct{}

// Contains always returns false.
func (EmptyCache) Contains(id string) bool {
	return false
}

// Get always returns a cache miss.
func (EmptyCache) Get(id string) (store.ReadAtCloser, int64, error) {
	return nil, 0, nil
}

// Put returns a valid Writer which discards its input.
// The item being added will ultimately not be added to the cache.
func (EmptyCache) Put(id string) (store.Writer, error) {
	return discard{}, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return ioutil.Discard.Write(p) }
func (discard) Close() error                { return nil }
func (discard) Abort() error                { return nil }
