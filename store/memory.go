package store

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory implements a simple in-memory version of a store. It is intended
// mainly for testing.
type Memory struct {
	m     sync.RWMutex
	store map[string][]byte
}

var (
	// ensure Memory satisfies the Store interface
	_ Store = &Memory{}
)

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{store: make(map[string][]byte)}
}

// List returns a channel giving the id for every item in the store.
func (ms *Memory) List() <-chan string {
	keys, _ := ms.ListPrefix("")
	c := make(chan string)
	go func() {
		for _, k := range keys {
			c <- k
		}
		close(c)
	}()
	return c
}

// ListPrefix returns all the key entries which begin with the given prefix,
// sorted.
func (ms *Memory) ListPrefix(prefix string) ([]string, error) {
	var result []string
	ms.m.RLock()
	for k := range ms.store {
		if strings.HasPrefix(k, prefix) {
			result = append(result, k)
		}
	}
	ms.m.RUnlock()
	sort.Strings(result)
	return result, nil
}

// Open returns a ReadAtCloser and the size of the given value. The reader
// sees the value as it was when Open was called.
func (ms *Memory) Open(key string) (ReadAtCloser, int64, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return nil, 0, ErrNotExist
	}
	return nopCloser{bytes.NewReader(v)}, int64(len(v)), nil
}

type nopCloser struct {
	io.ReaderAt
}

func (nopCloser) Close() error { return nil }

// Create returns a writer which will store its contents under key once it is
// closed.
func (ms *Memory) Create(key string) (Writer, error) {
	if key == "" {
		return nil, fmt.Errorf("empty key")
	}
	return &memWriter{ms: ms, key: key}, nil
}

type memWriter struct {
	ms      *Memory
	key     string
	buf     bytes.Buffer
	done    bool
	aborted bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, ErrWriterDone
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if w.done {
		return ErrWriterDone
	}
	w.done = true
	w.ms.m.Lock()
	w.ms.store[w.key] = w.buf.Bytes()
	w.ms.m.Unlock()
	return nil
}

func (w *memWriter) Abort() error {
	if w.done && !w.aborted {
		return ErrWriterDone
	}
	w.done = true
	w.aborted = true
	w.buf.Reset()
	return nil
}

// Delete the given key from the store. It is not an error if the item does
// not exist in the store.
func (ms *Memory) Delete(key string) error {
	ms.m.Lock()
	delete(ms.store, key)
	ms.m.Unlock()
	return nil
}
