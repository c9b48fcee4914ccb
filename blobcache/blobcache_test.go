package blobcache

import (
	"fmt"
	"io/ioutil"
	"testing"

	"github.com/ndlib/ans104/store"
)

func TestEviction(t *testing.T) {
	cache := NewLRU(store.NewMemory(), 100)
	// "hello world" is 11 bytes. so 10 should cause a cache eviction
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("hello-%d", i)
		w, err := cache.Put(key)
		if err != nil {
			t.Fatalf("received %s", err.Error())
		}
		w.Write([]byte("hello world"))
		w.Close()
	}

	// the oldest one is the one evicted
	var nEvicted int
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("hello-%d", i)
		r, size, err := cache.Get(key)
		if err != nil {
			t.Fatalf("received %s", err.Error())
		}
		if r == nil {
			nEvicted++
			if i != 0 {
				t.Errorf("Evicted %s, expected hello-0", key)
			}
			continue
		}
		if size != 11 {
			t.Errorf("Received size %d, expected %d", size, 11)
		}
		r.Close()
	}
	if nEvicted != 1 {
		t.Errorf("Evicted %d items, expected 1", nEvicted)
	}
	if cache.size != 99 {
		t.Errorf("Cache size is %d, expected 99", cache.size)
	}
}

func TestTooLargeItem(t *testing.T) {
	cache := NewLRU(store.NewMemory(), 100)
	key := "qwerty"
	w, err := cache.Put(key)
	if err != nil {
		t.Fatalf("received %s", err.Error())
	}
	// write this in pieces. should error on last one
	for i := 0; i < 10; i++ {
		_, err = w.Write([]byte("hello world"))
		if err != nil {
			t.Logf("Received error %s", err.Error())
			break
		}
	}
	if err != ErrCacheFull {
		t.Errorf("Did not receive ErrCacheFull")
	}
	w.Close()
	if cache.size != 0 {
		t.Errorf("Cache size is %d. Expected %d", cache.size, 0)
	}
	if cache.Contains(key) {
		t.Errorf("Cache contains %s after a failed write", key)
	}
}

func TestAbort(t *testing.T) {
	mem := store.NewMemory()
	cache := NewLRU(mem, 100)
	w, _ := cache.Put("a")
	w.Write([]byte("12345"))
	w.Abort()
	if cache.size != 0 || cache.Contains("a") {
		t.Errorf("Got size %d after Abort, expected 0", cache.size)
	}
	if _, _, err := mem.Open("a"); err != store.ErrNotExist {
		t.Errorf("Got %v, expected %v", err, store.ErrNotExist)
	}
}

func TestReplace(t *testing.T) {
	cache := NewLRU(store.NewMemory(), 100)
	for _, content := range []string{"first", "second"} {
		w, _ := cache.Put("a")
		w.Write([]byte(content))
		w.Close()
	}
	r, size, _ := cache.Get("a")
	if r == nil {
		t.Fatalf("Got a miss, expected a")
	}
	defer r.Close()
	b, _ := ioutil.ReadAll(store.NewReader(r))
	if string(b) != "second" || size != 6 || cache.size != 6 {
		t.Errorf("Got (%q, %d, %d)", b, size, cache.size)
	}
}

func TestScan(t *testing.T) {
	mem := store.NewMemory()

	// populate the store
	var table = []struct {
		key, contents string
	}{
		{"qwerty", "1234567890"},
		{"asdf", "1234567890-="},
		{"zxcv", "abcdefghijklmnopqrstuvwxyz"},
	}

	for _, elem := range table {
		w, err := mem.Create(elem.key)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(elem.contents))
		w.Close()
	}

	// now set up the cache and scan it
	cache := NewLRU(mem, 100)
	cache.Scan()

	for _, elem := range table {
		r, _, _ := cache.Get(elem.key)
		if r == nil {
			t.Errorf("key %s: nil", elem.key)
			continue
		}
		r.Close()
	}

	// now set up a small cache and scan that
	cache = NewLRU(mem, 15)
	cache.Scan()
	if cache.size > 15 {
		t.Errorf("Cache size is %d, expected at most 15", cache.size)
	}
	var n int
	for _, elem := range table {
		r, _, _ := cache.Get(elem.key)
		if r == nil {
			t.Logf("key %s: nil", elem.key)
			continue
		}
		n++
		r.Close()
	}
	if n > 1 {
		t.Errorf("Got %d items, expected at most 1", n)
	}
}

func TestEmptyCache(t *testing.T) {
	var c Cache = EmptyCache{}
	w, err := c.Put("a")
	if err != nil {
		t.Fatalf("received %s", err.Error())
	}
	w.Write([]byte("data"))
	w.Close()
	if c.Contains("a") {
		t.Errorf("EmptyCache contains a")
	}
	if r, _, _ := c.Get("a"); r != nil {
		t.Errorf("EmptyCache returned a reader")
	}
}
