// storetest provides functions for facilitating the testing of anything
// implementing the Store interface.
package storetest

import (
	"bytes"
	"crypto/md5"
	"io"
	"io/ioutil"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/ndlib/ans104/store"
)

type blob struct {
	key  string
	hash []byte
	size int64
}

// Staging checks that s only publishes a key when its Writer is closed, and
// that an aborted Writer leaves the store as it was.
func Staging(t *testing.T, s store.Store) {
	t.Helper()
	write := func(key, content string, commit bool) {
		w, err := s.Create(key)
		if err != nil {
			t.Fatalf("Create(%s): %s", key, err.Error())
		}
		w.Write([]byte(content))
		if _, _, err := s.Open(key); err == nil && content == "first" {
			t.Errorf("%s is visible before Close", key)
		}
		if commit {
			err = w.Close()
		} else {
			err = w.Abort()
		}
		if err != nil {
			t.Errorf("finishing %s: %s", key, err.Error())
		}
	}
	check := func(key, content string) {
		rac, size, err := s.Open(key)
		if content == "" {
			if err == nil {
				rac.Close()
				t.Errorf("%s should not exist", key)
			}
			return
		}
		if err != nil {
			t.Errorf("Open(%s): %s", key, err.Error())
			return
		}
		defer rac.Close()
		b, _ := ioutil.ReadAll(store.NewReader(rac))
		if string(b) != content || size != int64(len(content)) {
			t.Errorf("%s: Got (%q, %d), expected %q", key, b, size, content)
		}
	}

	write("stage1", "first", true)
	check("stage1", "first")
	write("stage1", "second", false)
	check("stage1", "first")
	write("stage1", "third", true)
	check("stage1", "third")
	write("stage2", "first", false)
	check("stage2", "")

	if err := s.Delete("stage1"); err != nil {
		t.Errorf("Delete: %s", err.Error())
	}
	check("stage1", "")
}

// Stress will spawn a given number of goroutines to simultainously
// try reading and writing to the given store. It is a good test to run
// with the -race flag to try to race conditions.
//
// Generate a list of sizes, until their sum is >= totalsize.
// For each size, upload a random blob of that size. Some uploads are
// aborted part way, and must not appear. The others are downloaded and
// compared for correctness.
//
// randomly delete the blob or try downloading it again.
// At some point every blob will be deleted. End the test.
//
// Note, this does not test the list or list prefix functions.
func Stress(t *testing.T, s store.Store, totalsize int64) {
	// the pipeline is
	//       size maker
	// sizes ----> uploader pool
	// dwnld ----> downloader pool (possible repeat)
	//       ----> delete
	if totalsize == 0 {
		totalsize = 1000 * 1000 * 1000 // 1GB
	}
	sizes := make(chan int64)
	dwnld := make(chan blob, 1000)
	done := make(chan struct{})
	var uppool, downpool sync.WaitGroup

	for i := 0; i < 5; i++ {
		uppool.Add(1)
		go func(i int) {
			uploader(t, s, i, sizes, dwnld)
			uppool.Done()
		}(i)
	}

	for i := 0; i < 10; i++ {
		downpool.Add(1)
		go func() {
			downloader(t, s, dwnld, done)
			downpool.Done()
		}()
	}

	generatesizes(sizes, totalsize)
	close(sizes)
	uppool.Wait()
	close(done)
	downpool.Wait()
}

// randomReader is provides an interface to n bytes of random data.
// The length may be much longer than len(data).
type randomReader struct {
	n    int64
	data []byte
}

func (r *randomReader) Read(p []byte) (int, error) {
	if r.n <= 0 {
		return 0, io.EOF
	}
	total := 0
	data := r.data
	for len(p) > 0 && r.n > 0 {
		if r.n < int64(len(data)) {
			data = data[:int(r.n)]
		}
		n := copy(p, data)
		p = p[n:]
		r.n -= int64(n)
		total += n
	}
	return total, nil
}

func uploader(t *testing.T, s store.Store, id int, in <-chan int64, out chan<- blob) {
	h := md5.New()
	const L = 64 * 1024 // 64k
	buffer := make([]byte, L)

	// each uploader uses its own keys so they never share a staging area
	var count int
	for size := range in {
		h.Reset()
		buffer = buffer[:L] // make sure buffer is full sized
		rand.Read(buffer)
		count++
		keystr := keyname(id, count)

		w, err := s.Create(keystr)
		if err != nil {
			t.Error(err)
			continue
		}
		mw := io.MultiWriter(h, w)
		// upload size bytes
		n, err := io.Copy(mw, &randomReader{data: buffer, n: size})
		if n != size {
			t.Error("expected", size, "only read", n)
		}
		if err != nil {
			t.Error(err)
		}
		if rand.Float32() < 0.2 {
			if err = w.Abort(); err != nil {
				t.Error(keystr, size, err)
			}
			if rac, _, err := s.Open(keystr); err == nil {
				rac.Close()
				t.Error(keystr, "exists after Abort")
			}
			continue
		}
		err = w.Close()
		if err != nil {
			t.Error(keystr, size, err)
			continue
		}
		out <- blob{key: keystr, hash: h.Sum(nil)[:], size: size}
	}
}

func keyname(id, count int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	key := []byte{letters[id%26]}
	for ; count > 0; count /= 26 {
		key = append(key, letters[count%26])
	}
	return string(key)
}

func downloader(t *testing.T, s store.Store, in chan blob, done chan struct{}) {
	h := md5.New()
	for {
		var blob blob
		select {
		case <-done:
			return
		case blob = <-in:
		}
		rac, size, err := s.Open(blob.key)
		if err != nil {
			t.Error(err)
			continue
		}
		if size != blob.size {
			t.Error("Expected", blob.size, "Get() returned", size)
		}
		h.Reset()
		n, err := io.Copy(h, store.NewReader(rac))
		if err != nil {
			t.Error(err)
		}
		if n != size {
			t.Error("Expected", size, "but read", n)
		}
		err = rac.Close()
		if err != nil {
			t.Error(err)
		}
		if !bytes.Equal(blob.hash, h.Sum(nil)) {
			t.Errorf("hashes unequal. %#v. Received %x", blob, h.Sum(nil))
			// note that the item is left in the store...
			continue
		}

		// figure out what to do next
		x := rand.Float32()
		switch {
		case x < 0.5:
			err := s.Delete(blob.key)
			if err != nil {
				t.Error(err)
			}
		default:
			// reinsert once
			in <- blob
		}
	}
}

func generatesizes(out chan<- int64, totalsize int64) {
	// We want a wide range of sizes, so generate the exponent of the size
	// uniformly at random.
	//  choose number x ~ uniform(0, log(totalsize))
	//  let size be exp(x)
	max := math.Log(float64(totalsize))
	for totalsize > 0 {
		x := max * rand.Float64()
		size := int64(math.Trunc(math.Exp(x)))
		out <- size
		totalsize -= size
	}
}
