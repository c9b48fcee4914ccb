package indexer

import (
	"bytes"
	"context"
	"encoding/binary"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/ndlib/ans104/bundle"
	"github.com/ndlib/ans104/store"
	"github.com/ndlib/ans104/tags"
	"github.com/ndlib/ans104/util"
)

// source is a Downloader serving fixed bundles.
type source map[string][]byte

var errNoSuchTx = errors.New("no such transaction")

func (s source) Download(ctx context.Context, txid string) ([]byte, error) {
	b, ok := s[txid]
	if !ok {
		return nil, errNoSuchTx
	}
	// hand out a copy, since the indexer owns what it is given
	return append([]byte(nil), b...), nil
}

var errDiskFull = errors.New("disk full")

// failingStore wraps a store so that its writers fail after failAt writes.
type failingStore struct {
	store.Store
	failAt int
}

func (fs *failingStore) Create(key string) (store.Writer, error) {
	w, err := fs.Store.Create(key)
	if err != nil {
		return nil, err
	}
	return &failingWriter{Writer: w, left: fs.failAt}, nil
}

type failingWriter struct {
	store.Writer
	left int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.left == 0 {
		return 0, errDiskFull
	}
	w.left--
	return w.Writer.Write(p)
}

func raw(seed byte, data string) bundle.RawItem {
	return bundle.RawItem{
		ID:            bytes.Repeat([]byte{seed}, 32),
		SignatureType: bundle.ED25519,
		Signature:     bytes.Repeat([]byte{seed + 1}, 64),
		Owner:         bytes.Repeat([]byte{seed + 2}, 32),
		Tags:          []tags.Tag{{Name: "Content-Type", Value: "text/plain"}},
		Data:          []byte(data),
	}
}

func makeBundle(t *testing.T, items ...bundle.RawItem) []byte {
	b, err := bundle.Encode(items)
	if err != nil {
		t.Fatalf("Encode: %s", err.Error())
	}
	return b
}

// a bundle whose second item has an invalid signature type
func badBundle(t *testing.T) []byte {
	good := raw(1, "first")
	b := makeBundle(t, good, raw(2, "second"), raw(3, "third"))
	first, _ := good.Encode()
	// skip the header (32 + 3*64 bytes) and the first item
	binary.LittleEndian.PutUint16(b[32+3*64+len(first):], 0)
	return b
}

func noFiles(t *testing.T, root, key string) {
	t.Helper()
	for _, p := range []string{filepath.Join(root, key), filepath.Join(root, "scratch", key)} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("Expected %s to not exist, got %v", p, err)
		}
	}
}

func TestIndexCommit(t *testing.T) {
	withTarget := raw(7, "linked")
	withTarget.Target = bytes.Repeat([]byte{8}, 32)
	bundleBytes := makeBundle(t, raw(1, "hello"), withTarget, raw(4, ""))
	goal, err := bundle.Decode(append([]byte(nil), bundleBytes...))
	if err != nil {
		t.Fatalf("Decode: %s", err.Error())
	}

	var artifacts [][]byte
	for _, batch := range []bool{false, true} {
		root := t.TempDir()
		ix := &Indexer{
			Source: source{"tx1": bundleBytes},
			Dest:   store.NewFileSystem(root),
			Batch:  batch,
		}
		receipt, err := ix.Index(context.Background(), "tx1")
		if err != nil {
			t.Fatalf("batch=%v: Got unexpected error: %s", batch, err.Error())
		}
		if receipt.Key != "tx1" || receipt.Items != 3 {
			t.Errorf("Got receipt %+v", receipt)
		}
		if _, err := os.Stat(filepath.Join(root, "scratch", "tx1")); !os.IsNotExist(err) {
			t.Errorf("Expected staging file to be gone, got %v", err)
		}
		content, err := ioutil.ReadFile(filepath.Join(root, "tx1"))
		if err != nil {
			t.Fatalf("Got unexpected error: %s", err.Error())
		}
		if int64(len(content)) != receipt.Bytes {
			t.Errorf("Got %d bytes, receipt says %d", len(content), receipt.Bytes)
		}
		ok, _ := util.VerifyStreamHash(bytes.NewReader(content), receipt.MD5, receipt.SHA256)
		if !ok {
			t.Errorf("Receipt checksums do not match the artifact")
		}
		items, err := ReadRecords(bytes.NewReader(content))
		if err != nil {
			t.Fatalf("ReadRecords: %s", err.Error())
		}
		if !reflect.DeepEqual(items, goal) {
			t.Errorf("batch=%v: Got %v, expected %v", batch, items, goal)
		}
		artifacts = append(artifacts, content)
	}
	if !bytes.Equal(artifacts[0], artifacts[1]) {
		t.Errorf("lazy and batch artifacts differ")
	}
}

func TestIndexDecodeFailure(t *testing.T) {
	for _, batch := range []bool{false, true} {
		root := t.TempDir()
		ix := &Indexer{
			Source: source{"tx": badBundle(t)},
			Dest:   store.NewFileSystem(root),
			Batch:  batch,
		}
		_, err := ix.Index(context.Background(), "tx")
		if KindOf(err) != KindDecode {
			t.Errorf("batch=%v: Got %v, expected a decode error", batch, err)
		}
		var ste *bundle.SignatureTypeError
		if !errors.As(err, &ste) || ste.Value != 0 {
			t.Errorf("Got %v, expected SignatureTypeError", err)
		}
		noFiles(t, root, "tx")
	}
}

func TestIndexHeaderFailure(t *testing.T) {
	root := t.TempDir()
	ix := &Indexer{
		Source: source{"tx": []byte{1, 2, 3}},
		Dest:   store.NewFileSystem(root),
	}
	_, err := ix.Index(context.Background(), "tx")
	if KindOf(err) != KindDecode || !errors.Is(err, bundle.ErrOutOfBounds) {
		t.Errorf("Got %v, expected an out of bounds decode error", err)
	}
	noFiles(t, root, "tx")
}

func TestIndexStorageFailure(t *testing.T) {
	root := t.TempDir()
	ix := &Indexer{
		Source: source{"tx": makeBundle(t, raw(1, "a"), raw(2, "b"), raw(3, "c"))},
		Dest:   &failingStore{Store: store.NewFileSystem(root), failAt: 1},
	}
	_, err := ix.Index(context.Background(), "tx")
	if KindOf(err) != KindStorage {
		t.Errorf("Got %v, expected a storage error", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Errorf("Got %v, expected it to wrap %v", err, errDiskFull)
	}
	noFiles(t, root, "tx")
}

func TestIndexDownloadFailure(t *testing.T) {
	root := t.TempDir()
	ix := &Indexer{Source: source{}, Dest: store.NewFileSystem(root)}
	_, err := ix.Index(context.Background(), "missing")
	if KindOf(err) != KindDownload || !errors.Is(err, errNoSuchTx) {
		t.Errorf("Got %v, expected a download error", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.TxID != "missing" {
		t.Errorf("Got %v, expected an *Error for missing", err)
	}
	noFiles(t, root, "missing")
}

func TestIndexTo(t *testing.T) {
	ms := store.NewMemory()
	ix := &Indexer{Source: source{"tx": makeBundle(t, raw(1, "a"))}, Dest: ms}
	if _, err := ix.IndexTo(context.Background(), "tx", "out.jsonl"); err != nil {
		t.Fatalf("Got unexpected error: %s", err.Error())
	}
	keys, _ := ms.ListPrefix("")
	if len(keys) != 1 || keys[0] != "out.jsonl" {
		t.Errorf("Got keys %v, expected [out.jsonl]", keys)
	}
}

func TestIndexAll(t *testing.T) {
	root := t.TempDir()
	src := source{
		"good1": makeBundle(t, raw(1, "a")),
		"good2": makeBundle(t, raw(2, "b"), raw(3, "c")),
		"bad":   badBundle(t),
	}
	ix := &Indexer{Source: src, Dest: store.NewFileSystem(root)}
	results := ix.IndexAll(context.Background(), []string{"good1", "bad", "good2", "good1", "absent"}, 2)
	if len(results) != 4 {
		t.Errorf("Got %d results, expected 4", len(results))
	}
	var table = []struct {
		id    string
		kind  Kind
		items int
	}{
		{"good1", KindUnknown, 1},
		{"good2", KindUnknown, 2},
		{"bad", KindDecode, 0},
		{"absent", KindDownload, 0},
	}
	for _, tab := range table {
		r := results[tab.id]
		if KindOf(r.Err) != tab.kind {
			t.Errorf("%s: Got error %v, expected kind %s", tab.id, r.Err, tab.kind)
		}
		if r.Receipt.Items != tab.items {
			t.Errorf("%s: Got %d items, expected %d", tab.id, r.Receipt.Items, tab.items)
		}
	}
	keys, _ := store.NewFileSystem(root).ListPrefix("")
	if strings.Join(keys, ",") != "good1,good2" {
		t.Errorf("Got keys %v, expected [good1 good2]", keys)
	}
}

func TestIndexAllCanceled(t *testing.T) {
	root := t.TempDir()
	ix := &Indexer{Source: source{"tx": makeBundle(t, raw(1, "a"))}, Dest: store.NewFileSystem(root)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := ix.IndexAll(ctx, []string{"tx"}, 1)
	err := results["tx"].Err
	if KindOf(err) != KindDownload || !errors.Is(err, context.Canceled) {
		t.Errorf("Got %v, expected a canceled download", err)
	}
	noFiles(t, root, "tx")
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindStorage, TxID: "abc", Err: errDiskFull}
	if err.Error() != "abc storage: disk full" {
		t.Errorf("Got %q", err.Error())
	}
	if KindOf(errors.Wrap(err, "outer")) != KindStorage {
		t.Errorf("KindOf did not see through a wrapper")
	}
	if KindOf(errDiskFull) != KindUnknown || KindOf(nil) != KindUnknown {
		t.Errorf("KindOf should be KindUnknown for other errors")
	}
	if errors.Cause(err) != errDiskFull {
		t.Errorf("Got cause %v, expected %v", errors.Cause(err), errDiskFull)
	}
}
