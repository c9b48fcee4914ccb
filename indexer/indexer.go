package indexer

import (
	"context"
	"io"
	"sync"

	"github.com/ndlib/ans104/bundle"
	"github.com/ndlib/ans104/store"
	"github.com/ndlib/ans104/util"
)

// A Downloader fetches the raw bundle bytes of a transaction. The bytes must
// already have any transport encoding removed.
type Downloader interface {
	Download(ctx context.Context, txid string) ([]byte, error)
}

// A Destination is where artifacts are written. Any store.Store will do.
type Destination interface {
	Create(key string) (store.Writer, error)
}

// An Indexer downloads bundles from Source and stores them in Dest.
//
// By default items are decoded one at a time as they are stored. If Batch is
// set every item is decoded before anything is stored. The artifact is the
// same either way.
type Indexer struct {
	Source Downloader
	Dest   Destination
	Batch  bool
}

// Index indexes the bundle in transaction txid, storing it under the key
// txid.
func (ix *Indexer) Index(ctx context.Context, txid string) (Receipt, error) {
	return ix.IndexTo(ctx, txid, txid)
}

// IndexTo indexes the bundle in transaction txid, storing it under key.
func (ix *Indexer) IndexTo(ctx context.Context, txid, key string) (Receipt, error) {
	data, err := ix.Source.Download(ctx, txid)
	if err != nil {
		return Receipt{}, &Error{Kind: KindDownload, TxID: txid, Err: err}
	}
	return ix.IndexBytes(txid, key, data)
}

// IndexBytes stores the bundle in data under key. The Indexer takes ownership
// of data. Either every item is stored and committed, or nothing is.
func (ix *Indexer) IndexBytes(txid, key string, data []byte) (Receipt, error) {
	next, err := ix.decoder(data)
	if err != nil {
		return Receipt{}, &Error{Kind: KindDecode, TxID: txid, Err: err}
	}
	session, err := NewSession(ix.Dest, key)
	if err != nil {
		return Receipt{}, &Error{Kind: KindStorage, TxID: txid, Err: err}
	}
	for {
		item, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			session.Rollback()
			return Receipt{}, &Error{Kind: KindDecode, TxID: txid, Err: err}
		}
		if err = session.Store(item); err != nil {
			session.Rollback()
			return Receipt{}, &Error{Kind: KindStorage, TxID: txid, Err: err}
		}
	}
	receipt, err := session.Commit()
	if err != nil {
		return Receipt{}, &Error{Kind: KindStorage, TxID: txid, Err: err}
	}
	return receipt, nil
}

// decoder returns a function giving the items of the bundle in order,
// followed by io.EOF.
func (ix *Indexer) decoder(data []byte) (func() (bundle.Item, error), error) {
	if !ix.Batch {
		r, err := bundle.NewReader(data)
		if err != nil {
			return nil, err
		}
		return r.Next, nil
	}
	items, err := bundle.Decode(data)
	if err != nil {
		return nil, err
	}
	return func() (bundle.Item, error) {
		if len(items) == 0 {
			return bundle.Item{}, io.EOF
		}
		item := items[0]
		items = items[1:]
		return item, nil
	}, nil
}

// A Result is the outcome of indexing one transaction with IndexAll.
type Result struct {
	Receipt Receipt
	Err     error
}

// IndexAll indexes every transaction in ids, running at most workers at a
// time, and returns the outcome for each one. Repeated ids are only indexed
// once. Each run is independent; a failure in one does not stop the others.
func (ix *Indexer) IndexAll(ctx context.Context, ids []string, workers int) map[string]Result {
	if workers < 1 {
		workers = 1
	}
	results := make(map[string]Result, len(ids))
	var m sync.Mutex
	var wg sync.WaitGroup
	gate := util.NewGate(workers)
	seen := make(map[string]bool, len(ids))
	for _, txid := range ids {
		if seen[txid] {
			continue
		}
		seen[txid] = true
		wg.Add(1)
		go func(txid string) {
			defer wg.Done()
			var receipt Receipt
			err := gate.EnterContext(ctx)
			if err != nil {
				err = &Error{Kind: KindDownload, TxID: txid, Err: err}
			} else {
				receipt, err = ix.Index(ctx, txid)
				gate.Leave()
			}
			m.Lock()
			results[txid] = Result{Receipt: receipt, Err: err}
			m.Unlock()
		}(txid)
	}
	wg.Wait()
	return results
}
