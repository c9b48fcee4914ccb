package indexer

import (
	"context"
	"io/ioutil"
	"log"

	"github.com/ndlib/ans104/blobcache"
	"github.com/ndlib/ans104/store"
)

// A CachedSource is a Downloader which keeps a copy of each bundle it
// downloads from Source in Cache, and serves later requests for it from
// there. Problems with the cache are logged and otherwise ignored.
type CachedSource struct {
	Source Downloader
	Cache  blobcache.Cache
}

// Download returns the bundle for txid, from the cache if it is there.
func (cs *CachedSource) Download(ctx context.Context, txid string) ([]byte, error) {
	rac, _, err := cs.Cache.Get(txid)
	if err != nil {
		log.Println("cache get", txid, err)
	}
	if rac != nil {
		data, err := ioutil.ReadAll(store.NewReader(rac))
		rac.Close()
		if err == nil {
			return data, nil
		}
		log.Println("cache read", txid, err)
	}

	data, err := cs.Source.Download(ctx, txid)
	if err != nil {
		return nil, err
	}
	w, err := cs.Cache.Put(txid)
	if err != nil {
		log.Println("cache put", txid, err)
		return data, nil
	}
	if _, err = w.Write(data); err != nil {
		w.Abort()
		log.Println("cache put", txid, err)
		return data, nil
	}
	if err = w.Close(); err != nil {
		log.Println("cache put", txid, err)
	}
	return data, nil
}
