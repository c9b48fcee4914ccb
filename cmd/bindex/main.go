// Bindex downloads ANS-104 bundles and stores an index of their items.
//
// Usage:
//
//	bindex -t <txid> -o <file>
//	bindex -t <txid> -s <location> [-g <gateway>] [txid ...]
//
// With -o the index for the single transaction is written to file. With -s
// each transaction is stored under its id in the location, which is either a
// directory or an S3 bucket such as s3:/bucket/prefix. Either way the output
// only appears once every item in the bundle has been stored.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/getsentry/raven-go"
	"github.com/pkg/errors"

	"github.com/ndlib/ans104/blobcache"
	"github.com/ndlib/ans104/gateway"
	"github.com/ndlib/ans104/indexer"
	"github.com/ndlib/ans104/store"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run runs the command with the given arguments and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("bindex", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		txid       = fs.String("t", "", "transaction id of the bundle to index")
		output     = fs.String("o", "", "file to write the index to")
		configFile = fs.String("config", "", "optional TOML configuration file")
	)
	fs.String("s", "", "storage location for the indices: a directory or s3:/bucket/prefix")
	fs.String("prefix", "", "prefix added to the key of each index in the storage location")
	fs.String("g", defaultConfig.Gateway, "base URL of the gateway")
	fs.Int("workers", defaultConfig.Workers, "number of bundles to index at once")
	fs.Int64("confirmations", 0, "skip bundles with fewer confirmations than this")
	fs.String("cache", "", "directory to keep downloaded bundles in")
	fs.Int64("cachesize", defaultConfig.CacheSize, "size of the download cache in megabytes")
	fs.Bool("batch", false, "decode every item before storing any")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	logger := log.New(stderr, "", log.LstdFlags)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		logger.Println(err)
		return 2
	}
	cfg.override(fs)
	if cfg.SentryDSN != "" {
		raven.SetDSN(cfg.SentryDSN)
	}

	ids := fs.Args()
	if *txid != "" {
		ids = append([]string{*txid}, ids...)
	}
	switch {
	case len(ids) == 0:
		logger.Println("a transaction id is needed (-t)")
		return 2
	case *output != "" && cfg.Storage != "":
		logger.Println("use either -o or -s, not both")
		return 2
	case *output == "" && cfg.Storage == "":
		logger.Println("an output file (-o) or storage location (-s) is needed")
		return 2
	case *output != "" && len(ids) > 1:
		logger.Println("-o takes a single transaction")
		return 2
	}

	conn, err := gateway.New(cfg.Gateway)
	if err != nil {
		logger.Println(cfg.Gateway, err)
		return 2
	}
	var source indexer.Downloader = &confirmedSource{conn: conn, min: cfg.Confirmations}
	if cfg.Cache != "" {
		cachedir, err := parselocation(cfg.Cache)
		if err != nil {
			logger.Println(err)
			return 2
		}
		cache := blobcache.NewLRU(cachedir, cfg.CacheSize*1000000)
		cache.Scan()
		source = &indexer.CachedSource{Source: source, Cache: cache}
	}
	ix := &indexer.Indexer{
		Source: source,
		Batch:  cfg.Batch,
	}
	ctx := context.Background()

	if *output != "" {
		dir, name := filepath.Split(*output)
		if dir == "" {
			dir = "."
		}
		ix.Dest = outputDir(dir)
		receipt, err := ix.IndexTo(ctx, ids[0], name)
		if err != nil {
			report(logger, err)
			return 1
		}
		printReceipt(stdout, ids[0], receipt)
		return 0
	}

	dest, err := parselocation(cfg.Storage)
	if err != nil {
		logger.Println(err)
		return 2
	}
	ix.Dest = store.NewWithPrefix(dest, cfg.Prefix)
	results := ix.IndexAll(ctx, ids, cfg.Workers)
	var keys []string
	for id := range results {
		keys = append(keys, id)
	}
	sort.Strings(keys)
	status := 0
	for _, id := range keys {
		r := results[id]
		if r.Err != nil {
			report(logger, r.Err)
			status = 1
			continue
		}
		printReceipt(stdout, id, r.Receipt)
	}
	return status
}

func printReceipt(w io.Writer, txid string, r indexer.Receipt) {
	fmt.Fprintf(w, "%s %s %d items %d bytes sha256:%x\n", txid, r.Key, r.Items, r.Bytes, r.SHA256)
}

// report logs err, and sends storage failures to sentry.
func report(logger *log.Logger, err error) {
	logger.Println(err)
	var e *indexer.Error
	if errors.As(err, &e) && e.Kind == indexer.KindStorage {
		raven.CaptureError(err, map[string]string{"TxID": e.TxID})
	}
}

// ErrUnconfirmed is returned for transactions without enough confirmations.
var ErrUnconfirmed = errors.New("not enough confirmations")

// confirmedSource downloads from the gateway, first checking that the
// transaction is confirmed at least min times.
type confirmedSource struct {
	conn *gateway.Connection
	min  int64
}

func (cs *confirmedSource) Download(ctx context.Context, txid string) ([]byte, error) {
	if cs.min > 0 {
		st, err := cs.conn.Status(ctx, txid)
		if err != nil {
			return nil, err
		}
		if st.Confirmations < cs.min {
			return nil, errors.Wrapf(ErrUnconfirmed, "%d of %d", st.Confirmations, cs.min)
		}
	}
	return cs.conn.Download(ctx, txid)
}
