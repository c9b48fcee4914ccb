package main

import (
	"flag"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds the settings for a run. They may come from a TOML file, and
// any flags given on the command line replace the values from the file.
//
// An example file:
//
//	gateway = "https://arweave.net"
//	storage = "s3:/bundles/indexed"
//	prefix = "ans104-"
//	workers = 4
//	confirmations = 10
//	cache = "/var/cache/bindex"
//	sentry_dsn = "https://key@sentry.example.com/2"
type Config struct {
	Gateway       string `toml:"gateway"`
	Storage       string `toml:"storage"`
	Prefix        string `toml:"prefix"`
	Workers       int    `toml:"workers"`
	Batch         bool   `toml:"batch"`
	Confirmations int64  `toml:"confirmations"`
	Cache         string `toml:"cache"`
	CacheSize     int64  `toml:"cache_size"` // in megabytes
	SentryDSN     string `toml:"sentry_dsn"`
}

var defaultConfig = Config{
	Gateway:   "https://arweave.net",
	Workers:   1,
	CacheSize: 1024,
}

// loadConfig reads the file at name on top of the defaults. An empty name
// just returns the defaults.
func loadConfig(name string) (Config, error) {
	cfg := defaultConfig
	if name == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(name, &cfg)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", name)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, errors.Errorf("unknown config keys in %s: %v", name, undecoded)
	}
	return cfg, nil
}

// override copies the value of every flag set on fs into cfg.
func (cfg *Config) override(fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		getter, ok := f.Value.(flag.Getter)
		if !ok {
			return
		}
		switch v := getter.Get().(type) {
		case string:
			switch f.Name {
			case "g":
				cfg.Gateway = v
			case "s":
				cfg.Storage = v
			case "prefix":
				cfg.Prefix = v
			case "cache":
				cfg.Cache = v
			}
		case int:
			if f.Name == "workers" {
				cfg.Workers = v
			}
		case int64:
			switch f.Name {
			case "confirmations":
				cfg.Confirmations = v
			case "cachesize":
				cfg.CacheSize = v
			}
		case bool:
			if f.Name == "batch" {
				cfg.Batch = v
			}
		}
	})
}
