package dataset

import (
	"log/slog"
	"os"
	"path/filepath"
)

type options struct {
	seed        int64
	dir         string
	downloadURL string
	batch       int
	maxLabels   int
	logger      *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{seed: 123, batch: 10, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Option func(*options)

// WithSeed seeds the shuffle of fetched examples.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithDownload fetches and unpacks a .tgz archive from url when the data directory is missing.
func WithDownload(url string) Option {
	return func(o *options) {
		o.downloadURL = url
	}
}

func WithBatch(batch int) Option {
	return func(o *options) {
		o.batch = batch
	}
}

// WithMaxLabels keeps only the first n classes. Zero keeps all of them.
func WithMaxLabels(n int) Option {
	return func(o *options) {
		o.maxLabels = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".crow_dataset"), nil
}
