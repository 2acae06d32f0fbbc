package dataset

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
)

const LFWURL = "http://vis-www.cs.umass.edu/lfw/lfw.tgz"

var imageExts = []string{".jpg", ".jpeg", ".png"}

// LFWFetcher reads faces laid out as <dir>/<person>/<image>. Every person is one class.
type LFWFetcher struct {
	rows   int
	cols   int
	paths  []string
	labels []int
	names  []string
}

func NewLFWFetcher(rows, cols int, opts ...Option) (*LFWFetcher, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.Errorf("lfw: image size %dx%d", rows, cols)
	}
	o := newOptions(opts)
	dir := o.dir
	if dir == "" {
		base, err := dataDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "lfw")
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if o.downloadURL == "" {
			return nil, errors.Errorf("lfw: %s does not exist", dir)
		}
		parent := filepath.Dir(dir)
		if err := os.MkdirAll(parent, 0755); err != nil {
			return nil, err
		}
		archive := filepath.Join(parent, filepath.Base(dir)+".tgz")
		if err := ensureFile(archive, o.downloadURL, o.logger); err != nil {
			return nil, err
		}
		if err := untar(archive, parent); err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	f := &LFWFetcher{rows: rows, cols: cols}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if o.maxLabels > 0 && len(f.names) == o.maxLabels {
			break
		}
		files, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		label := len(f.names)
		n := 0
		for _, file := range files {
			ext := strings.ToLower(filepath.Ext(file.Name()))
			if file.IsDir() || !slices.Contains(imageExts, ext) {
				continue
			}
			f.paths = append(f.paths, filepath.Join(dir, e.Name(), file.Name()))
			f.labels = append(f.labels, label)
			n++
		}
		if n > 0 {
			f.names = append(f.names, e.Name())
		}
	}
	if len(f.paths) == 0 {
		return nil, errors.Errorf("lfw: no images under %s", dir)
	}
	o.logger.Debug("lfw indexed", "dir", dir, "images", len(f.paths), "people", len(f.names))
	return f, nil
}

// Names returns the person of every class.
func (f *LFWFetcher) Names() []string {
	return slices.Clone(f.names)
}

func (f *LFWFetcher) Fetch(cursor, n int) (*DataSet, error) {
	if cursor < 0 || n <= 0 || cursor+n > len(f.paths) {
		return nil, ErrNoMoreData
	}
	features := tensor2d.NewZeros(n, f.rows*f.cols)
	for i := 0; i < n; i++ {
		pixels, err := LoadGrayImage(f.paths[cursor+i], f.rows, f.cols)
		if err != nil {
			return nil, errors.Wrapf(err, "lfw: %s", f.paths[cursor+i])
		}
		copy(tensor2d.Row(features, i), pixels)
	}
	labels, err := OneHot(f.labels[cursor:cursor+n], len(f.names))
	if err != nil {
		return nil, err
	}
	return New(features, labels)
}

func (f *LFWFetcher) TotalExamples() int {
	return len(f.paths)
}

func (f *LFWFetcher) InputColumns() int {
	return f.rows * f.cols
}

func (f *LFWFetcher) TotalOutcomes() int {
	return len(f.names)
}

func NewLFWIterator(rows, cols int, opts ...Option) (*BaseIterator, error) {
	f, err := NewLFWFetcher(rows, cols, opts...)
	if err != nil {
		return nil, err
	}
	return NewBaseIterator(newOptions(opts).batch, 0, f), nil
}
