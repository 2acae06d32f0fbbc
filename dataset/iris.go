package dataset

import (
	"bufio"
	"bytes"
	_ "embed"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	crand "github.com/sw965/crowdl/math/rand"
)

//go:embed iris.data
var irisData []byte

var irisClasses = []string{"Iris-setosa", "Iris-versicolor", "Iris-virginica"}

const irisInputs = 4

func parseIris(data []byte) (*DataSet, error) {
	var rows [][]float32
	var classes []int
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		if len(fields) != irisInputs+1 {
			return nil, errors.Errorf("iris: line %d has %d fields", line, len(fields))
		}
		row := make([]float32, irisInputs)
		for i := range row {
			v, err := strconv.ParseFloat(fields[i], 32)
			if err != nil {
				return nil, errors.Wrapf(err, "iris: line %d", line)
			}
			row[i] = float32(v)
		}
		class := slices.Index(irisClasses, fields[irisInputs])
		if class < 0 {
			return nil, errors.Errorf("iris: line %d has unknown class %q", line, fields[irisInputs])
		}
		rows = append(rows, row)
		classes = append(classes, class)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	features, err := tensor2d.NewFromRows(rows)
	if err != nil {
		return nil, err
	}
	labels, err := OneHot(classes, len(irisClasses))
	if err != nil {
		return nil, err
	}
	return New(features, labels)
}

// IrisFetcher serves the 150 Iris examples, shuffled once.
type IrisFetcher struct {
	all *DataSet
}

func NewIrisFetcher(seed int64) (*IrisFetcher, error) {
	all, err := parseIris(irisData)
	if err != nil {
		return nil, err
	}
	all.Shuffle(crand.NewMt19937(seed))
	return &IrisFetcher{all: all}, nil
}

func (f *IrisFetcher) Fetch(cursor, n int) (*DataSet, error) {
	if cursor < 0 || n <= 0 || cursor+n > f.all.NumExamples() {
		return nil, ErrNoMoreData
	}
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = cursor + i
	}
	return f.all.Rows(idxs)
}

func (f *IrisFetcher) TotalExamples() int {
	return f.all.NumExamples()
}

func (f *IrisFetcher) InputColumns() int {
	return irisInputs
}

func (f *IrisFetcher) TotalOutcomes() int {
	return len(irisClasses)
}

func NewIrisIterator(batch, numExamples int, opts ...Option) (*BaseIterator, error) {
	o := newOptions(opts)
	fetcher, err := NewIrisFetcher(o.seed)
	if err != nil {
		return nil, err
	}
	return NewBaseIterator(batch, numExamples, fetcher), nil
}
