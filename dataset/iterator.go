package dataset

// Iterator hands out a data set in batches.
type Iterator interface {
	HasNext() bool
	Next() (*DataSet, error)
	Reset()
	Batch() int
	TotalExamples() int
	InputColumns() int
	TotalOutcomes() int
}

// Fetcher loads n examples starting at cursor.
type Fetcher interface {
	Fetch(cursor, n int) (*DataSet, error)
	TotalExamples() int
	InputColumns() int
	TotalOutcomes() int
}

type BaseIterator struct {
	batch       int
	numExamples int
	cursor      int
	fetcher     Fetcher
}

// NewBaseIterator serves the first numExamples examples of fetcher.
// A non-positive numExamples, or one beyond the total, means all of them.
func NewBaseIterator(batch, numExamples int, fetcher Fetcher) *BaseIterator {
	total := fetcher.TotalExamples()
	if numExamples <= 0 || numExamples > total {
		numExamples = total
	}
	if batch <= 0 {
		batch = numExamples
	}
	return &BaseIterator{batch: batch, numExamples: numExamples, fetcher: fetcher}
}

func (it *BaseIterator) HasNext() bool {
	return it.cursor < it.numExamples
}

func (it *BaseIterator) Next() (*DataSet, error) {
	if !it.HasNext() {
		return nil, ErrNoMoreData
	}
	n := min(it.batch, it.numExamples-it.cursor)
	ds, err := it.fetcher.Fetch(it.cursor, n)
	if err != nil {
		return nil, err
	}
	it.cursor += n
	return ds, nil
}

func (it *BaseIterator) Reset() {
	it.cursor = 0
}

func (it *BaseIterator) Batch() int {
	return it.batch
}

func (it *BaseIterator) TotalExamples() int {
	return it.numExamples
}

func (it *BaseIterator) InputColumns() int {
	return it.fetcher.InputColumns()
}

func (it *BaseIterator) TotalOutcomes() int {
	return it.fetcher.TotalOutcomes()
}

// All merges every remaining batch.
func All(it Iterator) (*DataSet, error) {
	var sets []*DataSet
	for it.HasNext() {
		ds, err := it.Next()
		if err != nil {
			return nil, err
		}
		sets = append(sets, ds)
	}
	if len(sets) == 0 {
		return nil, ErrNoMoreData
	}
	return Merge(sets...)
}
