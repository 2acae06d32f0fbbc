package dataset

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/stat"
)

var (
	ErrNoMoreData = errors.New("dataset: no more data")
	ErrShape      = errors.New("dataset: features and labels disagree")
)

// DataSet pairs a feature matrix with one-hot labels, one example per row.
type DataSet struct {
	Features blas32.General
	Labels   blas32.General
}

func New(features, labels blas32.General) (*DataSet, error) {
	if features.Rows != labels.Rows {
		return nil, errors.Wrapf(ErrShape, "%d feature rows, %d label rows", features.Rows, labels.Rows)
	}
	return &DataSet{Features: features, Labels: labels}, nil
}

// OneHot encodes class indices as rows of numOutcomes columns.
func OneHot(classes []int, numOutcomes int) (blas32.General, error) {
	labels := tensor2d.NewZeros(len(classes), numOutcomes)
	for r, c := range classes {
		if c < 0 || c >= numOutcomes {
			return blas32.General{}, errors.Errorf("dataset: class %d out of range [0, %d)", c, numOutcomes)
		}
		labels.Data[tensor2d.At(labels, r, c)] = 1.0
	}
	return labels, nil
}

func (d *DataSet) NumExamples() int {
	return d.Features.Rows
}

func (d *DataSet) NumInputs() int {
	return d.Features.Cols
}

func (d *DataSet) NumOutcomes() int {
	return d.Labels.Cols
}

func (d *DataSet) Copy() *DataSet {
	return &DataSet{Features: tensor2d.Clone(d.Features), Labels: tensor2d.Clone(d.Labels)}
}

func (d *DataSet) Rows(idxs []int) (*DataSet, error) {
	features, err := tensor2d.Rows(d.Features, idxs)
	if err != nil {
		return nil, err
	}
	labels, err := tensor2d.Rows(d.Labels, idxs)
	if err != nil {
		return nil, err
	}
	return &DataSet{Features: features, Labels: labels}, nil
}

func (d *DataSet) Get(i int) (*DataSet, error) {
	return d.Rows([]int{i})
}

// Outcomes returns the class index of every example.
func (d *DataSet) Outcomes() []int {
	return tensor2d.ArgMax1(d.Labels)
}

func (d *DataSet) LabelCounts() map[int]int {
	counts := map[int]int{}
	for _, c := range d.Outcomes() {
		counts[c]++
	}
	return counts
}

func (d *DataSet) Shuffle(rng *rand.Rand) {
	rng.Shuffle(d.NumExamples(), func(i, j int) {
		swapRows(d.Features, i, j)
		swapRows(d.Labels, i, j)
	})
}

func swapRows(gen blas32.General, i, j int) {
	a, b := tensor2d.Row(gen, i), tensor2d.Row(gen, j)
	for c := range a {
		a[c], b[c] = b[c], a[c]
	}
}

// NormalizeZeroMeanZeroUnitVariance standardizes every feature column in place.
// Constant columns only lose their mean.
func (d *DataSet) NormalizeZeroMeanZeroUnitVariance() {
	col := make([]float64, d.NumExamples())
	for c := 0; c < d.NumInputs(); c++ {
		for r := range col {
			col[r] = float64(d.Features.Data[tensor2d.At(d.Features, r, c)])
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1.0
		}
		for r := range col {
			d.Features.Data[tensor2d.At(d.Features, r, c)] = float32((col[r] - mean) / std)
		}
	}
}

// SplitTestAndTrain puts the first numTrain examples in train and the rest in test.
func (d *DataSet) SplitTestAndTrain(numTrain int) (*DataSet, *DataSet, error) {
	n := d.NumExamples()
	if numTrain <= 0 || numTrain >= n {
		return nil, nil, errors.Errorf("dataset: cannot split %d examples at %d", n, numTrain)
	}
	train := make([]int, numTrain)
	for i := range train {
		train[i] = i
	}
	test := make([]int, n-numTrain)
	for i := range test {
		test[i] = numTrain + i
	}
	trainSet, err := d.Rows(train)
	if err != nil {
		return nil, nil, err
	}
	testSet, err := d.Rows(test)
	if err != nil {
		return nil, nil, err
	}
	return trainSet, testSet, nil
}

// FeaturesTensor views the features as (chs, rows, cols) images.
func (d *DataSet) FeaturesTensor(chs, rows, cols int) (tensor4d.General, error) {
	return tensor4d.FromGeneral(d.Features, chs, rows, cols)
}

func Merge(sets ...*DataSet) (*DataSet, error) {
	if len(sets) == 0 {
		return nil, errors.New("dataset: nothing to merge")
	}
	inputs, outcomes := sets[0].NumInputs(), sets[0].NumOutcomes()
	n := 0
	for _, s := range sets {
		if s.NumInputs() != inputs || s.NumOutcomes() != outcomes {
			return nil, errors.Wrapf(ErrShape, "merge %dx%d with %dx%d", s.NumInputs(), s.NumOutcomes(), inputs, outcomes)
		}
		n += s.NumExamples()
	}

	merged := &DataSet{Features: tensor2d.NewZeros(n, inputs), Labels: tensor2d.NewZeros(n, outcomes)}
	r := 0
	for _, s := range sets {
		for i := 0; i < s.NumExamples(); i++ {
			copy(tensor2d.Row(merged.Features, r), tensor2d.Row(s.Features, i))
			copy(tensor2d.Row(merged.Labels, r), tensor2d.Row(s.Labels, i))
			r++
		}
	}
	return merged, nil
}

// WriteTxt writes one line of sep separated features per example.
func (d *DataSet) WriteTxt(w io.Writer, sep string) error {
	bw := bufio.NewWriter(w)
	for r := 0; r < d.NumExamples(); r++ {
		for c, e := range tensor2d.Row(d.Features, r) {
			if c > 0 {
				if _, err := bw.WriteString(sep); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(strconv.FormatFloat(float64(e), 'g', -1, 32)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func (d *DataSet) SaveTxt(path, sep string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.WriteTxt(f, sep); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (d *DataSet) String() string {
	return fmt.Sprintf("DataSet(%d examples, %d inputs, %d outcomes)", d.NumExamples(), d.NumInputs(), d.NumOutcomes())
}
