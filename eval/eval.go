package eval

import (
	"fmt"
	"slices"
	"strings"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/2d"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/blas/blas32"
)

var ErrShape = errors.New("eval: labels and output disagree")

// Unclassified is the prediction for an output row that is entirely NaN.
// It never matches a label.
const Unclassified = -1

// Evaluation accumulates a confusion matrix over argmax labels and predictions.
type Evaluation struct {
	confusion map[int]map[int]int
	n         int
}

func New() *Evaluation {
	return &Evaluation{confusion: map[int]map[int]int{}}
}

func (e *Evaluation) add(actual, predicted int) {
	row, ok := e.confusion[actual]
	if !ok {
		row = map[int]int{}
		e.confusion[actual] = row
	}
	row[predicted]++
	e.n++
}

func (e *Evaluation) Eval(labels, output blas32.General) error {
	if !tensor2d.SameShape(labels, output) {
		return errors.Wrapf(ErrShape, "labels %dx%d, output %dx%d", labels.Rows, labels.Cols, output.Rows, output.Cols)
	}
	actual := tensor2d.ArgMax1(labels)
	for i := range actual {
		e.add(actual[i], predict(tensor2d.Row(output, i)))
	}
	return nil
}

// predict is the argmax of row over its non-NaN entries.
func predict(row []float32) int {
	idx := Unclassified
	for i, e := range row {
		if math32.IsNaN(e) {
			continue
		}
		if idx == Unclassified || e > row[idx] {
			idx = i
		}
	}
	return idx
}

func (e *Evaluation) NumExamples() int {
	return e.n
}

func (e *Evaluation) Count(actual, predicted int) int {
	return e.confusion[actual][predicted]
}

// Classes returns every class seen as a label or a prediction, sorted.
// Unclassified is left out.
func (e *Evaluation) Classes() []int {
	seen := map[int]struct{}{}
	for actual, row := range e.confusion {
		seen[actual] = struct{}{}
		for predicted := range row {
			seen[predicted] = struct{}{}
		}
	}
	delete(seen, Unclassified)
	classes := maps.Keys(seen)
	slices.Sort(classes)
	return classes
}

// ClassCount is the number of examples labeled class.
func (e *Evaluation) ClassCount(class int) int {
	sum := 0
	for _, c := range e.confusion[class] {
		sum += c
	}
	return sum
}

func (e *Evaluation) TruePositives(class int) int {
	return e.Count(class, class)
}

func (e *Evaluation) FalsePositives(class int) int {
	sum := 0
	for actual, row := range e.confusion {
		if actual != class {
			sum += row[class]
		}
	}
	return sum
}

func (e *Evaluation) FalseNegatives(class int) int {
	return e.ClassCount(class) - e.TruePositives(class)
}

func (e *Evaluation) Accuracy() float64 {
	if e.n == 0 {
		return 0.0
	}
	correct := 0
	for class := range e.confusion {
		correct += e.TruePositives(class)
	}
	return float64(correct) / float64(e.n)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0.0
	}
	return float64(num) / float64(den)
}

func (e *Evaluation) ClassPrecision(class int) float64 {
	tp := e.TruePositives(class)
	return ratio(tp, tp+e.FalsePositives(class))
}

func (e *Evaluation) ClassRecall(class int) float64 {
	tp := e.TruePositives(class)
	return ratio(tp, tp+e.FalseNegatives(class))
}

func (e *Evaluation) macro(f func(int) float64) float64 {
	classes := e.Classes()
	if len(classes) == 0 {
		return 0.0
	}
	var sum float64
	for _, c := range classes {
		sum += f(c)
	}
	return sum / float64(len(classes))
}

// Precision is the macro average over Classes.
func (e *Evaluation) Precision() float64 {
	return e.macro(e.ClassPrecision)
}

// Recall is the macro average over Classes.
func (e *Evaluation) Recall() float64 {
	return e.macro(e.ClassRecall)
}

func (e *Evaluation) F1() float64 {
	p, r := e.Precision(), e.Recall()
	if p+r == 0 {
		return 0.0
	}
	return 2.0 * p * r / (p + r)
}

func (e *Evaluation) Stats() string {
	var b strings.Builder
	actuals := maps.Keys(e.confusion)
	slices.Sort(actuals)
	for _, actual := range actuals {
		predicted := maps.Keys(e.confusion[actual])
		slices.Sort(predicted)
		for _, p := range predicted {
			fmt.Fprintf(&b, "Examples labeled as %d classified by model as %d: %d times\n", actual, p, e.Count(actual, p))
		}
	}
	b.WriteString("\n==========================Scores========================================\n")
	fmt.Fprintf(&b, " Accuracy:  %.4f\n", e.Accuracy())
	fmt.Fprintf(&b, " Precision: %.4f\n", e.Precision())
	fmt.Fprintf(&b, " Recall:    %.4f\n", e.Recall())
	fmt.Fprintf(&b, " F1 Score:  %.4f\n", e.F1())
	b.WriteString("========================================================================\n")
	return b.String()
}
