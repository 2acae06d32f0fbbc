package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/pkg/errors"
	"github.com/sw965/crowdl/blas32/tensor/4d"
	"github.com/sw965/crowdl/dataset"
	"github.com/sw965/crowdl/eval"
	"github.com/sw965/crowdl/nn/conf"
	"github.com/sw965/crowdl/nn/layers/factory"
	"github.com/sw965/crowdl/nn/lossfunc"
	"github.com/sw965/crowdl/nn/multilayer"
	"github.com/sw965/crowdl/solver"
)

type options struct {
	config   string
	dataset  string
	lfwDir   string
	rows     int
	cols     int
	split    float64
	seed     int64
	schema   bool
	logLevel string
	listen   int
	download bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.StringVar(&o.config, "config", "", "YAML network configuration (default: a DBN on iris)")
	fs.StringVar(&o.dataset, "dataset", "iris", "iris or lfw")
	fs.StringVar(&o.lfwDir, "lfw-dir", "", "LFW directory (default: ~/.crow_dataset/lfw)")
	fs.IntVar(&o.rows, "rows", 28, "LFW image rows")
	fs.IntVar(&o.cols, "cols", 28, "LFW image cols")
	fs.Float64Var(&o.split, "split", 110.0/150.0, "fraction of examples used for training")
	fs.Int64Var(&o.seed, "seed", 123, "dataset shuffle seed")
	fs.BoolVar(&o.schema, "schema", false, "print the JSON schema of the configuration and exit")
	fs.StringVar(&o.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.IntVar(&o.listen, "print-iterations", 10, "log the score every n iterations, 0 disables")
	fs.BoolVar(&o.download, "download", false, "download LFW when the directory is missing")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.split <= 0 || o.split >= 1 {
		return nil, errors.Errorf("split must be in (0, 1), got %v", o.split)
	}
	return o, nil
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

// defaultConf is a one hidden layer DBN for the 4 iris features.
func defaultConf(nIn, nOut int) (*conf.MultiLayerConfiguration, error) {
	return conf.NewBuilder().
		Iterations(100).LayerFactory(factory.PretrainLayerFactory(conf.KindRBM)).
		WeightInit(conf.WeightInitDistribution).Dist(conf.NewUniformDistribution(0, 1)).
		ActivationFunction("tanh").Momentum(0.9).
		OptimizationAlgo(conf.LBFGS).
		ConstrainGradientToUnitNorm(true).K(1).Regularization(true).L2(2e-4).
		VisibleUnit(conf.VisibleGaussian).HiddenUnit(conf.HiddenRectified).
		LossFunction(lossfunc.RMSE_XENT).
		NIn(nIn).NOut(nOut).List(2).
		HiddenLayerSizes(3).
		Override(1, conf.ClassifierOverride(1)).
		Build()
}

func load(o *options, logger *slog.Logger) (*dataset.DataSet, error) {
	var it dataset.Iterator
	var err error
	switch o.dataset {
	case "iris":
		it, err = dataset.NewIrisIterator(0, 0, dataset.WithSeed(o.seed))
	case "lfw":
		opts := []dataset.Option{dataset.WithSeed(o.seed), dataset.WithLogger(logger)}
		if o.download {
			opts = append(opts, dataset.WithDownload(dataset.LFWURL))
		}
		if o.lfwDir != "" {
			opts = append(opts, dataset.WithDir(o.lfwDir))
		}
		it, err = dataset.NewLFWIterator(o.rows, o.cols, opts...)
	default:
		return nil, errors.Errorf("unknown dataset %q", o.dataset)
	}
	if err != nil {
		return nil, err
	}
	return dataset.All(it)
}

// trainCount is the number of the n examples that go to training.
func trainCount(split float64, n int) int {
	return int(math.Round(split * float64(n)))
}

func run(args []string) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	if o.schema {
		schema, err := conf.JSONSchema()
		if err != nil {
			return err
		}
		_, err = fmt.Println(string(schema))
		return err
	}

	logger, err := newLogger(o.logLevel)
	if err != nil {
		return err
	}

	ds, err := load(o, logger)
	if err != nil {
		return err
	}
	ds.NormalizeZeroMeanZeroUnitVariance()
	numTrain := trainCount(o.split, ds.NumExamples())
	train, test, err := ds.SplitTestAndTrain(numTrain)
	if err != nil {
		return err
	}
	logger.Info("loaded", "dataset", o.dataset, "train", train.NumExamples(), "test", test.NumExamples(),
		"inputs", ds.NumInputs(), "outcomes", ds.NumOutcomes())

	var c *conf.MultiLayerConfiguration
	if o.config != "" {
		c, err = conf.LoadYAML(o.config)
	} else {
		c, err = defaultConf(ds.NumInputs(), ds.NumOutcomes())
	}
	if err != nil {
		return err
	}

	network, err := multilayer.New(c, multilayer.WithLogger(logger))
	if err != nil {
		return err
	}
	if o.listen > 0 {
		l := solver.NewScoreIterationListener(o.listen)
		l.Logger = logger
		network.SetIterationListeners(l)
	}
	if err := network.Fit(train); err != nil {
		return err
	}

	output, err := network.Output(tensor4d.FromFlat(test.Features))
	if err != nil {
		return err
	}
	e := eval.New()
	if err := e.Eval(test.Labels, output); err != nil {
		return err
	}
	fmt.Println(e.Stats())
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
