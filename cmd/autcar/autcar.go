package main

import (
	"fmt"
	"os"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/autcar/pkg/command"
	"github.com/cyclopcam/autcar/pkg/dataset"
	"github.com/cyclopcam/autcar/pkg/evaluate"
	"github.com/cyclopcam/autcar/pkg/nn"
	"github.com/cyclopcam/autcar/pkg/opencvrt"
	"github.com/cyclopcam/autcar/pkg/train"
	"github.com/cyclopcam/autcar/server/config"
	"github.com/cyclopcam/logs"
	"github.com/schollz/progressbar/v3"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("autcar", "Balance a driving dataset, train a steering classifier, and test it")
	configFile := parser.String("c", "config", &argparse.Options{Help: "YAML config file (default autcar.yaml, if it exists)", Required: false})

	balanceCmd := parser.NewCommand("balance", "Create a balanced dataset from one or more recordings")
	sources := balanceCmd.StringList("s", "source", &argparse.Options{Help: "Recording folder, containing training.csv. May be repeated.", Required: true})
	balanceOut := balanceCmd.String("o", "output", &argparse.Options{Help: "Output folder. It will be deleted if it already exists.", Required: true})
	split := balanceCmd.Float("", "split", &argparse.Options{Help: "Fraction of examples that go into the train set (overrides config)", Required: false, Default: -1.0})
	seed := balanceCmd.Int("", "seed", &argparse.Options{Help: "Random seed for a reproducible split (overrides config)", Required: false, Default: -1})

	classesCmd := parser.NewCommand("classes", "Print the number of classes in a balanced dataset")
	classesFolder := classesCmd.String("d", "dataset", &argparse.Options{Help: "Balanced dataset folder", Required: true})

	trainCmd := parser.NewCommand("train", "Train a model on a balanced dataset")
	trainFolder := trainCmd.String("d", "dataset", &argparse.Options{Help: "Balanced dataset folder", Required: true})
	trainOut := trainCmd.String("o", "output", &argparse.Options{Help: "Output ONNX model file (local path or gs://bucket/object)", Required: true})
	epochs := trainCmd.Int("e", "epochs", &argparse.Options{Help: "Number of epochs (overrides config)", Required: false, Default: 0})
	arch := trainCmd.String("a", "arch", &argparse.Options{Help: "Architecture, eg mlp-256-64 or cnn-16-32-mlp-64 (overrides config)", Required: false})
	plotPath := trainCmd.String("", "plot", &argparse.Options{Help: "Write a PNG plot of the training loss here (overrides config)", Required: false})

	testCmd := parser.NewCommand("test", "Evaluate a trained model on a test manifest")
	modelFile := testCmd.String("m", "model", &argparse.Options{Help: "ONNX model file", Required: true})
	testMap := testCmd.String("t", "testmap", &argparse.Options{Help: "Test manifest (test_map.txt of a balanced dataset)", Required: true})
	runtime := testCmd.Selector("r", "runtime", []string{config.RuntimeGo, config.RuntimeOpenCV}, &argparse.Options{Help: "Inference runtime (overrides config)", Required: false})
	reportFile := testCmd.String("", "report", &argparse.Options{Help: "Write a PNG rendering of the confusion matrix here", Required: false})

	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	cfg, err := config.LoadConfig(*configFile)
	check(err)

	switch {
	case balanceCmd.Happened():
		opt := cfg.BalanceOptions()
		if *split >= 0 {
			opt.SplitRatio = *split
		}
		if *seed >= 0 {
			s := uint64(*seed)
			opt.Seed = &s
		}
		summary, err := dataset.CreateBalanced(logger, *sources, *balanceOut, opt)
		check(err)
		for _, label := range command.Classes {
			if n, ok := summary.SourceCounts[label]; ok {
				logger.Infof("%-14v %6v source examples, %6v duplicates", label, n, summary.Duplicates[label])
			}
		}
	case classesCmd.Happened():
		n, err := dataset.ClassCount(*classesFolder)
		check(err)
		fmt.Printf("%v\n", n)
	case trainCmd.Happened():
		if *arch != "" {
			cfg.Architecture = *arch
		}
		if *epochs > 0 {
			cfg.Epochs = *epochs
		}
		if *plotPath != "" {
			cfg.PlotPath = *plotPath
		}
		builder, err := nn.ParseArchitecture(cfg.Architecture)
		check(err)
		trainer := train.NewTrainer(logger, cfg.TrainOptions())
		_, err = trainer.Train(*trainFolder, builder, cfg.Epochs, *trainOut)
		check(err)
	case testCmd.Happened():
		if *runtime != "" {
			cfg.Runtime = *runtime
		}
		ev := evaluate.NewEvaluator(logger)
		if cfg.Runtime == config.RuntimeOpenCV {
			ev.Load = func(filename string) (nn.Classifier, error) {
				return opencvrt.Load(filename)
			}
		}
		var bar *progressbar.ProgressBar
		ev.Progress = func(done, total int) {
			if bar == nil {
				bar = progressbar.Default(int64(total), "Testing")
			}
			bar.Set(done)
		}
		report, err := ev.Run(*modelFile, *testMap)
		check(err)
		check(report.Confusion.WriteText(os.Stdout))
		if *reportFile != "" {
			check(report.Confusion.SavePNG(*reportFile))
			logger.Infof("Wrote %v", *reportFile)
		}
	}
}
