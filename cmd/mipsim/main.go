// Package main provides the entry point for mipsim, a cycle-accurate MIPS
// performance simulator with an embedded functional oracle.
package main

import (
	"fmt"
	"os"

	getopt "github.com/pborman/getopt/v2"
	"github.com/sirupsen/logrus"

	"github.com/perfsim/mipsim/emu"
	"github.com/perfsim/mipsim/loader"
	"github.com/perfsim/mipsim/timing/config"
	"github.com/perfsim/mipsim/timing/pipeline"
)

var (
	budget     = getopt.Uint64Long("num-instrs", 'n', 0, "Number of instructions to run (0 = unlimited)")
	functional = getopt.BoolLong("functional", 'f', "Run the functional simulator only")
	disasm     = getopt.BoolLong("disassembly", 'd', "Log simulation progress")
	predictor  = getopt.StringLong("bp-mode", 'p', "bimodal", "Branch predictor: bimodal or never-taken")
	configPath = getopt.StringLong("config", 'c', "", "Path to timing configuration JSON file")
	noChecker  = getopt.BoolLong("no-checker", 0, "Disable the functional oracle")
	helpFlag   = getopt.BoolLong("help", 'h', "Show usage")
)

func main() {
	getopt.SetParameters("<program.elf>")
	getopt.Parse()

	if *helpFlag || getopt.NArgs() < 1 {
		getopt.Usage()
		if *helpFlag {
			os.Exit(0)
		}
		os.Exit(1)
	}

	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	if *disasm {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(log, getopt.Arg(0)); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func run(log *logrus.Logger, tracePath string) error {
	prog, err := loader.Load(tracePath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", tracePath, err)
	}
	log.WithFields(logrus.Fields{
		"trace":    tracePath,
		"entry":    fmt.Sprintf("0x%x", prog.EntryPoint),
		"segments": len(prog.Segments),
	}).Info("program loaded")

	if *functional {
		return runFunctional(log, prog)
	}
	return runTiming(log, prog)
}

func runFunctional(log *logrus.Logger, prog *loader.Program) error {
	memory := emu.NewMemory()
	prog.LoadInto(memory)

	emulator := emu.NewEmulator(
		emu.WithMemory(memory),
		emu.WithMaxInstructions(*budget),
		emu.WithLogger(log),
	)
	emulator.SetPC(prog.EntryPoint)

	if err := emulator.Run(); err != nil {
		return err
	}
	log.WithField("instructions", emulator.InstructionCount()).Info("done")
	return nil
}

func runTiming(log *logrus.Logger, prog *loader.Program) error {
	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("timing config: %w", err)
	}

	memory := emu.NewMemory()
	prog.LoadInto(memory)
	regFile := &emu.RegFile{}

	opts := []pipeline.PipelineOption{
		pipeline.WithConfig(cfg),
		pipeline.WithLogger(log),
	}

	switch *predictor {
	case "bimodal":
		opts = append(opts, pipeline.WithPredictor(pipeline.NewBimodal(cfg.BHTSize, cfg.BTBSize)))
	case "never-taken":
		opts = append(opts, pipeline.WithPredictor(pipeline.AlwaysNotTaken{}))
	default:
		return fmt.Errorf("unknown branch predictor %q", *predictor)
	}

	if !*noChecker {
		checkerMemory := emu.NewMemory()
		prog.LoadInto(checkerMemory)
		oracle := emu.NewEmulator(emu.WithMemory(checkerMemory))
		oracle.SetPC(prog.EntryPoint)
		opts = append(opts, pipeline.WithChecker(pipeline.NewChecker(oracle)))
	}

	pipe := pipeline.NewPipeline(regFile, memory, opts...)
	pipe.SetPC(prog.EntryPoint)

	if err := pipe.Run(*budget); err != nil {
		return err
	}

	stats := pipe.Stats()
	log.WithFields(logrus.Fields{
		"instructions":   stats.Instructions,
		"cycles":         stats.Cycles,
		"cpi":            fmt.Sprintf("%.2f", stats.CPI()),
		"stalls":         stats.Stalls,
		"flushes":        stats.Flushes,
		"branches":       stats.BranchPredictions,
		"mispredictions": stats.BranchMispredictions,
	}).Info("simulation finished")
	return nil
}
