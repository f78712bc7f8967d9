package benchmarks

import (
	"fmt"

	"github.com/perfsim/mipsim/emu"
	"github.com/perfsim/mipsim/timing/pipeline"
)

// Benchmark is a hand-assembled program together with the address it is
// loaded at.
type Benchmark struct {
	Name  string
	Entry uint32
	Words []uint32
}

// DefaultEntry keeps the benchmarks away from address 0, which doubles as
// the halt target.
const DefaultEntry = 0x00400000

// ArithmeticSequential is a chain of independent register adds.
func ArithmeticSequential(n int) Benchmark {
	words := []uint32{}
	for i := 0; i < n; i++ {
		reg := uint32(8 + i%8) // cycle through $t0..$t7
		words = append(words, Addiu(reg, 0, int16(i)))
	}
	words = append(words, Halt())
	return Benchmark{Name: "arithmetic-sequential", Entry: DefaultEntry, Words: words}
}

// DependencyChain is a chain of adds where every instruction consumes the
// previous result, exercising the bypass network.
func DependencyChain(n int) Benchmark {
	words := []uint32{Addiu(8, 0, 1)}
	for i := 0; i < n; i++ {
		words = append(words, Addu(8, 8, 8))
	}
	words = append(words, Halt())
	return Benchmark{Name: "dependency-chain", Entry: DefaultEntry, Words: words}
}

// MemorySequential stores and reloads a word per iteration, exercising the
// load-use stall.
func MemorySequential(n int) Benchmark {
	words := []uint32{
		Lui(8, 0x1000), // $t0 = data segment base
	}
	for i := 0; i < n; i++ {
		off := int16(i * 4)
		words = append(words,
			Addiu(9, 0, int16(i)),
			Sw(9, 8, off),
			Lw(10, 8, off),
			Addu(11, 10, 10),
		)
	}
	words = append(words, Halt())
	return Benchmark{Name: "memory-sequential", Entry: DefaultEntry, Words: words}
}

// BranchLoop decrements a counter in a backwards-taken loop, exercising the
// branch predictor and misprediction recovery.
func BranchLoop(iterations int16) Benchmark {
	words := []uint32{
		Addiu(8, 0, iterations), // $t0 = counter
		Addiu(9, 9, 1),          // loop: $t1++
		Addiu(8, 8, -1),         // $t0--
		Bne(8, 0, -3),           // back to loop
		Halt(),
	}
	return Benchmark{Name: "branch-loop", Entry: DefaultEntry, Words: words}
}

// Result holds the outcome of a timed benchmark run.
type Result struct {
	Benchmark string
	Stats     pipeline.Statistics
	RegFile   *emu.RegFile
}

// String renders the result for reports.
func (r Result) String() string {
	return fmt.Sprintf("%s: %d instrs, %d cycles, CPI %.2f",
		r.Benchmark, r.Stats.Instructions, r.Stats.Cycles, r.Stats.CPI())
}

// Run executes a benchmark on the timing pipeline with the bimodal
// predictor and the functional oracle enabled.
func Run(b Benchmark) (Result, error) {
	memory := emu.NewMemory()
	checkerMemory := emu.NewMemory()
	for i, w := range b.Words {
		memory.Write32(b.Entry+uint32(i)*4, w)
		checkerMemory.Write32(b.Entry+uint32(i)*4, w)
	}

	oracle := emu.NewEmulator(emu.WithMemory(checkerMemory))
	oracle.SetPC(b.Entry)

	regFile := &emu.RegFile{}
	pipe := pipeline.NewPipeline(regFile, memory,
		pipeline.WithPredictor(pipeline.NewBimodal(0, 0)),
		pipeline.WithChecker(pipeline.NewChecker(oracle)),
	)
	pipe.SetPC(b.Entry)

	if err := pipe.Run(0); err != nil {
		return Result{}, fmt.Errorf("benchmark %s: %w", b.Name, err)
	}

	return Result{Benchmark: b.Name, Stats: pipe.Stats(), RegFile: regFile}, nil
}
