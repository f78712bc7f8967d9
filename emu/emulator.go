package emu

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/perfsim/mipsim/insts"
)

// StepResult describes the outcome of executing one instruction.
type StepResult struct {
	// Inst is the executed instruction with all result fields filled.
	Inst insts.Instruction

	// Halted is true if the instruction was a jump to address 0.
	Halted bool

	// Trapped is true if the instruction raised an explicit trap.
	Trapped bool
}

// Emulator executes MIPS instructions functionally: fetch, decode, execute,
// memory access and commit collapse into a single step. It serves both as a
// standalone architectural simulator and as the retire-time oracle embedded
// in the timing pipeline.
type Emulator struct {
	regFile *RegFile
	memory  *Memory
	decoder *insts.Decoder
	log     logrus.FieldLogger

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMemory uses the provided memory instead of a fresh one.
func WithMemory(m *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = m
	}
}

// WithMaxInstructions caps Run at the given instruction count. 0 means no
// limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithLogger routes per-instruction tracing to the given logger.
func WithLogger(log logrus.FieldLogger) EmulatorOption {
	return func(e *Emulator) {
		e.log = log
	}
}

// NewEmulator creates a functional MIPS emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		memory:  NewMemory(),
		decoder: insts.NewDecoder(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Memory returns the emulator's memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// SetPC sets the program counter, typically to the loaded entry point.
func (e *Emulator) SetPC(pc uint32) {
	e.regFile.PC = pc
}

// Step fetches, decodes and executes a single instruction, commits its
// result and advances the PC.
func (e *Emulator) Step() StepResult {
	pc := e.regFile.PC
	word := e.memory.Read32(pc)

	inst := e.decoder.Decode(word, pc)
	inst.SetVSrc(e.regFile.ReadReg(inst.Src1), 0)
	inst.SetVSrc(e.regFile.ReadReg(inst.Src2), 1)
	inst.Execute()

	e.memory.LoadStore(&inst)
	e.regFile.WriteDst(&inst)
	e.regFile.PC = inst.NewPC
	e.instructionCount++

	if e.log != nil {
		e.log.WithFields(logrus.Fields{
			"pc":    fmt.Sprintf("0x%x", pc),
			"instr": inst.Disasm(),
		}).Debug("step")
	}

	return StepResult{
		Inst:    inst,
		Halted:  inst.IsHalt(),
		Trapped: inst.HasTrap(),
	}
}

// TrapError reports an explicit trap surfacing from execution.
type TrapError struct {
	Inst insts.Instruction
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("trap raised at pc 0x%x: %s", e.Inst.PC, e.Inst.Disasm())
}

// Run executes instructions until the program jumps to address 0, the
// instruction budget is exhausted, or a trap surfaces.
func (e *Emulator) Run() error {
	for {
		if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
			return nil
		}
		result := e.Step()
		if result.Trapped {
			return &TrapError{Inst: result.Inst}
		}
		if result.Halted {
			return nil
		}
	}
}
