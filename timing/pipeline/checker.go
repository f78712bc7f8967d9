package pipeline

import (
	"fmt"

	"github.com/perfsim/mipsim/emu"
	"github.com/perfsim/mipsim/insts"
)

// Checker is the functional oracle: a reference architectural simulator
// stepped in lockstep with Writeback. Each retired instruction is
// re-executed from the same PC and the architectural outcomes are
// compared; any divergence is fatal.
type Checker struct {
	emulator *emu.Emulator
}

// NewChecker wraps a functional emulator whose memory holds the same
// program image as the pipeline's and whose PC is set to the same entry
// point.
func NewChecker(emulator *emu.Emulator) *Checker {
	return &Checker{emulator: emulator}
}

// DivergenceError reports a mismatch between the pipeline and the
// functional oracle.
type DivergenceError struct {
	Field    string
	Got      string
	Want     string
	Retired  string
	RefState string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf(
		"checker divergence on %s: simulator %s, reference %s; retired %s; reference state: %s",
		e.Field, e.Got, e.Want, e.Retired, e.RefState)
}

// Check re-executes the retired instruction on the reference simulator and
// compares PC, raw word, destination, committed destination value, trap
// status and next PC.
func (c *Checker) Check(inst *insts.Instruction, rf *emu.RegFile) error {
	result := c.emulator.Step()
	ref := result.Inst

	diverge := func(field, got, want string) error {
		return &DivergenceError{
			Field:    field,
			Got:      got,
			Want:     want,
			Retired:  fmt.Sprintf("%s / %s", inst.Disasm(), ref.Disasm()),
			RefState: c.emulator.RegFile().Dump(),
		}
	}

	if inst.PC != ref.PC {
		return diverge("pc",
			fmt.Sprintf("0x%x", inst.PC), fmt.Sprintf("0x%x", ref.PC))
	}
	if inst.Raw != ref.Raw {
		return diverge("raw word",
			fmt.Sprintf("0x%08x", inst.Raw), fmt.Sprintf("0x%08x", ref.Raw))
	}
	if inst.Dst != ref.Dst {
		return diverge("destination register",
			inst.Dst.String(), ref.Dst.String())
	}
	if inst.NewPC != ref.NewPC {
		return diverge("new pc",
			fmt.Sprintf("0x%x", inst.NewPC), fmt.Sprintf("0x%x", ref.NewPC))
	}
	if inst.HasTrap() != ref.HasTrap() {
		return diverge("trap",
			fmt.Sprintf("%v", inst.HasTrap()), fmt.Sprintf("%v", ref.HasTrap()))
	}

	// The committed value is compared through the register files, which
	// applies the GPR 0 rule and the HI:LO split on both sides.
	refFile := c.emulator.RegFile()
	for _, r := range trackedRegs(inst.Dst) {
		if got, want := rf.ReadReg(r), refFile.ReadReg(r); got != want {
			return diverge(fmt.Sprintf("value of %v", r),
				fmt.Sprintf("0x%x", got), fmt.Sprintf("0x%x", want))
		}
	}

	return nil
}
