// Package emu provides functional MIPS emulation.
package emu

import (
	"fmt"
	"strings"

	"github.com/perfsim/mipsim/insts"
)

// RegFile is the architectural MIPS register file: 32 general-purpose
// registers, the HI and LO multiply/divide halves, and the program counter.
// GPR 0 reads as zero and ignores writes.
type RegFile struct {
	gpr [32]uint32
	hi  uint32
	lo  uint32

	// PC is the program counter.
	PC uint32
}

// ReadReg reads a register by identity. The zero register and the
// "no register" sentinel read as 0.
func (r *RegFile) ReadReg(reg insts.Reg) uint32 {
	switch {
	case reg.IsZero() || reg.IsNone():
		return 0
	case reg.IsGPR():
		return r.gpr[reg]
	case reg == insts.RegHi:
		return r.hi
	case reg == insts.RegLo:
		return r.lo
	default:
		return 0
	}
}

// WriteReg writes a register by identity. Writes to GPR 0 are discarded.
func (r *RegFile) WriteReg(reg insts.Reg, value uint32) {
	switch {
	case reg.IsZero() || reg.IsNone():
	case reg.IsGPR():
		r.gpr[reg] = value
	case reg == insts.RegHi:
		r.hi = value
	case reg == insts.RegLo:
		r.lo = value
	}
}

// HiLo returns the combined accumulator as {HI:high32, LO:low32}.
func (r *RegFile) HiLo() uint64 {
	return uint64(r.hi)<<32 | uint64(r.lo)
}

func (r *RegFile) setHiLo(v uint64) {
	r.hi = uint32(v >> 32)
	r.lo = uint32(v)
}

// WriteDst commits an executed instruction's result. The accumulating
// multiplies fold their product into HI:LO here; everything else honors the
// instruction's writes-destination flag and the GPR 0 rule.
func (r *RegFile) WriteDst(inst *insts.Instruction) {
	switch {
	case inst.AccumKind() > 0:
		r.setHiLo(r.HiLo() + inst.VDst)
	case inst.AccumKind() < 0:
		r.setHiLo(r.HiLo() - inst.VDst)
	case !inst.WritesDst():
	case inst.Dst == insts.RegHiLo:
		r.setHiLo(inst.VDst)
	default:
		r.WriteReg(inst.Dst, uint32(inst.VDst))
	}
}

// Dump renders the non-zero registers for diagnostics.
func (r *RegFile) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pc=0x%08x", r.PC)
	for i, v := range r.gpr {
		if v != 0 {
			fmt.Fprintf(&b, " %v=0x%x", insts.GPR(uint32(i)), v)
		}
	}
	if r.hi != 0 {
		fmt.Fprintf(&b, " hi=0x%x", r.hi)
	}
	if r.lo != 0 {
		fmt.Fprintf(&b, " lo=0x%x", r.lo)
	}
	return b.String()
}
