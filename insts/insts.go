// Package insts provides MIPS instruction definitions, decoding and
// execution.
//
// This package implements decoding of MIPS32 machine code into structured
// instruction representations covering the MIPS I/II/32 integer subset:
//   - R-format arithmetic, logic, shifts, multiply/divide, HI/LO moves,
//     conditional moves, register jumps and traps
//   - I-format arithmetic, branches, loads (including LWL/LWR), stores
//     (including SWL/SWR) and LUI
//   - J-format jumps and jump-and-link
//   - SPECIAL2 MUL, MADD/MSUB and CLZ/CLO
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x24420005, 0x400000) // addiu $v0, $v0, 5
//	inst.SetVSrc(7, 0)
//	inst.Execute()
package insts

// OperationClass describes how an instruction selects its operands and how
// the pipeline must treat it.
type OperationClass uint8

// Operation classes. The R/I/J prefix names the encoding format the
// operands are drawn from.
const (
	ClassUnknown OperationClass = iota
	ClassRArith
	ClassRAccum
	ClassRDivMult
	ClassRCondMove
	ClassRShift
	ClassRShamt
	ClassRJump
	ClassRJumpLink
	ClassRSpecial
	ClassRSubtract
	ClassRTrap
	ClassRMoveFromHi
	ClassRMoveToHi
	ClassRMoveFromLo
	ClassRMoveToLo
	ClassIArith
	ClassIBranch
	ClassIBranchZero
	ClassRIBranchZero
	ClassRIBranchLink
	ClassRITrap
	ClassILoad
	ClassILoadU
	ClassILoadRight
	ClassILoadLeft
	ClassIConst
	ClassIStore
	ClassIStoreRight
	ClassIStoreLeft
	ClassJJump
	ClassJJumpLink
	ClassJSpecial
	ClassSP2Count
)

// TrapKind is the architectural exception state of an instruction. Only the
// explicit kind (TEQ/TNE family, unknown opcodes) is ever raised.
type TrapKind uint8

// Trap kinds.
const (
	TrapNone TrapKind = iota
	TrapExplicit
)

// Instruction is a decoded MIPS operation flowing through the pipeline.
//
// It is created by the decoder, filled with operand values at Decode, given
// its result and next PC at Execute, touched by Mem for loads and stores,
// and consumed at Writeback. Instructions are plain values so pipeline
// stages can pass copies through ports.
type Instruction struct {
	// PC is the address this instruction was fetched from. NewPC is the
	// address of the next instruction: PC+4 by default, rewritten by jumps
	// and taken branches at Execute.
	PC    uint32
	NewPC uint32

	// Raw is the 32-bit instruction word.
	Raw uint32

	Name  string
	Class OperationClass

	Src1 Reg
	Src2 Reg
	Dst  Reg

	// Operand values, filled by the decode stage from the register file or
	// the bypass network.
	VSrc1 uint32
	VSrc2 uint32

	// VImm holds the 16- or 26-bit immediate; sign/zero extension is the
	// executor's responsibility. Shamt is the 5-bit shift amount field.
	VImm  uint32
	Shamt uint8

	// VDst is the 64-bit result. For plain register destinations the low 32
	// bits are the architectural result; multiply/divide pack {HI:LO} as
	// {high32:low32}.
	VDst uint64

	// MemAddr and MemSize describe the memory access of loads and stores.
	MemAddr uint32
	MemSize uint32

	// Complete marks the instruction as fully executed.
	Complete bool

	// Branch prediction made at fetch time, carried along so the memory
	// stage can detect mispredictions.
	PredictedTaken  bool
	PredictedTarget uint32

	writesDst bool
	jumpTaken bool
	trap      TrapKind

	execute func(*Instruction)
	disasm  string
}

// Execute runs the bound executor, producing VDst, NewPC and the jump/trap
// flags. Decode must have filled the source operand values first.
func (i *Instruction) Execute() {
	i.execute(i)
	i.Complete = true
}

// SetVSrc sets source operand value 0 (src1) or 1 (src2).
func (i *Instruction) SetVSrc(value uint32, index int) {
	if index == 0 {
		i.VSrc1 = value
	} else {
		i.VSrc2 = value
	}
}

// SetVDst replaces the result with the 32-bit value; the high 32 bits
// become zero. Used by the memory stage to deposit load data.
func (i *Instruction) SetVDst(value uint32) {
	i.VDst = uint64(value)
}

// IsJump reports whether the instruction can change the PC in an unusual
// way: jumps, jump-and-links and all branch forms.
func (i *Instruction) IsJump() bool {
	switch i.Class {
	case ClassJJump, ClassJJumpLink, ClassRJump, ClassRJumpLink,
		ClassIBranch, ClassIBranchZero, ClassRIBranchZero, ClassRIBranchLink:
		return true
	}
	return false
}

// IsJumpTaken reports the actual branch outcome computed at Execute.
func (i *Instruction) IsJumpTaken() bool { return i.jumpTaken }

// IsLoad reports whether the instruction reads memory.
func (i *Instruction) IsLoad() bool {
	switch i.Class {
	case ClassILoad, ClassILoadU, ClassILoadRight, ClassILoadLeft:
		return true
	}
	return false
}

// IsLoadLR distinguishes the unaligned loads: -1 for LWL, +1 for LWR, 0 for
// everything else.
func (i *Instruction) IsLoadLR() int {
	switch i.Class {
	case ClassILoadLeft:
		return -1
	case ClassILoadRight:
		return 1
	}
	return 0
}

// IsStoreLR distinguishes the unaligned stores: -1 for SWL, +1 for SWR, 0
// for everything else.
func (i *Instruction) IsStoreLR() int {
	switch i.Class {
	case ClassIStoreLeft:
		return -1
	case ClassIStoreRight:
		return 1
	}
	return 0
}

// IsStore reports whether the instruction writes memory.
func (i *Instruction) IsStore() bool {
	switch i.Class {
	case ClassIStore, ClassIStoreRight, ClassIStoreLeft:
		return true
	}
	return false
}

// AccumKind distinguishes the accumulating multiplies: +1 for MADD/MADDU,
// -1 for MSUB/MSUBU, 0 for everything else. The register file applies the
// HI:LO accumulation at commit.
func (i *Instruction) AccumKind() int {
	switch i.Class {
	case ClassRAccum:
		return 1
	case ClassRSubtract:
		return -1
	}
	return 0
}

// IsConditionalMove reports whether this is MOVN/MOVZ.
func (i *Instruction) IsConditionalMove() bool { return i.Class == ClassRCondMove }

// IsNop reports whether the raw word is all zeroes.
func (i *Instruction) IsNop() bool { return i.Raw == 0 }

// IsBubble reports whether this is an empty pipeline slot: a nop that was
// never fetched from a real PC.
func (i *Instruction) IsBubble() bool { return i.IsNop() && i.PC == 0 }

// IsHalt reports whether this is a jump to address 0, the conventional
// program termination.
func (i *Instruction) IsHalt() bool { return i.IsJump() && i.NewPC == 0 }

// HasTrap reports whether the instruction raised an explicit trap.
func (i *Instruction) HasTrap() bool { return i.trap != TrapNone }

// WritesDst reports whether the destination register is actually written.
// Conditional moves clear this when the guard fails; branch-and-links only
// link when taken.
func (i *Instruction) WritesDst() bool { return i.writesDst && !i.Dst.IsNone() }

// BypassData returns the forwarded value in the canonical {HI:LO} lane
// layout: results destined for HI alone travel in the high 32 bits so
// consumers can extract by register identity.
func (i *Instruction) BypassData() uint64 {
	if i.Dst == RegHi {
		return i.VDst << 32
	}
	return i.VDst
}

// LwrlMask selects the bytes of the aligned word that participate in an
// LWR/SWR access (LWL/SWL use the complementary byte range):
//
//	addr%4 == 0: 0xFFFFFFFF
//	addr%4 == 1: 0x00FFFFFF
//	addr%4 == 2: 0x0000FFFF
//	addr%4 == 3: 0x000000FF
func (i *Instruction) LwrlMask() uint32 {
	return bitmask((4 - i.MemAddr%4) * 8)
}

func bitmask(bits uint32) uint32 {
	if bits >= 32 {
		return ^uint32(0)
	}
	return (1 << bits) - 1
}
