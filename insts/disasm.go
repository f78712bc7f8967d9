package insts

import "fmt"

// Disasm returns a human-readable rendering of the instruction. The string
// is formatted on first use and cached, so copying instructions across
// pipeline slots stays cheap.
func (i *Instruction) Disasm() string {
	if i.disasm == "" {
		i.disasm = i.format()
	}
	return i.disasm
}

func (i *Instruction) format() string {
	if i.IsNop() {
		return "nop"
	}

	switch i.Class {
	case ClassUnknown:
		return fmt.Sprintf("unknown 0x%08x", i.Raw)
	case ClassRArith, ClassRCondMove:
		return fmt.Sprintf("%s %v, %v, %v", i.Name, i.Dst, i.Src1, i.Src2)
	case ClassRShamt:
		return fmt.Sprintf("%s %v, %v, %d", i.Name, i.Dst, i.Src1, i.Shamt)
	case ClassRShift:
		return fmt.Sprintf("%s %v, %v, %v", i.Name, i.Dst, i.Src1, i.Src2)
	case ClassRDivMult, ClassRAccum, ClassRSubtract, ClassRTrap:
		return fmt.Sprintf("%s %v, %v", i.Name, i.Src1, i.Src2)
	case ClassRJump:
		return fmt.Sprintf("%s %v", i.Name, i.Src1)
	case ClassRJumpLink:
		return fmt.Sprintf("%s %v, %v", i.Name, i.Dst, i.Src1)
	case ClassRSpecial:
		return i.Name
	case ClassRMoveFromHi, ClassRMoveFromLo:
		return fmt.Sprintf("%s %v", i.Name, i.Dst)
	case ClassRMoveToHi, ClassRMoveToLo:
		return fmt.Sprintf("%s %v", i.Name, i.Src1)
	case ClassSP2Count:
		return fmt.Sprintf("%s %v, %v", i.Name, i.Dst, i.Src1)
	case ClassIArith:
		return fmt.Sprintf("%s %v, %v, %d", i.Name, i.Dst, i.Src1, int16(i.VImm))
	case ClassIBranch:
		return fmt.Sprintf("%s %v, %v, %d", i.Name, i.Src1, i.Src2, int16(i.VImm))
	case ClassIBranchZero, ClassRIBranchZero, ClassRIBranchLink, ClassRITrap:
		return fmt.Sprintf("%s %v, %d", i.Name, i.Src1, int16(i.VImm))
	case ClassIConst:
		return fmt.Sprintf("%s %v, 0x%x", i.Name, i.Dst, i.VImm)
	case ClassILoad, ClassILoadU, ClassILoadRight, ClassILoadLeft:
		return fmt.Sprintf("%s %v, %d(%v)", i.Name, i.Dst, int16(i.VImm), i.Src1)
	case ClassIStore, ClassIStoreRight, ClassIStoreLeft:
		return fmt.Sprintf("%s %v, %d(%v)", i.Name, i.Src2, int16(i.VImm), i.Src1)
	case ClassJJump, ClassJJumpLink:
		return fmt.Sprintf("%s 0x%x", i.Name, regionTarget(i.PC, i.VImm))
	default:
		return i.Name
	}
}

// String implements fmt.Stringer for logging.
func (i *Instruction) String() string {
	return fmt.Sprintf("{pc=0x%x %s}", i.PC, i.Disasm())
}
