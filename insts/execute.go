package insts

import "math/bits"

func signExtend(v uint32) uint32 {
	return uint32(int32(int16(v)))
}

func zeroExtend(v uint32) uint32 {
	return v & 0xFFFF
}

// low32 truncates an executor result to the architectural 32-bit lane.
func low32(v uint32) uint64 {
	return uint64(v)
}

func mipsMultiplication(x, y uint32, signed bool) uint64 {
	if signed {
		return uint64(int64(int32(x)) * int64(int32(y)))
	}
	return uint64(x) * uint64(y)
}

// mipsDivision packs {HI=remainder, LO=quotient}. Division by zero yields
// zero for both halves, no trap.
func mipsDivision(x, y uint32, signed bool) uint64 {
	if y == 0 {
		return 0
	}
	var quot, rem uint32
	if signed {
		quot = uint32(int32(x) / int32(y))
		rem = uint32(int32(x) % int32(y))
	} else {
		quot = x / y
		rem = x % y
	}
	return uint64(quot) | uint64(rem)<<32
}

// predicate evaluates a branch/trap/set condition over the filled operands.
type predicate func(*Instruction) bool

// Unary predicates.
func lez(i *Instruction) bool { return int32(i.VSrc1) <= 0 }
func gez(i *Instruction) bool { return int32(i.VSrc1) >= 0 }
func ltz(i *Instruction) bool { return int32(i.VSrc1) < 0 }
func gtz(i *Instruction) bool { return int32(i.VSrc1) > 0 }

// Binary predicates.
func eq(i *Instruction) bool  { return i.VSrc1 == i.VSrc2 }
func ne(i *Instruction) bool  { return i.VSrc1 != i.VSrc2 }
func geu(i *Instruction) bool { return i.VSrc1 >= i.VSrc2 }
func ltu(i *Instruction) bool { return i.VSrc1 < i.VSrc2 }
func ge(i *Instruction) bool  { return int32(i.VSrc1) >= int32(i.VSrc2) }
func lt(i *Instruction) bool  { return int32(i.VSrc1) < int32(i.VSrc2) }

// Immediate predicates.
func eqi(i *Instruction) bool  { return int32(i.VSrc1) == int32(signExtend(i.VImm)) }
func nei(i *Instruction) bool  { return int32(i.VSrc1) != int32(signExtend(i.VImm)) }
func lti(i *Instruction) bool  { return int32(i.VSrc1) < int32(signExtend(i.VImm)) }
func gei(i *Instruction) bool  { return int32(i.VSrc1) >= int32(signExtend(i.VImm)) }
func ltiu(i *Instruction) bool { return i.VSrc1 < signExtend(i.VImm) }
func geiu(i *Instruction) bool { return i.VSrc1 >= signExtend(i.VImm) }

// Arithmetic. The signed variants silently wrap instead of raising the
// architectural overflow trap.
func executeAdd(i *Instruction)   { i.VDst = low32(uint32(int32(i.VSrc1) + int32(i.VSrc2))) }
func executeSub(i *Instruction)   { i.VDst = low32(uint32(int32(i.VSrc1) - int32(i.VSrc2))) }
func executeAddi(i *Instruction)  { i.VDst = low32(uint32(int32(i.VSrc1) + int32(signExtend(i.VImm)))) }
func executeAddu(i *Instruction)  { i.VDst = low32(i.VSrc1 + i.VSrc2) }
func executeSubu(i *Instruction)  { i.VDst = low32(i.VSrc1 - i.VSrc2) }
func executeAddiu(i *Instruction) { i.VDst = low32(i.VSrc1 + signExtend(i.VImm)) }

func executeMult(i *Instruction)  { i.VDst = mipsMultiplication(i.VSrc1, i.VSrc2, true) }
func executeMultu(i *Instruction) { i.VDst = mipsMultiplication(i.VSrc1, i.VSrc2, false) }
func executeDiv(i *Instruction)   { i.VDst = mipsDivision(i.VSrc1, i.VSrc2, true) }
func executeDivu(i *Instruction)  { i.VDst = mipsDivision(i.VSrc1, i.VSrc2, false) }

// MUL (SPECIAL2) keeps only the low 32 bits of the signed product.
func executeMul(i *Instruction) { i.VDst = low32(uint32(int32(i.VSrc1) * int32(i.VSrc2))) }

func executeMove(i *Instruction) { i.VDst = low32(i.VSrc1) }

// Shifts. Variable forms use the low 5 bits of src2.
func executeSll(i *Instruction)  { i.VDst = low32(i.VSrc1 << i.Shamt) }
func executeSrl(i *Instruction)  { i.VDst = low32(i.VSrc1 >> i.Shamt) }
func executeSra(i *Instruction)  { i.VDst = low32(uint32(int32(i.VSrc1) >> i.Shamt)) }
func executeSllv(i *Instruction) { i.VDst = low32(i.VSrc1 << (i.VSrc2 & 0x1F)) }
func executeSrlv(i *Instruction) { i.VDst = low32(i.VSrc1 >> (i.VSrc2 & 0x1F)) }
func executeSrav(i *Instruction) { i.VDst = low32(uint32(int32(i.VSrc1) >> (i.VSrc2 & 0x1F))) }

func executeLui(i *Instruction) { i.VDst = low32(signExtend(i.VImm) << 16) }

// Logic.
func executeAnd(i *Instruction)  { i.VDst = low32(i.VSrc1 & i.VSrc2) }
func executeOr(i *Instruction)   { i.VDst = low32(i.VSrc1 | i.VSrc2) }
func executeXor(i *Instruction)  { i.VDst = low32(i.VSrc1 ^ i.VSrc2) }
func executeNor(i *Instruction)  { i.VDst = low32(^(i.VSrc1 | i.VSrc2)) }
func executeAndi(i *Instruction) { i.VDst = low32(i.VSrc1 & zeroExtend(i.VImm)) }
func executeOri(i *Instruction)  { i.VDst = low32(i.VSrc1 | zeroExtend(i.VImm)) }
func executeXori(i *Instruction) { i.VDst = low32(i.VSrc1 ^ zeroExtend(i.VImm)) }

// Conditional moves compute the move, then withdraw the write when the
// guard fails.
func executeMovn(i *Instruction) { executeMove(i); i.writesDst = i.VSrc2 != 0 }
func executeMovz(i *Instruction) { executeMove(i); i.writesDst = i.VSrc2 == 0 }

func executeSet(p predicate) func(*Instruction) {
	return func(i *Instruction) {
		if p(i) {
			i.VDst = 1
		} else {
			i.VDst = 0
		}
	}
}

func executeTrap(p predicate) func(*Instruction) {
	return func(i *Instruction) {
		if p(i) {
			i.trap = TrapExplicit
		}
	}
}

// executeBranch adds the scaled displacement to NewPC (already PC+4) when
// the predicate holds.
func executeBranch(p predicate) func(*Instruction) {
	return func(i *Instruction) {
		i.jumpTaken = p(i)
		if i.jumpTaken {
			i.NewPC += signExtend(i.VImm) << 2
		}
	}
}

// executeBranchAndLink captures the return address before redirecting. The
// link register stays untouched on a not-taken branch.
func executeBranchAndLink(p predicate) func(*Instruction) {
	return func(i *Instruction) {
		i.jumpTaken = p(i)
		if i.jumpTaken {
			i.VDst = low32(i.NewPC)
			i.NewPC += signExtend(i.VImm) << 2
		} else {
			i.writesDst = false
		}
	}
}

func executeCLO(i *Instruction) { i.VDst = uint64(bits.LeadingZeros32(^i.VSrc1)) }
func executeCLZ(i *Instruction) { i.VDst = uint64(bits.LeadingZeros32(i.VSrc1)) }

func (i *Instruction) jumpTo(target uint32) {
	i.jumpTaken = true
	i.NewPC = target
}

func regionTarget(pc, imm26 uint32) uint32 {
	return (pc & 0xF0000000) | (imm26 << 2)
}

func executeJ(i *Instruction) { i.jumpTo(regionTarget(i.PC, i.VImm)) }

// Register jump targets are aligned down to a word boundary.
func executeJr(i *Instruction) { i.jumpTo(i.VSrc1 &^ 3) }

// JAL/JALR capture the return address from NewPC before the jump rewrites
// it.
func executeJal(i *Instruction) {
	i.VDst = low32(i.NewPC)
	i.jumpTo(regionTarget(i.PC, i.VImm))
}

func executeJalr(i *Instruction) {
	i.VDst = low32(i.NewPC)
	i.jumpTo(i.VSrc1 &^ 3)
}

func executeSyscall(*Instruction) {}
func executeBreak(*Instruction)   {}

func executeUnknown(i *Instruction) { i.trap = TrapExplicit }

func calculateAddr(i *Instruction) {
	i.MemAddr = i.VSrc1 + signExtend(i.VImm)
}
