package insts

// isaEntry describes one instruction in the lookup tables: its mnemonic,
// operation class, memory access size (0 for non-memory), executor and the
// minimum ISA level it appeared in.
type isaEntry struct {
	name    string
	class   OperationClass
	memSize uint32
	execute func(*Instruction)
	level   uint8
}

// ISA levels. MIPS32 subsumes MIPS I and II for the integer subset decoded
// here.
const (
	LevelMIPSI  uint8 = 1
	LevelMIPSII uint8 = 2
	LevelMIPS32 uint8 = 32
)

// isaMapR is keyed by funct for opcode 0 (SPECIAL).
var isaMapR = map[uint8]isaEntry{
	0x00: {"sll", ClassRShamt, 0, executeSll, LevelMIPSI},
	0x02: {"srl", ClassRShamt, 0, executeSrl, LevelMIPSI},
	0x03: {"sra", ClassRShamt, 0, executeSra, LevelMIPSI},
	0x04: {"sllv", ClassRShift, 0, executeSllv, LevelMIPSI},
	0x06: {"srlv", ClassRShift, 0, executeSrlv, LevelMIPSI},
	0x07: {"srav", ClassRShift, 0, executeSrav, LevelMIPSI},
	0x08: {"jr", ClassRJump, 0, executeJr, LevelMIPSI},
	0x09: {"jalr", ClassRJumpLink, 0, executeJalr, LevelMIPSI},
	0x0A: {"movz", ClassRCondMove, 0, executeMovz, LevelMIPS32},
	0x0B: {"movn", ClassRCondMove, 0, executeMovn, LevelMIPS32},
	0x0C: {"syscall", ClassRSpecial, 0, executeSyscall, LevelMIPSI},
	0x0D: {"break", ClassRSpecial, 0, executeBreak, LevelMIPSI},
	0x10: {"mfhi", ClassRMoveFromHi, 0, executeMove, LevelMIPSI},
	0x11: {"mthi", ClassRMoveToHi, 0, executeMove, LevelMIPSI},
	0x12: {"mflo", ClassRMoveFromLo, 0, executeMove, LevelMIPSI},
	0x13: {"mtlo", ClassRMoveToLo, 0, executeMove, LevelMIPSI},
	0x18: {"mult", ClassRDivMult, 0, executeMult, LevelMIPSI},
	0x19: {"multu", ClassRDivMult, 0, executeMultu, LevelMIPSI},
	0x1A: {"div", ClassRDivMult, 0, executeDiv, LevelMIPSI},
	0x1B: {"divu", ClassRDivMult, 0, executeDivu, LevelMIPSI},
	0x20: {"add", ClassRArith, 0, executeAdd, LevelMIPSI},
	0x21: {"addu", ClassRArith, 0, executeAddu, LevelMIPSI},
	0x22: {"sub", ClassRArith, 0, executeSub, LevelMIPSI},
	0x23: {"subu", ClassRArith, 0, executeSubu, LevelMIPSI},
	0x24: {"and", ClassRArith, 0, executeAnd, LevelMIPSI},
	0x25: {"or", ClassRArith, 0, executeOr, LevelMIPSI},
	0x26: {"xor", ClassRArith, 0, executeXor, LevelMIPSI},
	0x27: {"nor", ClassRArith, 0, executeNor, LevelMIPSI},
	0x2A: {"slt", ClassRArith, 0, executeSet(lt), LevelMIPSI},
	0x2B: {"sltu", ClassRArith, 0, executeSet(ltu), LevelMIPSI},
	0x30: {"tge", ClassRTrap, 0, executeTrap(ge), LevelMIPSII},
	0x31: {"tgeu", ClassRTrap, 0, executeTrap(geu), LevelMIPSII},
	0x32: {"tlt", ClassRTrap, 0, executeTrap(lt), LevelMIPSII},
	0x33: {"tltu", ClassRTrap, 0, executeTrap(ltu), LevelMIPSII},
	0x34: {"teq", ClassRTrap, 0, executeTrap(eq), LevelMIPSII},
	0x36: {"tne", ClassRTrap, 0, executeTrap(ne), LevelMIPSII},
}

// isaMapRI is keyed by the rt field for opcode 1 (REGIMM).
var isaMapRI = map[uint8]isaEntry{
	0x00: {"bltz", ClassRIBranchZero, 0, executeBranch(ltz), LevelMIPSI},
	0x01: {"bgez", ClassRIBranchZero, 0, executeBranch(gez), LevelMIPSI},
	0x08: {"tgei", ClassRITrap, 0, executeTrap(gei), LevelMIPSII},
	0x09: {"tgeiu", ClassRITrap, 0, executeTrap(geiu), LevelMIPSII},
	0x0A: {"tlti", ClassRITrap, 0, executeTrap(lti), LevelMIPSII},
	0x0B: {"tltiu", ClassRITrap, 0, executeTrap(ltiu), LevelMIPSII},
	0x0C: {"teqi", ClassRITrap, 0, executeTrap(eqi), LevelMIPSII},
	0x0E: {"tnei", ClassRITrap, 0, executeTrap(nei), LevelMIPSII},
	0x10: {"bltzal", ClassRIBranchLink, 0, executeBranchAndLink(ltz), LevelMIPSI},
	0x11: {"bgezal", ClassRIBranchLink, 0, executeBranchAndLink(gez), LevelMIPSI},
}

// isaMapIJ is keyed by opcode for every remaining I/J form.
var isaMapIJ = map[uint8]isaEntry{
	0x02: {"j", ClassJJump, 0, executeJ, LevelMIPSI},
	0x03: {"jal", ClassJJumpLink, 0, executeJal, LevelMIPSI},
	0x04: {"beq", ClassIBranch, 0, executeBranch(eq), LevelMIPSI},
	0x05: {"bne", ClassIBranch, 0, executeBranch(ne), LevelMIPSI},
	0x06: {"blez", ClassIBranchZero, 0, executeBranch(lez), LevelMIPSI},
	0x07: {"bgtz", ClassIBranchZero, 0, executeBranch(gtz), LevelMIPSI},
	0x08: {"addi", ClassIArith, 0, executeAddi, LevelMIPSI},
	0x09: {"addiu", ClassIArith, 0, executeAddiu, LevelMIPSI},
	0x0A: {"slti", ClassIArith, 0, executeSet(lti), LevelMIPSI},
	0x0B: {"sltiu", ClassIArith, 0, executeSet(ltiu), LevelMIPSI},
	0x0C: {"andi", ClassIArith, 0, executeAndi, LevelMIPSI},
	0x0D: {"ori", ClassIArith, 0, executeOri, LevelMIPSI},
	0x0E: {"xori", ClassIArith, 0, executeXori, LevelMIPSI},
	0x0F: {"lui", ClassIConst, 0, executeLui, LevelMIPSI},
	0x20: {"lb", ClassILoad, 1, calculateAddr, LevelMIPSI},
	0x21: {"lh", ClassILoad, 2, calculateAddr, LevelMIPSI},
	0x22: {"lwl", ClassILoadLeft, 4, calculateAddr, LevelMIPSI},
	0x23: {"lw", ClassILoad, 4, calculateAddr, LevelMIPSI},
	0x24: {"lbu", ClassILoadU, 1, calculateAddr, LevelMIPSI},
	0x25: {"lhu", ClassILoadU, 2, calculateAddr, LevelMIPSI},
	0x26: {"lwr", ClassILoadRight, 4, calculateAddr, LevelMIPSI},
	0x28: {"sb", ClassIStore, 1, calculateAddr, LevelMIPSI},
	0x29: {"sh", ClassIStore, 2, calculateAddr, LevelMIPSI},
	0x2A: {"swl", ClassIStoreLeft, 4, calculateAddr, LevelMIPSI},
	0x2B: {"sw", ClassIStore, 4, calculateAddr, LevelMIPSI},
	0x2E: {"swr", ClassIStoreRight, 4, calculateAddr, LevelMIPSI},
}

// isaMapSpecial2 is keyed by funct for opcode 0x1C (SPECIAL2).
var isaMapSpecial2 = map[uint8]isaEntry{
	0x00: {"madd", ClassRAccum, 0, executeMult, LevelMIPS32},
	0x01: {"maddu", ClassRAccum, 0, executeMultu, LevelMIPS32},
	0x02: {"mul", ClassRArith, 0, executeMul, LevelMIPS32},
	0x04: {"msub", ClassRSubtract, 0, executeMult, LevelMIPS32},
	0x05: {"msubu", ClassRSubtract, 0, executeMultu, LevelMIPS32},
	0x20: {"clz", ClassSP2Count, 0, executeCLZ, LevelMIPS32},
	0x21: {"clo", ClassSP2Count, 0, executeCLO, LevelMIPS32},
}

const (
	opcodeSpecial  = 0x00
	opcodeRegimm   = 0x01
	opcodeSpecial2 = 0x1C
)

// Decoder turns raw instruction words into Instructions. The decoder can be
// restricted to an ISA level; entries above the level decode as unknown.
type Decoder struct {
	level uint8
}

// NewDecoder creates a decoder accepting the full MIPS32 integer subset.
func NewDecoder() *Decoder {
	return &Decoder{level: LevelMIPS32}
}

// NewDecoderWithLevel creates a decoder restricted to the given ISA level.
func NewDecoderWithLevel(level uint8) *Decoder {
	return &Decoder{level: level}
}

// Decode parses a 32-bit instruction word fetched from pc.
func (d *Decoder) Decode(word uint32, pc uint32) Instruction {
	inst := Instruction{
		PC:        pc,
		NewPC:     pc + 4,
		Raw:       word,
		Src1:      RegZero,
		Src2:      RegZero,
		Dst:       RegNone,
		writesDst: true,
	}

	opcode := uint8(word >> 26)
	var entry isaEntry
	var ok bool
	switch opcode {
	case opcodeSpecial:
		entry, ok = isaMapR[uint8(word&0x3F)]
	case opcodeRegimm:
		entry, ok = isaMapRI[uint8((word>>16)&0x1F)]
	case opcodeSpecial2:
		entry, ok = isaMapSpecial2[uint8(word&0x3F)]
	default:
		entry, ok = isaMapIJ[opcode]
	}
	if !ok || entry.level > d.level {
		inst.Name = "unknown"
		inst.Class = ClassUnknown
		inst.Dst = RegNone
		inst.execute = executeUnknown
		return inst
	}

	inst.init(entry)
	return inst
}

// init binds the table entry and selects operand registers and immediates
// from the appropriate bit-field view.
func (i *Instruction) init(entry isaEntry) {
	i.Name = entry.name
	i.Class = entry.class
	i.MemSize = entry.memSize
	i.execute = entry.execute

	rs := GPR(i.Raw >> 21)
	rt := GPR(i.Raw >> 16)
	rd := GPR(i.Raw >> 11)
	imm16 := i.Raw & 0xFFFF
	imm26 := i.Raw & 0x03FFFFFF

	switch entry.class {
	case ClassRArith, ClassRCondMove:
		i.Src1, i.Src2, i.Dst = rs, rt, rd
	case ClassRShamt:
		i.Src1, i.Dst = rt, rd
		i.Shamt = uint8((i.Raw >> 6) & 0x1F)
	case ClassRShift:
		i.Src1, i.Src2, i.Dst = rt, rs, rd
	case ClassRDivMult, ClassRAccum, ClassRSubtract:
		i.Src1, i.Src2, i.Dst = rs, rt, RegHiLo
	case ClassRJump:
		i.Src1 = rs
	case ClassRJumpLink:
		i.Src1, i.Dst = rs, rd
	case ClassRSpecial:
		// No operands.
	case ClassRTrap:
		i.Src1, i.Src2 = rs, rt
	case ClassRMoveFromHi:
		i.Src1, i.Dst = RegHi, rd
	case ClassRMoveToHi:
		i.Src1, i.Dst = rs, RegHi
	case ClassRMoveFromLo:
		i.Src1, i.Dst = RegLo, rd
	case ClassRMoveToLo:
		i.Src1, i.Dst = rs, RegLo
	case ClassSP2Count:
		i.Src1, i.Dst = rs, rd
	case ClassIArith:
		i.Src1, i.Dst, i.VImm = rs, rt, imm16
	case ClassIBranch:
		i.Src1, i.Src2, i.VImm = rs, rt, imm16
	case ClassIBranchZero, ClassRIBranchZero:
		i.Src1, i.VImm = rs, imm16
	case ClassRIBranchLink:
		i.Src1, i.Dst, i.VImm = rs, RegRa, imm16
	case ClassRITrap:
		i.Src1, i.VImm = rs, imm16
	case ClassILoad, ClassILoadU:
		i.Src1, i.Dst, i.VImm = rs, rt, imm16
	case ClassILoadRight, ClassILoadLeft:
		// The unaligned loads merge into rt, so its old value is a source.
		i.Src1, i.Src2, i.Dst, i.VImm = rs, rt, rt, imm16
	case ClassIConst:
		i.Dst, i.VImm = rt, imm16
	case ClassIStore, ClassIStoreRight, ClassIStoreLeft:
		i.Src1, i.Src2, i.VImm = rs, rt, imm16
	case ClassJJump:
		i.VImm = imm26
	case ClassJJumpLink:
		i.Dst, i.VImm = RegRa, imm26
	}
}
