// Package benchmarks provides hand-assembled MIPS microbenchmarks and a
// harness for running them through the timing pipeline.
package benchmarks

// Minimal instruction encoders. Enough of the ISA is covered to express
// the microbenchmarks without an external toolchain.

func rtype(rs, rt, rd, shamt, funct uint32) uint32 {
	return rs<<21 | rt<<16 | rd<<11 | shamt<<6 | funct
}

func itype(opcode, rs, rt, imm uint32) uint32 {
	return opcode<<26 | rs<<21 | rt<<16 | imm&0xFFFF
}

// Addu encodes addu rd, rs, rt.
func Addu(rd, rs, rt uint32) uint32 { return rtype(rs, rt, rd, 0, 0x21) }

// Subu encodes subu rd, rs, rt.
func Subu(rd, rs, rt uint32) uint32 { return rtype(rs, rt, rd, 0, 0x23) }

// Addiu encodes addiu rt, rs, imm.
func Addiu(rt, rs uint32, imm int16) uint32 { return itype(0x09, rs, rt, uint32(uint16(imm))) }

// Ori encodes ori rt, rs, imm.
func Ori(rt, rs, imm uint32) uint32 { return itype(0x0D, rs, rt, imm) }

// Lui encodes lui rt, imm.
func Lui(rt, imm uint32) uint32 { return itype(0x0F, 0, rt, imm) }

// Lw encodes lw rt, offset(rs).
func Lw(rt, rs uint32, offset int16) uint32 { return itype(0x23, rs, rt, uint32(uint16(offset))) }

// Sw encodes sw rt, offset(rs).
func Sw(rt, rs uint32, offset int16) uint32 { return itype(0x2B, rs, rt, uint32(uint16(offset))) }

// Beq encodes beq rs, rt, offset.
func Beq(rs, rt uint32, offset int16) uint32 { return itype(0x04, rs, rt, uint32(uint16(offset))) }

// Bne encodes bne rs, rt, offset.
func Bne(rs, rt uint32, offset int16) uint32 { return itype(0x05, rs, rt, uint32(uint16(offset))) }

// Slt encodes slt rd, rs, rt.
func Slt(rd, rs, rt uint32) uint32 { return rtype(rs, rt, rd, 0, 0x2A) }

// Mult encodes mult rs, rt.
func Mult(rs, rt uint32) uint32 { return rtype(rs, rt, 0, 0, 0x18) }

// Mflo encodes mflo rd.
func Mflo(rd uint32) uint32 { return rtype(0, 0, rd, 0, 0x12) }

// Jr encodes jr rs.
func Jr(rs uint32) uint32 { return rtype(rs, 0, 0, 0, 0x08) }

// Jal encodes jal target.
func Jal(target uint32) uint32 { return 0x03<<26 | (target>>2)&0x03FFFFFF }

// J encodes j target.
func J(target uint32) uint32 { return 0x02<<26 | (target>>2)&0x03FFFFFF }

// Halt is the conventional program end: a jump to address 0.
func Halt() uint32 { return J(0) }

// Nop is the all-zero no-op.
func Nop() uint32 { return 0 }
