package emu

import (
	"fmt"

	"github.com/perfsim/mipsim/insts"
)

const (
	pageBits = 12
	pageSize = 1 << pageBits
	pageMask = pageSize - 1
)

// Memory is a sparse byte-addressable little-endian RAM. Pages are
// allocated on first touch, so the full 4 GiB address space is available
// without preallocation.
type Memory struct {
	pages map[uint32]*[pageSize]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint32]*[pageSize]byte)}
}

func (m *Memory) page(addr uint32, create bool) *[pageSize]byte {
	idx := addr >> pageBits
	p := m.pages[idx]
	if p == nil && create {
		p = new([pageSize]byte)
		m.pages[idx] = p
	}
	return p
}

// Read8 reads one byte. Untouched memory reads as zero.
func (m *Memory) Read8(addr uint32) uint8 {
	p := m.page(addr, false)
	if p == nil {
		return 0
	}
	return p[addr&pageMask]
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint32, value uint8) {
	m.page(addr, true)[addr&pageMask] = value
}

// Read16 reads a little-endian halfword. The access may be unaligned.
func (m *Memory) Read16(addr uint32) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint32, value uint16) {
	m.Write8(addr, uint8(value))
	m.Write8(addr+1, uint8(value>>8))
}

// Read32 reads a little-endian word. The access may be unaligned.
func (m *Memory) Read32(addr uint32) uint32 {
	return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint32, value uint32) {
	m.Write16(addr, uint16(value))
	m.Write16(addr+2, uint16(value>>16))
}

// Read64 reads a little-endian doubleword.
func (m *Memory) Read64(addr uint32) uint64 {
	return uint64(m.Read32(addr)) | uint64(m.Read32(addr+4))<<32
}

// Write64 writes a little-endian doubleword.
func (m *Memory) Write64(addr uint32, value uint64) {
	m.Write32(addr, uint32(value))
	m.Write32(addr+4, uint32(value>>32))
}

// ReadSized reads a 1-, 2- or 4-byte value, optionally sign-extending it to
// 32 bits.
func (m *Memory) ReadSized(addr, size uint32, signExtend bool) uint32 {
	switch size {
	case 1:
		v := m.Read8(addr)
		if signExtend {
			return uint32(int32(int8(v)))
		}
		return uint32(v)
	case 2:
		v := m.Read16(addr)
		if signExtend {
			return uint32(int32(int16(v)))
		}
		return uint32(v)
	case 4:
		return m.Read32(addr)
	default:
		panic(fmt.Sprintf("emu: unsupported memory access size %d", size))
	}
}

// WriteSized writes the low size bytes of value.
func (m *Memory) WriteSized(addr, size, value uint32) {
	switch size {
	case 1:
		m.Write8(addr, uint8(value))
	case 2:
		m.Write16(addr, uint16(value))
	case 4:
		m.Write32(addr, value)
	default:
		panic(fmt.Sprintf("emu: unsupported memory access size %d", size))
	}
}

// LoadBytes copies a program image into memory starting at addr.
func (m *Memory) LoadBytes(addr uint32, data []byte) {
	for i, b := range data {
		m.Write8(addr+uint32(i), b)
	}
}

// LoadStore performs the memory operation of a load or store instruction.
// Both the functional simulator and the pipeline memory stage go through
// this single implementation, so the two can never disagree on memory
// policy, including the LWL/LWR/SWL/SWR byte-select rules.
func (m *Memory) LoadStore(inst *insts.Instruction) {
	switch {
	case inst.IsLoad():
		m.load(inst)
	case inst.IsStore():
		m.store(inst)
	}
}

func bitmask(bits uint32) uint32 {
	if bits >= 32 {
		return ^uint32(0)
	}
	return (1 << bits) - 1
}

// The unaligned loads merge memory bytes into the old register value
// (carried in VSrc2). With o = addr % 4 and the aligned word w:
//
//	LWR takes bytes mem[addr .. base+3] into the low end of rt,
//	keeping the top o bytes: (old &^ mask) | ((w >> 8o) & mask)
//	with mask = bitmask((4-o)*8).
//	LWL takes bytes mem[base .. addr] into the high end of rt,
//	keeping the low 3-o bytes: (old & bitmask((3-o)*8)) | (w << 8*(3-o)).
//
// The pair lwr rt, addr; lwl rt, addr+3 therefore reassembles the
// unaligned word at addr for every offset.
func (m *Memory) load(inst *insts.Instruction) {
	offset := inst.MemAddr % 4
	old := inst.VSrc2
	switch inst.IsLoadLR() {
	case -1: // LWL
		word := m.Read32(inst.MemAddr - offset)
		keep := bitmask((3 - offset) * 8)
		inst.SetVDst((old & keep) | (word << (8 * (3 - offset))))
	case 1: // LWR
		word := m.Read32(inst.MemAddr - offset)
		mask := inst.LwrlMask()
		inst.SetVDst((old &^ mask) | ((word >> (8 * offset)) & mask))
	default:
		signed := inst.Class == insts.ClassILoad
		inst.SetVDst(m.ReadSized(inst.MemAddr, inst.MemSize, signed))
	}
}

// The unaligned stores mirror the loads: SWR puts the low bytes of the
// register at mem[addr .. base+3], SWL puts the high bytes at
// mem[base .. addr]; swr rt, addr; swl rt, addr+3 writes the whole
// register to the unaligned address.
func (m *Memory) store(inst *insts.Instruction) {
	offset := inst.MemAddr % 4
	value := inst.VSrc2
	switch inst.IsStoreLR() {
	case -1: // SWL
		base := inst.MemAddr - offset
		mask := bitmask((offset + 1) * 8)
		word := m.Read32(base)
		m.Write32(base, (word&^mask)|((value>>(8*(3-offset)))&mask))
	case 1: // SWR
		base := inst.MemAddr - offset
		mask := inst.LwrlMask()
		word := m.Read32(base)
		m.Write32(base, (word&^(mask<<(8*offset)))|((value&mask)<<(8*offset)))
	default:
		m.WriteSized(inst.MemAddr, inst.MemSize, value)
	}
}
