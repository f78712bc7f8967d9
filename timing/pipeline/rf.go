package pipeline

import (
	"fmt"

	"github.com/perfsim/mipsim/emu"
	"github.com/perfsim/mipsim/insts"
	"github.com/perfsim/mipsim/timing/port"
)

// RF wraps the architectural register file with the hazard-tracking
// scoreboard: a per-register count of in-flight producers, incremented when
// Decode reserves a destination and decremented at Writeback or when a
// flushed instruction releases its reservation.
type RF struct {
	file     *emu.RegFile
	inFlight [insts.NumTracked]int

	// Commit serialization check: at most one architectural commit per
	// register per cycle.
	lastCommitCycle [insts.NumTracked]port.Cycle
	committed       [insts.NumTracked]bool
}

// NewRF wraps the given architectural register file.
func NewRF(file *emu.RegFile) *RF {
	return &RF{file: file}
}

// File returns the underlying architectural register file.
func (rf *RF) File() *emu.RegFile {
	return rf.file
}

// trackedRegs expands a destination identifier into the physical registers
// the scoreboard tracks. GPR 0 and the sentinel expand to nothing.
func trackedRegs(reg insts.Reg) []insts.Reg {
	switch {
	case reg.IsNone() || reg.IsZero():
		return nil
	case reg.IsHiLo():
		return []insts.Reg{insts.RegHi, insts.RegLo}
	default:
		return []insts.Reg{reg}
	}
}

// Reserve records an in-flight producer for the instruction's destination.
func (rf *RF) Reserve(dst insts.Reg) {
	for _, r := range trackedRegs(dst) {
		rf.inFlight[r]++
	}
}

// Unreserve releases a reservation made by Reserve.
func (rf *RF) Unreserve(dst insts.Reg) {
	for _, r := range trackedRegs(dst) {
		if rf.inFlight[r] == 0 {
			panic(fmt.Sprintf("pipeline: unreserve of %v with no in-flight producer", r))
		}
		rf.inFlight[r]--
	}
}

// IsInFlight reports whether the register has uncommitted producers, in
// which case a source read must come through the bypass network instead.
func (rf *RF) IsInFlight(reg insts.Reg) bool {
	if reg.IsNone() || reg.IsZero() {
		return false
	}
	for _, r := range trackedRegs(reg) {
		if rf.inFlight[r] > 0 {
			return true
		}
	}
	return false
}

// Read returns the committed value of a register. The caller must check
// IsInFlight first.
func (rf *RF) Read(reg insts.Reg) uint32 {
	return rf.file.ReadReg(reg)
}

// Commit writes an instruction's result to the architectural file,
// asserting the one-commit-per-register-per-cycle rule.
func (rf *RF) Commit(inst *insts.Instruction, cycle port.Cycle) {
	if inst.WritesDst() || inst.AccumKind() != 0 {
		for _, r := range trackedRegs(inst.Dst) {
			if rf.committed[r] && rf.lastCommitCycle[r] == cycle {
				panic(fmt.Sprintf(
					"pipeline: double commit to %v at cycle %d", r, cycle))
			}
			rf.lastCommitCycle[r] = cycle
			rf.committed[r] = true
		}
	}
	rf.file.WriteDst(inst)
}
