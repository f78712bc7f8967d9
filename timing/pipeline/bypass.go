package pipeline

import (
	"github.com/perfsim/mipsim/insts"
	"github.com/perfsim/mipsim/timing/port"
)

// bypassEntry records one in-flight producer of a register. The stage a
// producer occupies follows deterministically from its decode cycle, since
// issued instructions never stall downstream of Decode.
type bypassEntry struct {
	tag         uint64
	decodeCycle port.Cycle
	isLoad      bool
	bypassable  bool
}

// BypassingUnit tracks the most recent in-flight producer of every
// register and decides, at Decode time, whether a consumer can take the
// value from the Execute-out or Mem-out bypass port instead of stalling.
// Flushed producers are withdrawn by tag.
type BypassingUnit struct {
	byReg map[insts.Reg]bypassEntry
	byTag map[uint64][]insts.Reg
}

// NewBypassingUnit creates an empty bypassing unit.
func NewBypassingUnit() *BypassingUnit {
	return &BypassingUnit{
		byReg: make(map[insts.Reg]bypassEntry),
		byTag: make(map[uint64][]insts.Reg),
	}
}

// bypassableProducer reports whether forwarding from this instruction is
// ever legal. Conditional moves and branch-and-links may withdraw their
// write at Execute, and accumulating multiplies only produce their final
// HI:LO at commit, so consumers of those wait for the register file.
func bypassableProducer(inst *insts.Instruction) bool {
	if inst.IsConditionalMove() || inst.AccumKind() != 0 {
		return false
	}
	return inst.Class != insts.ClassRIBranchLink
}

// Reserve records the instruction as the newest producer of its
// destination.
func (u *BypassingUnit) Reserve(inst *insts.Instruction, tag uint64, cycle port.Cycle) {
	regs := trackedRegs(inst.Dst)
	if len(regs) == 0 {
		return
	}
	entry := bypassEntry{
		tag:         tag,
		decodeCycle: cycle,
		isLoad:      inst.IsLoad(),
		bypassable:  bypassableProducer(inst),
	}
	for _, r := range regs {
		u.byReg[r] = entry
	}
	u.byTag[tag] = regs
}

// Source decides how a consumer decoded at the given cycle obtains the
// register. It returns BypassNone with ok=false when the consumer must
// stall and retry.
//
// A producer decoded at cycle d is in Execute at d+1 and in Mem at d+2; a
// consumer decoded at cycle c executes at c+1 and can read what those
// stages published at cycle c. Hence c == d+1 pairs with the Execute-out
// port (illegal for loads, whose data only exists after Mem) and c == d+2
// pairs with the Mem-out port. Anything later has no port carrying the
// value and waits for the commit to land in the register file.
func (u *BypassingUnit) Source(reg insts.Reg, cycle port.Cycle) (BypassSource, bool) {
	entry, ok := u.byReg[reg]
	if !ok || !entry.bypassable {
		return BypassNone, false
	}
	switch cycle - entry.decodeCycle {
	case 1:
		if entry.isLoad {
			return BypassNone, false
		}
		return BypassFromExecute, true
	case 2:
		return BypassFromMem, true
	default:
		return BypassNone, false
	}
}

// Release withdraws the entries owned by the tag, used both at Writeback
// and on flush notification. Entries already superseded by a newer
// producer are left alone.
func (u *BypassingUnit) Release(tag uint64) {
	for _, r := range u.byTag[tag] {
		if u.byReg[r].tag == tag {
			delete(u.byReg, r)
		}
	}
	delete(u.byTag, tag)
}
