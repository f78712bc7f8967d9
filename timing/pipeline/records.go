// Package pipeline provides the five-stage in-order pipeline model for
// cycle-accurate timing simulation.
package pipeline

import "github.com/perfsim/mipsim/insts"

// IfId is the record Fetch sends to Decode: the fetched word together with
// the prediction that steered the fetch.
type IfId struct {
	// PC is the address the word was fetched from.
	PC uint32

	// Raw is the fetched 32-bit instruction word.
	Raw uint32

	// PredictedTaken and PredictedTarget describe the branch prediction
	// applied at fetch time.
	PredictedTaken  bool
	PredictedTarget uint32
}

// BypassSource tells Execute where a source operand arrives from.
type BypassSource uint8

// Bypass sources.
const (
	// BypassNone means the operand was read from the register file at
	// Decode.
	BypassNone BypassSource = iota
	// BypassFromExecute means the operand arrives on the Execute-out
	// bypass port.
	BypassFromExecute
	// BypassFromMem means the operand arrives on the Mem-out bypass port.
	BypassFromMem
)

// DecodedInstr is the in-flight record traveling from Decode to Writeback:
// the decoded instruction, its stable sequence tag, and the bypass routing
// Decode selected for each source operand.
type DecodedInstr struct {
	// Tag is the monotonic sequence number identifying this in-flight
	// instruction in the bypass network and the scoreboard.
	Tag uint64

	// Bypass1 and Bypass2 route VSrc1 and VSrc2.
	Bypass1 BypassSource
	Bypass2 BypassSource

	Inst insts.Instruction
}

// BypassPayload is the forwarded data published by Execute and Mem.
type BypassPayload struct {
	// Tag identifies the producing instruction.
	Tag uint64

	// Data is the result in the canonical {HI:LO} lane layout (see
	// Instruction.BypassData).
	Data uint64
}

// laneValue extracts the 32-bit value a source register sees from a
// forwarded 64-bit payload.
func laneValue(data uint64, reg insts.Reg) uint32 {
	if reg == insts.RegHi {
		return uint32(data >> 32)
	}
	return uint32(data)
}

// BPUpdate is the branch outcome record Mem sends back to Fetch so the
// predictor can learn.
type BPUpdate struct {
	PC     uint32
	Target uint32
	Taken  bool
}
