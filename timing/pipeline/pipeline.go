package pipeline

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/perfsim/mipsim/emu"
	"github.com/perfsim/mipsim/insts"
	"github.com/perfsim/mipsim/timing/config"
	"github.com/perfsim/mipsim/timing/port"
)

// Port wiring parameters. Latency 1 makes a value written in cycle c
// readable in cycle c+1; bandwidth 1 enforces single issue.
const (
	portLatency   = 1
	portBandwidth = 1

	// flushedStagesNum is the fan-out of the all-flush port: the three
	// pipeline slots holding wrong-path instructions (read at Decode,
	// Execute and Mem).
	flushedStagesNum = 3
)

// Port names.
const (
	portFetch2Decode      = "FETCH_2_DECODE"
	portDecode2FetchStall = "DECODE_2_FETCH_STALL"
	portDecode2Execute    = "DECODE_2_EXECUTE"
	portExecute2Memory    = "EXECUTE_2_MEMORY"
	portMemory2Writeback  = "MEMORY_2_WRITEBACK"
	portMemory2AllFlush   = "MEMORY_2_ALL_FLUSH"
	portMemory2FetchTgt   = "MEMORY_2_FETCH_TARGET"
	portMemory2Fetch      = "MEMORY_2_FETCH"
	portExecuteBypass     = "EXECUTE_2_EXECUTE_BYPASS"
	portMemoryBypass      = "MEMORY_2_EXECUTE_BYPASS"
	portExecuteFlushNote  = "EXECUTE_2_BYPASSING_UNIT_FLUSH_NOTIFY"
	portMemoryFlushNote   = "MEMORY_2_BYPASSING_UNIT_FLUSH_NOTIFY"
)

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Stalls is the number of decode stall cycles.
	Stalls uint64
	// Flushes is the number of pipeline flushes.
	Flushes uint64
	// BranchPredictions is the number of resolved jumps and branches.
	BranchPredictions uint64
	// BranchCorrect is the number of correct predictions.
	BranchCorrect uint64
	// BranchMispredictions is the number of mispredictions.
	BranchMispredictions uint64
}

// CPI returns the cycles per instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// PipelineOption is a functional option for configuring the Pipeline.
type PipelineOption func(*Pipeline)

// WithPredictor sets the branch prediction policy.
func WithPredictor(predictor Predictor) PipelineOption {
	return func(p *Pipeline) {
		p.predictor = predictor
	}
}

// WithChecker enables the functional oracle checked at every retire.
func WithChecker(checker *Checker) PipelineOption {
	return func(p *Pipeline) {
		p.checker = checker
	}
}

// WithLogger routes the per-cycle trace to the given logger.
func WithLogger(log logrus.FieldLogger) PipelineOption {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithConfig overrides the default timing configuration.
func WithConfig(cfg *config.Config) PipelineOption {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// Pipeline implements a five-stage in-order MIPS pipeline: Fetch, Decode,
// Execute, Mem, Writeback. Stages run once per cycle in pipeline order and
// communicate only through ports; the flush decision made by Mem in cycle
// c reaches the upstream slots in cycle c+1 through port latency.
type Pipeline struct {
	registry *port.Registry
	rf       *RF
	memory   *emu.Memory
	decoder  *insts.Decoder
	bypass   *BypassingUnit

	predictor Predictor
	checker   *Checker
	log       logrus.FieldLogger
	cfg       *config.Config

	// Fetch state. lastFetchPC is kept so the fetch sent in the cycle a
	// stall was raised (and therefore dropped by Decode) can be refetched.
	pc          uint32
	lastFetchPC uint32
	emittedLast bool

	// Decode replay buffer.
	decodeData    IfId
	hasDecodeData bool

	// nextTag numbers in-flight instructions for the bypass network.
	nextTag uint64

	currentCycle       port.Cycle
	lastWritebackCycle port.Cycle
	halted             bool
	fatal              error

	stats Statistics

	wpFetch2Decode *port.WritePort[IfId]
	rpFetch2Decode *port.ReadPort[IfId]

	wpDecode2FetchStall *port.WritePort[bool]
	rpDecode2FetchStall *port.ReadPort[bool]

	wpDecode2Execute *port.WritePort[DecodedInstr]
	rpDecode2Execute *port.ReadPort[DecodedInstr]

	wpExecute2Memory *port.WritePort[DecodedInstr]
	rpExecute2Memory *port.ReadPort[DecodedInstr]

	wpMemory2Writeback *port.WritePort[DecodedInstr]
	rpMemory2Writeback *port.ReadPort[DecodedInstr]

	wpAllFlush      *port.WritePort[bool]
	rpDecodeFlush   *port.ReadPort[bool]
	rpExecuteFlush  *port.ReadPort[bool]
	rpMemoryFlush   *port.ReadPort[bool]
	wpFlushTarget   *port.WritePort[uint32]
	rpFlushTarget   *port.ReadPort[uint32]
	wpBPUpdate      *port.WritePort[BPUpdate]
	rpBPUpdate      *port.ReadPort[BPUpdate]
	wpExecuteBypass *port.WritePort[BypassPayload]
	rpExecuteBypass *port.ReadPort[BypassPayload]
	wpMemoryBypass  *port.WritePort[BypassPayload]
	rpMemoryBypass  *port.ReadPort[BypassPayload]

	wpExecuteFlushNote *port.WritePort[DecodedInstr]
	rpExecuteFlushNote *port.ReadPort[DecodedInstr]
	wpMemoryFlushNote  *port.WritePort[DecodedInstr]
	rpMemoryFlushNote  *port.ReadPort[DecodedInstr]
}

// NewPipeline creates a five-stage pipeline committing to the given
// register file and memory.
func NewPipeline(regFile *emu.RegFile, memory *emu.Memory, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		registry:  port.NewRegistry(),
		rf:        NewRF(regFile),
		memory:    memory,
		decoder:   insts.NewDecoder(),
		bypass:    NewBypassingUnit(),
		predictor: AlwaysNotTaken{},
		cfg:       config.DefaultConfig(),
	}

	for _, opt := range opts {
		opt(p)
	}

	r := p.registry
	p.wpFetch2Decode = port.MakeWritePort[IfId](r, portFetch2Decode, portBandwidth, 1)
	p.rpFetch2Decode = port.MakeReadPort[IfId](r, portFetch2Decode, portLatency)

	p.wpDecode2FetchStall = port.MakeWritePort[bool](r, portDecode2FetchStall, portBandwidth, 1)
	p.rpDecode2FetchStall = port.MakeReadPort[bool](r, portDecode2FetchStall, portLatency)

	p.wpDecode2Execute = port.MakeWritePort[DecodedInstr](r, portDecode2Execute, portBandwidth, 1)
	p.rpDecode2Execute = port.MakeReadPort[DecodedInstr](r, portDecode2Execute, portLatency)

	p.wpExecute2Memory = port.MakeWritePort[DecodedInstr](r, portExecute2Memory, portBandwidth, 1)
	p.rpExecute2Memory = port.MakeReadPort[DecodedInstr](r, portExecute2Memory, portLatency)

	p.wpMemory2Writeback = port.MakeWritePort[DecodedInstr](r, portMemory2Writeback, portBandwidth, 1)
	p.rpMemory2Writeback = port.MakeReadPort[DecodedInstr](r, portMemory2Writeback, portLatency)

	p.wpAllFlush = port.MakeWritePort[bool](r, portMemory2AllFlush, portBandwidth, flushedStagesNum)
	p.rpDecodeFlush = port.MakeReadPort[bool](r, portMemory2AllFlush, portLatency)
	p.rpExecuteFlush = port.MakeReadPort[bool](r, portMemory2AllFlush, portLatency)
	p.rpMemoryFlush = port.MakeReadPort[bool](r, portMemory2AllFlush, portLatency)

	p.wpFlushTarget = port.MakeWritePort[uint32](r, portMemory2FetchTgt, portBandwidth, 1)
	p.rpFlushTarget = port.MakeReadPort[uint32](r, portMemory2FetchTgt, portLatency)

	p.wpBPUpdate = port.MakeWritePort[BPUpdate](r, portMemory2Fetch, portBandwidth, 1)
	p.rpBPUpdate = port.MakeReadPort[BPUpdate](r, portMemory2Fetch, portLatency)

	p.wpExecuteBypass = port.MakeWritePort[BypassPayload](r, portExecuteBypass, portBandwidth, 1)
	p.rpExecuteBypass = port.MakeReadPort[BypassPayload](r, portExecuteBypass, portLatency)

	p.wpMemoryBypass = port.MakeWritePort[BypassPayload](r, portMemoryBypass, portBandwidth, 1)
	p.rpMemoryBypass = port.MakeReadPort[BypassPayload](r, portMemoryBypass, portLatency)

	p.wpExecuteFlushNote = port.MakeWritePort[DecodedInstr](r, portExecuteFlushNote, portBandwidth, 1)
	p.rpExecuteFlushNote = port.MakeReadPort[DecodedInstr](r, portExecuteFlushNote, portLatency)

	p.wpMemoryFlushNote = port.MakeWritePort[DecodedInstr](r, portMemoryFlushNote, portBandwidth, 1)
	p.rpMemoryFlushNote = port.MakeReadPort[DecodedInstr](r, portMemoryFlushNote, portLatency)

	return p
}

// PC returns the fetch program counter.
func (p *Pipeline) PC() uint32 {
	return p.pc
}

// SetPC sets the fetch program counter, typically to the entry point.
func (p *Pipeline) SetPC(pc uint32) {
	p.pc = pc
	p.rf.File().PC = pc
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics {
	return p.stats
}

// Halted reports whether a jump to address 0 has retired.
func (p *Pipeline) Halted() bool {
	return p.halted
}

// RF returns the scoreboarded register file.
func (p *Pipeline) RF() *RF {
	return p.rf
}

// DeadlockError reports that the pipeline stopped retiring instructions.
type DeadlockError struct {
	Cycle    port.Cycle
	LastWB   port.Cycle
	Snapshot string
}

func (e *DeadlockError) Error() string {
	return fmt.Sprintf("pipeline deadlock: no retire since cycle %d (now %d); %s",
		e.LastWB, e.Cycle, e.Snapshot)
}

// Run validates the port wiring and clocks the pipeline until the program
// halts (a retired jump to address 0), the instruction budget is reached,
// or a fatal condition surfaces. instrsToRun == 0 means no budget.
func (p *Pipeline) Run(instrsToRun uint64) error {
	if err := p.registry.Validate(); err != nil {
		return fmt.Errorf("port wiring: %w", err)
	}

	for p.fatal == nil && !p.halted {
		if instrsToRun > 0 && p.stats.Instructions >= instrsToRun {
			break
		}
		p.Tick()

		if p.currentCycle-p.lastWritebackCycle > port.Cycle(p.cfg.WatchdogThreshold) {
			return &DeadlockError{
				Cycle:    p.currentCycle,
				LastWB:   p.lastWritebackCycle,
				Snapshot: p.snapshot(),
			}
		}
	}
	return p.fatal
}

// Tick executes one pipeline cycle: the bypass release bookkeeping first,
// then the five stages in pipeline order.
func (p *Pipeline) Tick() {
	cycle := p.currentCycle
	p.clockFlushNotify(cycle)
	p.clockFetch(cycle)
	p.clockDecode(cycle)
	p.clockExecute(cycle)
	p.clockMem(cycle)
	p.clockWriteback(cycle)
	p.stats.Cycles++
	p.currentCycle++
}

func (p *Pipeline) snapshot() string {
	return fmt.Sprintf("fetch pc=0x%x decode buffer occupied=%v regs: %s",
		p.pc, p.hasDecodeData, p.rf.File().Dump())
}

func (p *Pipeline) trace(cycle port.Cycle, stage, msg string, inst *insts.Instruction) {
	if p.log == nil {
		return
	}
	fields := logrus.Fields{"cycle": cycle, "stage": stage}
	if inst != nil {
		fields["instr"] = inst.Disasm()
		fields["pc"] = fmt.Sprintf("0x%x", inst.PC)
	}
	p.log.WithFields(fields).Debug(msg)
}

// clockFlushNotify releases the reservations of flushed instructions. It
// runs before the stages so Decode never consults a withdrawn producer.
func (p *Pipeline) clockFlushNotify(cycle port.Cycle) {
	for _, rp := range []*port.ReadPort[DecodedInstr]{p.rpExecuteFlushNote, p.rpMemoryFlushNote} {
		if rp.IsReady(cycle) {
			d := rp.Read(cycle)
			p.bypass.Release(d.Tag)
			p.rf.Unreserve(d.Inst.Dst)
		}
	}
}

func (p *Pipeline) clockFetch(cycle port.Cycle) {
	// Train the predictor regardless of stall or flush state.
	if p.rpBPUpdate.IsReady(cycle) {
		update := p.rpBPUpdate.Read(cycle)
		p.predictor.Update(update.PC, update.Taken, update.Target)
	}

	// Consume a pending stall first; a simultaneous flush overrides it.
	stalled := p.rpDecode2FetchStall.IsReady(cycle) && p.rpDecode2FetchStall.Read(cycle)

	if p.rpFlushTarget.IsReady(cycle) {
		p.pc = p.rpFlushTarget.Read(cycle)
		p.emittedLast = false
		stalled = false
	}

	if stalled {
		// The record sent while the stall was in flight is dropped by
		// Decode, so back up to refetch it once the stall clears.
		if p.emittedLast {
			p.pc = p.lastFetchPC
		}
		p.emittedLast = false
		p.trace(cycle, "fetch", "stall", nil)
		return
	}

	word := p.memory.Read32(p.pc)
	pred := p.predictor.Predict(p.pc)
	taken := pred.Taken && pred.TargetKnown

	record := IfId{
		PC:              p.pc,
		Raw:             word,
		PredictedTaken:  taken,
		PredictedTarget: pred.Target,
	}
	p.wpFetch2Decode.Write(record, cycle)

	p.lastFetchPC = p.pc
	p.emittedLast = true
	if taken {
		p.pc = pred.Target
	} else {
		p.pc += 4
	}
}

func (p *Pipeline) clockDecode(cycle port.Cycle) {
	if p.rpDecodeFlush.IsReady(cycle) && p.rpDecodeFlush.Read(cycle) {
		if p.rpFetch2Decode.IsReady(cycle) {
			p.rpFetch2Decode.Read(cycle)
		}
		p.hasDecodeData = false
		p.trace(cycle, "decode", "flush", nil)
		return
	}

	if !p.hasDecodeData && p.rpFetch2Decode.IsReady(cycle) {
		p.decodeData = p.rpFetch2Decode.Read(cycle)
		p.hasDecodeData = true
	}
	if !p.hasDecodeData {
		return
	}

	data := p.decodeData
	inst := p.decoder.Decode(data.Raw, data.PC)
	inst.PredictedTaken = data.PredictedTaken
	inst.PredictedTarget = data.PredictedTarget

	src1, v1, ok1 := p.resolveSource(inst.Src1, cycle)
	src2, v2, ok2 := p.resolveSource(inst.Src2, cycle)
	if !ok1 || !ok2 {
		p.wpDecode2FetchStall.Write(true, cycle)
		p.stats.Stalls++
		p.trace(cycle, "decode", "data hazard stall", &inst)
		return
	}

	inst.SetVSrc(v1, 0)
	inst.SetVSrc(v2, 1)

	d := DecodedInstr{
		Tag:     p.nextTag,
		Bypass1: src1,
		Bypass2: src2,
		Inst:    inst,
	}
	p.nextTag++

	p.rf.Reserve(inst.Dst)
	p.bypass.Reserve(&inst, d.Tag, cycle)
	p.wpDecode2Execute.Write(d, cycle)
	p.hasDecodeData = false
	p.trace(cycle, "decode", "issue", &inst)
}

// resolveSource decides where a source operand comes from: the register
// file when no producer is in flight, a bypass port when one will carry
// the value in time, or nowhere (stall).
func (p *Pipeline) resolveSource(reg insts.Reg, cycle port.Cycle) (BypassSource, uint32, bool) {
	if !p.rf.IsInFlight(reg) {
		return BypassNone, p.rf.Read(reg), true
	}
	if src, ok := p.bypass.Source(reg, cycle); ok {
		return src, 0, true
	}
	return BypassNone, 0, false
}

func (p *Pipeline) clockExecute(cycle port.Cycle) {
	if p.rpExecuteFlush.IsReady(cycle) && p.rpExecuteFlush.Read(cycle) {
		if p.rpDecode2Execute.IsReady(cycle) {
			d := p.rpDecode2Execute.Read(cycle)
			p.wpExecuteFlushNote.Write(d, cycle)
			p.trace(cycle, "execute", "flush", &d.Inst)
		}
		return
	}

	if !p.rpDecode2Execute.IsReady(cycle) {
		return
	}
	d := p.rpDecode2Execute.Read(cycle)

	// Patch operands from the bypass network published last cycle.
	if d.Bypass1 == BypassFromExecute || d.Bypass2 == BypassFromExecute {
		payload := p.rpExecuteBypass.Read(cycle)
		if d.Bypass1 == BypassFromExecute {
			d.Inst.SetVSrc(laneValue(payload.Data, d.Inst.Src1), 0)
		}
		if d.Bypass2 == BypassFromExecute {
			d.Inst.SetVSrc(laneValue(payload.Data, d.Inst.Src2), 1)
		}
	}
	if d.Bypass1 == BypassFromMem || d.Bypass2 == BypassFromMem {
		payload := p.rpMemoryBypass.Read(cycle)
		if d.Bypass1 == BypassFromMem {
			d.Inst.SetVSrc(laneValue(payload.Data, d.Inst.Src1), 0)
		}
		if d.Bypass2 == BypassFromMem {
			d.Inst.SetVSrc(laneValue(payload.Data, d.Inst.Src2), 1)
		}
	}

	d.Inst.Execute()

	if !d.Inst.Dst.IsNone() {
		p.wpExecuteBypass.Write(BypassPayload{Tag: d.Tag, Data: d.Inst.BypassData()}, cycle)
	}
	p.wpExecute2Memory.Write(d, cycle)
	p.trace(cycle, "execute", "execute", &d.Inst)
}

func (p *Pipeline) clockMem(cycle port.Cycle) {
	if p.rpMemoryFlush.IsReady(cycle) && p.rpMemoryFlush.Read(cycle) {
		if p.rpExecute2Memory.IsReady(cycle) {
			d := p.rpExecute2Memory.Read(cycle)
			p.wpMemoryFlushNote.Write(d, cycle)
			p.trace(cycle, "mem", "flush", &d.Inst)
		}
		return
	}

	if !p.rpExecute2Memory.IsReady(cycle) {
		return
	}
	d := p.rpExecute2Memory.Read(cycle)

	if d.Inst.IsJump() {
		p.wpBPUpdate.Write(BPUpdate{
			PC:     d.Inst.PC,
			Target: d.Inst.NewPC,
			Taken:  d.Inst.IsJumpTaken(),
		}, cycle)
		p.stats.BranchPredictions++
	}

	if mispredicted(&d.Inst) {
		if d.Inst.IsJump() {
			p.stats.BranchMispredictions++
		}
		p.stats.Flushes++
		p.wpAllFlush.Write(true, cycle)
		p.wpFlushTarget.Write(d.Inst.NewPC, cycle)
		p.trace(cycle, "mem", "misprediction", &d.Inst)
	} else if d.Inst.IsJump() {
		p.stats.BranchCorrect++
	}

	p.memory.LoadStore(&d.Inst)

	if !d.Inst.Dst.IsNone() {
		p.wpMemoryBypass.Write(BypassPayload{Tag: d.Tag, Data: d.Inst.BypassData()}, cycle)
	}
	p.wpMemory2Writeback.Write(d, cycle)
	p.trace(cycle, "mem", "mem", &d.Inst)
}

// mispredicted compares the fetch-time prediction against the actual
// outcome. A non-jump that was predicted taken counts as a misprediction:
// the fetch stream went down a wrong path and must be re-steered.
func mispredicted(inst *insts.Instruction) bool {
	taken := inst.IsJumpTaken()
	if taken != inst.PredictedTaken {
		return true
	}
	return taken && inst.PredictedTarget != inst.NewPC
}

func (p *Pipeline) clockWriteback(cycle port.Cycle) {
	if !p.rpMemory2Writeback.IsReady(cycle) {
		return
	}
	d := p.rpMemory2Writeback.Read(cycle)

	p.rf.Commit(&d.Inst, cycle)
	p.rf.Unreserve(d.Inst.Dst)
	p.bypass.Release(d.Tag)

	p.stats.Instructions++
	p.lastWritebackCycle = cycle
	p.trace(cycle, "writeback", "retire", &d.Inst)

	if p.checker != nil {
		if err := p.checker.Check(&d.Inst, p.rf.File()); err != nil {
			p.fatal = err
			return
		}
	}

	if d.Inst.HasTrap() {
		p.fatal = &emu.TrapError{Inst: d.Inst}
		return
	}

	if d.Inst.IsHalt() {
		p.halted = true
	}
}
