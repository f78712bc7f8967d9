package pipeline_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/perfsim/mipsim/emu"
	"github.com/perfsim/mipsim/insts"
	"github.com/perfsim/mipsim/timing/pipeline"
)

const entry = 0x00400000

// makePipeline loads the program at the entry point into both the pipeline
// memory and the oracle memory, so every retire is cross-checked.
func makePipeline(words []uint32, opts ...pipeline.PipelineOption) (*pipeline.Pipeline, *emu.RegFile) {
	memory := emu.NewMemory()
	oracleMemory := emu.NewMemory()
	for i, w := range words {
		memory.Write32(entry+uint32(i)*4, w)
		oracleMemory.Write32(entry+uint32(i)*4, w)
	}

	oracle := emu.NewEmulator(emu.WithMemory(oracleMemory))
	oracle.SetPC(entry)

	regFile := &emu.RegFile{}
	opts = append(opts, pipeline.WithChecker(pipeline.NewChecker(oracle)))
	pipe := pipeline.NewPipeline(regFile, memory, opts...)
	pipe.SetPC(entry)
	return pipe, regFile
}

var _ = Describe("Pipeline", func() {
	Describe("construction", func() {
		It("should create a pipeline with valid port wiring", func() {
			pipe, _ := makePipeline([]uint32{0x08000000}) // j 0
			Expect(pipe.Run(0)).To(Succeed())
		})

		It("should set and get PC", func() {
			regFile := &emu.RegFile{}
			pipe := pipeline.NewPipeline(regFile, emu.NewMemory())
			pipe.SetPC(0x1000)
			Expect(pipe.PC()).To(Equal(uint32(0x1000)))
			Expect(regFile.PC).To(Equal(uint32(0x1000)))
		})
	})

	Describe("bypassing", func() {
		It("should execute a dependent add chain without stalls", func() {
			pipe, regFile := makePipeline([]uint32{
				0x24010005, // addiu $1, $0, 5
				0x24020007, // addiu $2, $0, 7
				0x00221821, // addu $3, $1, $2
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(1))).To(Equal(uint32(5)))
			Expect(regFile.ReadReg(insts.GPR(2))).To(Equal(uint32(7)))
			Expect(regFile.ReadReg(insts.GPR(3))).To(Equal(uint32(12)))
			Expect(pipe.Stats().Stalls).To(Equal(uint64(0)))
			Expect(pipe.Stats().Instructions).To(Equal(uint64(4)))
		})

		It("should combine ori and lui", func() {
			pipe, regFile := makePipeline([]uint32{
				0x3401FFFF, // ori $1, $0, 0xFFFF
				0x3C020001, // lui $2, 0x1
				0x00221821, // addu $3, $1, $2
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(3))).To(Equal(uint32(0x0001FFFF)))
		})

		It("should insert one stall for a back-to-back load use", func() {
			pipe, regFile := makePipeline([]uint32{
				0x3C081000, // lui $8, 0x1000
				0x00000000, // nop
				0x00000000, // nop
				0x00000000, // nop
				0x2409004D, // addiu $9, $0, 77
				0x00000000, // nop
				0x00000000, // nop
				0x00000000, // nop
				0xAD090000, // sw $9, 0($8)
				0x00000000, // nop
				0x00000000, // nop
				0x00000000, // nop
				0x8D0A0000, // lw $10, 0($8)
				0x014A5821, // addu $11, $10, $10
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(11))).To(Equal(uint32(154)))
			Expect(pipe.Stats().Stalls).To(Equal(uint64(1)))
		})

		It("should forward store data through the bypass network", func() {
			pipe, regFile := makePipeline([]uint32{
				0x3C081000, // lui $8, 0x1000
				0x24090021, // addiu $9, $0, 33
				0xAD090000, // sw $9, 0($8)
				0x8D0A0000, // lw $10, 0($8)
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(10))).To(Equal(uint32(33)))
		})

		It("should assemble an unaligned word through an lwr/lwl pair", func() {
			pipe, regFile := makePipeline([]uint32{
				0x3C081000, // lui $8, 0x1000
				0x3C094433, // lui $9, 0x4433
				0x35292211, // ori $9, $9, 0x2211
				0xAD090000, // sw $9, 0($8)
				0x3C0A8877, // lui $10, 0x8877
				0x354A6655, // ori $10, $10, 0x6655
				0xAD0A0004, // sw $10, 4($8)
				0x990B0001, // lwr $11, 1($8)
				0x890B0004, // lwl $11, 4($8)
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(11))).To(Equal(uint32(0x55443322)))
		})

		It("should stall consumers of a conditional move until commit", func() {
			pipe, regFile := makePipeline([]uint32{
				0x2401002A, // addiu $1, $0, 42
				0x24020001, // addiu $2, $0, 1
				0x0022180B, // movn $3, $1, $2
				0x00631821, // addu $3, $3, $3
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(3))).To(Equal(uint32(84)))
			Expect(pipe.Stats().Stalls).To(BeNumerically(">", 0))
		})

		It("should forward HI and LO from a multiply to mfhi/mflo", func() {
			pipe, regFile := makePipeline([]uint32{
				0x24010003, // addiu $1, $0, 3
				0x24020004, // addiu $2, $0, 4
				0x00220018, // mult $1, $2
				0x00001812, // mflo $3
				0x00002010, // mfhi $4
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(3))).To(Equal(uint32(12)))
			Expect(regFile.ReadReg(insts.GPR(4))).To(Equal(uint32(0)))
		})

		It("should read zero from HI and LO after a divide by zero", func() {
			pipe, regFile := makePipeline([]uint32{
				0x24010037, // addiu $1, $0, 55
				0x0020001B, // divu $1, $0
				0x00001012, // mflo $2
				0x00001810, // mfhi $3
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(2))).To(Equal(uint32(0)))
			Expect(regFile.ReadReg(insts.GPR(3))).To(Equal(uint32(0)))
		})

		It("should wait for commit before reading an accumulating multiply", func() {
			pipe, regFile := makePipeline([]uint32{
				0x24010003, // addiu $1, $0, 3
				0x24020004, // addiu $2, $0, 4
				0x00220018, // mult $1, $2
				0x70220000, // madd $1, $2
				0x00001812, // mflo $3
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(3))).To(Equal(uint32(24)))
		})
	})

	Describe("branches and flushes", func() {
		It("should squash the wrong-path slot of a taken branch", func() {
			pipe, regFile := makePipeline([]uint32{
				0x10000001, // beq $0, $0, 1
				0x24010001, // addiu $1, $0, 1 (squashed)
				0x24010002, // addiu $1, $0, 2
				0x24010003, // addiu $1, $0, 3
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(1))).To(Equal(uint32(3)))
			// beq, the two post-target addius and the halt retire; the
			// squashed slot never does.
			Expect(pipe.Stats().Instructions).To(Equal(uint64(4)))
			// One flush for the branch, one for the final jump.
			Expect(pipe.Stats().Flushes).To(Equal(uint64(2)))
		})

		It("should call and return through jal/jr", func() {
			// Callee at 0x400100: addiu $2, $0, 42; jr $31.
			pipe, regFile := makePipelineWithExtra([]uint32{
				0x0C100040, // jal 0x400100
				0x08000000, // j 0 (return lands here)
			}, map[uint32]uint32{
				0x400100: 0x2402002A,
				0x400104: 0x03E00008,
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(2))).To(Equal(uint32(42)))
			Expect(regFile.ReadReg(insts.RegRa)).To(Equal(uint32(entry + 4)))
		})

		It("should run a branch-to-self until the instruction budget", func() {
			pipe, _ := makePipeline([]uint32{
				0x1000FFFF, // beq $0, $0, -1
			})

			Expect(pipe.Run(50)).To(Succeed())
			Expect(pipe.Halted()).To(BeFalse())
			Expect(pipe.Stats().Instructions).To(Equal(uint64(50)))
		})

		It("should halt cleanly on a jump to address 0", func() {
			pipe, _ := makePipeline([]uint32{0x08000000})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(pipe.Halted()).To(BeTrue())
		})

		It("should learn a repeating branch with the bimodal predictor", func() {
			// $8 counts 20 iterations of a backwards-taken loop.
			pipe, regFile := makePipeline([]uint32{
				0x24080014, // addiu $8, $0, 20
				0x25290001, // loop: addiu $9, $9, 1
				0x2508FFFF, // addiu $8, $8, -1
				0x1500FFFD, // bne $8, $0, loop
				0x08000000, // j 0
			}, pipeline.WithPredictor(pipeline.NewBimodal(64, 64)))

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(9))).To(Equal(uint32(20)))
			stats := pipe.Stats()
			// Once the BTB warms up, the loop branch stops flushing.
			Expect(stats.BranchMispredictions).To(BeNumerically("<", 6))
			Expect(stats.BranchCorrect).To(BeNumerically(">", 14))
		})
	})

	Describe("architectural rules", func() {
		It("should keep GPR 0 immutable", func() {
			pipe, regFile := makePipeline([]uint32{
				0x24000005, // addiu $0, $0, 5
				0x00000821, // addu $1, $0, $0
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.RegZero)).To(Equal(uint32(0)))
			Expect(regFile.ReadReg(insts.GPR(1))).To(Equal(uint32(0)))
		})

		It("should leave no in-flight producers after the run", func() {
			pipe, _ := makePipeline([]uint32{
				0x24010005, // addiu $1, $0, 5
				0x00220018, // mult $1, $2
				0x00001812, // mflo $3
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			for r := uint32(1); r < 32; r++ {
				Expect(pipe.RF().IsInFlight(insts.GPR(r))).To(BeFalse())
			}
			Expect(pipe.RF().IsInFlight(insts.RegHi)).To(BeFalse())
			Expect(pipe.RF().IsInFlight(insts.RegLo)).To(BeFalse())
		})

		It("should release reservations of flushed instructions", func() {
			// The taken branch squashes a multiply on the wrong path; HI/LO
			// must not stay reserved afterwards.
			pipe, regFile := makePipeline([]uint32{
				0x10000002, // beq $0, $0, 2
				0x00220018, // mult $1, $2 (squashed)
				0x00000000, // nop (squashed)
				0x2401002A, // addiu $1, $0, 42
				0x08000000, // j 0
			})

			Expect(pipe.Run(0)).To(Succeed())
			Expect(regFile.ReadReg(insts.GPR(1))).To(Equal(uint32(42)))
			Expect(pipe.RF().IsInFlight(insts.RegHi)).To(BeFalse())
			Expect(pipe.RF().IsInFlight(insts.RegLo)).To(BeFalse())
		})
	})

	Describe("error surfacing", func() {
		It("should report a trap retiring from an unknown opcode", func() {
			pipe, _ := makePipeline([]uint32{
				0xFC000000, // unknown
			})

			err := pipe.Run(0)
			Expect(err).To(HaveOccurred())
			var trapErr *emu.TrapError
			Expect(errors.As(err, &trapErr)).To(BeTrue())
		})

		It("should report checker divergence with both sides", func() {
			memory := emu.NewMemory()
			oracleMemory := emu.NewMemory()
			// The oracle sees a different program.
			memory.Write32(entry, 0x24010005)       // addiu $1, $0, 5
			oracleMemory.Write32(entry, 0x24010006) // addiu $1, $0, 6
			memory.Write32(entry+4, 0x08000000)
			oracleMemory.Write32(entry+4, 0x08000000)

			oracle := emu.NewEmulator(emu.WithMemory(oracleMemory))
			oracle.SetPC(entry)

			pipe := pipeline.NewPipeline(&emu.RegFile{}, memory,
				pipeline.WithChecker(pipeline.NewChecker(oracle)))
			pipe.SetPC(entry)

			err := pipe.Run(0)
			Expect(err).To(HaveOccurred())
			var divergence *pipeline.DivergenceError
			Expect(errors.As(err, &divergence)).To(BeTrue())
		})
	})
})

// makePipelineWithExtra loads the program plus extra words at absolute
// addresses into both memories.
func makePipelineWithExtra(words []uint32, extra map[uint32]uint32) (*pipeline.Pipeline, *emu.RegFile) {
	memory := emu.NewMemory()
	oracleMemory := emu.NewMemory()
	for i, w := range words {
		memory.Write32(entry+uint32(i)*4, w)
		oracleMemory.Write32(entry+uint32(i)*4, w)
	}
	for addr, w := range extra {
		memory.Write32(addr, w)
		oracleMemory.Write32(addr, w)
	}

	oracle := emu.NewEmulator(emu.WithMemory(oracleMemory))
	oracle.SetPC(entry)

	regFile := &emu.RegFile{}
	pipe := pipeline.NewPipeline(regFile, memory,
		pipeline.WithChecker(pipeline.NewChecker(oracle)))
	pipe.SetPC(entry)
	return pipe, regFile
}
