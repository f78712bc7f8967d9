package emu_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/perfsim/mipsim/emu"
	"github.com/perfsim/mipsim/insts"
)

const entry = 0x00400000

// loadProgram writes the words starting at the entry point.
func loadProgram(memory *emu.Memory, words ...uint32) {
	for i, w := range words {
		memory.Write32(entry+uint32(i)*4, w)
	}
}

var _ = Describe("Emulator", func() {
	var emulator *emu.Emulator

	BeforeEach(func() {
		emulator = emu.NewEmulator()
		emulator.SetPC(entry)
	})

	Describe("Step", func() {
		It("should execute a single instruction and advance the PC", func() {
			loadProgram(emulator.Memory(), 0x24010005) // addiu $1, $0, 5

			result := emulator.Step()
			Expect(result.Halted).To(BeFalse())
			Expect(emulator.RegFile().ReadReg(insts.GPR(1))).To(Equal(uint32(5)))
			Expect(emulator.RegFile().PC).To(Equal(uint32(entry + 4)))
		})

		It("should keep GPR 0 at zero after a write", func() {
			loadProgram(emulator.Memory(), 0x24000005) // addiu $0, $0, 5

			emulator.Step()
			Expect(emulator.RegFile().ReadReg(insts.RegZero)).To(Equal(uint32(0)))
		})

		It("should report a halt on a jump to address 0", func() {
			loadProgram(emulator.Memory(), 0x08000000) // j 0

			result := emulator.Step()
			Expect(result.Halted).To(BeTrue())
		})

		It("should report explicit traps", func() {
			loadProgram(emulator.Memory(), 0x00000034) // teq $0, $0

			result := emulator.Step()
			Expect(result.Trapped).To(BeTrue())
		})
	})

	Describe("Run", func() {
		It("should execute the bypass chain scenario", func() {
			loadProgram(emulator.Memory(),
				0x24010005, // addiu $1, $0, 5
				0x24020007, // addiu $2, $0, 7
				0x00221821, // addu $3, $1, $2
				0x08000000, // j 0
			)

			Expect(emulator.Run()).To(Succeed())
			rf := emulator.RegFile()
			Expect(rf.ReadReg(insts.GPR(1))).To(Equal(uint32(5)))
			Expect(rf.ReadReg(insts.GPR(2))).To(Equal(uint32(7)))
			Expect(rf.ReadReg(insts.GPR(3))).To(Equal(uint32(12)))
		})

		It("should combine ori and lui", func() {
			loadProgram(emulator.Memory(),
				0x3401FFFF, // ori $1, $0, 0xFFFF
				0x3C020001, // lui $2, 0x1
				0x00221821, // addu $3, $1, $2
				0x08000000, // j 0
			)

			Expect(emulator.Run()).To(Succeed())
			Expect(emulator.RegFile().ReadReg(insts.GPR(3))).To(Equal(uint32(0x0001FFFF)))
		})

		It("should skip the squashed slot of a taken branch", func() {
			loadProgram(emulator.Memory(),
				0x10000001, // beq $0, $0, 1
				0x24010001, // addiu $1, $0, 1 (squashed)
				0x24010002, // addiu $1, $0, 2
				0x24010003, // addiu $1, $0, 3
				0x08000000, // j 0
			)

			Expect(emulator.Run()).To(Succeed())
			Expect(emulator.RegFile().ReadReg(insts.GPR(1))).To(Equal(uint32(3)))
		})

		It("should call and return through jal/jr", func() {
			loadProgram(emulator.Memory(),
				0x0C100040, // jal 0x400100
				0x08000000, // j 0 (return lands here)
			)
			// Callee at 0x400100: addiu $2, $0, 42; jr $31
			emulator.Memory().Write32(0x400100, 0x2402002A)
			emulator.Memory().Write32(0x400104, 0x03E00008)

			Expect(emulator.Run()).To(Succeed())
			rf := emulator.RegFile()
			Expect(rf.ReadReg(insts.GPR(2))).To(Equal(uint32(42)))
			Expect(rf.ReadReg(insts.RegRa)).To(Equal(uint32(entry + 4)))
		})

		It("should yield zero for divide-by-zero through mflo/mfhi", func() {
			loadProgram(emulator.Memory(),
				0x24010037, // addiu $1, $0, 55
				0x0020001B, // divu $1, $0
				0x00001012, // mflo $2
				0x00001810, // mfhi $3
				0x08000000, // j 0
			)

			Expect(emulator.Run()).To(Succeed())
			rf := emulator.RegFile()
			Expect(rf.ReadReg(insts.GPR(2))).To(Equal(uint32(0)))
			Expect(rf.ReadReg(insts.GPR(3))).To(Equal(uint32(0)))
		})

		It("should accumulate madd into HI:LO", func() {
			loadProgram(emulator.Memory(),
				0x24010003, // addiu $1, $0, 3
				0x24020004, // addiu $2, $0, 4
				0x00220018, // mult $1, $2 -> HI:LO = 12
				0x70220000, // madd $1, $2 -> HI:LO = 24
				0x00001812, // mflo $3
				0x08000000, // j 0
			)

			Expect(emulator.Run()).To(Succeed())
			Expect(emulator.RegFile().ReadReg(insts.GPR(3))).To(Equal(uint32(24)))
		})

		It("should stop at the instruction budget", func() {
			limited := emu.NewEmulator(emu.WithMaxInstructions(10))
			limited.SetPC(entry)
			loadProgram(limited.Memory(),
				0x1000FFFF, // beq $0, $0, -1: branch to self
			)

			Expect(limited.Run()).To(Succeed())
			Expect(limited.InstructionCount()).To(Equal(uint64(10)))
		})

		It("should surface an unknown opcode as a trap error", func() {
			loadProgram(emulator.Memory(), 0xFC000000)

			err := emulator.Run()
			Expect(err).To(HaveOccurred())
			var trapErr *emu.TrapError
			Expect(errors.As(err, &trapErr)).To(BeTrue())
		})
	})
})
