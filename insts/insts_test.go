package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/perfsim/mipsim/insts"
)

var _ = Describe("Reg", func() {
	It("should identify the zero register", func() {
		Expect(insts.RegZero.IsZero()).To(BeTrue())
		Expect(insts.GPR(1).IsZero()).To(BeFalse())
	})

	It("should identify HI and LO including the pair", func() {
		Expect(insts.RegHi.IsHi()).To(BeTrue())
		Expect(insts.RegLo.IsLo()).To(BeTrue())
		Expect(insts.RegHiLo.IsHi()).To(BeTrue())
		Expect(insts.RegHiLo.IsLo()).To(BeTrue())
		Expect(insts.GPR(5).IsHi()).To(BeFalse())
	})

	It("should render ABI names", func() {
		Expect(insts.RegZero.String()).To(Equal("$zero"))
		Expect(insts.GPR(2).String()).To(Equal("$v0"))
		Expect(insts.RegRa.String()).To(Equal("$ra"))
		Expect(insts.RegHi.String()).To(Equal("hi"))
	})
})

var _ = Describe("Disasm", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	It("should render R-format arithmetic", func() {
		inst := decoder.Decode(0x00221821, 0x1000) // addu $3, $1, $2
		Expect(inst.Disasm()).To(Equal("addu $v1, $at, $v0"))
	})

	It("should render immediates as signed decimals", func() {
		inst := decoder.Decode(0x2441FFFF, 0x1000) // addiu $1, $2, -1
		Expect(inst.Disasm()).To(Equal("addiu $at, $v0, -1"))
	})

	It("should render loads with offset syntax", func() {
		inst := decoder.Decode(0x8C410008, 0x1000) // lw $1, 8($2)
		Expect(inst.Disasm()).To(Equal("lw $at, 8($v0)"))
	})

	It("should render jump targets as absolute addresses", func() {
		inst := decoder.Decode(0x0C100040, 0x00400000) // jal 0x400100
		Expect(inst.Disasm()).To(Equal("jal 0x400100"))
	})

	It("should render the zero word as nop", func() {
		inst := decoder.Decode(0, 0x1000)
		Expect(inst.Disasm()).To(Equal("nop"))
	})

	It("should cache the formatted string", func() {
		inst := decoder.Decode(0x00221821, 0x1000)
		first := inst.Disasm()
		Expect(inst.Disasm()).To(BeIdenticalTo(first))
	})
})
