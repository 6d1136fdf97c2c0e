package cpu

import "testing"

// fakeBus is a flat byte-addressed memory big enough for the test programs,
// with no wait-state modeling beyond a fixed 1/1 cycle pair.
type fakeBus struct {
	mem map[uint32][]byte
}

func newFakeBus() *fakeBus { return &fakeBus{mem: map[uint32][]byte{}} }

func (b *fakeBus) ReadByte(isA9 bool, addr uint32) uint8 {
	return b.mem[addr&^3][addr&3]
}
func (b *fakeBus) WriteByte(isA9 bool, addr uint32, v uint8) {
	b.ensure(addr)
	b.mem[addr&^3][addr&3] = v
}
func (b *fakeBus) ReadHalf(isA9 bool, addr uint32) uint16 {
	base := addr &^ 1
	lo := b.ReadByte(isA9, base)
	hi := b.ReadByte(isA9, base+1)
	return uint16(lo) | uint16(hi)<<8
}
func (b *fakeBus) WriteHalf(isA9 bool, addr uint32, v uint16) {
	base := addr &^ 1
	b.WriteByte(isA9, base, uint8(v))
	b.WriteByte(isA9, base+1, uint8(v>>8))
}
func (b *fakeBus) ReadWord(isA9 bool, addr uint32) uint32 {
	base := addr &^ 3
	b.ensure(base)
	w := b.mem[base]
	return uint32(w[0]) | uint32(w[1])<<8 | uint32(w[2])<<16 | uint32(w[3])<<24
}
func (b *fakeBus) WriteWordP(isA9 bool, addr uint32, v uint32) {
	base := addr &^ 3
	b.ensure(base)
	w := b.mem[base]
	w[0], w[1], w[2], w[3] = uint8(v), uint8(v>>8), uint8(v>>16), uint8(v>>24)
}
func (b *fakeBus) WaitStates(isA9 bool, addr uint32, width int) (int, int) {
	return 1, 1
}
func (b *fakeBus) ensure(base uint32) {
	if b.mem[base] == nil {
		b.mem[base] = make([]byte, 4)
	}
}
func (b *fakeBus) putWord(addr, v uint32) {
	b.ensure(addr &^ 3)
	b.WriteWordP(true, addr, v)
}

// TestPipelineReloadOnBranch is spec.md §8 scenario 1: PC=0x08000000 ARM,
// execute B +0x100, expect PC=0x08000108 and both pipeline slots refilled.
func TestPipelineReloadOnBranch(t *testing.T) {
	bus := newFakeBus()
	// B +0x100: encoded as cond=AL, imm24 = (target - (instrAddr+8))/4 = 0x3E.
	bus.putWord(0x08000000, 0xEA00003E)

	c := New(true, bus, nil)
	c.ResetPipeline(0x08000000)

	c.Step()

	if got := c.GetReg(15); got != 0x08000108 {
		t.Fatalf("PC = %#x, want 0x08000108", got)
	}
	if c.pipeline[0] != 0x08000100 {
		t.Fatalf("pipeline[0] = %#x, want 0x08000100", c.pipeline[0])
	}
	if c.pipeline[1] != 0x08000104 {
		t.Fatalf("pipeline[1] = %#x, want 0x08000104", c.pipeline[1])
	}
}

// TestModeSwitchBanksR13 is spec.md §8 scenario 2: starting in Supervisor
// mode with R13_svc=0x03007FE0, MOV R0,R13 reads the banked value, and an
// MSR-driven switch to System mode exposes R13_usr instead.
func TestModeSwitchBanksR13(t *testing.T) {
	bus := newFakeBus()
	c := New(true, bus, nil)
	c.CPSR = uint32(ModeSupervisor)
	c.R[13] = 0x03007FE0
	c.r13Bank[bankIndex(ModeSupervisor)] = 0x03007FE0
	c.r13Bank[bankIndex(ModeSystem)] = 0x03007F00

	// MOV R0, R13 (cond=AL, opcode=MOV, no S, Rd=0, Rm=13).
	instr := uint32(0xE1A0000D)
	c.executeARM(instr)
	if c.GetReg(0) != 0x03007FE0 {
		t.Fatalf("R0 = %#x, want 0x03007FE0", c.GetReg(0))
	}

	// MSR CPSR_c, #0x1F (System mode, immediate operand, control field only).
	msr := uint32(0xE321F01F)
	c.executeARM(msr)
	if c.CurrentMode() != ModeSystem {
		t.Fatalf("mode = %#x, want System", c.CurrentMode())
	}
	if c.R[13] != 0x03007F00 {
		t.Fatalf("R13 = %#x, want 0x03007F00 (R13_usr)", c.R[13])
	}
}

// TestDataProcessingFlags exercises SUBS setting the carry/zero flags the
// ARM "no borrow" way.
func TestDataProcessingFlags(t *testing.T) {
	bus := newFakeBus()
	c := New(true, bus, nil)
	c.R[1] = 5
	c.R[2] = 5

	// SUBS R0, R1, R2 (cond=AL, opcode=SUB, S=1, Rd=0, Rn=1, Rm=2).
	instr := uint32(0xE0510002)
	c.executeARM(instr)

	if c.GetReg(0) != 0 {
		t.Fatalf("R0 = %#x, want 0", c.GetReg(0))
	}
	if !c.flag(flagZ) {
		t.Fatalf("Z flag not set after equal SUBS")
	}
	if !c.flag(flagC) {
		t.Fatalf("C flag not set (no borrow) after equal SUBS")
	}
}

// TestThumbConditionalBranchTaken exercises the Thumb format-16 Bcond path,
// including the sign-extended 8-bit offset.
func TestThumbConditionalBranchTaken(t *testing.T) {
	bus := newFakeBus()
	c := New(false, bus, nil)
	c.CPSR |= flagT
	c.ResetPipeline(0x00000100)
	c.setFlag(flagZ, true)

	// BEQ target=instrAddr-4: offset byte 0xFC is -4 as int8, *2 = -8 bytes
	// from PC (instrAddr+4), landing at instrAddr-4.
	bus.WriteHalf(false, 0x00000100, 0xD0FC)

	c.Step()

	if got := c.pipeline[0]; got != 0x000000FC {
		t.Fatalf("pipeline[0] = %#x, want 0xFC", got)
	}
}

// TestThumbLongBranchLinkSequence exercises the two-instruction BL form.
func TestThumbLongBranchLinkSequence(t *testing.T) {
	bus := newFakeBus()
	c := New(false, bus, nil)
	c.CPSR |= flagT
	c.ResetPipeline(0x00000000)

	// First half: F000 (H=10, offset_high=0) -> LR = PC + 0 = instr1addr+4.
	bus.WriteHalf(false, 0x00000000, 0xF000)
	// Second half: F801 (H=11, offset_low=1) -> target = LR + 2.
	bus.WriteHalf(false, 0x00000002, 0xF801)

	c.Step() // executes first half
	c.Step() // executes second half, branches

	if c.pipeline[0]&^1 != (0x00000004 + 2) {
		t.Fatalf("branch target = %#x, want 0x6", c.pipeline[0])
	}
	if c.R[14]&1 == 0 {
		t.Fatalf("LR low bit not set to mark Thumb return")
	}
}

// TestCLZCountsLeadingZeros exercises the A9-only CLZ opcode, which shares
// armBranchExchange's classifier mask and previously dispatched there.
func TestCLZCountsLeadingZeros(t *testing.T) {
	bus := newFakeBus()
	c := New(true, bus, nil)
	c.R[1] = 1

	// CLZ R0, R1 (A9 only).
	instr := uint32(0xE16F0F11)
	c.executeARM(instr)

	if c.GetReg(0) != 31 {
		t.Fatalf("CLZ R0 = %d, want 31", c.GetReg(0))
	}
}

// TestCLZUndefinedOnA7 verifies CLZ traps as undefined on the A7, which has
// no leading-zero-count instruction.
func TestCLZUndefinedOnA7(t *testing.T) {
	bus := newFakeBus()
	c := New(false, bus, nil)
	c.CPSR = uint32(ModeUser)
	c.R[1] = 1

	instr := uint32(0xE16F0F11)
	c.executeARM(instr)

	if c.CurrentMode() != ModeUndefined {
		t.Fatalf("mode = %#x, want Undefined after CLZ on A7", c.CurrentMode())
	}
}

// TestQADDSaturatesAndSetsQ exercises QADD, which previously shared
// armPSRTransfer's classifier mask and was silently executed as MRS/MSR.
func TestQADDSaturatesAndSetsQ(t *testing.T) {
	bus := newFakeBus()
	c := New(true, bus, nil)
	c.R[1] = 0x7FFFFFFF
	c.R[2] = 1

	// QADD R0, R2, R1 (Rd=0, Rm=2, Rn=1).
	instr := uint32(0xE1010052)
	c.executeARM(instr)

	if c.GetReg(0) != 0x7FFFFFFF {
		t.Fatalf("QADD R0 = %#x, want 0x7FFFFFFF", c.GetReg(0))
	}
	if !c.flag(flagQ) {
		t.Fatalf("Q flag not set after saturating QADD")
	}
}

// TestQSUBSaturatesAndSetsQ exercises QSUB the same way.
func TestQSUBSaturatesAndSetsQ(t *testing.T) {
	bus := newFakeBus()
	c := New(true, bus, nil)
	c.R[1] = 0x80000000 // INT32_MIN
	c.R[2] = 1

	// QSUB R0, R2, R1 (Rd=0, Rm=2, Rn=1).
	instr := uint32(0xE1210052)
	c.executeARM(instr)

	if c.GetReg(0) != 0x7FFFFFFF {
		t.Fatalf("QSUB R0 = %#x, want 0x7FFFFFFF", c.GetReg(0))
	}
	if !c.flag(flagQ) {
		t.Fatalf("Q flag not set after saturating QSUB")
	}
}

// TestQDADDDoubleSaturates exercises QDADD's two-stage saturation.
func TestQDADDDoubleSaturates(t *testing.T) {
	bus := newFakeBus()
	c := New(true, bus, nil)
	c.R[1] = 0x40000000
	c.R[2] = 0

	// QDADD R0, R2, R1 (Rd=0, Rm=2, Rn=1).
	instr := uint32(0xE1410052)
	c.executeARM(instr)

	if c.GetReg(0) != 0x7FFFFFFF {
		t.Fatalf("QDADD R0 = %#x, want 0x7FFFFFFF", c.GetReg(0))
	}
	if !c.flag(flagQ) {
		t.Fatalf("Q flag not set after QDADD's Rn*2 saturation")
	}
}

// TestQDSUBDoubleSaturates exercises QDSUB's two-stage saturation.
func TestQDSUBDoubleSaturates(t *testing.T) {
	bus := newFakeBus()
	c := New(true, bus, nil)
	c.R[1] = 0x40000000
	c.R[2] = 0

	// QDSUB R0, R2, R1 (Rd=0, Rm=2, Rn=1).
	instr := uint32(0xE1610052)
	c.executeARM(instr)

	if c.GetReg(0) != 0x80000001 {
		t.Fatalf("QDSUB R0 = %#x, want 0x80000001", c.GetReg(0))
	}
	if !c.flag(flagQ) {
		t.Fatalf("Q flag not set after QDSUB's Rn*2 saturation")
	}
}

// TestPLDIsNoOpOnA9 verifies the PLD slot (cond==0xF in the single-data-
// transfer group) neither reads memory nor branches, matching the real
// prefetch-hint semantics instead of executing as LDR PC,[Rn+off].
func TestPLDIsNoOpOnA9(t *testing.T) {
	bus := newFakeBus()
	c := New(true, bus, nil)
	c.ResetPipeline(0x1000)
	pcBefore := c.R[15]
	pipelineBefore := c.pipeline

	// PLD [R0] (cond=0xF, group=01, L=1, Rd=1111).
	instr := uint32(0xF5900F00)
	c.executeARM(instr)

	if c.R[15] != pcBefore || c.pipeline != pipelineBefore {
		t.Fatalf("PLD altered PC/pipeline; want a pure no-op")
	}
}

// TestHaltedCoreConsumesCycleWithoutStepping verifies Step is a no-op while
// Halted, per spec.md §4.2's contract that halt handling lives outside Step.
func TestHaltedCoreConsumesCycleWithoutStepping(t *testing.T) {
	bus := newFakeBus()
	c := New(true, bus, nil)
	c.ResetPipeline(0x1000)
	c.Halted = true

	before := c.pipeline[0]
	cycles := c.Step()
	if cycles != 1 {
		t.Fatalf("cycles = %d, want 1", cycles)
	}
	if c.pipeline[0] != before {
		t.Fatalf("pipeline advanced while halted")
	}
}
