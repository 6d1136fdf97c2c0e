// Package cpu implements the shared ARM core used for both the A9
// (ARMv5TE, CP15-equipped) and A7 (ARMv4T) processors (spec.md §2 item 1,
// §4.2). One CPU type is parameterized by a capability flag rather than
// duplicated, matching spec.md's "shared decode tables, parameterized by
// capability" design.
package cpu

// Mode is a CPSR mode field value (bits 4:0), using the real ARM encoding.
type Mode uint32

const (
	ModeUser       Mode = 0x10
	ModeFIQ        Mode = 0x11
	ModeIRQ        Mode = 0x12
	ModeSupervisor Mode = 0x13
	ModeAbort      Mode = 0x17
	ModeUndefined  Mode = 0x1B
	ModeSystem     Mode = 0x1F
)

// CPSR bit positions for flags outside the mode field.
const (
	flagT = 1 << 5
	flagF = 1 << 6
	flagI = 1 << 7
	flagQ = 1 << 27
	flagV = 1 << 28
	flagC = 1 << 29
	flagZ = 1 << 30
	flagN = 1 << 31
)

// bankIndex maps a Mode to one of six R13/R14/SPSR bank slots. User and
// System share a bank (neither has a private SPSR).
func bankIndex(m Mode) int {
	switch m {
	case ModeFIQ:
		return 1
	case ModeIRQ:
		return 2
	case ModeSupervisor:
		return 3
	case ModeAbort:
		return 4
	case ModeUndefined:
		return 5
	default:
		return 0 // User, System
	}
}

// AccessType marks whether a fetch/access is sequential to the previous one
// (spec.md §3 "a pending-access classification (sequential/non-sequential)").
type AccessType int

const (
	Seq AccessType = iota
	NonSeq
)

// Bus is the minimal surface the CPU core needs from the memory subsystem.
// *memory.Bus satisfies it; the CPU package has no compile-time dependency
// on internal/memory's concrete types (spec.md §4.3's BusTimer seam).
type Bus interface {
	ReadByte(isA9 bool, addr uint32) uint8
	WriteByte(isA9 bool, addr uint32, v uint8)
	ReadHalf(isA9 bool, addr uint32) uint16
	WriteHalf(isA9 bool, addr uint32, v uint16)
	ReadWord(isA9 bool, addr uint32) uint32
	WriteWordP(isA9 bool, addr uint32, v uint32)
	WaitStates(isA9 bool, addr uint32, width int) (seq, nonSeq int)
}

// CP15 is the coprocessor seam for MRC/MCR (A9 only). *cp15.CP15 satisfies
// it; the A7 core is constructed with a nil CP15 and traps MRC/MCR as
// undefined instructions.
type CP15 interface {
	MRC(cn, cm, op2 uint8) uint32
	MCR(cn, cm, op2 uint8, value uint32)
}

// CPU is one processor core: A9 when isA9 is true (ARMv5TE + CP15), A7
// otherwise (ARMv4T, no CP15, no long-multiply/CLZ/saturating ops).
type CPU struct {
	R    [16]uint32
	CPSR uint32

	r13Bank  [6]uint32
	r14Bank  [6]uint32
	spsr     [6]uint32
	fiqR8_12 [5]uint32
	useR8_12 [5]uint32

	pipeline   [2]uint32
	pipelineAT [2]AccessType
	branched   bool // set by ResetPipeline; tells Step not to also advance linearly

	isA9 bool
	bus  Bus
	cp15 CP15

	// Halted mirrors the owning irq.Controller's halt latch so Step can
	// decide whether to spin; the emulator keeps the two in sync.
	Halted bool

	Cycles uint64
}

// New constructs a CPU core. cp15 may be nil for the A7.
func New(isA9 bool, bus Bus, cp15 CP15) *CPU {
	return &CPU{isA9: isA9, bus: bus, cp15: cp15}
}

// IsA9 reports which processor this core models.
func (c *CPU) IsA9() bool { return c.isA9 }

// CurrentMode returns the CPSR's mode field.
func (c *CPU) CurrentMode() Mode { return Mode(c.CPSR & 0x1F) }

// Thumb reports whether the T bit is set.
func (c *CPU) Thumb() bool { return c.CPSR&flagT != 0 }

// IRQMasked reports whether CPSR.I currently masks IRQ entry, the gate the
// emulator's cooperative loop consults alongside irq.Controller.ShouldEnter.
func (c *CPU) IRQMasked() bool { return c.CPSR&flagI != 0 }

// State is the gob-serializable snapshot of a core's full register file,
// including the banked registers normal execution never exposes directly
// (mirrors scheduler.State's Snapshot/Restore shape).
type State struct {
	R        [16]uint32
	CPSR     uint32
	R13Bank  [6]uint32
	R14Bank  [6]uint32
	SPSR     [6]uint32
	FIQR8_12 [5]uint32
	UseR8_12 [5]uint32
	Pipeline [2]uint32
	Branched bool
	Halted   bool
	Cycles   uint64
}

// Snapshot captures the core's entire register file for serialization.
func (c *CPU) Snapshot() State {
	return State{
		R: c.R, CPSR: c.CPSR,
		R13Bank: c.r13Bank, R14Bank: c.r14Bank, SPSR: c.spsr,
		FIQR8_12: c.fiqR8_12, UseR8_12: c.useR8_12,
		Pipeline: c.pipeline, Branched: c.branched,
		Halted: c.Halted, Cycles: c.Cycles,
	}
}

// Restore replaces the core's register file with a previously captured
// Snapshot. The fetch pipeline's access-type tags are rebuilt as sequential,
// matching what ResetPipeline itself assumes after a discontinuity.
func (c *CPU) Restore(st State) {
	c.R = st.R
	c.CPSR = st.CPSR
	c.r13Bank = st.R13Bank
	c.r14Bank = st.R14Bank
	c.spsr = st.SPSR
	c.fiqR8_12 = st.FIQR8_12
	c.useR8_12 = st.UseR8_12
	c.pipeline = st.Pipeline
	c.pipelineAT = [2]AccessType{Seq, Seq}
	c.branched = st.Branched
	c.Halted = st.Halted
	c.Cycles = st.Cycles
}

func (c *CPU) flag(mask uint32) bool { return c.CPSR&mask != 0 }
func (c *CPU) setFlag(mask uint32, v bool) {
	if v {
		c.CPSR |= mask
	} else {
		c.CPSR &^= mask
	}
}

// GetReg reads register n. r15 always holds the pipeline-ahead value
// (instruction address + 2 instruction-widths), so no extra offset is
// needed at read time (spec.md §3's PC-as-operand quirk).
func (c *CPU) GetReg(n int) uint32 { return c.R[n] }

// SetReg writes register n directly; branch handlers should call
// ResetPipeline instead of writing r15 through this.
func (c *CPU) SetReg(n int, v uint32) { c.R[n] = v }

// SetMode performs the CPSR mode-field transition with the bank-swap rule
// from spec.md §3: "exactly R13/R14 and SPSR swap, and additionally R8-R12
// swap if either source or destination mode is FIQ."
func (c *CPU) SetMode(newMode Mode) {
	oldMode := c.CurrentMode()
	if newMode == oldMode {
		return
	}
	oldIdx, newIdx := bankIndex(oldMode), bankIndex(newMode)
	if oldIdx != newIdx {
		c.r13Bank[oldIdx] = c.R[13]
		c.r14Bank[oldIdx] = c.R[14]
		c.R[13] = c.r13Bank[newIdx]
		c.R[14] = c.r14Bank[newIdx]
	}
	oldFIQ := oldMode == ModeFIQ
	newFIQ := newMode == ModeFIQ
	if oldFIQ != newFIQ {
		if oldFIQ {
			copy(c.fiqR8_12[:], c.R[8:13])
			copy(c.R[8:13], c.useR8_12[:])
		} else {
			copy(c.useR8_12[:], c.R[8:13])
			copy(c.R[8:13], c.fiqR8_12[:])
		}
	}
	c.CPSR = c.CPSR&^0x1F | uint32(newMode)
}

// SPSR returns the saved PSR for the current mode (User/System have none;
// reading there returns 0).
func (c *CPU) SPSR() uint32 {
	idx := bankIndex(c.CurrentMode())
	if idx == 0 {
		return 0
	}
	return c.spsr[idx]
}

func (c *CPU) SetSPSR(v uint32) {
	idx := bankIndex(c.CurrentMode())
	if idx == 0 {
		return
	}
	c.spsr[idx] = v
}

// instrSize returns 4 in ARM state, 2 in Thumb state.
func (c *CPU) instrSize() uint32 {
	if c.Thumb() {
		return 2
	}
	return 4
}

// ResetPipeline refills both fetch slots from target and sets the PC
// register to the pipeline-ahead value, per spec.md §4.2: "After any
// branch, reset_pipeline refills both slots with the appropriate access
// types (NonSeq, Seq)."
func (c *CPU) ResetPipeline(target uint32) {
	size := c.instrSize()
	c.pipeline[0] = target
	c.pipelineAT[0] = NonSeq
	c.pipeline[1] = target + size
	c.pipelineAT[1] = Seq
	c.R[15] = target + 2*size
	c.branched = true
}

// branchTo masks target to the current state's alignment (word in ARM,
// halfword in Thumb) and refills the pipeline. Callers that change the T
// bit (BX, data-processing writes to SPSR-restoring PC) must set flagT
// before calling this so the correct alignment is used.
func (c *CPU) branchTo(target uint32) {
	if c.Thumb() {
		target &^= 1
	} else {
		target &^= 3
	}
	c.ResetPipeline(target)
}

// Reset sets the core to its post-reset state: Supervisor mode, IRQ/FIQ
// masked, ARM state, R13 = 0x03007FE0, and the pipeline started at
// entryPoint.
func (c *CPU) Reset(entryPoint uint32) {
	c.CPSR = uint32(ModeSupervisor) | flagI | flagF
	for i := range c.R {
		c.R[i] = 0
	}
	c.R[13] = 0x03007FE0
	c.r13Bank[bankIndex(ModeSupervisor)] = 0x03007FE0
	c.ResetPipeline(entryPoint)
}

// RaiseInterrupt performs IRQ entry: switches to IRQ mode, saves CPSR to
// SPSR_irq, sets LR_irq to the return address, masks IRQ, clears T, and
// loads PC from the IRQ vector (spec.md §3: "Mode changes on interrupt
// entry set T=0, mask I (and F for reset/FIQ), write LR = return address,
// and load PC from the vector table").
func (c *CPU) RaiseInterrupt() {
	returnAddr := c.R[15] - c.instrSize() + 4
	savedCPSR := c.CPSR
	c.SetMode(ModeIRQ)
	c.spsr[bankIndex(ModeIRQ)] = savedCPSR
	c.R[14] = returnAddr
	c.setFlag(flagT, false)
	c.setFlag(flagI, true)
	c.ResetPipeline(c.vectorBase() + 0x18)
}

// RaiseUndefined enters Undefined mode via the undefined instruction
// vector, used for unimplemented/unrecognized opcodes and for MRC/MCR
// executed on the A7 (spec.md §7: "undefined opcodes enter Undefined mode
// via the undefined-vector").
func (c *CPU) RaiseUndefined() {
	returnAddr := c.R[15] - c.instrSize() + 4
	savedCPSR := c.CPSR
	c.SetMode(ModeUndefined)
	c.spsr[bankIndex(ModeUndefined)] = savedCPSR
	c.R[14] = returnAddr
	c.setFlag(flagT, false)
	c.setFlag(flagI, true)
	c.ResetPipeline(c.vectorBase() + 0x04)
}

// RaiseSoftwareInterrupt enters Supervisor mode via the SWI vector.
func (c *CPU) RaiseSoftwareInterrupt() {
	returnAddr := c.R[15] - c.instrSize() + 4
	savedCPSR := c.CPSR
	c.SetMode(ModeSupervisor)
	c.spsr[bankIndex(ModeSupervisor)] = savedCPSR
	c.R[14] = returnAddr
	c.setFlag(flagT, false)
	c.setFlag(flagI, true)
	c.ResetPipeline(c.vectorBase() + 0x08)
}

// vectorBase is always 0x00000000. The high-vector control bit of CP15
// register 1 is not stored by the cp15 package and is not consulted here,
// so vectors are never placed at 0xFFFF0000.
func (c *CPU) vectorBase() uint32 {
	return 0x00000000
}

// Step executes one fetch-decode-execute cycle and returns cycles spent.
// Per spec.md §4.2's step() contract, DMA-pending and halted handling live
// in the emulator's cooperative loop, not here; Step always executes
// exactly one instruction (or consumes one cycle while halted).
func (c *CPU) Step() int {
	if c.Halted {
		return 1
	}
	size := c.instrSize()
	addr := c.pipeline[0]
	at := c.pipelineAT[0]
	instr := c.fetchWord(addr)
	cycles := c.memCycles(addr, at, int(size))

	// R[15] must read as addr+2*size (the pipeline-ahead value) while this
	// instruction executes, matching real ARM PC-as-operand behavior.
	c.R[15] = addr + 2*size
	c.branched = false

	if c.Thumb() {
		c.executeThumb(uint16(instr))
	} else {
		c.executeARM(instr)
	}

	// A taken branch already called ResetPipeline with the new target; only
	// advance linearly when the instruction didn't branch.
	if !c.branched {
		c.pipeline[0] = c.pipeline[1]
		c.pipelineAT[0] = c.pipelineAT[1]
		c.pipeline[1] = c.pipeline[0] + size
		c.pipelineAT[1] = Seq
		c.R[15] = c.pipeline[0] + 2*size
	}
	c.Cycles += uint64(cycles)
	return cycles
}

func (c *CPU) memCycles(addr uint32, at AccessType, width int) int {
	seq, nonSeq := c.bus.WaitStates(c.isA9, addr, width)
	if at == Seq {
		return seq
	}
	return nonSeq
}

// fetchWord re-reads the instruction word from the bus at execute time
// rather than caching a decoded value, matching the teacher's own
// re-decode-inside-handler style and letting self-modifying writes between
// fetch and execute be observed.
func (c *CPU) fetchWord(addr uint32) uint32 {
	if c.Thumb() {
		return uint32(c.bus.ReadHalf(c.isA9, addr))
	}
	return c.bus.ReadWord(c.isA9, addr)
}

// conditionPassed evaluates a 4-bit ARM condition field against the current
// NZCV flags.
func (c *CPU) conditionPassed(cond uint32) bool {
	n, z, cc, v := c.flag(flagN), c.flag(flagZ), c.flag(flagC), c.flag(flagV)
	switch cond {
	case 0x0:
		return z
	case 0x1:
		return !z
	case 0x2:
		return cc
	case 0x3:
		return !cc
	case 0x4:
		return n
	case 0x5:
		return !n
	case 0x6:
		return v
	case 0x7:
		return !v
	case 0x8:
		return cc && !z
	case 0x9:
		return !cc || z
	case 0xA:
		return n == v
	case 0xB:
		return n != v
	case 0xC:
		return !z && n == v
	case 0xD:
		return z || n != v
	case 0xE:
		return true
	default: // 0xF: unconditional on A9 (BLX/PLD slot), undefined trap on A7
		return c.isA9
	}
}
