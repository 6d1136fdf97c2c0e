// Package dma implements the per-processor DMA engine: 4 channels, gated by
// start-timing conditions, latched on enable, with repeat/reload semantics
// (spec.md §3 "DMA channel", §4.4).
package dma

import "github.com/dualcore-ds/core/internal/irq"

// StartTiming selects the event class that arms a channel.
type StartTiming int

const (
	Immediate StartTiming = iota
	VBlankStart
	HBlankStart
	ScanlineStart // disp_start: once per visible line
	CartridgeStart
	GXFifoHalfEmptyStart
	WirelessFifoStart // A7 only
	FifoAStart        // A7 sound DMA only
	FifoBStart
)

// AddrStep selects how src/dst advance after each unit transfer.
type AddrStep int

const (
	StepIncrement AddrStep = iota
	StepDecrement
	StepFixed
	StepIncrementReload // dst only: reload from Dst at end-of-block when DMA_REPEAT
)

// Bus is the minimal surface a DMA engine needs from the bus; satisfied by
// *memory.Bus without internal/dma importing internal/memory's concrete
// types beyond this seam (mirrors the teacher's IOHandler-style interface).
type Bus interface {
	ReadHalf(isA9 bool, addr uint32) uint16
	WriteHalf(isA9 bool, addr uint32, v uint16)
	ReadWord(isA9 bool, addr uint32) uint32
	WriteWordP(isA9 bool, addr uint32, v uint32)
}

// Channel is one DMA channel's register state plus its internal (latched)
// working copies, per spec.md §3.
type Channel struct {
	Src, Dst   uint32
	Count      uint32
	UnitWidth  int // 2 (halfword) or 4 (word)
	SrcStep    AddrStep
	DstStep    AddrStep
	StartTime  StartTiming
	Repeat     bool
	IRQOnEnd   bool
	Enable     bool

	internalSrc, internalDst uint32
	internalCount            uint32
	pending                  bool
	running                  bool
	prevEnable               bool
}

// Bank is the 4-channel DMA engine for one processor.
type Bank struct {
	Channels [4]Channel
	isA9     bool
	bus      Bus
	irqc     *irq.Controller
}

// New builds a Bank wired to the given bus and this processor's interrupt
// controller.
func New(isA9 bool, bus Bus, irqc *irq.Controller) *Bank {
	return &Bank{isA9: isA9, bus: bus, irqc: irqc}
}

// channelState is the gob-serializable shape of a Channel, including the
// latched working copies a mid-transfer save needs to resume correctly.
type channelState struct {
	Src, Dst, Count                      uint32
	UnitWidth                            int
	SrcStep, DstStep                     AddrStep
	StartTime                            StartTiming
	Repeat, IRQOnEnd, Enable             bool
	InternalSrc, InternalDst, InternalCount uint32
	Pending, Running, PrevEnable         bool
}

// State is the gob-serializable snapshot of a Bank's four channels
// (mirrors scheduler.State's Snapshot/Restore shape).
type State struct {
	Channels [4]channelState
}

// Snapshot captures every channel's register and working state.
func (b *Bank) Snapshot() State {
	var st State
	for i, c := range b.Channels {
		st.Channels[i] = channelState{
			Src: c.Src, Dst: c.Dst, Count: c.Count,
			UnitWidth: c.UnitWidth, SrcStep: c.SrcStep, DstStep: c.DstStep,
			StartTime: c.StartTime, Repeat: c.Repeat, IRQOnEnd: c.IRQOnEnd, Enable: c.Enable,
			InternalSrc: c.internalSrc, InternalDst: c.internalDst, InternalCount: c.internalCount,
			Pending: c.pending, Running: c.running, PrevEnable: c.prevEnable,
		}
	}
	return st
}

// Restore replaces every channel's state with a previously captured
// Snapshot.
func (b *Bank) Restore(st State) {
	for i, cs := range st.Channels {
		b.Channels[i] = Channel{
			Src: cs.Src, Dst: cs.Dst, Count: cs.Count,
			UnitWidth: cs.UnitWidth, SrcStep: cs.SrcStep, DstStep: cs.DstStep,
			StartTime: cs.StartTime, Repeat: cs.Repeat, IRQOnEnd: cs.IRQOnEnd, Enable: cs.Enable,
			internalSrc: cs.InternalSrc, internalDst: cs.InternalDst, internalCount: cs.InternalCount,
			pending: cs.Pending, running: cs.Running, prevEnable: cs.PrevEnable,
		}
	}
}

// WriteControl applies a channel's control register. Per spec.md §4.4,
// "Each channel's transfer parameters are latched when enable transitions
// 0→1; subsequent register writes do not take effect until the next
// re-arm" — so on a 0→1 transition the internal working copies are
// (re)latched from Src/Dst/Count, and for Immediate timing the channel
// becomes pending right away.
func (b *Bank) WriteControl(ch int, enable bool, repeat bool, irqOnEnd bool, srcStep, dstStep AddrStep, unitWidth int, start StartTiming) {
	c := &b.Channels[ch]
	c.Repeat = repeat
	c.IRQOnEnd = irqOnEnd
	c.SrcStep = srcStep
	c.DstStep = dstStep
	c.UnitWidth = unitWidth
	c.StartTime = start

	wasEnabled := c.Enable
	c.Enable = enable

	if enable && !wasEnabled {
		c.internalSrc = c.Src
		c.internalDst = c.Dst
		c.internalCount = c.Count
		if c.internalCount == 0 {
			c.internalCount = maxCountFor(unitWidth)
		}
		c.running = true
		if start == Immediate {
			c.pending = true
		} else {
			c.pending = false
		}
	} else if !enable {
		c.running = false
		c.pending = false
	}
}

func maxCountFor(unitWidth int) uint32 {
	if unitWidth == 4 {
		return 0x100000
	}
	return 0x10000
}

// Notify marks every running channel whose start-timing matches ev as
// pending. Called by the emulator on the matching scheduler event.
func (b *Bank) Notify(ev StartTiming) {
	for i := range b.Channels {
		c := &b.Channels[i]
		if c.running && c.StartTime == ev {
			c.pending = true
		}
	}
}

// Step runs one pending channel's worth of transfer work, highest channel
// priority first (spec.md §4.4: "Ordering: channel 0..3 priority within one
// tick"). It performs one 4-unit burst in FIFO mode or, for all other
// modes, the channel's entire remaining count in a single call.
func (b *Bank) Step() {
	for i := range b.Channels {
		c := &b.Channels[i]
		if !c.pending || !c.running {
			continue
		}
		b.transfer(i, c)
		return
	}
}

// HasPending reports whether any running channel has been triggered and is
// waiting for Step to service it (used by the emulator's cooperative
// scheduler to decide whether to service DMA before CPU fetch, per spec.md
// §4.2 step()'s three modes).
func (b *Bank) HasPending() bool {
	for i := range b.Channels {
		if b.Channels[i].pending && b.Channels[i].running {
			return true
		}
	}
	return false
}

func (b *Bank) transfer(idx int, c *Channel) {
	units := c.internalCount
	if c.StartTime == FifoAStart || c.StartTime == FifoBStart {
		units = 4
	}
	var transferred uint32
	for transferred < units && c.internalCount > 0 {
		if c.UnitWidth == 4 {
			v := b.bus.ReadWord(b.isA9, c.internalSrc)
			b.bus.WriteWordP(b.isA9, c.internalDst, v)
		} else {
			v := b.bus.ReadHalf(b.isA9, c.internalSrc)
			b.bus.WriteHalf(b.isA9, c.internalDst, v)
		}
		c.internalSrc = stepAddr(c.internalSrc, c.SrcStep, c.UnitWidth)
		c.internalDst = stepAddr(c.internalDst, c.DstStep, c.UnitWidth)
		c.internalCount--
		transferred++
	}

	if c.internalCount == 0 {
		c.pending = false
		if c.Repeat {
			c.internalCount = c.Count
			if c.internalCount == 0 {
				c.internalCount = maxCountFor(c.UnitWidth)
			}
			if c.DstStep == StepIncrementReload {
				c.internalDst = c.Dst
			}
		} else {
			c.running = false
			c.Enable = false
		}
		if c.IRQOnEnd {
			b.irqc.Raise(irq.DMA0 << uint(idx))
		}
	} else {
		// FIFO-mode burst consumed its 4 words but the block continues;
		// stay pending=false until the next FifoA/FifoB trigger.
		c.pending = false
	}
}

func stepAddr(addr uint32, step AddrStep, unitWidth int) uint32 {
	switch step {
	case StepIncrement, StepIncrementReload:
		return addr + uint32(unitWidth)
	case StepDecrement:
		return addr - uint32(unitWidth)
	default:
		return addr
	}
}
