// Package gpu implements the line-level video timing generator: the VCOUNT
// state machine, HDraw/HBlank/VBlank edges and their interrupt/DMA
// side-effects, display capture, and the hand-off to the (excluded) 2D/3D
// rasterizers via a rendering-worker goroutine (spec.md §4.7, §9;
// SPEC_FULL.md §4.7/§5).
package gpu

import (
	"sync"

	"github.com/dualcore-ds/core/internal/dma"
	"github.com/dualcore-ds/core/internal/irq"
	"github.com/dualcore-ds/core/internal/memory"
	"github.com/dualcore-ds/core/internal/scheduler"
)

// Timing constants, in CPU cycles at the bus's base clock, matching the
// real hardware's 2130-cycle scanline (spec.md §8 scenario 6's
// HBlank@1606/HDraw@2130 timestamps).
const (
	ScreenWidth    = 256
	ScreenHeight   = 192
	NumLines       = 263
	HDrawCycles    = 1606
	HBlankCycles   = 2130 - 1606
	capKickoffLine = NumLines - 48
)

// DISPSTAT bit positions, shared layout for both processors' registers.
const (
	dispstatVBlank      = 1 << 0
	dispstatHBlank      = 1 << 1
	dispstatVCounter    = 1 << 2
	dispstatVBlankIRQ   = 1 << 3
	dispstatHBlankIRQ   = 1 << 4
	dispstatVCounterIRQ = 1 << 5
)

// Pixel is one composited RGB24 output sample plus its blend-eligibility
// bit (spec.md §9 "per-pixel alpha bits").
type Pixel struct {
	R, G, B uint8
	A       bool
}

// LineRegisters is the per-line register snapshot a renderer consults. The
// 2D tile/sprite rasterizer and 3D geometry engine are out of scope (spec.md
// §1 Non-goals); this is the seam they would read through.
type LineRegisters struct {
	VCount  int
	DISPCNT uint32
}

// VRAMReader is the read-only seam a renderer samples banked VRAM through;
// *memory.VRAM satisfies it directly.
type VRAMReader interface {
	ReadByte(view memory.ViewKind, windowAddr uint32) uint8
}

// Renderer2D renders one line of tile/sprite output for one 2D engine.
type Renderer2D interface {
	RenderLine(vcount int, regs LineRegisters, vram VRAMReader) [ScreenWidth]Pixel
}

// Renderer3D renders one line of geometry output and is kicked off a fixed
// number of lines before the end of VBlank so the next frame's geometry is
// ready by the time engine A needs it (spec.md §4.7).
type Renderer3D interface {
	RenderLine(vcount int, regs LineRegisters, vram VRAMReader) [ScreenWidth]Pixel
	StartFrame()
}

// NullRenderer is a solid-backdrop stand-in satisfying both renderer
// interfaces so the line engine is runnable and testable without the
// excluded rasterizer collaborators wired in.
type NullRenderer struct{ Backdrop Pixel }

func (n NullRenderer) RenderLine(int, LineRegisters, VRAMReader) [ScreenWidth]Pixel {
	var out [ScreenWidth]Pixel
	for i := range out {
		out[i] = n.Backdrop
	}
	return out
}
func (n NullRenderer) StartFrame() {}

// CaptureSource selects what display capture reads as "source A".
type CaptureSource int

const (
	CaptureSourceEngineA CaptureSource = iota
	CaptureSource3D
)

// CaptureConfig mirrors the fields of DISPCAPCNT this model implements
// (spec.md §4.7 "Display capture"); the emulator's I/O register wiring
// translates the raw register write into this struct.
type CaptureConfig struct {
	Enabled     bool
	Height      int // lines captured, <= ScreenHeight
	EVA, EVB    uint8 // blend factors, 0..16
	SourceA     CaptureSource
	SourceBBank int
	SourceBOffset uint32
	DestBank    int
	DestOffset  uint32
}

// LineJob is the per-line snapshot published to the rendering worker
// (SPEC_FULL.md §5's "Rendering worker contract").
type LineJob struct {
	VCount       int
	RegsA, RegsB LineRegisters
	VRAM         *memory.VRAM
	OAM, Palette []byte
}

// Engine is the shared video timing generator. VCOUNT and the line state
// machine are shared hardware; DISPSTAT, the IRQ controller, and the DMA
// bank are per-processor.
type Engine struct {
	VCount int

	dispstatA, dispstatB uint16
	vcountMatchA, vcountMatchB int

	irqA, irqB *irq.Controller
	dmaA, dmaB *dma.Bank
	sched      *scheduler.Scheduler

	VRAM         *memory.VRAM
	OAM, Palette []byte

	DispCntA, DispCntB uint32

	Renderer2DA, Renderer2DB Renderer2D
	Renderer3D               Renderer3D

	Capture CaptureConfig

	frameMu       sync.Mutex
	FrameA, FrameB [ScreenHeight][ScreenWidth]Pixel
	FrameFinished bool

	jobs    chan LineJob
	done    chan struct{}
	pending bool
}

// New constructs an Engine and starts its rendering-worker goroutine.
func New(sched *scheduler.Scheduler, irqA, irqB *irq.Controller, dmaA, dmaB *dma.Bank, vram *memory.VRAM) *Engine {
	e := &Engine{
		irqA: irqA, irqB: irqB,
		dmaA: dmaA, dmaB: dmaB,
		sched: sched,
		VRAM:  vram,
		Renderer2DA: NullRenderer{},
		Renderer2DB: NullRenderer{},
		Renderer3D:  NullRenderer{},
		jobs:        make(chan LineJob, 1),
		done:        make(chan struct{}, 1),
	}
	go e.workerLoop()
	return e
}

// State is the gob-serializable snapshot of the line engine's register and
// capture state. The in-flight job channels and frame buffers are not
// captured: a restore always lands on a line boundary (the emulator only
// calls Snapshot between RunFrame calls), so the worker has nothing pending
// and the next publishLine rebuilds both frame buffers from scratch.
type State struct {
	VCount                     int
	DispstatA, DispstatB       uint16
	VCountMatchA, VCountMatchB int
	DispCntA, DispCntB         uint32
	Capture                    CaptureConfig
}

// Snapshot captures VCOUNT, both processors' DISPSTAT/match registers,
// DISPCNT, and the capture configuration.
func (e *Engine) Snapshot() State {
	return State{
		VCount: e.VCount,
		DispstatA: e.dispstatA, DispstatB: e.dispstatB,
		VCountMatchA: e.vcountMatchA, VCountMatchB: e.vcountMatchB,
		DispCntA: e.DispCntA, DispCntB: e.DispCntB,
		Capture: e.Capture,
	}
}

// Restore replaces the line engine's register state with a previously
// captured Snapshot. Callers must only do this at a line boundary (see
// State's doc comment).
func (e *Engine) Restore(st State) {
	e.VCount = st.VCount
	e.dispstatA, e.dispstatB = st.DispstatA, st.DispstatB
	e.vcountMatchA, e.vcountMatchB = st.VCountMatchA, st.VCountMatchB
	e.DispCntA, e.DispCntB = st.DispCntA, st.DispCntB
	e.Capture = st.Capture
}

// Start arms the first HDraw event at cycle 0.
func (e *Engine) Start() {
	e.sched.ScheduleAt(scheduler.HDraw, scheduler.ProcessorNone, 0, 0)
}

// GetVCount returns the current scanline counter, satisfying
// debug.GPUStateReader.
func (e *Engine) GetVCount() int { return e.VCount }

// GetFrameFinished reports whether the current frame has reached VBlank,
// satisfying debug.GPUStateReader.
func (e *Engine) GetFrameFinished() bool { return e.FrameFinished }

// SetVCountMatch sets the 9-bit VCOUNT comparison value read from each
// processor's DISPSTAT register (bits 8-15 plus the bit-7 MSB extension).
func (e *Engine) SetVCountMatch(isA9 bool, match int) {
	if isA9 {
		e.vcountMatchA = match
	} else {
		e.vcountMatchB = match
	}
}

// DISPSTAT returns the current flag+IRQ-enable register for one processor.
func (e *Engine) DISPSTAT(isA9 bool) uint16 {
	if isA9 {
		return e.dispstatA
	}
	return e.dispstatB
}

// WriteDISPSTAT applies the IRQ-enable bits a CPU writes (the flag bits
// are hardware-controlled and not writable this way).
func (e *Engine) WriteDISPSTAT(isA9 bool, value uint16) {
	const writableMask = dispstatVBlankIRQ | dispstatHBlankIRQ | dispstatVCounterIRQ
	if isA9 {
		e.dispstatA = e.dispstatA&^writableMask | value&writableMask
	} else {
		e.dispstatB = e.dispstatB&^writableMask | value&writableMask
	}
}

// HandleHDraw processes the HDraw edge: spec.md §4.7 "clear HBLANK flag...
// if VCOUNT==vcount-match, raise VCOUNTER IRQ... schedule HBlank".
func (e *Engine) HandleHDraw() {
	e.dispstatA &^= dispstatHBlank
	e.dispstatB &^= dispstatHBlank

	if e.VCount == e.vcountMatchA {
		e.dispstatA |= dispstatVCounter
		if e.dispstatA&dispstatVCounterIRQ != 0 {
			e.irqA.Raise(irq.VCounter)
		}
	} else {
		e.dispstatA &^= dispstatVCounter
	}
	if e.VCount == e.vcountMatchB {
		e.dispstatB |= dispstatVCounter
		if e.dispstatB&dispstatVCounterIRQ != 0 {
			e.irqB.Raise(irq.VCounter)
		}
	} else {
		e.dispstatB &^= dispstatVCounter
	}

	e.sched.Schedule(scheduler.HBlank, scheduler.ProcessorNone, 0, HDrawCycles)
}

// HandleHBlank processes the HBlank edge: sets the flag, raises the IRQ,
// notifies HBlank-timed DMA, publishes the just-finished line to the
// rendering worker, schedules the next HDraw, and handles the line-boundary
// actions (spec.md §4.7).
func (e *Engine) HandleHBlank() {
	e.dispstatA |= dispstatHBlank
	e.dispstatB |= dispstatHBlank
	if e.dispstatA&dispstatHBlankIRQ != 0 {
		e.irqA.Raise(irq.HBlank)
	}
	if e.dispstatB&dispstatHBlankIRQ != 0 {
		e.irqB.Raise(irq.HBlank)
	}
	e.dmaA.Notify(dma.HBlankStart)
	e.dmaB.Notify(dma.HBlankStart)

	e.publishLine()

	e.sched.Schedule(scheduler.HDraw, scheduler.ProcessorNone, 0, HBlankCycles)
	e.VCount++

	switch {
	case e.VCount == ScreenHeight:
		e.drainPending()
		e.dispstatA |= dispstatVBlank
		e.dispstatB |= dispstatVBlank
		if e.dispstatA&dispstatVBlankIRQ != 0 {
			e.irqA.Raise(irq.VBlank)
		}
		if e.dispstatB&dispstatVBlankIRQ != 0 {
			e.irqB.Raise(irq.VBlank)
		}
		e.dmaA.Notify(dma.VBlankStart)
		e.dmaB.Notify(dma.VBlankStart)
		e.FrameFinished = true
	case e.VCount == capKickoffLine:
		if e.Renderer3D != nil {
			e.Renderer3D.StartFrame()
		}
	case e.VCount == NumLines:
		e.VCount = 0
		e.dispstatA &^= dispstatVBlank
		e.dispstatB &^= dispstatVBlank
	}
}

// publishLine hands the just-displayed line off to the rendering worker. It
// waits for the previous in-flight line to finish before overwriting the
// state that line reads, giving a pipelined single-producer-single-consumer
// handshake rather than a strict one-line-at-a-time stall (SPEC_FULL.md §5).
func (e *Engine) publishLine() {
	if e.VCount >= ScreenHeight {
		return
	}
	e.drainPending()
	e.jobs <- LineJob{
		VCount:  e.VCount,
		RegsA:   LineRegisters{VCount: e.VCount, DISPCNT: e.DispCntA},
		RegsB:   LineRegisters{VCount: e.VCount, DISPCNT: e.DispCntB},
		VRAM:    e.VRAM,
		OAM:     e.OAM,
		Palette: e.Palette,
	}
	e.pending = true
}

// drainPending blocks until the most recently published line has been
// consumed; a no-op when nothing is in flight. The worker goroutine blocks
// on an empty jobs channel between frames, which is this model's equivalent
// of "parked at end-of-frame, unparked on VCOUNT==0" (SPEC_FULL.md §5).
func (e *Engine) drainPending() {
	if e.pending {
		<-e.done
		e.pending = false
	}
}

func (e *Engine) workerLoop() {
	for job := range e.jobs {
		lineA := e.Renderer2DA.RenderLine(job.VCount, job.RegsA, job.VRAM)
		lineB := e.Renderer2DB.RenderLine(job.VCount, job.RegsB, job.VRAM)
		if e.Capture.SourceA == CaptureSource3D {
			lineA = e.Renderer3D.RenderLine(job.VCount, job.RegsA, job.VRAM)
		}

		e.frameMu.Lock()
		e.FrameA[job.VCount] = lineA
		e.FrameB[job.VCount] = lineB
		e.frameMu.Unlock()

		if e.Capture.Enabled && job.VCount < e.Capture.Height {
			e.compositeCaptureLine(job.VCount, lineA)
		}
		e.done <- struct{}{}
	}
}
