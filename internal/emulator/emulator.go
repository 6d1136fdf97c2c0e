// Package emulator wires the two CPU cores, the shared bus, and every
// timing-dependent peripheral into the cooperative scheduler loop of
// spec.md §5, and owns ROM boot and save-state round-tripping.
package emulator

import (
	"fmt"
	"time"

	"github.com/dualcore-ds/core/internal/audio"
	"github.com/dualcore-ds/core/internal/cp15"
	"github.com/dualcore-ds/core/internal/cpu"
	"github.com/dualcore-ds/core/internal/debug"
	"github.com/dualcore-ds/core/internal/dma"
	"github.com/dualcore-ds/core/internal/gpu"
	"github.com/dualcore-ds/core/internal/input"
	"github.com/dualcore-ds/core/internal/ipc"
	"github.com/dualcore-ds/core/internal/irq"
	"github.com/dualcore-ds/core/internal/memory"
	"github.com/dualcore-ds/core/internal/rom"
	"github.com/dualcore-ds/core/internal/scheduler"
	"github.com/dualcore-ds/core/internal/timer"
)

// DefaultQuantum is the cycle budget handed to a core between scheduler
// checks (spec.md §5's DEFAULT_QUANTUM).
const DefaultQuantum = 30

// Emulator is the clock-driven dual-core system: both ARM cores, the shared
// bus, and every peripheral bank, coordinated by one cooperative scheduler.
type Emulator struct {
	A9 *cpu.CPU
	A7 *cpu.CPU

	Bus  *memory.Bus
	CP15 *cp15.CP15

	IRQ9, IRQ7     *irq.Controller
	DMA9, DMA7     *dma.Bank
	Timer9, Timer7 *timer.Bank
	IPC            *ipc.IPC
	GPU            *gpu.Engine
	Input          *input.System
	Audio          *audio.RingBuffer

	Sched *scheduler.Scheduler

	Logger *debug.Logger

	romHeader *rom.Header

	Running bool
	Paused  bool

	FrameLimitEnabled bool
	TargetFPS         float64
	FrameTime         time.Duration
	LastFrameTime     time.Time

	FPS           float64
	FrameCount    uint64
	FPSUpdateTime time.Time
}

// NewEmulator creates an Emulator with a default logger.
func NewEmulator() (*Emulator, error) {
	return NewEmulatorWithLogger(debug.NewLogger(10000))
}

// NewEmulatorWithLogger wires every component and arms the GPU's first
// HDraw event. Per SPEC_FULL.md §7, configuration failures return a nil
// Emulator and a wrapped error rather than a partially wired instance.
func NewEmulatorWithLogger(logger *debug.Logger) (*Emulator, error) {
	if logger == nil {
		return nil, fmt.Errorf("emulator: logger must not be nil")
	}

	bus := memory.NewBus()
	cp15Inst := cp15.New()
	bus.TCM = cp15Inst

	sched := scheduler.New()
	irq9, irq7 := irq.New(), irq.New()
	dma9 := dma.New(true, bus, irq9)
	dma7 := dma.New(false, bus, irq7)
	timer9 := timer.New(irq9)
	timer7 := timer.New(irq7)
	ipcInst := ipc.New(irq7, irq9)
	gpuEngine := gpu.New(sched, irq9, irq7, dma9, dma7, bus.VRAM)
	gpuEngine.OAM = bus.OAM_A[:]
	gpuEngine.Palette = bus.PaletteA[:]
	inputSys := input.New()
	audioBuf := audio.NewRingBuffer(4096)

	a9 := cpu.New(true, bus, cp15Inst)
	a7 := cpu.New(false, bus, nil)

	e := &Emulator{
		A9: a9, A7: a7,
		Bus:  bus,
		CP15: cp15Inst,

		IRQ9: irq9, IRQ7: irq7,
		DMA9: dma9, DMA7: dma7,
		Timer9: timer9, Timer7: timer7,
		IPC:   ipcInst,
		GPU:   gpuEngine,
		Input: inputSys,
		Audio: audioBuf,

		Sched: sched,

		Logger: logger,

		FrameLimitEnabled: true,
		TargetFPS:         59.8261,
		FrameTime:         time.Second * 10000 / 598261,
		LastFrameTime:     time.Now(),
		FPSUpdateTime:     time.Now(),
	}

	e.wireIO()
	gpuEngine.Start()

	return e, nil
}

// LoadROM parses the cartridge header, copies its boot state into main
// memory, and sets both cores' entry points (spec.md §6 "ROM header read at
// boot").
func (e *Emulator) LoadROM(data []byte) error {
	header, err := rom.Parse(data)
	if err != nil {
		return fmt.Errorf("emulator: failed to parse ROM header: %w", err)
	}
	e.romHeader = header
	e.Bus.Cartridge = data

	header.WriteBootState(e.Bus)
	e.Bus.WriteBytes(header.ARM9LoadAddr, data[header.ARM9RomOffset:header.ARM9RomOffset+header.ARM9Size])
	e.Bus.WriteBytes(header.ARM7LoadAddr, data[header.ARM7RomOffset:header.ARM7RomOffset+header.ARM7Size])

	e.A9.Reset(header.ARM9EntryPoint)
	e.A7.Reset(header.ARM7EntryPoint)

	e.Logger.LogSystemf(debug.LogLevelInfo, "ROM loaded: ARM9 entry %#08x, ARM7 entry %#08x", header.ARM9EntryPoint, header.ARM7EntryPoint)
	return nil
}

// Start begins execution.
func (e *Emulator) Start() {
	e.Running = true
	e.Paused = false
}

// Stop halts execution.
func (e *Emulator) Stop() {
	e.Running = false
}

// Pause suspends frame advancement without resetting any state.
func (e *Emulator) Pause() {
	e.Paused = true
}

// Resume resumes frame advancement.
func (e *Emulator) Resume() {
	e.Paused = false
}

// Reset reinitializes both cores at the boot entry points and clears the
// scheduler and GPU line state, matching the teacher's SetEntryPoint safety
// check: a ROM-less reset is a no-op rather than jumping to a garbage vector.
func (e *Emulator) Reset() {
	if e.romHeader == nil {
		return
	}
	e.A9.Reset(e.romHeader.ARM9EntryPoint)
	e.A7.Reset(e.romHeader.ARM7EntryPoint)
	// Cleared in place: the GPU holds this same scheduler pointer.
	*e.Sched = *scheduler.New()
	e.GPU.VCount = 0
	e.GPU.FrameFinished = false
	e.GPU.Start()
}

// SetFrameLimit toggles host frame pacing.
func (e *Emulator) SetFrameLimit(enabled bool) {
	e.FrameLimitEnabled = enabled
}

// GetFPS returns the measured frame rate.
func (e *Emulator) GetFPS() float64 { return e.FPS }

// SetButtons forwards a host button-state update to the input system.
func (e *Emulator) SetButtons(bit int, pressed bool) {
	e.Input.SetButton(bit, pressed)
}

// SetExtendedButton forwards a host X/Y/debug button-state update.
func (e *Emulator) SetExtendedButton(bit int, pressed bool) {
	e.Input.SetExtended(bit, pressed)
}

// SetTouch forwards a host touchscreen sample.
func (e *Emulator) SetTouch(down bool, x, y uint16) {
	e.Input.SetTouch(down, x, y)
}

// RunFrame advances the system one host video frame: the cooperative loop
// runs until the GPU line engine marks a frame finished, then frame pacing
// sleeps off any remainder of FrameTime (spec.md §5 step 6, "Check
// frame_finished; if set, return to host").
func (e *Emulator) RunFrame() {
	if !e.Running || e.Paused {
		return
	}

	e.GPU.FrameFinished = false
	for !e.GPU.FrameFinished {
		e.runQuantum()
	}

	e.FrameCount++
	e.Logger.LogGPUf(debug.LogLevelTrace, "frame finished, VCount=%d", e.GPU.VCount)
	now := time.Now()
	if now.Sub(e.FPSUpdateTime) >= time.Second {
		e.FPS = float64(e.FrameCount) / now.Sub(e.FPSUpdateTime).Seconds()
		e.FrameCount = 0
		e.FPSUpdateTime = now
	}

	if e.FrameLimitEnabled {
		elapsed := now.Sub(e.LastFrameTime)
		if elapsed < e.FrameTime {
			time.Sleep(e.FrameTime - elapsed)
		}
	}
	e.LastFrameTime = time.Now()
}

// runQuantum is one iteration of spec.md §5's main loop: pick a quantum
// bounded by the next scheduler deadline, run the A9 at 2x and the A7 at
// 1x that budget, advance Now, and dispatch every event now due.
func (e *Emulator) runQuantum() {
	deadline := e.Sched.PeekNextDeadline()
	q := deadline - e.Sched.Now
	if q > DefaultQuantum {
		q = DefaultQuantum
	}

	e.stepCore(e.A9, e.IRQ9, e.CP15, e.DMA9, e.Timer9, 2*q)
	e.stepCore(e.A7, e.IRQ7, nil, e.DMA7, e.Timer7, q)

	e.Sched.Advance(q)

	for {
		ev, _, ok := e.Sched.PopDue()
		if !ok {
			break
		}
		e.handleEvent(ev)
	}

	if e.Sched.Now >= scheduler.RebaseThreshold {
		e.Sched.Rebase()
	}
}

// stepCore runs one core for up to budget cycles, honoring spec.md §4.2's
// three-mode step contract: serve a pending DMA transfer first, spin one
// cycle while halted, otherwise execute one instruction. cp15Core is nil
// for the A7, which has no power-down latch of its own.
func (e *Emulator) stepCore(c *cpu.CPU, irqc *irq.Controller, cp15Core *cp15.CP15, dmaBank *dma.Bank, timers *timer.Bank, budget uint64) {
	var spent uint64
	for spent < budget {
		halted := irqc.Halted || (cp15Core != nil && cp15Core.Halted)
		c.Halted = halted

		var cycles int
		switch {
		case dmaBank.HasPending():
			dmaBank.Step()
			cycles = 1
		case halted:
			cycles = 1
		default:
			cycles = c.Step()
		}

		timers.Step(uint32(cycles))
		spent += uint64(cycles)

		// A pending-and-enabled source clears CP15's power-down latch
		// unconditionally, mirroring irq.Controller.Raise's own unmasked
		// halt-clear (spec.md §4.5 invariant).
		if cp15Core != nil && irqc.Pending() {
			cp15Core.ClearHalt()
		}
		if irqc.ShouldEnter(c.IRQMasked()) {
			c.RaiseInterrupt()
			if c.IsA9() {
				e.Logger.LogIRQf(debug.LogLevelTrace, "A9 IRQ entry, IE=%#08x IF=%#08x", irqc.IE, irqc.IF)
			} else {
				e.Logger.LogIRQf(debug.LogLevelTrace, "A7 IRQ entry, IE=%#08x IF=%#08x", irqc.IE, irqc.IF)
			}
		}
	}
}

// handleEvent dispatches one popped scheduler event to its owning
// subsystem (spec.md §5 step 5, "Pop all due events, handle them in
// deadline order").
func (e *Emulator) handleEvent(ev scheduler.Event) {
	switch ev.Kind {
	case scheduler.HDraw:
		e.GPU.HandleHDraw()
	case scheduler.HBlank:
		e.GPU.HandleHBlank()
	}
}
