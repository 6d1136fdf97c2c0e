package emulator

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/dualcore-ds/core/internal/cp15"
	"github.com/dualcore-ds/core/internal/cpu"
	"github.com/dualcore-ds/core/internal/dma"
	"github.com/dualcore-ds/core/internal/gpu"
	"github.com/dualcore-ds/core/internal/input"
	"github.com/dualcore-ds/core/internal/ipc"
	"github.com/dualcore-ds/core/internal/irq"
	"github.com/dualcore-ds/core/internal/memory"
	"github.com/dualcore-ds/core/internal/scheduler"
	"github.com/dualcore-ds/core/internal/timer"
)

// saveStateVersion is bumped whenever a field is added, removed, or
// reinterpreted; LoadState rejects any mismatch rather than guessing.
const saveStateVersion = 1

func init() {
	gob.Register(SaveState{})
	gob.Register(BusState{})
}

// SaveState is a complete, in-process snapshot of every stateful component.
// Per spec.md §1 Non-goals, cross-implementation portability is out of
// scope: this format only needs to round-trip within one build of this
// emulator, not survive a field rename.
type SaveState struct {
	Version uint16

	A9, A7 cpu.State

	Bus BusState

	Scheduler scheduler.State
	CP15      cp15.CP15

	IRQ9, IRQ7       irq.Controller
	DMA9, DMA7       dma.State
	Timer9, Timer7   timer.State
	IPC              ipc.State
	GPU              gpu.State
	Input            input.State

	Running, Paused bool
}

// BusState is the gob-serializable snapshot of the bus's mutable backing
// stores. BIOS/Cartridge images are omitted: they're read-only ROM content
// reloaded by LoadROM, not mutated emulation state.
type BusState struct {
	MainMemory [memory.MainMemorySize]byte
	SharedWRAM [memory.SharedWRAMSize]byte
	ARM7WRAM   [memory.ARM7WRAMSize]byte
	ARM9ITCM   [memory.ARM9ITCMSize]byte
	ARM9DTCM   [memory.ARM9DTCMSize]byte
	PaletteA   [memory.PaletteSize]byte
	PaletteB   [memory.PaletteSize]byte
	OAMA       [memory.OAMSize]byte
	OAMB       [memory.OAMSize]byte
	VRAM       memory.State
	WRAMCNT    uint8
	EXMEMCNT   uint16
}

// SaveState serializes the entire emulator to a gob-encoded byte slice.
func (e *Emulator) SaveState() ([]byte, error) {
	state := SaveState{
		Version: saveStateVersion,
		A9:      e.A9.Snapshot(),
		A7:      e.A7.Snapshot(),
		Bus:     e.snapshotBus(),

		Scheduler: e.Sched.Snapshot(),
		CP15:      *e.CP15,

		IRQ9: *e.IRQ9, IRQ7: *e.IRQ7,
		DMA9: e.DMA9.Snapshot(), DMA7: e.DMA7.Snapshot(),
		Timer9: e.Timer9.Snapshot(), Timer7: e.Timer7.Snapshot(),
		IPC:   e.IPC.Snapshot(),
		GPU:   e.GPU.Snapshot(),
		Input: e.Input.Snapshot(),

		Running: e.Running,
		Paused:  e.Paused,
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("emulator: failed to encode save state: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadState restores the emulator from a byte slice produced by SaveState.
func (e *Emulator) LoadState(data []byte) error {
	var state SaveState
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&state); err != nil {
		return fmt.Errorf("emulator: failed to decode save state: %w", err)
	}
	if state.Version != saveStateVersion {
		return fmt.Errorf("emulator: unsupported save state version %d (expected %d)", state.Version, saveStateVersion)
	}

	e.A9.Restore(state.A9)
	e.A7.Restore(state.A7)
	e.restoreBus(state.Bus)

	e.Sched.Restore(state.Scheduler)
	*e.CP15 = state.CP15

	*e.IRQ9, *e.IRQ7 = state.IRQ9, state.IRQ7
	e.DMA9.Restore(state.DMA9)
	e.DMA7.Restore(state.DMA7)
	e.Timer9.Restore(state.Timer9)
	e.Timer7.Restore(state.Timer7)
	e.IPC.Restore(state.IPC)
	e.GPU.Restore(state.GPU)
	e.Input.Restore(state.Input)

	e.Running = state.Running
	e.Paused = state.Paused
	return nil
}

func (e *Emulator) snapshotBus() BusState {
	return BusState{
		MainMemory: e.Bus.MainMemory,
		SharedWRAM: e.Bus.SharedWRAM,
		ARM7WRAM:   e.Bus.ARM7WRAM,
		ARM9ITCM:   e.Bus.ARM9ITCM,
		ARM9DTCM:   e.Bus.ARM9DTCM,
		PaletteA:   e.Bus.PaletteA,
		PaletteB:   e.Bus.PaletteB,
		OAMA:       e.Bus.OAM_A,
		OAMB:       e.Bus.OAM_B,
		VRAM:       e.Bus.VRAM.Snapshot(),
		WRAMCNT:    e.Bus.WRAMCNT,
		EXMEMCNT:   e.Bus.EXMEMCNT,
	}
}

func (e *Emulator) restoreBus(st BusState) {
	e.Bus.MainMemory = st.MainMemory
	e.Bus.SharedWRAM = st.SharedWRAM
	e.Bus.ARM7WRAM = st.ARM7WRAM
	e.Bus.ARM9ITCM = st.ARM9ITCM
	e.Bus.ARM9DTCM = st.ARM9DTCM
	e.Bus.PaletteA = st.PaletteA
	e.Bus.PaletteB = st.PaletteB
	e.Bus.OAM_A = st.OAMA
	e.Bus.OAM_B = st.OAMB
	e.Bus.VRAM.Restore(st.VRAM)
	e.Bus.WRAMCNT = st.WRAMCNT
	e.Bus.EXMEMCNT = st.EXMEMCNT
}

// SaveStateToFile writes a save state to filename.
func (e *Emulator) SaveStateToFile(filename string) error {
	data, err := e.SaveState()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

// LoadStateFromFile reads and restores a save state from filename.
func (e *Emulator) LoadStateFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("emulator: failed to read save state file: %w", err)
	}
	return e.LoadState(data)
}
