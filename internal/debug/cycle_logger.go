package debug

import (
	"fmt"
	"os"
	"sync"
)

// MemoryReader interface for reading memory (to avoid import cycles)
type MemoryReader interface {
	ReadWord(isA9 bool, addr uint32) uint32
}

// GPUStateReader interface for reading line-engine state (to avoid import
// cycles with internal/gpu)
type GPUStateReader interface {
	GetVCount() int
	GetFrameFinished() bool
}

// CPUStateSnapshot represents one ARM core's register file for logging.
type CPUStateSnapshot struct {
	Core   Core
	R      [16]uint32
	CPSR   uint32
	Cycles uint64
}

// CycleLogger logs both ARM cores' register state and key peripheral state
// for each scheduler quantum. Useful for debugging timing-sensitive issues
// across the two cores.
type CycleLogger struct {
	file         *os.File
	maxCycles    uint64
	startCycle   uint64 // Start logging after this many cycles
	currentCycle uint64
	totalCycles  uint64 // Total cycles since creation (for offset calculation)
	enabled      bool
	mu           sync.Mutex

	bus MemoryReader
	gpu GPUStateReader
}

// NewCycleLogger creates a new cycle logger.
// maxCycles: maximum number of cycles to log (0 = unlimited, but use with caution)
// startCycle: start logging after this many cycles (0 = start immediately)
func NewCycleLogger(filename string, maxCycles uint64, startCycle uint64, bus MemoryReader, gpu GPUStateReader) (*CycleLogger, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle log file: %w", err)
	}

	logger := &CycleLogger{
		file:       file,
		maxCycles:  maxCycles,
		startCycle: startCycle,
		enabled:    true,
		bus:        bus,
		gpu:        gpu,
	}

	fmt.Fprintf(file, "Cycle-by-Cycle Debug Log\n")
	fmt.Fprintf(file, "========================\n\n")
	if startCycle > 0 {
		fmt.Fprintf(file, "Start cycle offset: %d\n", startCycle)
	}
	if maxCycles > 0 {
		fmt.Fprintf(file, "Max cycles to log: %d\n", maxCycles)
	}
	fmt.Fprintf(file, "\nFormat: Cycle | Core | PC | R0-R3 | CPSR | GPU State\n")
	fmt.Fprintf(file, "GPU State: VCount | FrameFinished\n\n")

	return logger, nil
}

// LogCycle logs one core's register state for one scheduler quantum.
func (c *CycleLogger) LogCycle(cpuState *CPUStateSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return
	}

	c.totalCycles++

	if c.totalCycles <= c.startCycle {
		return
	}

	if c.maxCycles > 0 && c.currentCycle >= c.maxCycles {
		c.enabled = false
		return
	}

	c.currentCycle++

	vcount := -1
	frameFinished := false
	if c.gpu != nil {
		vcount = c.gpu.GetVCount()
		frameFinished = c.gpu.GetFrameFinished()
	}

	fmt.Fprintf(c.file, "Cycle %6d | %-2s | PC:%08X | R0:%08X R1:%08X R2:%08X R3:%08X | CPSR:%08X | ",
		c.totalCycles, cpuState.Core, cpuState.R[15],
		cpuState.R[0], cpuState.R[1], cpuState.R[2], cpuState.R[3], cpuState.CPSR)
	fmt.Fprintf(c.file, "GPU:VCount:%03d FrameFinished:%v\n", vcount, frameFinished)
}

// SetEnabled enables or disables logging
func (c *CycleLogger) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Toggle toggles logging on/off
func (c *CycleLogger) Toggle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = !c.enabled
}

// Close closes the log file
func (c *CycleLogger) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = false

	if c.file != nil {
		fmt.Fprintf(c.file, "\n\nLog complete. Total cycles logged: %d\n", c.currentCycle)
		err := c.file.Close()
		c.file = nil
		return err
	}
	return nil
}

// IsEnabled returns whether logging is enabled
func (c *CycleLogger) IsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled && (c.maxCycles == 0 || c.currentCycle < c.maxCycles)
}

// GetStatus returns the current logging status
func (c *CycleLogger) GetStatus() (enabled bool, currentCycle uint64, totalCycles uint64, maxCycles uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled, c.currentCycle, c.totalCycles, c.maxCycles
}
