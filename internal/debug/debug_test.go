package debug

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoggerFiltersDisabledComponents(t *testing.T) {
	l := NewLogger(100)
	defer l.Shutdown()

	l.SetComponentEnabled(ComponentCPU9, true)
	l.SetMinLevel(LogLevelInfo)

	l.LogCPU9(LogLevelInfo, "A9 boot", nil)
	l.LogGPU(LogLevelInfo, "should be dropped, GPU disabled", nil)

	// Give the background processing goroutine a moment to drain the channel.
	time.Sleep(10 * time.Millisecond)

	entries := l.GetEntries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1 (GPU component disabled)", len(entries))
	}
	if entries[0].Component != ComponentCPU9 {
		t.Fatalf("entry component = %s, want %s", entries[0].Component, ComponentCPU9)
	}
}

func TestDebuggerBreakpointsPerCore(t *testing.T) {
	d := NewDebugger()

	key := d.SetBreakpoint(CoreA9, 0x02000100)
	if !d.CheckBreakpoint(CoreA9, 0x02000100) {
		t.Fatalf("breakpoint at A9:0x02000100 did not hit")
	}
	if d.CheckBreakpoint(CoreA7, 0x02000100) {
		t.Fatalf("A7 breakpoint check hit an A9-only breakpoint")
	}

	bp, ok := d.GetBreakpoint(key)
	if !ok || bp.HitCount != 1 {
		t.Fatalf("breakpoint hit count = %+v, want HitCount 1", bp)
	}

	if !d.RemoveBreakpoint(key) {
		t.Fatalf("RemoveBreakpoint failed for existing key")
	}
	if d.CheckBreakpoint(CoreA9, 0x02000100) {
		t.Fatalf("breakpoint still active after removal")
	}
}

func TestDebuggerCallStack(t *testing.T) {
	d := NewDebugger()
	d.PushCallFrame(CoreA7, 0x02380000, "reset")
	d.PushCallFrame(CoreA7, 0x02380120, "irqHandler")

	stack := d.GetCallStack()
	if len(stack) != 2 || stack[1].FunctionName != "irqHandler" {
		t.Fatalf("call stack = %+v, want 2 frames ending in irqHandler", stack)
	}

	frame := d.PopCallFrame()
	if frame == nil || frame.FunctionName != "irqHandler" {
		t.Fatalf("PopCallFrame = %+v, want irqHandler", frame)
	}
	if len(d.GetCallStack()) != 1 {
		t.Fatalf("call stack after pop has %d frames, want 1", len(d.GetCallStack()))
	}
}

type fakeMemoryReader struct{ word uint32 }

func (f fakeMemoryReader) ReadWord(isA9 bool, addr uint32) uint32 { return f.word }

type fakeGPUReader struct {
	vcount        int
	frameFinished bool
}

func (f fakeGPUReader) GetVCount() int         { return f.vcount }
func (f fakeGPUReader) GetFrameFinished() bool { return f.frameFinished }

func TestCycleLoggerWritesOneLinePerCycle(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/cycles.log"

	cl, err := NewCycleLogger(path, 2, 0, fakeMemoryReader{word: 0xAABBCCDD}, fakeGPUReader{vcount: 5})
	if err != nil {
		t.Fatalf("NewCycleLogger: %v", err)
	}

	cl.LogCycle(&CPUStateSnapshot{Core: CoreA9, R: [16]uint32{0: 1, 15: 0x02000008}, CPSR: 0x13})
	cl.LogCycle(&CPUStateSnapshot{Core: CoreA7, R: [16]uint32{0: 2, 15: 0x02380008}, CPSR: 0xD3})
	if cl.IsEnabled() {
		t.Fatalf("logger still enabled after reaching maxCycles")
	}
	// A third call beyond maxCycles must be a no-op, not a crash.
	cl.LogCycle(&CPUStateSnapshot{Core: CoreA9})

	if err := cl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("cycle log file is empty")
	}
	lines := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "Cycle ") {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("got %d cycle lines, want 2 (one per logged cycle, capped by maxCycles)", lines)
	}
}
