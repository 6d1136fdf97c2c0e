package dma

import (
	"testing"

	"github.com/dualcore-ds/core/internal/irq"
)

type fakeBus struct {
	mem map[uint32]uint16
}

func newFakeBus() *fakeBus { return &fakeBus{mem: map[uint32]uint16{}} }

func (f *fakeBus) ReadHalf(isA9 bool, addr uint32) uint16     { return f.mem[addr&^1] }
func (f *fakeBus) WriteHalf(isA9 bool, addr uint32, v uint16) { f.mem[addr&^1] = v }
func (f *fakeBus) ReadWord(isA9 bool, addr uint32) uint32 {
	return uint32(f.ReadHalf(isA9, addr)) | uint32(f.ReadHalf(isA9, addr+2))<<16
}
func (f *fakeBus) WriteWordP(isA9 bool, addr uint32, v uint32) {
	f.WriteHalf(isA9, addr, uint16(v))
	f.WriteHalf(isA9, addr+2, uint16(v>>16))
}

// Scenario 4 from spec.md §8: HBlank DMA.
func TestHBlankDMATransfersOnTriggerAndAdvancesInternalSrc(t *testing.T) {
	bus := newFakeBus()
	for i := uint32(0); i < 16; i++ {
		bus.mem[0x02000000+i*2] = uint16(i + 1)
	}
	irqc := irq.New()
	bank := New(true, bus, irqc)

	bank.Channels[0].Src = 0x02000000
	bank.Channels[0].Dst = 0x06800000
	bank.Channels[0].Count = 16
	bank.WriteControl(0, true, false, false, StepIncrement, StepIncrement, 2, HBlankStart)

	if bank.Channels[0].pending {
		t.Fatalf("HBlank-triggered channel must not be pending before the event fires")
	}

	bank.Notify(HBlankStart)
	if !bank.HasPending() {
		t.Fatalf("expected channel 0 pending after HBlank notify")
	}
	bank.Step()

	for i := uint32(0); i < 16; i++ {
		if bus.mem[0x06800000+i*2] != bus.mem[0x02000000+i*2] {
			t.Fatalf("halfword %d not transferred", i)
		}
	}
	if bank.Channels[0].internalSrc != 0x02000000+32 {
		t.Fatalf("internal_src should advance by 32 bytes, got 0x%08X", bank.Channels[0].internalSrc)
	}
	if bank.Channels[0].running {
		t.Fatalf("non-repeat channel should clear running after completion")
	}
}

func TestImmediateDMARunsOnceOnEnable(t *testing.T) {
	bus := newFakeBus()
	bus.mem[0x02000000] = 0xBEEF
	irqc := irq.New()
	bank := New(false, bus, irqc)

	bank.Channels[1].Src = 0x02000000
	bank.Channels[1].Dst = 0x02001000
	bank.Channels[1].Count = 1
	bank.WriteControl(1, true, false, true, StepIncrement, StepIncrement, 2, Immediate)

	if !bank.Channels[1].pending {
		t.Fatalf("Immediate-timing channel should be pending right on enable")
	}
	bank.Step()
	if bus.mem[0x02001000] != 0xBEEF {
		t.Fatalf("immediate transfer did not run")
	}
	if irqc.IF&uint32(irq.DMA1) == 0 {
		t.Fatalf("expected DMA1 IRQ raised on completion")
	}
}

func TestRepeatWithDstReloadResetsDestination(t *testing.T) {
	bus := newFakeBus()
	irqc := irq.New()
	bank := New(true, bus, irqc)

	bank.Channels[0].Src = 0x02000000
	bank.Channels[0].Dst = 0x06800000
	bank.Channels[0].Count = 4
	bank.WriteControl(0, true, true, false, StepIncrement, StepIncrementReload, 2, HBlankStart)

	bank.Notify(HBlankStart)
	bank.Step()
	if bank.Channels[0].internalDst != bank.Channels[0].Dst {
		t.Fatalf("dst_control==3 repeat should reload internal_dst from dst")
	}
	if !bank.Channels[0].running {
		t.Fatalf("repeat channel should remain running after a block completes")
	}

	bank.Notify(HBlankStart)
	if !bank.Channels[0].pending {
		t.Fatalf("repeat channel should re-arm on the next matching event")
	}
}

func TestLatchingIgnoresRegisterWritesWhileEnabled(t *testing.T) {
	bus := newFakeBus()
	irqc := irq.New()
	bank := New(true, bus, irqc)

	bank.Channels[0].Src = 0x02000000
	bank.Channels[0].Dst = 0x06800000
	bank.Channels[0].Count = 8
	bank.WriteControl(0, true, false, false, StepIncrement, StepIncrement, 2, Immediate)

	bank.Channels[0].Src = 0x03000000 // register write while enabled
	bank.Channels[0].Count = 1

	if bank.Channels[0].internalSrc != 0x02000000 || bank.Channels[0].internalCount != 8 {
		t.Fatalf("internal working copies must not follow register writes before re-arm")
	}
}
