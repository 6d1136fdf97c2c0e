package timer

import (
	"testing"

	"github.com/dualcore-ds/core/internal/irq"
)

func TestEnableLatchesReloadImmediately(t *testing.T) {
	b := New(irq.New())
	b.Channels[0].Reload = 0xFFF0
	b.Enable(0)
	if b.Channels[0].Counter != 0xFFF0 {
		t.Fatalf("expected counter latched to reload, got 0x%04X", b.Channels[0].Counter)
	}
}

func TestOverflowReloadsAndRaisesIRQ(t *testing.T) {
	ctl := irq.New()
	ctl.IE |= uint32(irq.Timer0)
	b := New(ctl)
	b.Channels[0].Reload = 0xFFFE
	b.Channels[0].IRQOnOverflow = true
	b.Enable(0)

	b.Step(1) // counter -> 0xFFFF
	if ctl.Pending() {
		t.Fatalf("should not overflow yet")
	}
	b.Step(1) // counter -> 0x0000, overflow
	if b.Channels[0].Counter != b.Channels[0].Reload {
		t.Fatalf("expected reload on overflow, got 0x%04X", b.Channels[0].Counter)
	}
	if !ctl.Pending() {
		t.Fatalf("expected Timer0 IRQ pending after overflow")
	}
}

func TestPrescalerDividesBaseCycles(t *testing.T) {
	b := New(irq.New())
	b.Channels[0].Reload = 0
	b.Channels[0].Prescale = Prescale64
	b.Enable(0)

	b.Step(63)
	if b.Channels[0].Counter != 0 {
		t.Fatalf("63 cycles at /64 should not yet tick, got counter=%d", b.Channels[0].Counter)
	}
	b.Step(1)
	if b.Channels[0].Counter != 1 {
		t.Fatalf("64th cycle should tick once, got counter=%d", b.Channels[0].Counter)
	}
}

func TestCountUpChainsOffPreviousChannelOverflow(t *testing.T) {
	b := New(irq.New())
	b.Channels[0].Reload = 0xFFFF // overflows every single cycle step
	b.Channels[1].Reload = 0xFFFE
	b.Channels[1].CountUp = true
	b.Enable(0)
	b.Enable(1)

	b.Step(1) // channel 0 overflows once; channel 1 should tick once
	if b.Channels[1].Counter != 0xFFFF {
		t.Fatalf("expected count-up channel to tick once on chained overflow, got 0x%04X", b.Channels[1].Counter)
	}
}

func TestCountUpDoesNotConsumeBaseCyclesDirectly(t *testing.T) {
	b := New(irq.New())
	b.Channels[1].CountUp = true
	b.Enable(1)
	b.Step(100000) // no channel-0 overflow occurred
	if b.Channels[1].Counter != 0 {
		t.Fatalf("count-up channel must only tick on the previous channel's overflow")
	}
}
