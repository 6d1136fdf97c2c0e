// Package timer implements the four prescaled down-counters per processor
// described in spec.md §4.8.
package timer

import "github.com/dualcore-ds/core/internal/irq"

// Prescaler selects how many base cycles elapse per counter tick.
type Prescaler uint8

const (
	Prescale1 Prescaler = iota
	Prescale64
	Prescale256
	Prescale1024
)

func (p Prescaler) cyclesPerTick() uint32 {
	switch p {
	case Prescale64:
		return 64
	case Prescale256:
		return 256
	case Prescale1024:
		return 1024
	default:
		return 1
	}
}

// Channel is one of the four timers belonging to a processor.
type Channel struct {
	Reload    uint16
	Counter   uint16
	Prescale  Prescaler
	CountUp   bool // channels 1..3 only; ticks on the previous channel's overflow
	Enabled   bool
	IRQOnOverflow bool

	subCycles uint32 // accumulated base cycles not yet consumed by the prescaler
}

// irqSource maps a channel index to its interrupt source bit.
func irqSource(channel int) irq.Source {
	switch channel {
	case 0:
		return irq.Timer0
	case 1:
		return irq.Timer1
	case 2:
		return irq.Timer2
	default:
		return irq.Timer3
	}
}

// Bank holds the four timer channels belonging to one processor.
type Bank struct {
	Channels [4]Channel
	irqCtl   *irq.Controller
}

// New returns a Bank wired to raise its channels' interrupts on irqCtl.
func New(irqCtl *irq.Controller) *Bank {
	return &Bank{irqCtl: irqCtl}
}

// channelState is the gob-serializable shape of a Channel, including the
// unconsumed sub-prescaler cycle remainder.
type channelState struct {
	Reload, Counter             uint16
	Prescale                    Prescaler
	CountUp, Enabled, IRQOnOverflow bool
	SubCycles                   uint32
}

// State is the gob-serializable snapshot of a Bank's four channels.
type State struct {
	Channels [4]channelState
}

// Snapshot captures every channel's register and counter state.
func (b *Bank) Snapshot() State {
	var st State
	for i, c := range b.Channels {
		st.Channels[i] = channelState{
			Reload: c.Reload, Counter: c.Counter, Prescale: c.Prescale,
			CountUp: c.CountUp, Enabled: c.Enabled, IRQOnOverflow: c.IRQOnOverflow,
			SubCycles: c.subCycles,
		}
	}
	return st
}

// Restore replaces every channel's state with a previously captured
// Snapshot.
func (b *Bank) Restore(st State) {
	for i, cs := range st.Channels {
		b.Channels[i] = Channel{
			Reload: cs.Reload, Counter: cs.Counter, Prescale: cs.Prescale,
			CountUp: cs.CountUp, Enabled: cs.Enabled, IRQOnOverflow: cs.IRQOnOverflow,
			subCycles: cs.SubCycles,
		}
	}
}

// Enable latches Reload into Counter immediately, per spec.md §4.8.
func (b *Bank) Enable(channel int) {
	ch := &b.Channels[channel]
	ch.Counter = ch.Reload
	ch.Enabled = true
	ch.subCycles = 0
}

// Disable stops the channel without altering Counter.
func (b *Bank) Disable(channel int) {
	b.Channels[channel].Enabled = false
}

// Step advances every cycle-driven (non count-up) channel by cycles base
// cycles, chaining overflow into count-up channels in index order so a
// channel 2 count-up sees channel 1's overflow from the same Step call.
func (b *Bank) Step(cycles uint32) {
	overflows := [4]uint32{}
	for i := 0; i < 4; i++ {
		ch := &b.Channels[i]
		if !ch.Enabled || ch.CountUp {
			continue
		}
		ticks, remainder := b.consumeCycles(ch, cycles)
		ch.subCycles = remainder
		for t := uint32(0); t < ticks; t++ {
			if b.tick(i) {
				overflows[i]++
			}
		}
	}
	// Count-up channels tick once per overflow of the previous channel,
	// observed within the same Step so chains longer than one link resolve.
	for i := 1; i < 4; i++ {
		ch := &b.Channels[i]
		if !ch.Enabled || !ch.CountUp {
			continue
		}
		for n := uint32(0); n < overflows[i-1]; n++ {
			if b.tick(i) {
				overflows[i]++
			}
		}
	}
}

func (b *Bank) consumeCycles(ch *Channel, cycles uint32) (ticks uint32, remainder uint32) {
	per := ch.Prescale.cyclesPerTick()
	total := ch.subCycles + cycles
	return total / per, total % per
}

// tick increments Counter by one, handling overflow: reload and raise IRQ
// if enabled. Returns whether it overflowed.
func (b *Bank) tick(channel int) bool {
	ch := &b.Channels[channel]
	ch.Counter++
	if ch.Counter != 0 {
		return false
	}
	ch.Counter = ch.Reload
	if ch.IRQOnOverflow && b.irqCtl != nil {
		b.irqCtl.Raise(irqSource(channel))
	}
	return true
}
