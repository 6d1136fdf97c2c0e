// Package ipc implements the inter-processor FIFO pair and the 4-bit sync
// register described in spec.md §4.6 and §2 item 6.
package ipc

import "github.com/dualcore-ds/core/internal/irq"

const fifoDepth = 16

// fifo is one direction's 16-word queue.
type fifo struct {
	buf   [fifoDepth]uint32
	count int
	head  int
	last  uint32 // last value successfully popped, returned again on underflow
	Error bool
}

func (f *fifo) push(v uint32) (wasEmpty bool, overflowed bool) {
	if f.count == fifoDepth {
		f.Error = true
		return false, true
	}
	wasEmpty = f.count == 0
	tail := (f.head + f.count) % fifoDepth
	f.buf[tail] = v
	f.count++
	return wasEmpty, false
}

func (f *fifo) pop() (v uint32, becameEmpty bool) {
	if f.count == 0 {
		f.Error = true
		return f.last, false
	}
	v = f.buf[f.head]
	f.head = (f.head + 1) % fifoDepth
	f.count--
	f.last = v
	return v, f.count == 0
}

func (f *fifo) clear() {
	f.count = 0
	f.head = 0
	f.Error = false
}

// Side is which processor's perspective a FIFO operation is issued from.
type Side int

const (
	SideA7 Side = iota
	SideA9
)

// IPC owns both directions of the FIFO pair plus the sync register, and
// raises cross-processor interrupts through the two IRQ controllers.
type IPC struct {
	// sendA7 carries words written by A7 and read by A9; sendA9 is the
	// reverse direction.
	sendA7 fifo
	sendA9 fifo

	SyncInputA7  uint8 // 4 bits set by A9's SyncOutput
	SyncOutputA7 uint8
	SyncInputA9  uint8
	SyncOutputA9 uint8

	SendIRQEnabledA7 bool
	RecvIRQEnabledA7 bool
	SendIRQEnabledA9 bool
	RecvIRQEnabledA9 bool

	A7 *irq.Controller
	A9 *irq.Controller
}

// New wires an IPC block to the two processors' interrupt controllers.
func New(a7, a9 *irq.Controller) *IPC {
	return &IPC{A7: a7, A9: a9}
}

// fifoState is the gob-serializable shape of a fifo, preserving queued
// words and position so a save mid-transfer resumes exactly.
type fifoState struct {
	Buf          [fifoDepth]uint32
	Count, Head  int
	Last         uint32
	Error        bool
}

// State is the gob-serializable snapshot of an IPC block's two queues, sync
// registers, and IRQ-enable latches.
type State struct {
	SendA7, SendA9                                   fifoState
	SyncInputA7, SyncOutputA7, SyncInputA9, SyncOutputA9 uint8
	SendIRQEnabledA7, RecvIRQEnabledA7                 bool
	SendIRQEnabledA9, RecvIRQEnabledA9                 bool
}

// Snapshot captures both FIFO queues plus the sync/IRQ-enable registers.
func (i *IPC) Snapshot() State {
	return State{
		SendA7: fifoState{i.sendA7.buf, i.sendA7.count, i.sendA7.head, i.sendA7.last, i.sendA7.Error},
		SendA9: fifoState{i.sendA9.buf, i.sendA9.count, i.sendA9.head, i.sendA9.last, i.sendA9.Error},
		SyncInputA7: i.SyncInputA7, SyncOutputA7: i.SyncOutputA7,
		SyncInputA9: i.SyncInputA9, SyncOutputA9: i.SyncOutputA9,
		SendIRQEnabledA7: i.SendIRQEnabledA7, RecvIRQEnabledA7: i.RecvIRQEnabledA7,
		SendIRQEnabledA9: i.SendIRQEnabledA9, RecvIRQEnabledA9: i.RecvIRQEnabledA9,
	}
}

// Restore replaces both FIFO queues and the sync/IRQ-enable registers with
// a previously captured Snapshot.
func (i *IPC) Restore(st State) {
	i.sendA7 = fifo{buf: st.SendA7.Buf, count: st.SendA7.Count, head: st.SendA7.Head, last: st.SendA7.Last, Error: st.SendA7.Error}
	i.sendA9 = fifo{buf: st.SendA9.Buf, count: st.SendA9.Count, head: st.SendA9.Head, last: st.SendA9.Last, Error: st.SendA9.Error}
	i.SyncInputA7, i.SyncOutputA7 = st.SyncInputA7, st.SyncOutputA7
	i.SyncInputA9, i.SyncOutputA9 = st.SyncInputA9, st.SyncOutputA9
	i.SendIRQEnabledA7, i.RecvIRQEnabledA7 = st.SendIRQEnabledA7, st.RecvIRQEnabledA7
	i.SendIRQEnabledA9, i.RecvIRQEnabledA9 = st.SendIRQEnabledA9, st.RecvIRQEnabledA9
}

// Send pushes a word from side onto that side's outgoing FIFO, raising the
// receiving processor's IPCRecvNonEmpty IRQ on the empty->non-empty edge.
func (i *IPC) Send(side Side, value uint32) {
	switch side {
	case SideA7:
		wasEmpty, _ := i.sendA7.push(value)
		if wasEmpty && i.RecvIRQEnabledA9 {
			i.A9.Raise(irq.IPCRecvNonEmpty)
		}
	case SideA9:
		wasEmpty, _ := i.sendA9.push(value)
		if wasEmpty && i.RecvIRQEnabledA7 {
			i.A7.Raise(irq.IPCRecvNonEmpty)
		}
	}
}

// Recv pops the next word destined for side, raising the sending
// processor's IPCSendEmpty IRQ on the non-empty->empty edge.
func (i *IPC) Recv(side Side) uint32 {
	switch side {
	case SideA7:
		v, becameEmpty := i.sendA9.pop()
		if becameEmpty && i.SendIRQEnabledA9 {
			i.A9.Raise(irq.IPCSendEmpty)
		}
		return v
	case SideA9:
		v, becameEmpty := i.sendA7.pop()
		if becameEmpty && i.SendIRQEnabledA7 {
			i.A7.Raise(irq.IPCSendEmpty)
		}
		return v
	}
	return 0
}

// ClearSendQueue empties side's own outgoing queue and resets its error
// flag (a FIFOCNT control-register write).
func (i *IPC) ClearSendQueue(side Side) {
	switch side {
	case SideA7:
		i.sendA7.clear()
	case SideA9:
		i.sendA9.clear()
	}
}

// SendError reports whether side's outgoing queue's error flag is set.
func (i *IPC) SendError(side Side) bool {
	switch side {
	case SideA7:
		return i.sendA7.Error
	case SideA9:
		return i.sendA9.Error
	}
	return false
}

// RecvError reports whether side's incoming queue's error flag is set.
func (i *IPC) RecvError(side Side) bool {
	switch side {
	case SideA7:
		return i.sendA9.Error
	case SideA9:
		return i.sendA7.Error
	}
	return false
}

// WriteSync writes the 4 output bits and, if the send-IRQ bit is set, raises
// IPCSync on the other processor when its receive-IRQ is enabled.
func (i *IPC) WriteSync(side Side, outputBits uint8, sendIRQ bool) {
	switch side {
	case SideA7:
		i.SyncOutputA7 = outputBits & 0xF
		i.SyncInputA9 = i.SyncOutputA7
		if sendIRQ && i.RecvIRQEnabledA9 {
			i.A9.Raise(irq.IPCSync)
		}
	case SideA9:
		i.SyncOutputA9 = outputBits & 0xF
		i.SyncInputA7 = i.SyncOutputA9
		if sendIRQ && i.RecvIRQEnabledA7 {
			i.A7.Raise(irq.IPCSync)
		}
	}
}
