package emulator

import (
	"github.com/dualcore-ds/core/internal/dma"
	"github.com/dualcore-ds/core/internal/ipc"
	"github.com/dualcore-ds/core/internal/irq"
	"github.com/dualcore-ds/core/internal/timer"
)

// Register addresses below are a simplified subset of the real NDS I/O map,
// laid out so DMA/timer/IRQ register blocks never collide with each other.
// spec.md imposes no bit-for-bit real-hardware register-layout requirement
// (§1 Non-goals), so this decoding only has to agree with itself and with
// the already-decomposed parameter APIs of dma/timer/irq/ipc/gpu/input.
const (
	regDISPCNTA  = 0x04000000
	regDISPSTAT  = 0x04000004
	regVCOUNT    = 0x04000006
	regDISPCNTB  = 0x04001000

	regDMASAD0  = 0x040000B0
	regDMADAD0  = 0x040000B4
	regDMACNTL0 = 0x040000B8 // count (16-bit)
	regDMACNTH0 = 0x040000BA // control (16-bit)
	dmaChanStride = 0x0C

	regTM0CNTL = 0x04000100 // reload/counter (16-bit)
	regTM0CNTH = 0x04000102 // control (16-bit)
	timerChanStride = 0x04

	regIPCSYNC    = 0x04000180
	regIPCFIFOCNT = 0x04000184
	regIPCSEND    = 0x04000188
	regIPCRECV    = 0x04100000

	regIME = 0x04000208
	regIE  = 0x04000210
	regIF  = 0x04000214

	regHALTCNT = 0x04000301

	regKEYINPUT  = 0x04000130
	regEXTKEYIN  = 0x04000136

	regVRAMCNTA = 0x04000240 // ..regVRAMCNTA+8, one byte per bank A..I
	regWRAMCNT  = 0x04000250
)

// wireIO registers every peripheral's control/status registers on the bus
// for both processors (spec.md §4.3's "register windows wired in by the
// emulator package").
func (e *Emulator) wireIO() {
	e.wireDMA(true, e.DMA9)
	e.wireDMA(false, e.DMA7)
	e.wireTimer(true, e.Timer9)
	e.wireTimer(false, e.Timer7)
	e.wireIRQ(true, e.IRQ9)
	e.wireIRQ(false, e.IRQ7)
	e.wireIPC()
	e.wireGPU()
	e.wireInput()
	e.wireVRAMAndWRAM()
}

func (e *Emulator) wireDMA(isA9 bool, bank *dma.Bank) {
	for ch := 0; ch < 4; ch++ {
		ch := ch
		base := uint32(ch * dmaChanStride)

		e.Bus.RegisterIO16(isA9, regDMASAD0+base, func() uint16 {
			return uint16(bank.Channels[ch].Src)
		}, func(v uint16) {
			bank.Channels[ch].Src = bank.Channels[ch].Src&0xFFFF0000 | uint32(v)
		})
		e.Bus.RegisterIO16(isA9, regDMASAD0+base+2, func() uint16 {
			return uint16(bank.Channels[ch].Src >> 16)
		}, func(v uint16) {
			bank.Channels[ch].Src = bank.Channels[ch].Src&0x0000FFFF | uint32(v)<<16
		})

		e.Bus.RegisterIO16(isA9, regDMADAD0+base, func() uint16 {
			return uint16(bank.Channels[ch].Dst)
		}, func(v uint16) {
			bank.Channels[ch].Dst = bank.Channels[ch].Dst&0xFFFF0000 | uint32(v)
		})
		e.Bus.RegisterIO16(isA9, regDMADAD0+base+2, func() uint16 {
			return uint16(bank.Channels[ch].Dst >> 16)
		}, func(v uint16) {
			bank.Channels[ch].Dst = bank.Channels[ch].Dst&0x0000FFFF | uint32(v)<<16
		})

		e.Bus.RegisterIO16(isA9, regDMACNTL0+base, func() uint16 {
			return uint16(bank.Channels[ch].Count)
		}, func(v uint16) {
			bank.Channels[ch].Count = uint32(v)
		})

		e.Bus.RegisterIO16(isA9, regDMACNTH0+base, func() uint16 {
			return dmaControlWord(&bank.Channels[ch])
		}, func(v uint16) {
			srcStep := dma.AddrStep((v >> 7) & 0x3)
			dstStep := dma.AddrStep((v >> 5) & 0x3)
			unitWidth := 2
			if v&(1<<10) != 0 {
				unitWidth = 4
			}
			start := dma.StartTiming((v >> 12) & 0x7)
			repeat := v&(1<<9) != 0
			irqOnEnd := v&(1<<14) != 0
			enable := v&(1<<15) != 0
			bank.WriteControl(ch, enable, repeat, irqOnEnd, srcStep, dstStep, unitWidth, start)
		})
	}
}

// dmaControlWord reconstructs a CNT_H readback from a channel's decomposed
// fields, the inverse of wireDMA's write-side decode.
func dmaControlWord(c *dma.Channel) uint16 {
	var v uint16
	v |= uint16(c.DstStep&0x3) << 5
	v |= uint16(c.SrcStep&0x3) << 7
	if c.UnitWidth == 4 {
		v |= 1 << 10
	}
	if c.Repeat {
		v |= 1 << 9
	}
	if c.IRQOnEnd {
		v |= 1 << 14
	}
	if c.Enable {
		v |= 1 << 15
	}
	v |= uint16(c.StartTime&0x7) << 12
	return v
}

func (e *Emulator) wireTimer(isA9 bool, bank *timer.Bank) {
	for ch := 0; ch < 4; ch++ {
		ch := ch
		base := uint32(ch * timerChanStride)

		e.Bus.RegisterIO16(isA9, regTM0CNTL+base, func() uint16 {
			return bank.Channels[ch].Counter
		}, func(v uint16) {
			bank.Channels[ch].Reload = v
		})

		e.Bus.RegisterIO16(isA9, regTM0CNTH+base, func() uint16 {
			c := &bank.Channels[ch]
			v := uint16(c.Prescale)
			if c.CountUp {
				v |= 1 << 2
			}
			if c.IRQOnOverflow {
				v |= 1 << 6
			}
			if c.Enabled {
				v |= 1 << 7
			}
			return v
		}, func(v uint16) {
			c := &bank.Channels[ch]
			c.Prescale = timer.Prescaler(v & 0x3)
			c.CountUp = ch != 0 && v&(1<<2) != 0
			c.IRQOnOverflow = v&(1<<6) != 0
			wasEnabled := c.Enabled
			nowEnabled := v&(1<<7) != 0
			if nowEnabled && !wasEnabled {
				bank.Enable(ch)
			} else if !nowEnabled && wasEnabled {
				bank.Disable(ch)
			}
		})
	}
}

// wireIRQ wires IME/IE/IF and HALTCNT. IF is write-1-to-clear per spec.md
// §4.5; a HALTCNT write of the power-down code parks the core via the
// controller's own Halt, same latch stepCore already consults.
func (e *Emulator) wireIRQ(isA9 bool, ctl *irq.Controller) {
	e.Bus.RegisterIO16(isA9, regIME, func() uint16 {
		if ctl.Master {
			return 1
		}
		return 0
	}, func(v uint16) {
		ctl.Master = v&1 != 0
	})

	e.Bus.RegisterIO16(isA9, regIE, func() uint16 {
		return uint16(ctl.IE)
	}, func(v uint16) {
		ctl.IE = ctl.IE&0xFFFF0000 | uint32(v)
	})
	e.Bus.RegisterIO16(isA9, regIE+2, func() uint16 {
		return uint16(ctl.IE >> 16)
	}, func(v uint16) {
		ctl.IE = ctl.IE&0x0000FFFF | uint32(v)<<16
	})

	e.Bus.RegisterIO16(isA9, regIF, func() uint16 {
		return uint16(ctl.IF)
	}, func(v uint16) {
		ctl.Acknowledge(uint32(v))
	})
	e.Bus.RegisterIO16(isA9, regIF+2, func() uint16 {
		return uint16(ctl.IF >> 16)
	}, func(v uint16) {
		ctl.Acknowledge(uint32(v) << 16)
	})

	e.Bus.RegisterIO8(isA9, regHALTCNT, func() uint8 { return 0 }, func(v uint8) {
		if v&0xC0 != 0 {
			ctl.Halt()
		}
	})
}

// wireIPC wires IPCSYNC, IPCFIFOCNT, IPCFIFOSEND, and the cross-mapped
// IPCFIFORECV (spec.md §4.6). Each processor's registers address the other
// side's queue: A9 reading IPCFIFORECV drains the A7->A9 queue.
func (e *Emulator) wireIPC() {
	e.wireIPCSync(true, ipc.SideA9)
	e.wireIPCSync(false, ipc.SideA7)

	e.Bus.RegisterIO16(true, regIPCFIFOCNT, func() uint16 {
		return ipcFIFOCNT(e.IPC, ipc.SideA9)
	}, func(v uint16) {
		if v&(1<<3) != 0 {
			e.IPC.ClearSendQueue(ipc.SideA9)
		}
	})
	e.Bus.RegisterIO16(false, regIPCFIFOCNT, func() uint16 {
		return ipcFIFOCNT(e.IPC, ipc.SideA7)
	}, func(v uint16) {
		if v&(1<<3) != 0 {
			e.IPC.ClearSendQueue(ipc.SideA7)
		}
	})

	e.Bus.RegisterIO16(true, regIPCSEND, func() uint16 { return 0 }, func(v uint16) {
		e.IPC.Send(ipc.SideA9, uint32(v))
	})
	e.Bus.RegisterIO16(true, regIPCSEND+2, func() uint16 { return 0 }, func(uint16) {})
	e.Bus.RegisterIO16(false, regIPCSEND, func() uint16 { return 0 }, func(v uint16) {
		e.IPC.Send(ipc.SideA7, uint32(v))
	})
	e.Bus.RegisterIO16(false, regIPCSEND+2, func() uint16 { return 0 }, func(uint16) {})

	e.Bus.RegisterIO16(true, regIPCRECV, func() uint16 {
		return uint16(e.IPC.Recv(ipc.SideA9))
	}, func(uint16) {})
	e.Bus.RegisterIO16(true, regIPCRECV+2, func() uint16 { return 0 }, func(uint16) {})
	e.Bus.RegisterIO16(false, regIPCRECV, func() uint16 {
		return uint16(e.IPC.Recv(ipc.SideA7))
	}, func(uint16) {})
	e.Bus.RegisterIO16(false, regIPCRECV+2, func() uint16 { return 0 }, func(uint16) {})
}

func (e *Emulator) wireIPCSync(isA9 bool, self ipc.Side) {
	e.Bus.RegisterIO16(isA9, regIPCSYNC, func() uint16 {
		var in, out uint8
		var recvIRQEnabled bool
		if self == ipc.SideA9 {
			in, out, recvIRQEnabled = e.IPC.SyncInputA9, e.IPC.SyncOutputA9, e.IPC.RecvIRQEnabledA9
		} else {
			in, out, recvIRQEnabled = e.IPC.SyncInputA7, e.IPC.SyncOutputA7, e.IPC.RecvIRQEnabledA7
		}
		v := uint16(in) | uint16(out)<<8
		if recvIRQEnabled {
			v |= 1 << 14
		}
		return v
	}, func(v uint16) {
		outputBits := uint8(v >> 8 & 0xF)
		recvIRQEnabled := v&(1<<14) != 0
		sendIRQ := v&(1<<13) != 0
		if self == ipc.SideA9 {
			e.IPC.RecvIRQEnabledA9 = recvIRQEnabled
		} else {
			e.IPC.RecvIRQEnabledA7 = recvIRQEnabled
		}
		e.IPC.WriteSync(self, outputBits, sendIRQ)
	})
}

// ipcFIFOCNT composes the read-only error/status bits IPCFIFOCNT exposes;
// empty/full depth bits aren't tracked since ipc.IPC doesn't expose queue
// length, only over/underflow errors (spec.md §4.6 scope).
func ipcFIFOCNT(i *ipc.IPC, side ipc.Side) uint16 {
	var v uint16
	if i.SendError(side) {
		v |= 1 << 14
	}
	return v
}

// wireGPU wires DISPCNT (A9-side only, per real hardware), DISPSTAT, and
// VCOUNT (spec.md §4.7).
func (e *Emulator) wireGPU() {
	e.Bus.RegisterIO16(true, regDISPCNTA, func() uint16 {
		return uint16(e.GPU.DispCntA)
	}, func(v uint16) {
		e.GPU.DispCntA = e.GPU.DispCntA&0xFFFF0000 | uint32(v)
	})
	e.Bus.RegisterIO16(true, regDISPCNTA+2, func() uint16 {
		return uint16(e.GPU.DispCntA >> 16)
	}, func(v uint16) {
		e.GPU.DispCntA = e.GPU.DispCntA&0x0000FFFF | uint32(v)<<16
	})
	e.Bus.RegisterIO16(true, regDISPCNTB, func() uint16 {
		return uint16(e.GPU.DispCntB)
	}, func(v uint16) {
		e.GPU.DispCntB = e.GPU.DispCntB&0xFFFF0000 | uint32(v)
	})
	e.Bus.RegisterIO16(true, regDISPCNTB+2, func() uint16 {
		return uint16(e.GPU.DispCntB >> 16)
	}, func(v uint16) {
		e.GPU.DispCntB = e.GPU.DispCntB&0x0000FFFF | uint32(v)<<16
	})

	for _, isA9 := range []bool{true, false} {
		isA9 := isA9
		e.Bus.RegisterIO16(isA9, regDISPSTAT, func() uint16 {
			return e.GPU.DISPSTAT(isA9)
		}, func(v uint16) {
			e.GPU.WriteDISPSTAT(isA9, v)
			e.GPU.SetVCountMatch(isA9, int(v>>8)|int(v>>7&1)<<8)
		})
		e.Bus.RegisterIO16(isA9, regVCOUNT, func() uint16 {
			return uint16(e.GPU.VCount)
		}, func(uint16) {})
	}
}

// wireInput wires KEYINPUT and EXTKEYIN, translating the bus's absolute
// address into input.System's register-relative offset parameter. Both
// processors observe the same shared button state (spec.md §4.9).
func (e *Emulator) wireInput() {
	for _, isA9 := range []bool{true, false} {
		e.Bus.RegisterIO16(isA9, regKEYINPUT, func() uint16 {
			return e.Input.Read16(0x00)
		}, func(v uint16) {
			e.Input.Write16(0x00, v)
		})
		e.Bus.RegisterIO16(isA9, regEXTKEYIN, func() uint16 {
			return e.Input.Read16(0x02)
		}, func(v uint16) {
			e.Input.Write16(0x02, v)
		})
	}
}

// wireVRAMAndWRAM wires the nine VRAM bank-control bytes and WRAMCNT, both
// ARM9-only registers on real hardware (spec.md §4.3).
func (e *Emulator) wireVRAMAndWRAM() {
	for bank := 0; bank < 9; bank++ {
		bank := bank
		addr := uint32(regVRAMCNTA + bank)
		var last uint8
		e.Bus.RegisterIO8(true, addr, func() uint8 {
			return last
		}, func(v uint8) {
			last = v
			e.Bus.VRAM.WriteControl(bank, v)
		})
	}

	e.Bus.RegisterIO8(true, regWRAMCNT, func() uint8 {
		return e.Bus.WRAMCNT
	}, func(v uint8) {
		e.Bus.WRAMCNT = v
	})
}
