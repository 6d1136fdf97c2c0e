// Package cp15 models the A9's system control coprocessor: TCM base/size
// configuration, protection regions, cache hint bits, and the A9 halt
// latch (spec.md §2 item 7, §4.9 of SPEC_FULL.md). A7 has no CP15; callers
// should not construct one for the A7 core.
package cp15

// TCMConfig is the base/size pair written through CP15 registers 9. Size is
// stored as the raw 5-bit field; ByteSize decodes it as 512 << field, the
// real hardware's encoding.
type TCMConfig struct {
	Base     uint32
	SizeCode uint8 // 5-bit field: actual size is 512 << SizeCode bytes
	Enabled  bool
}

// ByteSize decodes the hardware's size-field encoding.
func (t TCMConfig) ByteSize() uint32 {
	return 512 << uint32(t.SizeCode&0x1F)
}

// Contains reports whether addr falls within this TCM's configured window.
func (t TCMConfig) Contains(addr uint32) bool {
	if !t.Enabled {
		return false
	}
	size := t.ByteSize()
	return addr >= t.Base && addr < t.Base+size
}

// Region is one of up to 8 MPU protection-region descriptors.
type Region struct {
	Base       uint32
	SizeCode   uint8
	Enabled    bool
	AccessPerm uint8 // access-permission bits, consulted but not enforced (Non-goals: no MPU fault model)
}

func (r Region) ByteSize() uint32 { return 512 << uint32(r.SizeCode&0x1F) }

// CP15 is the A9 system-control coprocessor register file.
type CP15 struct {
	ITCM TCMConfig
	DTCM TCMConfig

	Regions [8]Region

	ICacheEnabled bool
	DCacheEnabled bool
	MPUEnabled    bool

	// Halted is set by a write to the halt-control register and cleared by
	// the next enabled interrupt (the A9-specific "power down until IRQ"
	// latch distinct from irq.Controller.Halted, which either core can set
	// by executing a HALT-equivalent instruction).
	Halted bool
}

// New returns a CP15 in its post-reset state (TCMs disabled, caches off,
// MPU off).
func New() *CP15 {
	return &CP15{}
}

// WriteControl applies the bits of CP15 register 1 this model tracks.
func (c *CP15) WriteControl(mpuEnable, iCache, dCache bool) {
	c.MPUEnabled = mpuEnable
	c.ICacheEnabled = iCache
	c.DCacheEnabled = dCache
}

// WriteHalt parks the A9 core until the next enabled interrupt.
func (c *CP15) WriteHalt() {
	c.Halted = true
}

// ClearHalt is invoked by the interrupt controller when an enabled
// interrupt becomes pending.
func (c *CP15) ClearHalt() {
	c.Halted = false
}

// ITCMWindow and DTCMWindow satisfy internal/memory's TCMProvider seam so
// the bus can route ITCM/DTCM accesses without importing this package.
func (c *CP15) ITCMWindow() (base, size uint32, enabled bool) {
	return c.ITCM.Base, c.ITCM.ByteSize(), c.ITCM.Enabled
}

func (c *CP15) DTCMWindow() (base, size uint32, enabled bool) {
	return c.DTCM.Base, c.DTCM.ByteSize(), c.DTCM.Enabled
}

// MRC reads a coprocessor register given (cn, cm, opcode2); only the subset
// of CP15 this model implements is decoded, everything else reads 0.
func (c *CP15) MRC(cn, cm, op2 uint8) uint32 {
	switch cn {
	case 1:
		var v uint32
		if c.MPUEnabled {
			v |= 1
		}
		if c.DCacheEnabled {
			v |= 1 << 2
		}
		if c.ICacheEnabled {
			v |= 1 << 12
		}
		return v
	case 9:
		switch cm {
		case 1: // data/instruction TCM region registers selected by op2
			if op2 == 0 {
				return dtcmReg(c.DTCM)
			}
			return itcmReg(c.ITCM)
		}
	}
	return 0
}

// MCR writes a coprocessor register given (cn, cm, opcode2, value).
func (c *CP15) MCR(cn, cm, op2 uint8, value uint32) {
	switch cn {
	case 1:
		c.MPUEnabled = value&1 != 0
		c.DCacheEnabled = value&(1<<2) != 0
		c.ICacheEnabled = value&(1<<12) != 0
	case 9:
		switch cm {
		case 1:
			if op2 == 0 {
				c.DTCM = decodeTCMReg(value)
			} else {
				c.ITCM = decodeTCMReg(value)
			}
		}
	}
}

func dtcmReg(t TCMConfig) uint32 { return encodeTCMReg(t) }
func itcmReg(t TCMConfig) uint32 { return encodeTCMReg(t) }

func encodeTCMReg(t TCMConfig) uint32 {
	v := t.Base &^ 0xFFF
	v |= uint32(t.SizeCode&0x1F) << 1
	if t.Enabled {
		v |= 1
	}
	return v
}

func decodeTCMReg(v uint32) TCMConfig {
	return TCMConfig{
		Base:     v &^ 0xFFF,
		SizeCode: uint8((v >> 1) & 0x1F),
		Enabled:  v&1 != 0,
	}
}
