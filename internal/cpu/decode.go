package cpu

// armHandler dispatches one ARM instruction class; it re-decodes the full
// instruction word itself rather than consuming a pre-decoded micro-op
// (spec.md §4.2).
type armHandler func(c *CPU, instr uint32)

// thumbHandler is the Thumb-state equivalent, re-decoding the 16-bit word.
type thumbHandler func(c *CPU, instr uint16)

var armTable [4096]armHandler
var thumbTable [256]thumbHandler

func init() {
	for fp := 0; fp < 4096; fp++ {
		armTable[fp] = classifyARM(uint32(fp))
	}
	for fp := 0; fp < 256; fp++ {
		thumbTable[fp] = classifyThumb(uint8(fp))
	}
}

// executeARM dispatches instr through the condition check and the 4096-
// entry fingerprint table built from bits 27-20 and 7-4 (spec.md §4.2).
func (c *CPU) executeARM(instr uint32) {
	cond := instr >> 28
	if !c.conditionPassed(cond) {
		return
	}
	fp := ((instr >> 16) & 0xFF0) | ((instr >> 4) & 0xF)
	armTable[fp](c, instr)
}

// executeThumb dispatches instr through the 256-entry table indexed by its
// top byte.
func (c *CPU) executeThumb(instr uint16) {
	thumbTable[instr>>8](c, instr)
}

// classifyARM assigns an instruction-class handler from the 12-bit
// fingerprint (bits 27-20 in the high byte, bits 7-4 in the low nibble).
// Each returned handler fully re-decodes the instruction word; this
// function only needs to be accurate enough to route to the right class,
// matching the real ARM encoding's top-level bits [27:26] group field with
// the well-known sub-patterns for multiply/swap/halfword-transfer/BX/MSR
// carved out of group 00.
func classifyARM(fp uint32) armHandler {
	hi := (fp >> 4) & 0xFF // instruction bits 27-20
	lo := fp & 0xF         // instruction bits 7-4

	group := hi >> 6 // instruction bits 27-26

	switch group {
	case 0b00:
		switch {
		case hi == 0x16 && lo == 0x1:
			// CLZ (cond 0001 0110 ... 0001, A9 only) shares armBranchExchange's
			// hi&0xFB==0x12 mask below, so it must be carved out first.
			return armCLZ
		case hi == 0x10 && lo == 0x5:
			return armSaturatingAdd // QADD
		case hi == 0x12 && lo == 0x5:
			return armSaturatingSub // QSUB
		case hi == 0x14 && lo == 0x5:
			return armSaturatingDoubleAdd // QDADD
		case hi == 0x16 && lo == 0x5:
			return armSaturatingDoubleSub // QDSUB
		case lo == 0x9 && hi&0xF8 == 0x10:
			return armSwap
		case lo == 0x9 && hi&0x80 == 0:
			return armMultiply
		case lo&0x9 == 0x9 && hi&0x80 == 0 && lo != 0x9:
			return armHalfwordTransfer
		case hi&0xFB == 0x12 && (lo == 0x1 || lo == 0x3):
			// BX (bits 7-4 = 0001) and BLX(reg) (bits 7-4 = 0011).
			return armBranchExchange
		case hi&0xD9 == 0x10:
			// MRS/MSR, both register and immediate operand forms: bits
			// 27-26=00, 24-23=10, 20=0 (bits 22 "R" and 21 "set" free), with
			// the immediate form's low nibble carrying operand bits rather
			// than the register form's fixed zero nibble.
			return armPSRTransfer
		default:
			return armDataProcessing
		}
	case 0b01:
		return armSingleDataTransfer
	case 0b10:
		if hi&0x20 != 0 {
			return armBranch
		}
		return armBlockDataTransfer
	default: // 0b11
		if hi&0xF0 == 0xF0 {
			return armSoftwareInterrupt
		}
		return armCoprocessor
	}
}

// classifyThumb assigns a handler from the top byte (bits 15-8) of a Thumb
// instruction, following the 19 standard Thumb format classes in the order
// GBATEK/the ARM7TDMI reference documents them.
func classifyThumb(top uint8) thumbHandler {
	switch {
	case top&0xF8 == 0x18:
		return thumbAddSubtract
	case top&0xE0 == 0x00:
		return thumbMoveShifted
	case top&0xE0 == 0x20:
		return thumbImmediateOp
	case top&0xFC == 0x40:
		return thumbALUOperation
	case top&0xFC == 0x44:
		return thumbHiRegisterBX
	case top&0xF8 == 0x48:
		return thumbPCRelativeLoad
	case top&0xF0 == 0x50:
		// Covers both format 7 (register offset) and format 8
		// (sign-extended byte/halfword); the handler distinguishes them
		// by bit 9 of the instruction word itself.
		return thumbLoadStoreRegOffset
	case top&0xE0 == 0x60:
		return thumbLoadStoreImmOffset
	case top&0xF0 == 0x80:
		return thumbLoadStoreHalfword
	case top&0xF0 == 0x90:
		return thumbSPRelativeLoadStore
	case top&0xF0 == 0xA0:
		return thumbLoadAddress
	case top&0xFF == 0xB0:
		return thumbAddOffsetToSP
	case top&0xF6 == 0xB4:
		return thumbPushPop
	case top&0xF0 == 0xC0:
		return thumbMultipleLoadStore
	case top&0xF0 == 0xD0 && top&0x0F == 0x0F:
		return thumbSoftwareInterrupt
	case top&0xF0 == 0xD0:
		return thumbConditionalBranch
	case top&0xF8 == 0xE0:
		return thumbUnconditionalBranch
	case top&0xF8 == 0xE8:
		return thumbLongBranchLink // BLX(imm) second half, A9 only
	case top&0xF0 == 0xF0:
		return thumbLongBranchLink
	default:
		return thumbUndefined
	}
}
