package cpu

// Thumb handlers re-decode the 16-bit instruction word themselves, matching
// arm_handlers.go's style. Flag-setting ALU paths reuse the ARM core's
// addWithFlags/subWithFlags/setNZ helpers since Thumb's arithmetic flag
// semantics are identical to ARM's.

// thumbMoveShifted implements format 1: LSL/LSR/ASR Rd, Rs, #imm5, always
// setting flags.
func thumbMoveShifted(c *CPU, instr uint16) {
	op := (instr >> 11) & 0x3
	amount := uint32((instr >> 6) & 0x1F)
	rs := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)

	v := c.GetReg(rs)
	result, carry := barrelShift(v, uint32(op), amount, false, c.flag(flagC))
	c.SetReg(rd, result)
	c.setNZ(result)
	c.setFlag(flagC, carry)
}

// thumbAddSubtract implements format 2: ADD/SUB Rd, Rs, Rn|#imm3.
func thumbAddSubtract(c *CPU, instr uint16) {
	immediate := instr&(1<<10) != 0
	sub := instr&(1<<9) != 0
	rs := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)
	rnField := uint32((instr >> 6) & 0x7)

	op1 := c.GetReg(rs)
	var op2 uint32
	if immediate {
		op2 = rnField
	} else {
		op2 = c.GetReg(int(rnField))
	}

	var result uint32
	var carry, overflow bool
	if sub {
		result, carry, overflow = subWithFlags(op1, op2)
	} else {
		result, carry, overflow = addWithFlags(op1, op2)
	}
	c.SetReg(rd, result)
	c.setNZ(result)
	c.setFlag(flagC, carry)
	c.setFlag(flagV, overflow)
}

// thumbImmediateOp implements format 3: MOV/CMP/ADD/SUB Rd, #imm8.
func thumbImmediateOp(c *CPU, instr uint16) {
	op := (instr >> 11) & 0x3
	rd := int((instr >> 8) & 0x7)
	imm := uint32(instr & 0xFF)

	switch op {
	case 0: // MOV
		c.SetReg(rd, imm)
		c.setNZ(imm)
	case 1: // CMP
		result, carry, overflow := subWithFlags(c.GetReg(rd), imm)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 2: // ADD
		result, carry, overflow := addWithFlags(c.GetReg(rd), imm)
		c.SetReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 3: // SUB
		result, carry, overflow := subWithFlags(c.GetReg(rd), imm)
		c.SetReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	}
}

// thumbALUOperation implements format 4: the 16 two-operand ALU ops, all
// flag-setting, operating on the low registers only.
func thumbALUOperation(c *CPU, instr uint16) {
	op := (instr >> 6) & 0xF
	rs := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)

	dst := c.GetReg(rd)
	src := c.GetReg(rs)

	switch op {
	case 0x0: // AND
		result := dst & src
		c.SetReg(rd, result)
		c.setNZ(result)
	case 0x1: // EOR
		result := dst ^ src
		c.SetReg(rd, result)
		c.setNZ(result)
	case 0x2: // LSL
		result, carry := barrelShift(dst, 0, src&0xFF, true, c.flag(flagC))
		c.SetReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
	case 0x3: // LSR
		result, carry := barrelShift(dst, 1, src&0xFF, true, c.flag(flagC))
		c.SetReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
	case 0x4: // ASR
		result, carry := barrelShift(dst, 2, src&0xFF, true, c.flag(flagC))
		c.SetReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
	case 0x5: // ADC
		result, carry, overflow := addWithFlags3(dst, src, c.flag(flagC))
		c.SetReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 0x6: // SBC
		result, carry, overflow := sbcWithFlags(dst, src, c.flag(flagC))
		c.SetReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 0x7: // ROR
		result, carry := barrelShift(dst, 3, src&0xFF, true, c.flag(flagC))
		c.SetReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
	case 0x8: // TST
		c.setNZ(dst & src)
	case 0x9: // NEG
		result, carry, overflow := subWithFlags(0, src)
		c.SetReg(rd, result)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 0xA: // CMP
		result, carry, overflow := subWithFlags(dst, src)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 0xB: // CMN
		result, carry, overflow := addWithFlags(dst, src)
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 0xC: // ORR
		result := dst | src
		c.SetReg(rd, result)
		c.setNZ(result)
	case 0xD: // MUL
		result := dst * src
		c.SetReg(rd, result)
		c.setNZ(result)
	case 0xE: // BIC
		result := dst &^ src
		c.SetReg(rd, result)
		c.setNZ(result)
	case 0xF: // MVN
		result := ^src
		c.SetReg(rd, result)
		c.setNZ(result)
	}
}

// thumbHiRegisterBX implements format 5: ADD/CMP/MOV with at least one
// operand from R8-R15, plus BX/BLX(reg) sharing the same top-byte slot.
func thumbHiRegisterBX(c *CPU, instr uint16) {
	op := (instr >> 8) & 0x3
	h1 := instr&(1<<7) != 0
	h2 := instr&(1<<6) != 0
	rs := int((instr >> 3) & 0x7)
	if h2 {
		rs += 8
	}
	rd := int(instr & 0x7)
	if h1 {
		rd += 8
	}

	switch op {
	case 0: // ADD
		c.SetReg(rd, c.GetReg(rd)+c.GetReg(rs))
		if rd == 15 {
			c.branchTo(c.GetReg(rd))
		}
	case 1: // CMP
		result, carry, overflow := subWithFlags(c.GetReg(rd), c.GetReg(rs))
		c.setNZ(result)
		c.setFlag(flagC, carry)
		c.setFlag(flagV, overflow)
	case 2: // MOV
		c.SetReg(rd, c.GetReg(rs))
		if rd == 15 {
			c.branchTo(c.GetReg(rd))
		}
	case 3: // BX / BLX(reg) (A9 only, when h1 set)
		target := c.GetReg(rs)
		if h1 && c.isA9 {
			c.R[14] = c.R[15] - 2
		}
		c.setFlag(flagT, target&1 != 0)
		c.branchTo(target)
	}
}

// thumbPCRelativeLoad implements format 6: LDR Rd, [PC, #imm8<<2], with the
// PC word-aligned before adding the offset.
func thumbPCRelativeLoad(c *CPU, instr uint16) {
	rd := int((instr >> 8) & 0x7)
	imm := uint32(instr&0xFF) << 2
	base := c.R[15] &^ 3
	v := c.bus.ReadWord(c.isA9, base+imm)
	c.SetReg(rd, v)
}

// thumbLoadStoreRegOffset implements formats 7 and 8: LDR/STR/LDRB/STRB
// (format 7, bit 9 clear) and LDRH/STRH/LDSB/LDSH (format 8, bit 9 set),
// both addressed as [Rb, Ro].
func thumbLoadStoreRegOffset(c *CPU, instr uint16) {
	ro := int((instr >> 6) & 0x7)
	rb := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)
	addr := c.GetReg(rb) + c.GetReg(ro)

	if instr&(1<<9) == 0 { // format 7
		byteAccess := instr&(1<<10) != 0
		load := instr&(1<<11) != 0
		if load {
			if byteAccess {
				c.SetReg(rd, uint32(c.bus.ReadByte(c.isA9, addr)))
			} else {
				c.SetReg(rd, c.bus.ReadWord(c.isA9, addr))
			}
		} else {
			if byteAccess {
				c.bus.WriteByte(c.isA9, addr, uint8(c.GetReg(rd)))
			} else {
				c.bus.WriteWordP(c.isA9, addr, c.GetReg(rd))
			}
		}
		return
	}

	// format 8
	opc := (instr >> 10) & 0x3
	switch opc {
	case 0: // STRH
		c.bus.WriteHalf(c.isA9, addr, uint16(c.GetReg(rd)))
	case 1: // LDSB
		c.SetReg(rd, uint32(int32(int8(c.bus.ReadByte(c.isA9, addr)))))
	case 2: // LDRH
		c.SetReg(rd, uint32(c.bus.ReadHalf(c.isA9, addr)))
	case 3: // LDSH
		c.SetReg(rd, uint32(int32(int16(c.bus.ReadHalf(c.isA9, addr)))))
	}
}

// thumbLoadStoreImmOffset implements format 9: LDR/STR/LDRB/STRB Rd,
// [Rb, #imm5] (word offsets scaled by 4, byte offsets unscaled).
func thumbLoadStoreImmOffset(c *CPU, instr uint16) {
	byteAccess := instr&(1<<12) != 0
	load := instr&(1<<11) != 0
	imm := uint32((instr >> 6) & 0x1F)
	rb := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)

	var addr uint32
	if byteAccess {
		addr = c.GetReg(rb) + imm
	} else {
		addr = c.GetReg(rb) + imm*4
	}

	if load {
		if byteAccess {
			c.SetReg(rd, uint32(c.bus.ReadByte(c.isA9, addr)))
		} else {
			c.SetReg(rd, c.bus.ReadWord(c.isA9, addr))
		}
	} else {
		if byteAccess {
			c.bus.WriteByte(c.isA9, addr, uint8(c.GetReg(rd)))
		} else {
			c.bus.WriteWordP(c.isA9, addr, c.GetReg(rd))
		}
	}
}

// thumbLoadStoreHalfword implements format 10: LDRH/STRH Rd, [Rb, #imm5<<1].
func thumbLoadStoreHalfword(c *CPU, instr uint16) {
	load := instr&(1<<11) != 0
	imm := uint32((instr>>6)&0x1F) << 1
	rb := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)
	addr := c.GetReg(rb) + imm

	if load {
		c.SetReg(rd, uint32(c.bus.ReadHalf(c.isA9, addr)))
	} else {
		c.bus.WriteHalf(c.isA9, addr, uint16(c.GetReg(rd)))
	}
}

// thumbSPRelativeLoadStore implements format 11: LDR/STR Rd, [SP, #imm8<<2].
func thumbSPRelativeLoadStore(c *CPU, instr uint16) {
	load := instr&(1<<11) != 0
	rd := int((instr >> 8) & 0x7)
	imm := uint32(instr&0xFF) << 2
	addr := c.GetReg(13) + imm

	if load {
		c.SetReg(rd, c.bus.ReadWord(c.isA9, addr))
	} else {
		c.bus.WriteWordP(c.isA9, addr, c.GetReg(rd))
	}
}

// thumbLoadAddress implements format 12: ADD Rd, PC|SP, #imm8<<2.
func thumbLoadAddress(c *CPU, instr uint16) {
	useSP := instr&(1<<11) != 0
	rd := int((instr >> 8) & 0x7)
	imm := uint32(instr&0xFF) << 2

	var base uint32
	if useSP {
		base = c.GetReg(13)
	} else {
		base = c.R[15] &^ 3
	}
	c.SetReg(rd, base+imm)
}

// thumbAddOffsetToSP implements format 13: ADD/SUB SP, #imm7<<2.
func thumbAddOffsetToSP(c *CPU, instr uint16) {
	imm := uint32(instr&0x7F) << 2
	if instr&(1<<7) != 0 {
		c.SetReg(13, c.GetReg(13)-imm)
	} else {
		c.SetReg(13, c.GetReg(13)+imm)
	}
}

// thumbPushPop implements format 14: PUSH/POP {Rlist, LR|PC}.
func thumbPushPop(c *CPU, instr uint16) {
	pop := instr&(1<<11) != 0
	pcLR := instr&(1<<8) != 0
	regList := instr & 0xFF

	sp := c.GetReg(13)
	if pop {
		addr := sp
		for i := 0; i < 8; i++ {
			if regList&(1<<uint(i)) != 0 {
				c.SetReg(i, c.bus.ReadWord(c.isA9, addr))
				addr += 4
			}
		}
		if pcLR {
			v := c.bus.ReadWord(c.isA9, addr)
			addr += 4
			c.branchTo(v)
		}
		c.SetReg(13, addr)
		return
	}

	count := 0
	for i := 0; i < 8; i++ {
		if regList&(1<<uint(i)) != 0 {
			count++
		}
	}
	if pcLR {
		count++
	}
	addr := sp - uint32(count)*4
	c.SetReg(13, addr)

	for i := 0; i < 8; i++ {
		if regList&(1<<uint(i)) != 0 {
			c.bus.WriteWordP(c.isA9, addr, c.GetReg(i))
			addr += 4
		}
	}
	if pcLR {
		c.bus.WriteWordP(c.isA9, addr, c.GetReg(14))
	}
}

// thumbMultipleLoadStore implements format 15: LDMIA/STMIA Rb!, {Rlist}.
func thumbMultipleLoadStore(c *CPU, instr uint16) {
	load := instr&(1<<11) != 0
	rb := int((instr >> 8) & 0x7)
	regList := instr & 0xFF

	addr := c.GetReg(rb)
	for i := 0; i < 8; i++ {
		if regList&(1<<uint(i)) == 0 {
			continue
		}
		if load {
			c.SetReg(i, c.bus.ReadWord(c.isA9, addr))
		} else {
			c.bus.WriteWordP(c.isA9, addr, c.GetReg(i))
		}
		addr += 4
	}
	c.SetReg(rb, addr)
}

// thumbSoftwareInterrupt implements format 17: SWI #imm8.
func thumbSoftwareInterrupt(c *CPU, instr uint16) {
	_ = instr
	c.RaiseSoftwareInterrupt()
}

// thumbConditionalBranch implements format 16: Bcond #imm8<<1, sign-extended.
func thumbConditionalBranch(c *CPU, instr uint16) {
	cond := uint32((instr >> 8) & 0xF)
	if !c.conditionPassed(cond) {
		return
	}
	offset := int32(int8(instr&0xFF)) * 2
	target := uint32(int32(c.R[15]) + offset)
	c.ResetPipeline(target)
}

// thumbUnconditionalBranch implements format 18: B #imm11<<1, sign-extended.
func thumbUnconditionalBranch(c *CPU, instr uint16) {
	imm := instr & 0x7FF
	offset := int32(uint32(imm)<<21) >> 20 // sign-extend 11-bit, pre-scaled by 2
	target := uint32(int32(c.R[15]) + offset)
	c.ResetPipeline(target)
}

// thumbLongBranchLink implements format 19: the two-instruction BL/BLX
// sequence. The first half (H=0) stashes PC-relative high bits in LR; the
// second half (H=1, or H=0b01 for BLX on the A9) computes the target from
// LR + the low 11 bits and sets LR to the return address.
func thumbLongBranchLink(c *CPU, instr uint16) {
	low := instr & 0x7FF
	h := (instr >> 11) & 0x3

	if h == 0b10 { // first instruction: high 11 bits of a 22-bit signed offset
		offset := int32(uint32(low)<<21) >> 9 // sign-extend 11 bits, then shift left 12
		c.R[14] = uint32(int32(c.R[15]) + offset)
		return
	}

	// second instruction (h == 0b11 for BL, 0b01 for BLX on the A9)
	next := c.R[15] - 2
	target := c.R[14] + uint32(low)<<1
	c.R[14] = next | 1
	if h == 0b01 && c.isA9 {
		c.setFlag(flagT, false)
		target &^= 3
	}
	c.branchTo(target)
}

// thumbUndefined traps unrecognized Thumb encodings.
func thumbUndefined(c *CPU, instr uint16) {
	_ = instr
	c.RaiseUndefined()
}
