package input

import "testing"

func TestResetStateAllBitsHigh(t *testing.T) {
	s := New()
	if s.KeyInput() != 0x03FF {
		t.Fatalf("expected all buttons released (bits high), got 0x%04X", s.KeyInput())
	}
	if s.ExtKeyInput() != 0x0F {
		t.Fatalf("expected extended bits high, got 0x%X", s.ExtKeyInput())
	}
}

func TestSetButtonIsActiveLow(t *testing.T) {
	s := New()
	s.SetButton(BitA, true)
	if s.KeyInput()&(1<<BitA) != 0 {
		t.Fatalf("pressed A should clear its bit (active-low)")
	}
	s.SetButton(BitA, false)
	if s.KeyInput()&(1<<BitA) == 0 {
		t.Fatalf("released A should set its bit back")
	}
}

func TestTouchClearsPenDownBitWhileDown(t *testing.T) {
	s := New()
	s.SetTouch(true, 1234, 567)
	if s.ExtKeyInput()&(1<<BitPenDown) != 0 {
		t.Fatalf("pen-down bit must be clear (active-low) while touching")
	}
	if s.TouchX != 1234 || s.TouchY != 567 {
		t.Fatalf("touch ADC values not latched: x=%d y=%d", s.TouchX, s.TouchY)
	}
	s.SetTouch(false, 0, 0)
	if s.ExtKeyInput()&(1<<BitPenDown) == 0 {
		t.Fatalf("pen-down bit must be set once released")
	}
}

func TestTouchADCIs12Bit(t *testing.T) {
	s := New()
	s.SetTouch(true, 0xFFFF, 0xFFFF)
	if s.TouchX != 0x0FFF || s.TouchY != 0x0FFF {
		t.Fatalf("touch readings should be masked to 12 bits: x=0x%04X y=0x%04X", s.TouchX, s.TouchY)
	}
}

func TestRead16ComposesTwoBytesLittleEndian(t *testing.T) {
	s := New()
	s.SetButton(BitA, true)
	v := s.Read16(0x00)
	if v != s.KeyInput() {
		t.Fatalf("Read16 should compose Read8 halves: got 0x%04X want 0x%04X", v, s.KeyInput())
	}
}
