package cp15

import "testing"

func TestTCMByteSizeEncoding(t *testing.T) {
	tcm := TCMConfig{SizeCode: 6, Enabled: true} // 512 << 6 == 32768
	if tcm.ByteSize() != 32768 {
		t.Fatalf("got %d want 32768", tcm.ByteSize())
	}
}

func TestTCMContainsRespectsEnableAndWindow(t *testing.T) {
	tcm := TCMConfig{Base: 0, SizeCode: 6, Enabled: false}
	if tcm.Contains(0x1000) {
		t.Fatalf("disabled TCM should contain nothing")
	}
	tcm.Enabled = true
	if !tcm.Contains(0x1000) || tcm.Contains(0x8000) {
		t.Fatalf("window check wrong: base=0 size=32768")
	}
}

func TestMCRMRCTCMRoundTrip(t *testing.T) {
	c := New()
	c.MCR(9, 1, 0, encodeTCMReg(TCMConfig{Base: 0x27C0000, SizeCode: 6, Enabled: true}))
	got := decodeTCMReg(c.MRC(9, 1, 0))
	if got.Base != 0x27C0000 || got.SizeCode != 6 || !got.Enabled {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestHaltLatchSetAndClear(t *testing.T) {
	c := New()
	c.WriteHalt()
	if !c.Halted {
		t.Fatalf("expected halted")
	}
	c.ClearHalt()
	if c.Halted {
		t.Fatalf("expected cleared")
	}
}

func TestWriteControlTracksCacheAndMPUBits(t *testing.T) {
	c := New()
	c.WriteControl(true, true, false)
	if !c.MPUEnabled || !c.ICacheEnabled || c.DCacheEnabled {
		t.Fatalf("control bits not tracked: %+v", c)
	}
}
