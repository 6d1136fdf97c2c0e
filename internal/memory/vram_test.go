package memory

import "testing"

// Scenario 5 from spec.md §8: VRAM bank remap preserves bytes.
func TestVRAMRemapPreservesBytes(t *testing.T) {
	b := NewBus()
	// Bank A mapped LCDC (mst=0), offset 0, enabled.
	b.VRAM.WriteControl(BankA, 0x80)

	for i := 0; i < 0x100; i++ {
		b.WriteByte(true, 0x06800000+uint32(i), uint8(i))
	}

	// Remap bank A to engine-A BG (mst=1) at offset 0.
	b.VRAM.WriteControl(BankA, 0x80|1)

	for i := 0; i < 0x100; i++ {
		got := b.ReadByte(true, 0x06000000+uint32(i))
		if got != uint8(i) {
			t.Fatalf("byte %d: got %d want %d", i, got, uint8(i))
		}
	}
}

func TestVRAMOrCombinesOverlappingBanks(t *testing.T) {
	v := NewVRAM()
	// Both bank A and bank B mapped to engine-A BG at offset 0.
	v.WriteControl(BankA, 0x80|1)
	v.WriteControl(BankB, 0x80|1)

	v.Banks[BankA].Data[4] = 0x0F
	v.Banks[BankB].Data[4] = 0xF0

	got := v.ReadByte(ViewEngineABG, 4)
	if got != 0xFF {
		t.Fatalf("expected OR-combined 0xFF, got 0x%02X", got)
	}
}

func TestVRAMWriteBroadcastsToOverlappingBanks(t *testing.T) {
	v := NewVRAM()
	v.WriteControl(BankA, 0x80|1)
	v.WriteControl(BankC, 0x80|1)

	v.WriteByte(ViewEngineABG, 10, 0x42)

	if v.Banks[BankA].Data[10] != 0x42 || v.Banks[BankC].Data[10] != 0x42 {
		t.Fatalf("expected broadcast write to both mapped banks")
	}
}

func TestVRAMDisabledBankContributesNothing(t *testing.T) {
	v := NewVRAM()
	v.WriteControl(BankA, 0) // disabled
	v.Banks[BankA].Data[0] = 0xFF

	if got := v.ReadByte(ViewLCDC, 0); got != 0 {
		t.Fatalf("disabled bank should not contribute, got 0x%02X", got)
	}
}
