package rom

import (
	"encoding/binary"
	"testing"
)

func buildTestHeader() []byte {
	data := make([]byte, HeaderSize)
	le := binary.LittleEndian
	copy(data[offGameCode:], []byte{'A', 'B', 'C', 'D'})
	le.PutUint32(data[offARM9RomOffset:], 0x4000)
	le.PutUint32(data[offARM9EntryPoint:], 0x02004000)
	le.PutUint32(data[offARM9LoadAddr:], 0x02000000)
	le.PutUint32(data[offARM9Size:], 0x1000)
	le.PutUint32(data[offARM7RomOffset:], 0x8000)
	le.PutUint32(data[offARM7EntryPoint:], 0x02380000)
	le.PutUint32(data[offARM7LoadAddr:], 0x02380000)
	le.PutUint32(data[offARM7Size:], 0x2000)
	le.PutUint16(data[offHeaderCRC16:], 0xBEEF)
	return data
}

func TestParseExtractsBothProcessorsEntryPoints(t *testing.T) {
	h, err := Parse(buildTestHeader())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.ARM9EntryPoint != 0x02004000 || h.ARM7EntryPoint != 0x02380000 {
		t.Fatalf("entry points wrong: arm9=0x%08X arm7=0x%08X", h.ARM9EntryPoint, h.ARM7EntryPoint)
	}
	if h.HeaderCRC16 != 0xBEEF {
		t.Fatalf("crc wrong: 0x%04X", h.HeaderCRC16)
	}
}

func TestParseTooSmallReturnsError(t *testing.T) {
	_, err := Parse(make([]byte, 0x10))
	if err == nil {
		t.Fatalf("expected error for undersized header")
	}
}

type fakeMemory struct {
	writes map[uint32]uint32
	bytes  map[uint32][]byte
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{writes: map[uint32]uint32{}, bytes: map[uint32][]byte{}}
}
func (f *fakeMemory) WriteWord(addr uint32, value uint32) { f.writes[addr] = value }
func (f *fakeMemory) WriteBytes(addr uint32, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.bytes[addr] = cp
}

func TestWriteBootStateWritesHeaderAndSkipValues(t *testing.T) {
	h, _ := Parse(buildTestHeader())
	h.ChipID = 0xC2

	mem := newFakeMemory()
	h.WriteBootState(mem)

	if mem.writes[BootSkipAddr] != 0xC2 {
		t.Fatalf("expected chip ID written at boot-skip address")
	}
	if mem.writes[BootSkipAddr+4] != h.GameCode {
		t.Fatalf("expected game code written at boot-skip+4")
	}
	if len(mem.bytes[HeaderCopyAddr]) != HeaderSize {
		t.Fatalf("expected full header copied at 0x%08X", HeaderCopyAddr)
	}

	if mem.writes[BootSkipAddr2] != 0xC2 {
		t.Fatalf("expected chip ID mirrored at second boot-skip address")
	}
	if mem.writes[BootSkipAddr2+4] != h.GameCode {
		t.Fatalf("expected game code mirrored at second boot-skip+4")
	}
	if mem.writes[BootSkipAddr2+8] != uint32(h.HeaderCRC16) {
		t.Fatalf("expected header CRC mirrored at second boot-skip+8")
	}
}
