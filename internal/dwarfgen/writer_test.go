package dwarfgen

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	f()
}

func assertZeroWindows(t *testing.T, sec Section) {
	t.Helper()
	for _, r := range sec.Relocs {
		end := int(r.Offset) + int(r.Size)
		if end > len(sec.Data) {
			t.Fatalf("%s: relocation %+v past end (%d bytes)", sec.Name, r, len(sec.Data))
		}
		for i, b := range sec.Data[r.Offset:end] {
			if b != 0 {
				t.Fatalf("%s: relocation %+v has non-zero byte %#x at +%d", sec.Name, r, b, i)
			}
		}
	}
}

func TestWriteAddressAbsolute(t *testing.T) {
	w := NewWriter(".test", binary.LittleEndian, nil)
	w.WriteAddress(Absolute(0x1122334455667788), 8)

	if len(w.Relocs()) != 0 {
		t.Fatalf("Expected no relocations, got %d", len(w.Relocs()))
	}
	want := []byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Got % x, want % x", w.Bytes(), want)
	}
}

func TestWriteAddressRelative(t *testing.T) {
	w := NewWriter(".test", binary.LittleEndian, []string{"foo", "bar"})
	w.Write([]byte{0xaa, 0xbb, 0xcc})
	w.WriteAddress(Relative{Symbol: 1, Addend: 16}, 8)

	relocs := w.Relocs()
	if len(relocs) != 1 {
		t.Fatalf("Expected 1 relocation, got %d", len(relocs))
	}
	want := Reloc{Offset: 3, Size: 8, Name: "bar", Addend: 16}
	if relocs[0] != want {
		t.Errorf("Got %+v, want %+v", relocs[0], want)
	}
	if w.Len() != 11 {
		t.Errorf("Expected 11 bytes, got %d", w.Len())
	}
	assertZeroWindows(t, w.Finish())
}

func TestWriteAddressUnknownSymbolPanics(t *testing.T) {
	w := NewWriter(".test", binary.LittleEndian, []string{"only"})
	mustPanic(t, "unknown symbol", func() {
		w.WriteAddress(Relative{Symbol: 3}, 8)
	})
}

func TestWriteOffsetAlwaysRelocates(t *testing.T) {
	w := NewWriter(".debug_info", binary.LittleEndian, nil)
	values := []uint64{0, 1, 0x40, 0xffffffff}
	for i, v := range values {
		before := len(w.Relocs())
		w.WriteU8(0xff)
		w.WriteOffset(v, SectionStr, 4)
		relocs := w.Relocs()
		if len(relocs) != before+1 {
			t.Fatalf("value %#x: expected exactly one new relocation, got %d", v, len(relocs)-before)
		}
		r := relocs[len(relocs)-1]
		if r.Name != SectionStr || r.Addend != int64(v) || r.Size != 4 || r.Offset != uint32(i*5+1) {
			t.Errorf("value %#x: unexpected relocation %+v", v, r)
		}
	}
	assertZeroWindows(t, w.Finish())
}

func TestWriteOffsetAt(t *testing.T) {
	w := NewWriter(".debug_info", binary.LittleEndian, nil)
	w.WriteU32(0xdeadbeef)
	w.WriteU16(7)
	w.WriteOffsetAt(0, 0x20, SectionAbbrev, 4)

	if !bytes.Equal(w.Bytes(), []byte{0, 0, 0, 0, 7, 0}) {
		t.Errorf("Window not cleared: % x", w.Bytes())
	}
	want := Reloc{Offset: 0, Size: 4, Name: SectionAbbrev, Addend: 0x20}
	if len(w.Relocs()) != 1 || w.Relocs()[0] != want {
		t.Errorf("Got %+v, want [%+v]", w.Relocs(), want)
	}
}

func TestWriteAtPastEndPanics(t *testing.T) {
	w := NewWriter(".test", binary.LittleEndian, nil)
	w.WriteU16(0)
	w.WriteAt(0, []byte{1, 2})
	mustPanic(t, "write past end", func() {
		w.WriteAt(1, []byte{1, 2})
	})
}

func TestWriteAfterFinishPanics(t *testing.T) {
	w := NewWriter(".test", binary.LittleEndian, nil)
	w.WriteU8(1)
	w.Finish()
	mustPanic(t, "write after finish", func() {
		w.WriteU8(2)
	})
}

func TestCheckRelocsRejectsDirtyWindow(t *testing.T) {
	data := []byte{0, 0, 1, 0}
	CheckRelocs(".test", data, []Reloc{{Offset: 0, Size: 2, Name: "x"}})
	mustPanic(t, "dirty window", func() {
		CheckRelocs(".test", data, []Reloc{{Offset: 0, Size: 4, Name: "x"}})
	})
	mustPanic(t, "window past end", func() {
		CheckRelocs(".test", data, []Reloc{{Offset: 2, Size: 4, Name: "x"}})
	})
}

func TestLEB128(t *testing.T) {
	unsigned := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{2, []byte{0x02}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
	}
	for _, tc := range unsigned {
		if got := appendULEB128(nil, tc.v); !bytes.Equal(got, tc.want) {
			t.Errorf("ULEB128(%d) = % x, want % x", tc.v, got, tc.want)
		}
	}

	signed := []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{2, []byte{0x02}},
		{-2, []byte{0x7e}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{127, []byte{0xff, 0x00}},
		{-128, []byte{0x80, 0x7f}},
		{-123456, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tc := range signed {
		if got := appendSLEB128(nil, tc.v); !bytes.Equal(got, tc.want) {
			t.Errorf("SLEB128(%d) = % x, want % x", tc.v, got, tc.want)
		}
	}
}

func TestResolvePatchesSymbolsAndSections(t *testing.T) {
	w := NewWriter(SectionInfo, binary.LittleEndian, []string{"f"})
	w.WriteAddress(Relative{Symbol: 0, Addend: 4}, 8)
	w.WriteOffset(0x10, SectionStr, 4)
	secs := Sections{w.Finish(), {Name: SectionStr, Data: make([]byte, 0x20)}}

	out, err := secs.Resolve(map[string]uint64{"f": 0x1000}, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	info := out[SectionInfo]
	if got := binary.LittleEndian.Uint64(info[0:8]); got != 0x1004 {
		t.Errorf("Symbol relocation resolved to %#x, want 0x1004", got)
	}
	if got := binary.LittleEndian.Uint32(info[8:12]); got != 0x10 {
		t.Errorf("Section relocation resolved to %#x, want 0x10", got)
	}
	// The emitted section itself stays untouched
	assertZeroWindows(t, secs[0])

	if _, err := secs.Resolve(map[string]uint64{}, binary.LittleEndian); err == nil {
		t.Errorf("Expected unresolved symbol error")
	}
}
