package dwarfgen

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/clift/internal/engine"
)

// Reloc is a deferred patch left for the object writer. Name is either a
// code symbol name or a section name; the window [Offset, Offset+Size) holds
// zero bytes until the target is resolved.
type Reloc struct {
	Offset uint32
	Size   uint8
	Name   string
	Addend int64
}

// Writer serializes one section. Addresses relative to code symbols and
// offsets into other sections are written as zeros and recorded as relocations.
type Writer struct {
	section string
	buf     *engine.SafeBuffer
	order   binary.ByteOrder
	symbols []string
	relocs  []Reloc
}

// NewWriter creates a writer for section. symbols maps SymbolID to symbol
// name; the slice must not change while the writer is in use.
func NewWriter(section string, order binary.ByteOrder, symbols []string) *Writer {
	return &Writer{
		section: section,
		buf:     engine.NewSafeBuffer(section),
		order:   order,
		symbols: symbols,
	}
}

func (w *Writer) Section() string   { return w.section }
func (w *Writer) Len() int          { return w.buf.Len() }
func (w *Writer) Bytes() []byte     { return w.buf.Bytes() }
func (w *Writer) Relocs() []Reloc   { return w.relocs }
func (w *Writer) Write(p []byte)    { w.buf.Write(p) }
func (w *Writer) WriteU8(v uint8)   { w.buf.WriteByte(v) }
func (w *Writer) WriteU16(v uint16) { w.WriteWord(uint64(v), 2) }
func (w *Writer) WriteU32(v uint32) { w.WriteWord(uint64(v), 4) }
func (w *Writer) WriteU64(v uint64) { w.WriteWord(v, 8) }

// WriteAt patches bytes that were already written
func (w *Writer) WriteAt(off int, p []byte) {
	w.buf.WriteAt(off, p)
}

// WriteWord writes v in size bytes using the target byte order
func (w *Writer) WriteWord(v uint64, size uint8) {
	w.Write(w.encodeWord(v, size))
}

// WriteWordAt overwrites size bytes at off with v
func (w *Writer) WriteWordAt(off int, v uint64, size uint8) {
	w.WriteAt(off, w.encodeWord(v, size))
}

func (w *Writer) encodeWord(v uint64, size uint8) []byte {
	b := make([]byte, size)
	switch size {
	case 1:
		b[0] = uint8(v)
	case 2:
		w.order.PutUint16(b, uint16(v))
	case 4:
		w.order.PutUint32(b, uint32(v))
	case 8:
		w.order.PutUint64(b, v)
	default:
		panic(fmt.Sprintf("dwarfgen: unsupported word size %d", size))
	}
	return b
}

// WriteULEB128 writes an unsigned LEB128 number
func (w *Writer) WriteULEB128(v uint64) {
	w.Write(appendULEB128(nil, v))
}

// WriteSLEB128 writes a signed LEB128 number
func (w *Writer) WriteSLEB128(v int64) {
	w.Write(appendSLEB128(nil, v))
}

// WriteCString writes s followed by a NUL byte
func (w *Writer) WriteCString(s string) {
	w.Write([]byte(s))
	w.WriteU8(0)
}

// WriteAddress writes an absolute address as-is. A relative address becomes
// size zero bytes plus a relocation against the code symbol.
func (w *Writer) WriteAddress(addr Address, size uint8) {
	switch a := addr.(type) {
	case Absolute:
		w.WriteWord(uint64(a), size)
	case Relative:
		if int(a.Symbol) < 0 || int(a.Symbol) >= len(w.symbols) {
			panic(fmt.Sprintf("dwarfgen: %s: unknown code symbol %d", w.section, a.Symbol))
		}
		w.relocs = append(w.relocs, Reloc{
			Offset: uint32(w.Len()),
			Size:   size,
			Name:   w.symbols[a.Symbol],
			Addend: a.Addend,
		})
		w.WriteWord(0, size)
	default:
		panic(fmt.Sprintf("dwarfgen: unknown address kind %T", addr))
	}
}

// WriteOffset writes a reference to val within section. The value is never
// written directly; it becomes the addend of a relocation.
func (w *Writer) WriteOffset(val uint64, section string, size uint8) {
	w.relocs = append(w.relocs, Reloc{
		Offset: uint32(w.Len()),
		Size:   size,
		Name:   section,
		Addend: int64(val),
	})
	w.WriteWord(0, size)
}

// WriteOffsetAt is WriteOffset for a window that was already reserved
func (w *Writer) WriteOffsetAt(off int, val uint64, section string, size uint8) {
	w.WriteWordAt(off, 0, size)
	w.relocs = append(w.relocs, Reloc{
		Offset: uint32(off),
		Size:   size,
		Name:   section,
		Addend: int64(val),
	})
}

// Finish checks the relocation windows and seals the buffer
func (w *Writer) Finish() Section {
	CheckRelocs(w.section, w.Bytes(), w.relocs)
	w.buf.Commit()
	engine.Debugf("dwarfgen: %s: %d bytes, %d relocations", w.section, w.Len(), len(w.relocs))
	return Section{Name: w.section, Data: w.Bytes(), Relocs: w.relocs}
}

// CheckRelocs panics unless every relocation window in data is in bounds and zero
func CheckRelocs(section string, data []byte, relocs []Reloc) {
	for _, r := range relocs {
		end := int(r.Offset) + int(r.Size)
		if end > len(data) {
			panic(fmt.Sprintf("dwarfgen: %s: relocation %+v past end of section (%d bytes)", section, r, len(data)))
		}
		for _, b := range data[r.Offset:end] {
			if b != 0 {
				panic(fmt.Sprintf("dwarfgen: %s: relocation window at %#x is not zero", section, r.Offset))
			}
		}
	}
}

func appendULEB128(b []byte, v uint64) []byte {
	for {
		c := uint8(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if c&0x80 == 0 {
			return b
		}
	}
}

func appendSLEB128(b []byte, v int64) []byte {
	for {
		c := uint8(v & 0x7f)
		s := uint8(v & 0x40)
		v >>= 7
		if (v != -1 || s == 0) && (v != 0 || s != 0) {
			c |= 0x80
		}
		b = append(b, c)
		if c&0x80 == 0 {
			return b
		}
	}
}
