package dwarfgen

import (
	"fmt"
)

// Line program header parameters
const (
	lineMinInstLength = 1
	lineMaxOpsPerInst = 1
	lineDefaultIsStmt = 1
	lineBase          = -5
	lineRange         = 14
	lineOpcodeBase    = 13
)

var standardOpcodeLengths = [lineOpcodeBase - 1]uint8{0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1}

const (
	lnsCopy        = 0x01
	lnsAdvancePC   = 0x02
	lnsAdvanceLine = 0x03
	lnsSetFile     = 0x04
	lnsSetColumn   = 0x05

	lneEndSequence = 0x01
	lneSetAddress  = 0x02
)

// FileID indexes the line program's file table, starting at 1
type FileID uint64

// Row maps one code offset to a source position
type Row struct {
	AddressOffset uint64
	File          FileID
	Line          uint64
	Column        uint64
}

// Sequence is a run of rows covering one contiguous code range
type Sequence struct {
	Start Address
	Rows  []Row
	End   uint64
}

// LineProgram is the .debug_line program of one unit
type LineProgram struct {
	encoding  Encoding
	files     []string
	fileIndex map[string]FileID
	sequences []Sequence
	open      *Sequence
}

func NewLineProgram(enc Encoding) *LineProgram {
	return &LineProgram{
		encoding:  enc,
		fileIndex: make(map[string]FileID),
	}
}

// AddFile registers path in the file table
func (lp *LineProgram) AddFile(path string) FileID {
	if id, ok := lp.fileIndex[path]; ok {
		return id
	}
	lp.files = append(lp.files, path)
	id := FileID(len(lp.files))
	lp.fileIndex[path] = id
	return id
}

// BeginSequence opens a new row sequence starting at addr
func (lp *LineProgram) BeginSequence(addr Address) {
	if lp.open != nil {
		panic("dwarfgen: line sequence already open")
	}
	lp.open = &Sequence{Start: addr}
}

// AddRow appends a row to the open sequence. A row at the same offset as the
// previous one replaces it; a smaller offset panics.
func (lp *LineProgram) AddRow(r Row) {
	if lp.open == nil {
		panic("dwarfgen: row added outside of a sequence")
	}
	rows := lp.open.Rows
	if n := len(rows); n > 0 {
		last := rows[n-1]
		switch {
		case r.AddressOffset == last.AddressOffset:
			rows[n-1] = r
			return
		case r.AddressOffset < last.AddressOffset:
			panic(fmt.Sprintf("dwarfgen: line row at %#x after row at %#x", r.AddressOffset, last.AddressOffset))
		}
	}
	lp.open.Rows = append(rows, r)
}

// EndSequence closes the open sequence at end
func (lp *LineProgram) EndSequence(end uint64) {
	if lp.open == nil {
		panic("dwarfgen: no open line sequence")
	}
	if n := len(lp.open.Rows); n > 0 && lp.open.Rows[n-1].AddressOffset > end {
		panic(fmt.Sprintf("dwarfgen: line sequence ends at %#x before its last row", end))
	}
	lp.open.End = end
	lp.sequences = append(lp.sequences, *lp.open)
	lp.open = nil
}

// Sequences returns the closed sequences
func (lp *LineProgram) Sequences() []Sequence {
	return lp.sequences
}

// Write serializes the program and returns its offset in .debug_line
func (lp *LineProgram) Write(w *Writer) uint64 {
	if lp.open != nil {
		panic("dwarfgen: line program written with an open sequence")
	}
	enc := lp.encoding
	offSize := enc.offsetSize()
	start := w.Len()

	if enc.Format == Format64 {
		w.WriteU32(0xffffffff)
	}
	lengthAt := w.Len()
	w.WriteWord(0, offSize)
	w.WriteU16(enc.Version)
	headerLengthAt := w.Len()
	w.WriteWord(0, offSize)
	headerStart := w.Len()

	w.WriteU8(lineMinInstLength)
	w.WriteU8(lineMaxOpsPerInst)
	w.WriteU8(lineDefaultIsStmt)
	base := int8(lineBase)
	w.WriteU8(uint8(base))
	w.WriteU8(lineRange)
	w.WriteU8(lineOpcodeBase)
	w.Write(standardOpcodeLengths[:])

	// Directory 0 is the compilation directory and is implicit
	w.WriteU8(0)
	for _, f := range lp.files {
		w.WriteCString(f)
		w.WriteULEB128(0) // directory
		w.WriteULEB128(0) // mtime
		w.WriteULEB128(0) // length
	}
	w.WriteU8(0)

	w.WriteWordAt(headerLengthAt, uint64(w.Len()-headerStart), offSize)

	for _, seq := range lp.sequences {
		lp.writeSequence(w, seq)
	}

	w.WriteWordAt(lengthAt, uint64(w.Len()-lengthAt-int(offSize)), offSize)
	return uint64(start)
}

func (lp *LineProgram) writeSequence(w *Writer, seq Sequence) {
	addrSize := lp.encoding.AddressSize

	w.WriteU8(0)
	w.WriteULEB128(uint64(1 + addrSize))
	w.WriteU8(lneSetAddress)
	w.WriteAddress(seq.Start, addrSize)

	var (
		addr   uint64
		file   FileID = 1
		line   uint64 = 1
		column uint64
	)
	for _, r := range seq.Rows {
		if r.File != file {
			w.WriteU8(lnsSetFile)
			w.WriteULEB128(uint64(r.File))
			file = r.File
		}
		if r.Column != column {
			w.WriteU8(lnsSetColumn)
			w.WriteULEB128(r.Column)
			column = r.Column
		}
		if r.Line != line {
			w.WriteU8(lnsAdvanceLine)
			w.WriteSLEB128(int64(r.Line) - int64(line))
			line = r.Line
		}
		if r.AddressOffset != addr {
			w.WriteU8(lnsAdvancePC)
			w.WriteULEB128(r.AddressOffset - addr)
			addr = r.AddressOffset
		}
		w.WriteU8(lnsCopy)
	}

	if seq.End != addr {
		w.WriteU8(lnsAdvancePC)
		w.WriteULEB128(seq.End - addr)
	}
	w.WriteU8(0)
	w.WriteULEB128(1)
	w.WriteU8(lneEndSequence)
}
