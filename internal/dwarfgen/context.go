// Package dwarfgen builds DWARF 4 debug sections in which every code address
// and cross-section offset is left as a relocation for the artifact writer.
package dwarfgen

import (
	"debug/dwarf"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"

	"github.com/xyproto/clift/internal/engine"
)

// AttrLinkageClass records the output linkage class of a subprogram
// (0 export, 1 local, 2 import).
const AttrLinkageClass dwarf.Attr = 0x3e00

// LangClif is the language code used when none is configured
const LangClif = 0x8001

// Options configures a DebugContext
type Options struct {
	AddressSize uint8
	Format      Format
	ByteOrder   binary.ByteOrder
	Producer    string
	Name        string
	CompDir     string
	Language    uint16
}

// DeclSite is where a function is declared
type DeclSite struct {
	File   string
	Line   uint64
	Column uint64
}

// SourceLoc is the source position of one generated instruction.
// A zero Line means the instruction has no position.
type SourceLoc struct {
	File   string
	Line   uint64
	Column uint64
}

// InstLoc is one entry of the instruction offset table
type InstLoc struct {
	Offset uint64
	Loc    SourceLoc
}

// InstBlock groups the instructions of one block in code order
type InstBlock struct {
	Offset uint64
	Insts  []InstLoc
}

// DebugContext collects the debug info of one compilation. It is used by a
// single goroutine and emitted once.
type DebugContext struct {
	order       binary.ByteOrder
	strings     *StringTable
	units       UnitTable
	unit        UnitID
	lines       *LineProgram
	symbolNames []string
	i64Type     *EntryID
	emitted     bool
}

// NewDebugContext creates the context and its single compilation unit
func NewDebugContext(opts Options) *DebugContext {
	if opts.AddressSize == 0 {
		opts.AddressSize = 8
	}
	if opts.Format == 0 {
		opts.Format = Format32
	}
	if opts.ByteOrder == nil {
		opts.ByteOrder = binary.LittleEndian
	}
	if opts.Language == 0 {
		opts.Language = LangClif
	}
	enc := Encoding{Version: 4, AddressSize: opts.AddressSize, Format: opts.Format}

	c := &DebugContext{
		order:   opts.ByteOrder,
		strings: NewStringTable(),
		lines:   NewLineProgram(enc),
	}
	c.unit = c.units.Add(NewUnit(enc))

	u := c.Unit()
	root := u.Get(u.Root())
	root.Set(dwarf.AttrProducer, StringRef(c.strings.Add(opts.Producer)))
	root.Set(dwarf.AttrLanguage, Data2(opts.Language))
	if opts.Name != "" {
		root.Set(dwarf.AttrName, StringRef(c.strings.Add(opts.Name)))
	}
	root.Set(dwarf.AttrCompDir, StringRef(c.strings.Add(opts.CompDir)))
	root.Set(dwarf.AttrStmtList, LineProgramRef(0))
	return c
}

// Unit returns the compilation unit
func (c *DebugContext) Unit() *Unit {
	return c.units.Get(c.unit)
}

// Strings returns the string table
func (c *DebugContext) Strings() *StringTable {
	return c.strings
}

// LineProgram returns the line program of the unit
func (c *DebugContext) LineProgram() *LineProgram {
	return c.lines
}

// SymbolName returns the name a code symbol was allocated for
func (c *DebugContext) SymbolName(id SymbolID) string {
	return c.symbolNames[id]
}

// Symbols returns a copy of the symbol table, indexed by SymbolID
func (c *DebugContext) Symbols() []string {
	return slices.Clone(c.symbolNames)
}

func (c *DebugContext) allocSymbol(name string) SymbolID {
	c.symbolNames = append(c.symbolNames, name)
	return SymbolID(len(c.symbolNames) - 1)
}

// StartFunction creates the subprogram entry for a function whose machine
// code will be placed at a fresh code symbol called name.
func (c *DebugContext) StartFunction(name string, decl DeclSite) *FunctionDebugContext {
	u := c.Unit()
	sym := c.allocSymbol(name)
	id := u.Add(u.Root(), dwarf.TagSubprogram)
	e := u.Get(id)

	nameRef := StringRef(c.strings.Add(name))
	e.Set(dwarf.AttrLinkageName, nameRef)
	e.Set(dwarf.AttrName, nameRef)
	e.Set(dwarf.AttrDeclFile, StringRef(c.strings.Add(decl.File)))
	e.Set(dwarf.AttrDeclLine, Udata(decl.Line))
	e.Set(dwarf.AttrDeclColumn, Udata(decl.Column))
	e.Set(dwarf.AttrLowpc, Relative{Symbol: sym, Addend: 0})

	engine.Debugf("dwarfgen: start %s (symbol %d)", name, sym)
	return &FunctionDebugContext{ctx: c, entry: id, symbol: sym, name: name}
}

func (c *DebugContext) baseTypeI64() EntryID {
	if c.i64Type != nil {
		return *c.i64Type
	}
	u := c.Unit()
	id := u.Add(u.Root(), dwarf.TagBaseType)
	e := u.Get(id)
	e.Set(dwarf.AttrName, StringRef(c.strings.Add("i64")))
	e.Set(dwarf.AttrEncoding, Data1(0x05)) // DW_ATE_signed
	e.Set(dwarf.AttrByteSize, Data1(8))
	c.i64Type = &id
	return id
}

// Emit serializes the context into abbrev, info, str and line sections.
// The context cannot be used afterwards.
func (c *DebugContext) Emit() Sections {
	if c.emitted {
		panic("dwarfgen: debug context emitted twice")
	}
	c.emitted = true
	symbols := c.Symbols()

	str := NewWriter(SectionStr, c.order, symbols)
	strOffsets := c.strings.Write(str)

	line := NewWriter(SectionLine, c.order, symbols)
	lineOffset := c.lines.Write(line)
	u := c.Unit()
	u.Get(u.Root()).Set(dwarf.AttrStmtList, LineProgramRef(lineOffset))

	abbrev := NewWriter(SectionAbbrev, c.order, symbols)
	info := NewWriter(SectionInfo, c.order, symbols)
	c.units.Write(abbrev, info, strOffsets)

	return Sections{abbrev.Finish(), info.Finish(), str.Finish(), line.Finish()}
}

// FunctionDebugContext records the debug info of one function
type FunctionDebugContext struct {
	ctx    *DebugContext
	entry  EntryID
	symbol SymbolID
	name   string
}

func (f *FunctionDebugContext) Symbol() SymbolID { return f.symbol }
func (f *FunctionDebugContext) Entry() EntryID   { return f.entry }

// SetLinkage records the output linkage class of the function
func (f *FunctionDebugContext) SetLinkage(l engine.Linkage) {
	e := f.ctx.Unit().Get(f.entry)
	e.Set(AttrLinkageClass, Udata(l))
	e.Set(dwarf.AttrExternal, Flag(l == engine.LinkageExport))
}

// AddParameter adds an i64 formal parameter
func (f *FunctionDebugContext) AddParameter(name string) EntryID {
	typ := f.ctx.baseTypeI64()
	u := f.ctx.Unit()
	id := u.Add(f.entry, dwarf.TagFormalParameter)
	e := u.Get(id)
	e.Set(dwarf.AttrName, StringRef(f.ctx.strings.Add(name)))
	e.Set(dwarf.AttrType, EntryRef(typ))
	return id
}

// Finish records the code size and, when blocks is not nil, the line rows of
// the function. Blocks may arrive in any order.
func (f *FunctionDebugContext) Finish(codeSize uint64, blocks []InstBlock) {
	c := f.ctx
	c.Unit().Get(f.entry).Set(dwarf.AttrHighpc, Relative{Symbol: f.symbol, Addend: int64(codeSize)})
	if blocks == nil {
		return
	}

	sorted := slices.Clone(blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	var rows []Row
	for _, b := range sorted {
		for _, inst := range b.Insts {
			if inst.Loc.Line == 0 {
				continue
			}
			file := c.lines.AddFile(inst.Loc.File)
			if n := len(rows); n > 0 && rows[n-1].File == file && rows[n-1].Line == inst.Loc.Line {
				continue
			}
			rows = append(rows, Row{
				AddressOffset: inst.Offset,
				File:          file,
				Line:          inst.Loc.Line,
				Column:        inst.Loc.Column,
			})
		}
	}
	if len(rows) == 0 {
		return
	}

	c.lines.BeginSequence(Relative{Symbol: f.symbol, Addend: 0})
	for _, r := range rows {
		if r.AddressOffset >= codeSize {
			panic(fmt.Sprintf("dwarfgen: %s: instruction offset %#x outside code of size %#x", f.name, r.AddressOffset, codeSize))
		}
		c.lines.AddRow(r)
	}
	c.lines.EndSequence(codeSize)
}
