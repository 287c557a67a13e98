package dwarfgen

import (
	"debug/dwarf"
	"fmt"
	"strconv"
	"strings"
)

// Format selects 32-bit or 64-bit DWARF offsets
type Format uint8

const (
	Format32 Format = 4
	Format64 Format = 8
)

// Encoding is the per-unit layout shared by every section of that unit
type Encoding struct {
	Version     uint16
	AddressSize uint8
	Format      Format
}

func (e Encoding) offsetSize() uint8 {
	return uint8(e.Format)
}

// UnitID is a handle into a UnitTable
type UnitID int

// EntryID identifies an entry. It carries its unit so that handles from one
// unit cannot be used with another.
type EntryID struct {
	unit  UnitID
	index int
}

// Unit returns the unit this entry belongs to
func (id EntryID) Unit() UnitID {
	return id.unit
}

type attribute struct {
	name  dwarf.Attr
	value AttributeValue
}

// Entry is one node of a unit's tree
type Entry struct {
	unit     *Unit
	id       EntryID
	tag      dwarf.Tag
	parent   int
	attrs    []attribute
	children []int
}

func (e *Entry) ID() EntryID    { return e.id }
func (e *Entry) Tag() dwarf.Tag { return e.tag }

// Set adds or replaces an attribute. Attributes keep the order in which they
// were first set.
func (e *Entry) Set(name dwarf.Attr, value AttributeValue) {
	e.unit.mustBeOpen()
	for i := range e.attrs {
		if e.attrs[i].name == name {
			e.attrs[i].value = value
			return
		}
	}
	e.attrs = append(e.attrs, attribute{name, value})
}

// Get returns the value of an attribute
func (e *Entry) Get(name dwarf.Attr) (AttributeValue, bool) {
	for _, a := range e.attrs {
		if a.name == name {
			return a.value, true
		}
	}
	return nil, false
}

// Children returns the ids of the entry's children in insertion order
func (e *Entry) Children() []EntryID {
	ids := make([]EntryID, len(e.children))
	for i, c := range e.children {
		ids[i] = EntryID{unit: e.id.unit, index: c}
	}
	return ids
}

// Unit is one compilation unit
type Unit struct {
	id       UnitID
	encoding Encoding
	entries  []*Entry
	sealed   bool
}

// NewUnit creates a unit with a compile_unit root entry
func NewUnit(enc Encoding) *Unit {
	if enc.Version != 4 {
		panic(fmt.Sprintf("dwarfgen: unsupported DWARF version %d", enc.Version))
	}
	if enc.Format != Format32 && enc.Format != Format64 {
		panic(fmt.Sprintf("dwarfgen: invalid DWARF format %d", enc.Format))
	}
	u := &Unit{encoding: enc}
	u.entries = append(u.entries, &Entry{
		unit:   u,
		id:     EntryID{index: 0},
		tag:    dwarf.TagCompileUnit,
		parent: -1,
	})
	return u
}

func (u *Unit) Encoding() Encoding { return u.encoding }

// Root returns the compile_unit entry
func (u *Unit) Root() EntryID {
	return EntryID{unit: u.id, index: 0}
}

// Add creates a child of parent. parent must belong to this unit.
func (u *Unit) Add(parent EntryID, tag dwarf.Tag) EntryID {
	u.mustBeOpen()
	p := u.Get(parent)
	id := EntryID{unit: u.id, index: len(u.entries)}
	u.entries = append(u.entries, &Entry{
		unit:   u,
		id:     id,
		tag:    tag,
		parent: p.id.index,
	})
	p.children = append(p.children, id.index)
	return id
}

// Get returns the entry for id, panicking if it belongs to another unit
func (u *Unit) Get(id EntryID) *Entry {
	if id.unit != u.id || id.index < 0 || id.index >= len(u.entries) {
		panic(fmt.Sprintf("dwarfgen: entry %d of unit %d used with unit %d", id.index, id.unit, u.id))
	}
	return u.entries[id.index]
}

// Len returns the number of entries, root included
func (u *Unit) Len() int {
	return len(u.entries)
}

func (u *Unit) mustBeOpen() {
	if u.sealed {
		panic(fmt.Sprintf("dwarfgen: unit %d modified after serialization", u.id))
	}
}

// UnitTable owns every unit of a compilation
type UnitTable struct {
	units []*Unit
}

// Add takes ownership of u and returns its id
func (t *UnitTable) Add(u *Unit) UnitID {
	if len(u.entries) > 1 || u.sealed {
		panic("dwarfgen: unit must be added before it is populated")
	}
	u.id = UnitID(len(t.units))
	for _, e := range u.entries {
		e.id.unit = u.id
	}
	t.units = append(t.units, u)
	return u.id
}

// Get returns the unit for id
func (t *UnitTable) Get(id UnitID) *Unit {
	return t.units[id]
}

func (t *UnitTable) Len() int { return len(t.units) }

// Write serializes every unit into .debug_abbrev and .debug_info and seals them
func (t *UnitTable) Write(abbrev, info *Writer, strs StringOffsets) {
	for _, u := range t.units {
		u.write(abbrev, info, strs)
	}
}

type abbreviation struct {
	tag      dwarf.Tag
	children bool
	attrs    []attribute // value unused
}

type abbrevTable struct {
	list  []abbreviation
	index map[string]uint64
}

func (a *abbrevTable) code(e *Entry) uint64 {
	var key strings.Builder
	key.WriteString(strconv.FormatUint(uint64(e.tag), 16))
	if len(e.children) > 0 {
		key.WriteString("+")
	}
	for _, at := range e.attrs {
		fmt.Fprintf(&key, ",%x:%x", uint64(at.name), at.value.form())
	}
	if c, ok := a.index[key.String()]; ok {
		return c
	}
	a.list = append(a.list, abbreviation{tag: e.tag, children: len(e.children) > 0, attrs: e.attrs})
	c := uint64(len(a.list))
	a.index[key.String()] = c
	return c
}

func (a *abbrevTable) write(w *Writer) {
	for i, ab := range a.list {
		w.WriteULEB128(uint64(i + 1))
		w.WriteULEB128(uint64(ab.tag))
		if ab.children {
			w.WriteU8(1)
		} else {
			w.WriteU8(0)
		}
		for _, at := range ab.attrs {
			w.WriteULEB128(uint64(at.name))
			w.WriteULEB128(at.value.form())
		}
		w.WriteU8(0)
		w.WriteU8(0)
	}
	w.WriteU8(0)
}

type refFixup struct {
	at     int
	target int
}

func (u *Unit) write(abbrev, info *Writer, strs StringOffsets) {
	enc := u.encoding
	offSize := enc.offsetSize()
	start := info.Len()

	// unit_length is patched once the entries are written
	if enc.Format == Format64 {
		info.WriteU32(0xffffffff)
	}
	lengthAt := info.Len()
	info.WriteWord(0, offSize)
	info.WriteU16(enc.Version)
	abbrevAt := info.Len()
	info.WriteWord(0, offSize)
	info.WriteU8(enc.AddressSize)

	table := &abbrevTable{index: make(map[string]uint64)}
	offsets := make([]int, len(u.entries))
	var fixups []refFixup
	u.writeEntry(0, table, info, strs, offsets, &fixups)

	for _, f := range fixups {
		info.WriteWordAt(f.at, uint64(offsets[f.target]-start), 4)
	}
	info.WriteWordAt(lengthAt, uint64(info.Len()-lengthAt-int(offSize)), offSize)

	abbrevStart := abbrev.Len()
	table.write(abbrev)
	info.WriteOffsetAt(abbrevAt, uint64(abbrevStart), abbrev.Section(), offSize)

	u.sealed = true
}

func (u *Unit) writeEntry(index int, table *abbrevTable, w *Writer, strs StringOffsets, offsets []int, fixups *[]refFixup) {
	e := u.entries[index]
	offsets[index] = w.Len()
	w.WriteULEB128(table.code(e))
	for _, at := range e.attrs {
		u.writeValue(w, at.value, strs, fixups)
	}
	if len(e.children) == 0 {
		return
	}
	for _, c := range e.children {
		u.writeEntry(c, table, w, strs, offsets, fixups)
	}
	w.WriteU8(0)
}

func (u *Unit) writeValue(w *Writer, v AttributeValue, strs StringOffsets, fixups *[]refFixup) {
	enc := u.encoding
	switch v := v.(type) {
	case StringRef:
		w.WriteOffset(strs.Get(StringID(v)), SectionStr, enc.offsetSize())
	case Udata:
		w.WriteULEB128(uint64(v))
	case Data1:
		w.WriteU8(uint8(v))
	case Data2:
		w.WriteU16(uint16(v))
	case Data4:
		w.WriteU32(uint32(v))
	case Data8:
		w.WriteU64(uint64(v))
	case Block:
		w.WriteULEB128(uint64(len(v)))
		w.Write(v)
	case Absolute:
		w.WriteAddress(v, enc.AddressSize)
	case Relative:
		w.WriteAddress(v, enc.AddressSize)
	case EntryRef:
		target := u.Get(EntryID(v))
		*fixups = append(*fixups, refFixup{at: w.Len(), target: target.id.index})
		w.WriteU32(0)
	case Flag:
		if v {
			w.WriteU8(1)
		} else {
			w.WriteU8(0)
		}
	case LineProgramRef:
		w.WriteOffset(uint64(v), SectionLine, enc.offsetSize())
	default:
		panic(fmt.Sprintf("dwarfgen: unknown attribute value %T", v))
	}
}
