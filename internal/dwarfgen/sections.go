package dwarfgen

import (
	"debug/dwarf"
	"encoding/binary"

	"github.com/pkg/errors"
)

// Section names produced by Emit
const (
	SectionAbbrev = ".debug_abbrev"
	SectionInfo   = ".debug_info"
	SectionStr    = ".debug_str"
	SectionLine   = ".debug_line"
)

// Section is one serialized debug section with its pending relocations
type Section struct {
	Name   string
	Data   []byte
	Relocs []Reloc
}

// Sections are ordered abbrev, info, str, line
type Sections []Section

// Get looks a section up by name
func (s Sections) Get(name string) (Section, bool) {
	for _, sec := range s {
		if sec.Name == name {
			return sec, true
		}
	}
	return Section{}, false
}

// Resolve returns patched copies of every section. Symbol relocations are
// resolved through symbols; section relocations resolve against a section
// base of zero, which is where each standalone section starts.
func (s Sections) Resolve(symbols map[string]uint64, order binary.ByteOrder) (map[string][]byte, error) {
	out := make(map[string][]byte, len(s))
	for _, sec := range s {
		data := append([]byte(nil), sec.Data...)
		for _, r := range sec.Relocs {
			var base uint64
			if addr, ok := symbols[r.Name]; ok {
				base = addr
			} else if _, ok := s.Get(r.Name); !ok {
				return nil, errors.Errorf("%s: unresolved relocation against %q at %#x", sec.Name, r.Name, r.Offset)
			}
			v := base + uint64(r.Addend)
			window := data[r.Offset : r.Offset+uint32(r.Size)]
			switch r.Size {
			case 1:
				window[0] = uint8(v)
			case 2:
				order.PutUint16(window, uint16(v))
			case 4:
				order.PutUint32(window, uint32(v))
			case 8:
				order.PutUint64(window, v)
			default:
				return nil, errors.Errorf("%s: bad relocation size %d", sec.Name, r.Size)
			}
		}
		out[sec.Name] = data
	}
	return out, nil
}

// DWARF resolves the sections and loads them with debug/dwarf
func (s Sections) DWARF(symbols map[string]uint64, order binary.ByteOrder) (*dwarf.Data, error) {
	data, err := s.Resolve(symbols, order)
	if err != nil {
		return nil, err
	}
	d, err := dwarf.New(data[SectionAbbrev], nil, nil, data[SectionInfo], data[SectionLine], nil, nil, data[SectionStr])
	if err != nil {
		return nil, errors.Wrap(err, "load debug info")
	}
	return d, nil
}
