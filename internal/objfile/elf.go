// Package objfile writes relocatable ELF64 object files.
package objfile

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/xyproto/clift/internal/dwarfgen"
	"github.com/xyproto/clift/internal/engine"
)

// Reloc patches Offset in its section with the address of Symbol, which
// names either a symbol or a section.
type Reloc struct {
	Offset uint64
	Symbol string
	Type   elf.R_X86_64
	Addend int64
}

// Section is a content section of the object
type Section struct {
	Name   string
	Type   elf.SectionType
	Flags  elf.SectionFlag
	Align  uint64
	Data   []byte
	Relocs []Reloc
}

// Symbol is a named location. An empty Section makes it undefined.
type Symbol struct {
	Name    string
	Section string
	Value   uint64
	Size    uint64
	Global  bool
	Func    bool
}

// File is an object under construction
type File struct {
	Machine  elf.Machine
	sections []*Section
	symbols  []Symbol
}

func New(machine elf.Machine) *File {
	return &File{Machine: machine}
}

// AddSection appends a section; names must be unique
func (f *File) AddSection(s Section) {
	for _, existing := range f.sections {
		if existing.Name == s.Name {
			panic(errors.Errorf("objfile: duplicate section %s", s.Name))
		}
	}
	if s.Type == elf.SHT_NULL {
		s.Type = elf.SHT_PROGBITS
	}
	if s.Align == 0 {
		s.Align = 1
	}
	f.sections = append(f.sections, &s)
}

func (f *File) AddSymbol(sym Symbol) {
	f.symbols = append(f.symbols, sym)
}

// Text returns a section header for machine code
func Text(code []byte, relocs []Reloc) Section {
	return Section{
		Name:   ".text",
		Type:   elf.SHT_PROGBITS,
		Flags:  elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		Align:  16,
		Data:   code,
		Relocs: relocs,
	}
}

// Debug converts an emitted debug section. Relocation widths map to the
// absolute 32 and 64-bit relocation types.
func Debug(s dwarfgen.Section) Section {
	out := Section{Name: s.Name, Type: elf.SHT_PROGBITS, Align: 1, Data: s.Data}
	for _, r := range s.Relocs {
		typ := elf.R_X86_64_64
		if r.Size == 4 {
			typ = elf.R_X86_64_32
		}
		out.Relocs = append(out.Relocs, Reloc{Offset: uint64(r.Offset), Symbol: r.Name, Type: typ, Addend: r.Addend})
	}
	return out
}

type stringTable struct {
	buf   bytes.Buffer
	index map[string]uint32
}

func newStringTable() *stringTable {
	st := &stringTable{index: map[string]uint32{"": 0}}
	st.buf.WriteByte(0)
	return st
}

func (st *stringTable) add(s string) uint32 {
	if off, ok := st.index[s]; ok {
		return off
	}
	off := uint32(st.buf.Len())
	st.buf.WriteString(s)
	st.buf.WriteByte(0)
	st.index[s] = off
	return off
}

type header struct {
	sh   elf.Section64
	data []byte
}

// WriteTo serializes the object
func (f *File) WriteTo(w io.Writer) (int64, error) {
	shstr := newStringTable()
	strtab := newStringTable()

	sectionIndex := make(map[string]uint32)
	headers := []*header{{}}
	for _, s := range f.sections {
		sectionIndex[s.Name] = uint32(len(headers))
		headers = append(headers, &header{
			sh: elf.Section64{
				Name:      shstr.add(s.Name),
				Type:      uint32(s.Type),
				Flags:     uint64(s.Flags),
				Size:      uint64(len(s.Data)),
				Addralign: s.Align,
			},
			data: s.Data,
		})
	}

	// Locals first: the null symbol, one per section, then local symbols
	syms := []elf.Sym64{{}}
	symIndex := make(map[string]uint32)
	sectionSym := make(map[string]uint32)
	for _, s := range f.sections {
		sectionSym[s.Name] = uint32(len(syms))
		syms = append(syms, elf.Sym64{
			Info:  elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION),
			Shndx: uint16(sectionIndex[s.Name]),
		})
	}
	addSym := func(sym Symbol) error {
		if _, dup := symIndex[sym.Name]; dup {
			return errors.Errorf("duplicate symbol %s", sym.Name)
		}
		bind := elf.STB_LOCAL
		if sym.Global {
			bind = elf.STB_GLOBAL
		}
		typ := elf.STT_NOTYPE
		if sym.Func {
			typ = elf.STT_FUNC
		}
		var shndx uint16
		if sym.Section != "" {
			idx, ok := sectionIndex[sym.Section]
			if !ok {
				return errors.Errorf("symbol %s refers to unknown section %s", sym.Name, sym.Section)
			}
			shndx = uint16(idx)
		}
		symIndex[sym.Name] = uint32(len(syms))
		syms = append(syms, elf.Sym64{
			Name:  strtab.add(sym.Name),
			Info:  elf.ST_INFO(bind, typ),
			Shndx: shndx,
			Value: sym.Value,
			Size:  sym.Size,
		})
		return nil
	}
	for _, sym := range f.symbols {
		if !sym.Global {
			if err := addSym(sym); err != nil {
				return 0, err
			}
		}
	}
	firstGlobal := uint32(len(syms))
	for _, sym := range f.symbols {
		if sym.Global {
			if err := addSym(sym); err != nil {
				return 0, err
			}
		}
	}

	symtabIndex := uint32(len(headers))
	for _, s := range f.sections {
		if len(s.Relocs) > 0 {
			symtabIndex++
		}
	}

	for _, s := range f.sections {
		if len(s.Relocs) == 0 {
			continue
		}
		var rela bytes.Buffer
		for _, r := range s.Relocs {
			idx, ok := symIndex[r.Symbol]
			if !ok {
				if idx, ok = sectionSym[r.Symbol]; !ok {
					return 0, errors.Errorf("section %s: relocation against unknown symbol %s", s.Name, r.Symbol)
				}
			}
			binary.Write(&rela, binary.LittleEndian, elf.Rela64{
				Off:    r.Offset,
				Info:   elf.R_INFO(idx, uint32(r.Type)),
				Addend: r.Addend,
			})
		}
		headers = append(headers, &header{
			sh: elf.Section64{
				Name:      shstr.add(".rela" + s.Name),
				Type:      uint32(elf.SHT_RELA),
				Flags:     uint64(elf.SHF_INFO_LINK),
				Link:      symtabIndex,
				Info:      sectionIndex[s.Name],
				Addralign: 8,
				Entsize:   24,
			},
			data: rela.Bytes(),
		})
	}

	var symtab bytes.Buffer
	for _, sym := range syms {
		binary.Write(&symtab, binary.LittleEndian, sym)
	}
	headers = append(headers, &header{
		sh: elf.Section64{
			Name:      shstr.add(".symtab"),
			Type:      uint32(elf.SHT_SYMTAB),
			Link:      symtabIndex + 1,
			Info:      firstGlobal,
			Addralign: 8,
			Entsize:   24,
		},
		data: symtab.Bytes(),
	})
	headers = append(headers, &header{
		sh:   elf.Section64{Name: shstr.add(".strtab"), Type: uint32(elf.SHT_STRTAB), Addralign: 1},
		data: strtab.buf.Bytes(),
	})
	headers = append(headers, &header{
		sh: elf.Section64{Name: shstr.add(".note.GNU-stack"), Type: uint32(elf.SHT_PROGBITS), Addralign: 1},
	})
	shstrndx := len(headers)
	shstrName := shstr.add(".shstrtab")
	headers = append(headers, &header{
		sh:   elf.Section64{Name: shstrName, Type: uint32(elf.SHT_STRTAB), Addralign: 1},
		data: shstr.buf.Bytes(),
	})

	var out bytes.Buffer
	out.Write(make([]byte, 64))
	for _, h := range headers[1:] {
		align := max(int(h.sh.Addralign), 1)
		for out.Len() < engine.AlignUp(out.Len(), align) {
			out.WriteByte(0)
		}
		h.sh.Off = uint64(out.Len())
		h.sh.Size = uint64(len(h.data))
		out.Write(h.data)
	}
	for out.Len() < engine.AlignUp(out.Len(), 8) {
		out.WriteByte(0)
	}
	shoff := out.Len()
	for _, h := range headers {
		binary.Write(&out, binary.LittleEndian, h.sh)
	}

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	ident[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)
	var hdr bytes.Buffer
	binary.Write(&hdr, binary.LittleEndian, elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_REL),
		Machine:   uint16(f.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     uint64(shoff),
		Ehsize:    64,
		Shentsize: 64,
		Shnum:     uint16(len(headers)),
		Shstrndx:  uint16(shstrndx),
	})
	data := out.Bytes()
	copy(data, hdr.Bytes())

	if engine.VerboseMode {
		engine.Debugf("objfile: %d sections, %d symbols, %d bytes", len(headers), len(syms), len(data))
	}
	n, err := w.Write(data)
	return int64(n), errors.Wrap(err, "write object")
}
