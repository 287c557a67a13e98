package dwarfgen

import (
	"bytes"
	"debug/dwarf"
	"encoding/binary"
	"io"
	"testing"

	"github.com/xyproto/clift/internal/engine"
)

func readLineEntries(t *testing.T, d *dwarf.Data) []dwarf.LineEntry {
	t.Helper()
	r := d.Reader()
	cu, err := r.Next()
	if err != nil || cu == nil {
		t.Fatalf("No compile unit: %v", err)
	}
	lr, err := d.LineReader(cu)
	if err != nil || lr == nil {
		t.Fatalf("LineReader failed: %v", err)
	}
	var entries []dwarf.LineEntry
	for {
		var le dwarf.LineEntry
		if err := lr.Next(&le); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("LineReader.Next failed: %v", err)
		}
		entries = append(entries, le)
	}
	return entries
}

// Two functions: A is exported with one instruction on line 10, B is local
// and has no instructions.
func TestEmitTwoFunctions(t *testing.T) {
	ctx := NewDebugContext(Options{Producer: "clift test", Name: "ab.md", CompDir: "/work"})

	a := ctx.StartFunction("A", DeclSite{File: "ab.md", Line: 9, Column: 1})
	a.SetLinkage(engine.LinkageExport)
	a.Finish(4, []InstBlock{{Offset: 0, Insts: []InstLoc{{Offset: 0, Loc: SourceLoc{File: "ab.md", Line: 10, Column: 1}}}}})

	b := ctx.StartFunction("B", DeclSite{File: "ab.md", Line: 20, Column: 1})
	b.SetLinkage(engine.LinkageLocal)
	b.Finish(0, []InstBlock{})

	secs := ctx.Emit()
	if len(secs) != 4 {
		t.Fatalf("Expected 4 sections, got %d", len(secs))
	}
	for i, name := range []string{SectionAbbrev, SectionInfo, SectionStr, SectionLine} {
		if secs[i].Name != name {
			t.Errorf("Section %d is %s, want %s", i, secs[i].Name, name)
		}
		assertZeroWindows(t, secs[i])
	}

	str, _ := secs.Get(SectionStr)
	for _, name := range []string{"A", "B"} {
		count := 0
		for _, part := range bytes.Split(str.Data, []byte{0}) {
			if string(part) == name {
				count++
			}
		}
		if count != 1 {
			t.Errorf("String %q appears %d times in .debug_str", name, count)
		}
	}

	line, _ := secs.Get(SectionLine)
	if len(line.Relocs) != 1 || line.Relocs[0].Name != "A" || line.Relocs[0].Size != 8 {
		t.Errorf("Expected one address relocation against A in .debug_line, got %+v", line.Relocs)
	}

	d, err := secs.DWARF(map[string]uint64{"A": 0x1000, "B": 0x2000}, binary.LittleEndian)
	if err != nil {
		t.Fatalf("DWARF failed: %v", err)
	}

	type sub struct {
		class    int64
		external bool
		low      uint64
		high     uint64
	}
	subs := make(map[string]sub)
	r := d.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			t.Fatalf("Reader.Next failed: %v", err)
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		name, _ := e.Val(dwarf.AttrName).(string)
		s := sub{}
		s.class, _ = e.Val(AttrLinkageClass).(int64)
		s.external, _ = e.Val(dwarf.AttrExternal).(bool)
		s.low, _ = e.Val(dwarf.AttrLowpc).(uint64)
		s.high, _ = e.Val(dwarf.AttrHighpc).(uint64)
		subs[name] = s
	}

	if len(subs) != 2 {
		t.Fatalf("Expected 2 subprograms, got %v", subs)
	}
	if got := subs["A"]; got != (sub{class: int64(engine.LinkageExport), external: true, low: 0x1000, high: 0x1004}) {
		t.Errorf("A = %+v", got)
	}
	if got := subs["B"]; got != (sub{class: int64(engine.LinkageLocal), external: false, low: 0x2000, high: 0x2000}) {
		t.Errorf("B = %+v", got)
	}

	rows := readLineEntries(t, d)
	if len(rows) != 2 {
		t.Fatalf("Expected one row plus end of sequence, got %+v", rows)
	}
	if rows[0].Address != 0x1000 || rows[0].Line != 10 || rows[0].EndSequence {
		t.Errorf("First row = %+v", rows[0])
	}
	if !rows[1].EndSequence || rows[1].Address != 0x1004 {
		t.Errorf("Second row = %+v", rows[1])
	}
}

func TestLineRowsSortedAndCollapsed(t *testing.T) {
	ctx := NewDebugContext(Options{Producer: "test"})
	fn := ctx.StartFunction("f", DeclSite{File: "f.md", Line: 1})

	loc := func(line uint64) SourceLoc { return SourceLoc{File: "f.md", Line: line, Column: 3} }
	// Blocks arrive in layout order, not code order
	fn.Finish(20, []InstBlock{
		{Offset: 8, Insts: []InstLoc{{8, loc(5)}, {12, loc(5)}, {14, loc(6)}}},
		{Offset: 0, Insts: []InstLoc{{0, loc(2)}, {4, SourceLoc{}}}},
	})

	seqs := ctx.LineProgram().Sequences()
	if len(seqs) != 1 {
		t.Fatalf("Expected 1 sequence, got %d", len(seqs))
	}
	want := []struct{ off, line uint64 }{{0, 2}, {8, 5}, {14, 6}}
	rows := seqs[0].Rows
	if len(rows) != len(want) {
		t.Fatalf("Got rows %+v", rows)
	}
	for i, w := range want {
		if rows[i].AddressOffset != w.off || rows[i].Line != w.line {
			t.Errorf("Row %d = %+v, want offset %d line %d", i, rows[i], w.off, w.line)
		}
		if i > 0 && rows[i].AddressOffset <= rows[i-1].AddressOffset {
			t.Errorf("Rows not strictly increasing at %d", i)
		}
	}
	if seqs[0].End != 20 {
		t.Errorf("Sequence ends at %d, want 20", seqs[0].End)
	}
	if start, ok := seqs[0].Start.(Relative); !ok || start.Symbol != fn.Symbol() || start.Addend != 0 {
		t.Errorf("Sequence start = %#v", seqs[0].Start)
	}

	d, err := ctx.Emit().DWARF(map[string]uint64{"f": 0x400}, binary.LittleEndian)
	if err != nil {
		t.Fatalf("DWARF failed: %v", err)
	}
	entries := readLineEntries(t, d)
	if len(entries) != 4 || !entries[3].EndSequence || entries[3].Address != 0x414 {
		t.Errorf("Line entries = %+v", entries)
	}
}

func TestSymbolsAreScopedToContext(t *testing.T) {
	first := NewDebugContext(Options{})
	f1 := first.StartFunction("a", DeclSite{})
	f2 := first.StartFunction("b", DeclSite{})
	second := NewDebugContext(Options{})
	g1 := second.StartFunction("c", DeclSite{})

	if f1.Symbol() == f2.Symbol() {
		t.Errorf("Symbols within one context must differ")
	}
	if g1.Symbol() != f1.Symbol() {
		t.Errorf("A new context should start its own symbol numbering")
	}
	if first.SymbolName(f2.Symbol()) != "b" || second.SymbolName(g1.Symbol()) != "c" {
		t.Errorf("SymbolName mismatch")
	}
}

func TestEmitTwicePanics(t *testing.T) {
	ctx := NewDebugContext(Options{Producer: "test"})
	ctx.Emit()
	mustPanic(t, "second emit", func() { ctx.Emit() })
}

func TestInstructionPastCodeSizePanics(t *testing.T) {
	ctx := NewDebugContext(Options{})
	fn := ctx.StartFunction("f", DeclSite{})
	mustPanic(t, "row past end", func() {
		fn.Finish(4, []InstBlock{{Insts: []InstLoc{{Offset: 4, Loc: SourceLoc{Line: 1}}}}})
	})
}

func TestFormat64Unit(t *testing.T) {
	ctx := NewDebugContext(Options{Producer: "test", Format: Format64})
	fn := ctx.StartFunction("f", DeclSite{File: "x", Line: 2})
	fn.Finish(2, []InstBlock{{Insts: []InstLoc{{Offset: 0, Loc: SourceLoc{File: "x", Line: 2}}}}})
	secs := ctx.Emit()

	info, _ := secs.Get(SectionInfo)
	for _, r := range info.Relocs {
		if (r.Name == SectionStr || r.Name == SectionAbbrev || r.Name == SectionLine) && r.Size != 8 {
			t.Errorf("Section offset relocation with size %d in a 64-bit unit", r.Size)
		}
	}
	if _, err := secs.DWARF(map[string]uint64{"f": 0}, binary.LittleEndian); err != nil {
		t.Fatalf("DWARF failed for 64-bit format: %v", err)
	}
}
