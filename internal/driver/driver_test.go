package driver

import (
	"debug/dwarf"
	"debug/elf"
	"encoding/binary"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xyproto/clift/internal/clif"
	"github.com/xyproto/clift/internal/dwarfgen"
	"github.com/xyproto/clift/internal/engine"
	"github.com/xyproto/clift/internal/metadata"
	"github.com/xyproto/clift/internal/worklist"
	"github.com/xyproto/clift/internal/x64"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Target = engine.Platform{Arch: engine.ArchX86_64, OS: engine.OSLinux}
	cfg.Producer = "clift test"
	cfg.CompDir = "/work"
	return cfg
}

func TestMapLinkageTable(t *testing.T) {
	tests := []struct {
		l       Linkage
		v       Visibility
		want    engine.Linkage
		wantErr bool
	}{
		{LinkageExternal, VisibilityDefault, engine.LinkageExport, false},
		{LinkageInternal, VisibilityDefault, engine.LinkageLocal, false},
		{LinkageExternal, VisibilityHidden, engine.LinkageExport, false},
		{LinkageInternal, VisibilityHidden, 0, true},
	}
	for _, tt := range tests {
		got, err := MapLinkage(tt.l, tt.v)
		if tt.wantErr {
			var ce engine.CompilerError
			if !errors.As(err, &ce) || ce.Level != engine.LevelFatal {
				t.Errorf("MapLinkage(%s, %s): expected a fatal error, got %v", tt.l, tt.v, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("MapLinkage(%s, %s) = %s, %v; want %s", tt.l, tt.v, got, err, tt.want)
		}
	}
}

func TestBuildArgv(t *testing.T) {
	got := BuildArgv("a b", "prog")
	if strings.Join(got, "|") != "a|b|prog" {
		t.Errorf("BuildArgv = %q", got)
	}
	got = BuildArgv("", "prog")
	if len(got) != 2 || got[0] != "" || got[1] != "prog" {
		t.Errorf("BuildArgv with no args = %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig()
	if diags := cfg.Validate(); diags.HasErrors() || len(diags.Warnings()) != 0 {
		t.Fatalf("default config: %s", diags.Report(false))
	}

	cfg.CrateTypes = []CrateType{CrateBin, "dylb", "proc-macro"}
	cfg.LTO = "thin"
	cfg.RPath = true
	cfg.PGOGen = "/tmp/pgo"
	diags := cfg.Validate()
	if len(diags.Errors()) != 4 {
		t.Errorf("expected 4 errors, got:\n%s", diags.Report(false))
	}
	if len(diags.Warnings()) != 1 {
		t.Errorf("expected the lto warning, got %d warnings", len(diags.Warnings()))
	}
	if diags.Errors()[0].Context.Suggestion != "did you mean 'dylib'?" {
		t.Errorf("suggestion = %q", diags.Errors()[0].Context.Suggestion)
	}

	cfg = testConfig()
	cfg.Run = true
	cfg.CrateTypes = []CrateType{CrateLib}
	if !cfg.Validate().HasErrors() {
		t.Error("running a library should be rejected")
	}

	cfg = testConfig()
	cfg.OptLevel = "z"
	if diags := cfg.Validate(); diags.HasErrors() || len(diags.Warnings()) != 1 {
		t.Errorf("opt-level z should only warn, got:\n%s", diags.Report(false))
	}
	cfg.OptLevel = "fast"
	if !cfg.Validate().HasErrors() {
		t.Error("unknown opt-level should be rejected")
	}

	cfg = testConfig()
	cfg.Target.Arch = engine.ArchARM64
	if !cfg.Validate().HasErrors() {
		t.Error("arm64 code generation should be rejected")
	}
}

func TestPipelineRejectsSkippedStage(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic")
		}
	}()
	p := NewPipeline()
	p.AdvanceTo(StageCodegen)
	p.AdvanceTo(StageEmit)
}

type stubTranslator struct{}

func (stubTranslator) Translate(item WorkItem) (*clif.Function, error) {
	return &clif.Function{Name: item.Name, File: item.Decl.File}, nil
}

type stubGenerator map[string]*x64.Compiled

func (g stubGenerator) Compile(fn *clif.Function) (*x64.Compiled, error) {
	return g[fn.Name], nil
}

// A is external with one instruction on line 10; B is internal and has an
// empty instruction table.
func TestRunTwoFunctions(t *testing.T) {
	d := New(testConfig())
	d.Translator = stubTranslator{}
	d.Generator = stubGenerator{
		"A": {
			Code: []byte{0x90, 0x90, 0x90, 0xC3},
			Blocks: []dwarfgen.InstBlock{{Insts: []dwarfgen.InstLoc{
				{Offset: 0, Loc: dwarfgen.SourceLoc{File: "ab.md", Line: 10, Column: 1}},
			}}},
		},
		"B": {Blocks: []dwarfgen.InstBlock{}},
	}
	items := []WorkItem{
		{Name: "A", Linkage: LinkageExternal, Decl: dwarfgen.DeclSite{File: "ab.md", Line: 9, Column: 1}},
		{Name: "B", Linkage: LinkageInternal, Decl: dwarfgen.DeclSite{File: "ab.md", Line: 20, Column: 1}},
	}
	res, err := d.Run("ab", "ab.md", items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Items) != 2 || res.Items[0].Linkage != engine.LinkageExport || res.Items[1].Linkage != engine.LinkageLocal {
		t.Fatalf("items = %+v", res.Items)
	}

	data, err := res.Debug.DWARF(map[string]uint64{"A": 0x1000, "B": 0x2000}, binary.LittleEndian)
	if err != nil {
		t.Fatalf("DWARF: %v", err)
	}
	type sub struct {
		class    int64
		external bool
		low      uint64
		high     uint64
	}
	got := make(map[string]sub)
	r := data.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			t.Fatal(err)
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		name, _ := e.Val(dwarf.AttrName).(string)
		var s sub
		s.class, _ = e.Val(dwarfgen.AttrLinkageClass).(int64)
		s.external, _ = e.Val(dwarf.AttrExternal).(bool)
		s.low, _ = e.Val(dwarf.AttrLowpc).(uint64)
		s.high, _ = e.Val(dwarf.AttrHighpc).(uint64)
		got[name] = s
	}
	if got["A"] != (sub{0, true, 0x1000, 0x1004}) {
		t.Errorf("A = %+v", got["A"])
	}
	if got["B"] != (sub{1, false, 0x2000, 0x2000}) {
		t.Errorf("B = %+v", got["B"])
	}

	line, _ := res.Debug.Get(dwarfgen.SectionLine)
	if len(line.Relocs) != 1 || line.Relocs[0].Name != "A" {
		t.Errorf("line relocations = %+v", line.Relocs)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	d := New(testConfig())
	items := []WorkItem{
		{Name: "ok", Body: "(iconst 1) (return)", BodyLine: 3, Decl: dwarfgen.DeclSite{File: "f.md", Line: 1, Column: 1}},
		{Name: "bad", Body: "(iconst 1)\n(retrun)", BodyLine: 7, Decl: dwarfgen.DeclSite{File: "f.md", Line: 5, Column: 1}},
		{Name: "never", Body: "(nope)", BodyLine: 10},
	}
	_, err := d.Run("f", "f.md", items)
	var ce engine.CompilerError
	if !errors.As(err, &ce) {
		t.Fatalf("expected a CompilerError, got %v", err)
	}
	if ce.Context.Item != "bad" || ce.Category != engine.CategoryTranslation {
		t.Errorf("error names %q (%s)", ce.Context.Item, ce.Category)
	}
	if ce.Location.Line != 8 || ce.Location.Column != 1 {
		t.Errorf("location = %s", ce.Location)
	}
	if ce.Context.Suggestion != "did you mean 'return'?" {
		t.Errorf("suggestion = %q", ce.Context.Suggestion)
	}
}

func TestRunRejectsConflictingLinkage(t *testing.T) {
	d := New(testConfig())
	items := []WorkItem{
		{Name: "ok", Body: "(iconst 1) (return)", BodyLine: 2},
		{Name: "f", Linkage: LinkageInternal, Visibility: VisibilityHidden, Body: "(trap)", BodyLine: 6,
			Decl: dwarfgen.DeclSite{File: "f.md", Line: 4, Column: 1}},
	}
	_, err := d.Run("f", "f.md", items)
	var ce engine.CompilerError
	if !errors.As(err, &ce) || ce.Level != engine.LevelFatal {
		t.Fatalf("expected a fatal error, got %v", err)
	}
	if ce.Context.Item != "f" {
		t.Errorf("error names item %q, want f", ce.Context.Item)
	}
	if ce.Location.File != "f.md" || ce.Location.Line != 4 {
		t.Errorf("location = %s", ce.Location)
	}
}

const program = "# Program: demo\n" +
	"\n" +
	"## Item: add\n" +
	"\n" +
	"```item\n" +
	"linkage: internal\n" +
	"params: a b\n" +
	"```\n" +
	"\n" +
	"```clif\n" +
	"(arg 0) (arg 1) (iadd)\n" +
	"(return)\n" +
	"```\n" +
	"\n" +
	"## Item: main\n" +
	"\n" +
	"```item\n" +
	"params: argc argv\n" +
	"```\n" +
	"\n" +
	"```clif\n" +
	"(arg 0) (iconst 40) (call \"add\" 2)\n" +
	"(return)\n" +
	"```\n"

func compileProgram(t *testing.T, cfg Config) *Result {
	t.Helper()
	doc, err := worklist.Parse("demo.md", []byte(program))
	if err != nil {
		t.Fatal(err)
	}
	items, err := WorkItems(doc)
	if err != nil {
		t.Fatal(err)
	}
	res, err := New(cfg).Run(doc.Program, doc.File, items)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestWriteObject(t *testing.T) {
	res := compileProgram(t, testConfig())
	path := filepath.Join(t.TempDir(), "demo.o")
	if err := res.WriteObject(path); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}

	ef, err := elf.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer ef.Close()
	syms, _ := ef.Symbols()
	binding := make(map[string]elf.SymBind)
	for _, s := range syms {
		binding[s.Name] = elf.ST_BIND(s.Info)
	}
	if binding["main"] != elf.STB_GLOBAL || binding["add"] != elf.STB_LOCAL {
		t.Errorf("bindings = %v", binding)
	}

	d, err := ef.DWARF()
	if err != nil {
		t.Fatalf("DWARF: %v", err)
	}
	cu, _ := d.Reader().Next()
	lr, err := d.LineReader(cu)
	if err != nil || lr == nil {
		t.Fatalf("LineReader: %v", err)
	}
	lines := make(map[int]bool)
	var le dwarf.LineEntry
	for lr.Next(&le) == nil {
		lines[le.Line] = true
	}
	for _, want := range []int{11, 12, 22, 23} {
		if !lines[want] {
			t.Errorf("no line row for line %d, have %v", want, lines)
		}
	}

	raw, err := metadata.Load(path, metadata.IsMetadataSection)
	if err != nil {
		t.Fatalf("metadata.Load: %v", err)
	}
	m, err := metadata.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if m.Program != "demo" || strings.Join(m.Exported(), ",") != "main" {
		t.Errorf("manifest = %+v", m)
	}
}
