package driver

import (
	"debug/dwarf"
	"debug/elf"
	"os"

	"github.com/pkg/errors"

	"github.com/xyproto/clift/internal/dwarfgen"
	"github.com/xyproto/clift/internal/engine"
	"github.com/xyproto/clift/internal/metadata"
	"github.com/xyproto/clift/internal/module"
	"github.com/xyproto/clift/internal/objfile"
)

// ItemResult summarizes one compiled work item
type ItemResult struct {
	Name    string
	Linkage engine.Linkage
	Size    uint64
}

// Result is a finalized session, ready to be written or executed
type Result struct {
	Program  string
	Config   Config
	Module   *module.Module
	Items    []ItemResult
	Debug    dwarfgen.Sections // nil when debug info is disabled
	Metadata []byte
	Warnings []engine.CompilerError

	pipeline *Pipeline
}

// Addresses returns the text offset of every defined function
func (r *Result) Addresses() map[string]uint64 {
	addrs := make(map[string]uint64)
	for _, f := range r.Module.Functions() {
		if f.Code != nil {
			addrs[f.Name] = f.Offset
		}
	}
	return addrs
}

// DWARF reads the emitted debug info back with functions placed at their
// text offsets
func (r *Result) DWARF() (*dwarf.Data, error) {
	if r.Debug == nil {
		return nil, errors.New("debug info was not generated")
	}
	return r.Debug.DWARF(r.Addresses(), r.Config.Target.ByteOrder())
}

// Object assembles the relocatable object for the session
func (r *Result) Object() *objfile.File {
	f := objfile.New(r.Config.Target.Arch.ELFMachine())

	var relocs []objfile.Reloc
	for _, tr := range r.Module.TextRelocs() {
		relocs = append(relocs, objfile.Reloc{Offset: tr.Offset, Symbol: tr.Symbol, Type: elf.R_X86_64_PLT32, Addend: tr.Addend})
	}
	f.AddSection(objfile.Text(r.Module.Text(), relocs))
	f.AddSection(objfile.Section{Name: metadata.SectionName, Data: r.Metadata})
	for _, s := range r.Debug {
		f.AddSection(objfile.Debug(s))
	}

	for _, fn := range r.Module.Functions() {
		if fn.Code == nil {
			f.AddSymbol(objfile.Symbol{Name: fn.Name, Global: true})
			continue
		}
		f.AddSymbol(objfile.Symbol{
			Name:    fn.Name,
			Section: ".text",
			Value:   fn.Offset,
			Size:    fn.Size(),
			Global:  fn.Linkage == engine.LinkageExport,
			Func:    true,
		})
	}
	return f
}

// WriteObject writes the object file to path and completes the session
func (r *Result) WriteObject(path string) error {
	r.pipeline.AdvanceTo(StageComplete)
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create object")
	}
	if _, err := r.Object().WriteTo(out); err != nil {
		out.Close()
		return engine.CompilerError{
			Level:    engine.LevelError,
			Category: engine.CategorySerialization,
			Message:  "failed to write " + path,
			Cause:    err,
		}
	}
	return errors.Wrap(out.Close(), "close object")
}

// Execute runs main in-process with argv and returns its exit code
func (r *Result) Execute(argv []string) (int, error) {
	r.pipeline.AdvanceTo(StageExecute)
	img, err := r.Module.Load(nil)
	if err != nil {
		return 0, errors.Wrap(err, "load module")
	}
	defer img.Close()

	engine.Debugf("driver: running main of %s with %q", r.Program, argv)
	code, err := img.CallMain(argv)
	r.pipeline.AdvanceTo(StageComplete)
	return code, err
}
