// Package driver runs a compilation session: it maps each work item's
// linkage, translates and generates it, records its debug info, finalizes
// the module and then emits an object or runs main in-process.
package driver

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/xyproto/clift/internal/clif"
	"github.com/xyproto/clift/internal/dwarfgen"
	"github.com/xyproto/clift/internal/engine"
	"github.com/xyproto/clift/internal/metadata"
	"github.com/xyproto/clift/internal/module"
	"github.com/xyproto/clift/internal/worklist"
	"github.com/xyproto/clift/internal/x64"
)

const Version = "0.1.0"

// WorkItem is one function to compile
type WorkItem struct {
	Name       string
	Linkage    Linkage
	Visibility Visibility
	Params     []string
	Body       string
	BodyLine   int
	Decl       dwarfgen.DeclSite
}

func (w WorkItem) location() engine.SourceLocation {
	return engine.SourceLocation{File: w.Decl.File, Line: int(w.Decl.Line), Column: int(w.Decl.Column)}
}

// Translator turns a work item into generator IR
type Translator interface {
	Translate(item WorkItem) (*clif.Function, error)
}

// Generator turns generator IR into machine code
type Generator interface {
	Compile(fn *clif.Function) (*x64.Compiled, error)
}

// ClifTranslator parses the item body as clif text
type ClifTranslator struct{}

func (ClifTranslator) Translate(item WorkItem) (*clif.Function, error) {
	return clif.Parse(item.Name, item.Decl.File, len(item.Params), item.Body, item.BodyLine)
}

// WorkItems converts a parsed work list
func WorkItems(doc *worklist.Document) ([]WorkItem, error) {
	items := make([]WorkItem, 0, len(doc.Items))
	for _, it := range doc.Items {
		l, err := ParseLinkage(it.Linkage)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: item %s: %w", doc.File, it.Line, it.Name, err)
		}
		v, err := ParseVisibility(it.Visibility)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: item %s: %w", doc.File, it.Line, it.Name, err)
		}
		items = append(items, WorkItem{
			Name:       it.Name,
			Linkage:    l,
			Visibility: v,
			Params:     it.Params,
			Body:       it.Body,
			BodyLine:   it.BodyLine,
			Decl:       dwarfgen.DeclSite{File: doc.File, Line: uint64(it.Line), Column: 1},
		})
	}
	return items, nil
}

// Driver runs one session. Set Translator or Generator to replace the
// defaults before calling Run.
type Driver struct {
	Config     Config
	Translator Translator
	Generator  Generator
}

func New(cfg Config) *Driver {
	return &Driver{Config: cfg, Translator: ClifTranslator{}, Generator: x64.Generator{}}
}

// Run compiles items in order and finalizes the module. It stops at the
// first failing item.
func (d *Driver) Run(program, file string, items []WorkItem) (*Result, error) {
	cfg := d.Config
	if cfg.Program != "" {
		program = cfg.Program
	}
	p := NewPipeline()

	diags := cfg.Validate()
	if diags.HasErrors() {
		return nil, diags.Err()
	}

	mod := module.New(program)
	if cfg.Run {
		if _, err := mod.Declare("main", engine.LinkageImport); err != nil {
			return nil, engine.FatalError(err.Error())
		}
	}

	var dbg *dwarfgen.DebugContext
	if cfg.Debug {
		dbg = dwarfgen.NewDebugContext(dwarfgen.Options{
			AddressSize: cfg.Target.Arch.AddressSize(),
			ByteOrder:   cfg.Target.ByteOrder(),
			Producer:    cfg.Producer,
			Name:        file,
			CompDir:     cfg.CompDir,
		})
	}

	result := &Result{
		Program:  program,
		Config:   cfg,
		Module:   mod,
		Warnings: diags.Warnings(),
		pipeline: p,
	}

	p.AdvanceTo(StageCodegen)
	_, err := engine.Timed("codegen items", func() (struct{}, error) {
		for _, item := range items {
			ir, err := d.codegenItem(mod, dbg, item)
			if err != nil {
				return struct{}{}, err
			}
			result.Items = append(result.Items, ir)
		}
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}

	p.AdvanceTo(StageFinalize)
	if _, err := engine.Timed("finalize", func() (struct{}, error) {
		return struct{}{}, mod.Finalize()
	}); err != nil {
		return nil, engine.CompilerError{
			Level:    engine.LevelError,
			Category: engine.CategoryGeneration,
			Message:  "failed to finalize module " + program,
			Cause:    err,
		}
	}
	if cfg.Run {
		id, _ := mod.Lookup("main")
		if mod.Function(id).Linkage == engine.LinkageImport {
			return nil, engine.ConfigError("no main function to run")
		}
	}

	p.AdvanceTo(StageEmit)
	_, err = engine.Timed("emit", func() (struct{}, error) {
		if dbg != nil {
			result.Debug = dbg.Emit()
		}
		manifest := &metadata.Manifest{Program: program, Producer: cfg.Producer}
		for _, f := range mod.Functions() {
			manifest.Items = append(manifest.Items, metadata.ManifestItem{Name: f.Name, Linkage: f.Linkage})
		}
		result.Metadata = metadata.Encode(manifest)
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *Driver) codegenItem(mod *module.Module, dbg *dwarfgen.DebugContext, item WorkItem) (ItemResult, error) {
	class, err := MapLinkage(item.Linkage, item.Visibility)
	if err != nil {
		var ce engine.CompilerError
		if errors.As(err, &ce) {
			return ItemResult{}, ce.WithItem(item.Name, item.location())
		}
		return ItemResult{}, engine.ItemError(engine.CategoryInternal, item.Name, item.location(), err)
	}

	fn, err := d.Translator.Translate(item)
	if err != nil {
		ce := engine.ItemError(engine.CategoryTranslation, item.Name, item.location(), err)
		var pe *clif.ParseError
		if errors.As(err, &pe) {
			ce.Location = engine.SourceLocation{File: item.Decl.File, Line: pe.Loc.Line, Column: pe.Loc.Column}
			if pe.Suggestion != "" {
				ce.Context.Suggestion = fmt.Sprintf("did you mean '%s'?", pe.Suggestion)
			}
		}
		return ItemResult{}, ce
	}

	id, err := mod.Declare(item.Name, class)
	if err != nil {
		return ItemResult{}, engine.ItemError(engine.CategoryGeneration, item.Name, item.location(), err)
	}
	compiled, err := d.Generator.Compile(fn)
	if err != nil {
		return ItemResult{}, engine.ItemError(engine.CategoryGeneration, item.Name, item.location(), err)
	}
	if err := mod.Define(id, compiled); err != nil {
		return ItemResult{}, engine.ItemError(engine.CategoryGeneration, item.Name, item.location(), err)
	}

	if engine.VerboseMode {
		engine.Debugf("driver: %s: %s linkage, %d bytes", item.Name, class, len(compiled.Code))
		fmt.Fprintln(os.Stderr, strings.Join(x64.Disassemble(compiled.Code, 0), "\n"))
	}

	ir := ItemResult{Name: item.Name, Linkage: class, Size: uint64(len(compiled.Code))}
	if dbg != nil {
		fdc := dbg.StartFunction(item.Name, item.Decl)
		fdc.SetLinkage(class)
		for _, p := range item.Params {
			fdc.AddParameter(p)
		}
		fdc.Finish(uint64(len(compiled.Code)), compiled.Blocks)
	}
	return ir, nil
}

// BuildArgv splits jitArgs on single spaces and appends the program name
func BuildArgv(jitArgs, program string) []string {
	return append(strings.Split(jitArgs, " "), program)
}
