// Package module collects compiled functions, links calls between them and
// lays out the final text, either for an object file or for in-process
// execution.
package module

import (
	"github.com/pkg/errors"

	"github.com/xyproto/clift/internal/engine"
	"github.com/xyproto/clift/internal/x64"
)

// FuncID identifies a declared function
type FuncID int

// Function is a declared function and, once defined, its code
type Function struct {
	Name    string
	Linkage engine.Linkage
	Code    *x64.Compiled
	Offset  uint64 // valid after Finalize
}

// Size returns the code size, or 0 for undefined functions
func (f *Function) Size() uint64 {
	if f.Code == nil {
		return 0
	}
	return uint64(len(f.Code.Code))
}

// TextReloc is a rel32 call site left for the linker: P is Offset, the
// value is S + Addend - P.
type TextReloc struct {
	Offset uint64
	Symbol string
	Addend int64
}

const funcAlign = 16

// Module is used by a single goroutine
type Module struct {
	name      string
	funcs     []*Function
	index     map[string]FuncID
	finalized bool
	text      []byte
	relocs    []TextReloc
}

func New(name string) *Module {
	return &Module{name: name, index: make(map[string]FuncID)}
}

func (m *Module) Name() string { return m.name }

// Declare registers name with a linkage. Declaring a name again merges the
// linkages: an import yields to a definition, export and local conflict.
func (m *Module) Declare(name string, linkage engine.Linkage) (FuncID, error) {
	if m.finalized {
		return 0, errors.Errorf("module %s: declare %s after finalize", m.name, name)
	}
	if id, ok := m.index[name]; ok {
		f := m.funcs[id]
		merged, err := f.Linkage.Merge(linkage)
		if err != nil {
			return 0, errors.Wrapf(err, "declare %s", name)
		}
		f.Linkage = merged
		return id, nil
	}
	id := FuncID(len(m.funcs))
	m.funcs = append(m.funcs, &Function{Name: name, Linkage: linkage})
	m.index[name] = id
	if engine.VerboseMode {
		engine.Debugf("module: declare %s as %s", name, linkage)
	}
	return id, nil
}

// Define attaches code to a declared function
func (m *Module) Define(id FuncID, code *x64.Compiled) error {
	f := m.Function(id)
	switch {
	case m.finalized:
		return errors.Errorf("module %s: define %s after finalize", m.name, f.Name)
	case !f.Linkage.IsDefinable():
		return errors.Errorf("cannot define imported function %s", f.Name)
	case f.Code != nil:
		return errors.Errorf("function %s is defined twice", f.Name)
	}
	f.Code = code
	return nil
}

// Function returns the function for id; ids come from Declare
func (m *Module) Function(id FuncID) *Function {
	if id < 0 || int(id) >= len(m.funcs) {
		panic(errors.Errorf("module %s: no function with id %d", m.name, id))
	}
	return m.funcs[id]
}

// Lookup finds a declared function by name
func (m *Module) Lookup(name string) (FuncID, bool) {
	id, ok := m.index[name]
	return id, ok
}

// Functions returns all functions in declaration order
func (m *Module) Functions() []*Function {
	return m.funcs
}

// Imports returns the names of functions that stay undefined after Finalize
func (m *Module) Imports() []string {
	var names []string
	for _, f := range m.funcs {
		if f.Linkage == engine.LinkageImport {
			names = append(names, f.Name)
		}
	}
	return names
}

// Text returns the linked code of all defined functions
func (m *Module) Text() []byte {
	m.mustBeFinalized()
	return m.text
}

// TextRelocs returns the call sites that target imports
func (m *Module) TextRelocs() []TextReloc {
	m.mustBeFinalized()
	return m.relocs
}

func (m *Module) mustBeFinalized() {
	if !m.finalized {
		panic(errors.Errorf("module %s is not finalized", m.name))
	}
}

// Finalize lays out every defined function and resolves calls. Calls to
// undeclared names declare them as imports.
func (m *Module) Finalize() error {
	if m.finalized {
		return errors.Errorf("module %s is already finalized", m.name)
	}
	for _, f := range m.funcs {
		if f.Linkage.IsDefinable() && f.Code == nil {
			return errors.Errorf("function %s is declared %s but never defined", f.Name, f.Linkage)
		}
	}

	var text []byte
	defined := make([]*Function, 0, len(m.funcs))
	for _, f := range m.funcs {
		if f.Code == nil {
			continue
		}
		for len(text) < engine.AlignUp(len(text), funcAlign) {
			text = append(text, 0xCC)
		}
		f.Offset = uint64(len(text))
		text = append(text, f.Code.Code...)
		defined = append(defined, f)
	}

	for _, f := range defined {
		for _, call := range f.Code.Calls {
			at := f.Offset + call.Offset
			id, ok := m.index[call.Callee]
			if !ok {
				var err error
				if id, err = m.Declare(call.Callee, engine.LinkageImport); err != nil {
					return err
				}
			}
			callee := m.funcs[id]
			if callee.Code == nil {
				m.relocs = append(m.relocs, TextReloc{Offset: at, Symbol: callee.Name, Addend: -4})
				continue
			}
			putRel32(text, at, callee.Offset)
		}
	}

	m.text = text
	m.finalized = true
	if engine.VerboseMode {
		engine.Debugf("module: finalized %s: %d bytes, %d functions, %d import calls", m.name, len(text), len(defined), len(m.relocs))
	}
	return nil
}

func putRel32(code []byte, at, target uint64) {
	v := uint32(int32(int64(target) - int64(at+4)))
	code[at] = byte(v)
	code[at+1] = byte(v >> 8)
	code[at+2] = byte(v >> 16)
	code[at+3] = byte(v >> 24)
}
