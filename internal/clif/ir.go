// Package clif is the generator IR: functions made of named blocks of
// stack-machine instructions, each carrying an optional source position.
package clif

import (
	"fmt"
	"strings"
)

// Opcode identifies an instruction
type Opcode int

const (
	OpIconst Opcode = iota // push immediate
	OpArg                  // push parameter Imm
	OpIadd
	OpIsub
	OpImul
	OpCall   // pop Imm arguments, call Callee, push result
	OpJump   // jump to Target
	OpBrz    // pop; jump to Target when zero
	OpReturn // pop and return
	OpTrap
)

var opcodeNames = map[Opcode]string{
	OpIconst: "iconst",
	OpArg:    "arg",
	OpIadd:   "iadd",
	OpIsub:   "isub",
	OpImul:   "imul",
	OpCall:   "call",
	OpJump:   "jump",
	OpBrz:    "brz",
	OpReturn: "return",
	OpTrap:   "trap",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// IsTerminator reports whether op ends a block
func (op Opcode) IsTerminator() bool {
	return op == OpJump || op == OpReturn || op == OpTrap
}

// MaxArgs is the number of integer argument registers
const MaxArgs = 6

// SourceLoc is a line/column pair; Line 0 means unknown
type SourceLoc struct {
	Line   int
	Column int
}

func (l SourceLoc) String() string {
	if l.Line == 0 {
		return "?"
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// Inst is one IR instruction
type Inst struct {
	Op     Opcode
	Imm    int64
	Callee string
	Target string
	Loc    SourceLoc
}

func (i Inst) String() string {
	switch i.Op {
	case OpIconst, OpArg:
		return fmt.Sprintf("(%s %d)", i.Op, i.Imm)
	case OpCall:
		return fmt.Sprintf("(%s %q %d)", i.Op, i.Callee, i.Imm)
	case OpJump, OpBrz:
		return fmt.Sprintf("(%s %s)", i.Op, i.Target)
	default:
		return fmt.Sprintf("(%s)", i.Op)
	}
}

// Block is a named straight-line sequence ending in a terminator
type Block struct {
	Name  string
	Insts []Inst
}

// Function is the unit handed to the code generator
type Function struct {
	Name   string
	File   string
	Params int
	Blocks []*Block // definition order
	Layout []string // code order; empty means definition order
}

// BlockIndex returns the definition index of the named block
func (f *Function) BlockIndex(name string) (int, bool) {
	for i, b := range f.Blocks {
		if b.Name == name {
			return i, true
		}
	}
	return 0, false
}

// LayoutOrder returns block indices in the order they are placed in memory
func (f *Function) LayoutOrder() []int {
	order := make([]int, 0, len(f.Blocks))
	if len(f.Layout) == 0 {
		for i := range f.Blocks {
			order = append(order, i)
		}
		return order
	}
	for _, name := range f.Layout {
		i, _ := f.BlockIndex(name)
		order = append(order, i)
	}
	return order
}

// Validate checks block structure, branch targets and operand stack depth
func (f *Function) Validate() error {
	if f.Params > MaxArgs {
		return fmt.Errorf("%s: %d parameters, at most %d supported", f.Name, f.Params, MaxArgs)
	}
	seen := make(map[string]bool)
	for _, b := range f.Blocks {
		if seen[b.Name] {
			return fmt.Errorf("%s: duplicate block %s", f.Name, b.Name)
		}
		seen[b.Name] = true
	}
	if len(f.Layout) > 0 {
		if len(f.Layout) != len(f.Blocks) {
			return fmt.Errorf("%s: layout lists %d blocks, function has %d", f.Name, len(f.Layout), len(f.Blocks))
		}
		placed := make(map[string]bool)
		for _, name := range f.Layout {
			if !seen[name] || placed[name] {
				return fmt.Errorf("%s: bad layout entry %s", f.Name, name)
			}
			placed[name] = true
		}
		if f.Layout[0] != f.Blocks[0].Name {
			return fmt.Errorf("%s: layout must start with the entry block %s", f.Name, f.Blocks[0].Name)
		}
	}

	for _, b := range f.Blocks {
		if len(b.Insts) == 0 {
			return fmt.Errorf("%s: block %s is empty", f.Name, b.Name)
		}
		depth := 0
		for idx, inst := range b.Insts {
			at := func(format string, args ...any) error {
				return fmt.Errorf("%s: %s at %s: %s", f.Name, inst, inst.Loc, fmt.Sprintf(format, args...))
			}
			pop := 0
			push := 0
			switch inst.Op {
			case OpIconst:
				push = 1
			case OpArg:
				if inst.Imm < 0 || inst.Imm >= int64(f.Params) {
					return at("no parameter %d", inst.Imm)
				}
				push = 1
			case OpIadd, OpIsub, OpImul:
				pop, push = 2, 1
			case OpCall:
				if inst.Imm < 0 || inst.Imm > MaxArgs {
					return at("call with %d arguments", inst.Imm)
				}
				pop, push = int(inst.Imm), 1
			case OpJump, OpBrz:
				if !seen[inst.Target] {
					return at("unknown block %s", inst.Target)
				}
				if inst.Op == OpBrz {
					pop = 1
				}
			case OpReturn:
				pop = 1
			case OpTrap:
			default:
				return at("unknown opcode")
			}
			if depth < pop {
				return at("operand stack underflow")
			}
			depth += push - pop
			if (inst.Op == OpJump || inst.Op == OpBrz) && depth != 0 {
				return at("operand stack must be empty at a branch, has %d values", depth)
			}
			if inst.Op == OpReturn && depth != 0 {
				return at("return leaves %d values on the stack", depth)
			}
			if inst.Op.IsTerminator() != (idx == len(b.Insts)-1) {
				if inst.Op.IsTerminator() {
					return at("terminator in the middle of block %s", b.Name)
				}
				return fmt.Errorf("%s: block %s does not end with jump, return or trap", f.Name, b.Name)
			}
		}
	}
	return nil
}

// String prints the function in its textual form
func (f *Function) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s (%d params)\n", f.Name, f.Params)
	if len(f.Layout) > 0 {
		fmt.Fprintf(&sb, "(layout %s)\n", strings.Join(f.Layout, " "))
	}
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "(block %s)\n", b.Name)
		for _, inst := range b.Insts {
			sb.WriteString("  ")
			sb.WriteString(inst.String())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
