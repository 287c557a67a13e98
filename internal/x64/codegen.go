// Package x64 lowers clif functions to x86-64 machine code.
//
// The lowering is a direct stack machine: parameters are spilled below the
// frame pointer, every IR value lives on the machine stack, and binary
// operations pop into rax/rcx. Each block starts with only the spilled
// parameters on the stack, which the IR validator guarantees.
package x64

import (
	"fmt"
	"math"

	"github.com/xyproto/clift/internal/clif"
	"github.com/xyproto/clift/internal/dwarfgen"
	"github.com/xyproto/clift/internal/engine"
)

// CallReloc is a call site whose rel32 field must be linked to Callee
type CallReloc struct {
	Offset uint64 // offset of the rel32 field
	Callee string
}

// Compiled is the output of Compile for one function
type Compiled struct {
	Code []byte
	// Blocks is the instruction offset table in definition order. Offsets
	// are relative to the start of Code.
	Blocks []dwarfgen.InstBlock
	Calls  []CallReloc
}

// Generator compiles functions one at a time
type Generator struct{}

type branchFixup struct {
	at     int
	target int
}

// Compile validates fn and generates its code
func (Generator) Compile(fn *clif.Function) (*Compiled, error) {
	if err := fn.Validate(); err != nil {
		return nil, err
	}
	o := NewOut(fn.Name)
	if engine.VerboseMode {
		engine.Debugf("x64: compiling %s (%d blocks)", fn.Name, len(fn.Blocks))
	}

	o.PushReg(RBP)
	o.MovRegToReg(RBP, RSP)
	for i := 0; i < fn.Params; i++ {
		o.PushReg(ArgRegisters[i])
	}

	result := &Compiled{Blocks: make([]dwarfgen.InstBlock, len(fn.Blocks))}
	blockStart := make([]int, len(fn.Blocks))
	var fixups []branchFixup

	for _, bi := range fn.LayoutOrder() {
		b := fn.Blocks[bi]
		blockStart[bi] = o.Len()
		table := dwarfgen.InstBlock{Offset: uint64(o.Len())}
		depth := fn.Params

		for _, inst := range b.Insts {
			table.Insts = append(table.Insts, dwarfgen.InstLoc{
				Offset: uint64(o.Len()),
				Loc: dwarfgen.SourceLoc{
					File:   fn.File,
					Line:   uint64(inst.Loc.Line),
					Column: uint64(inst.Loc.Column),
				},
			})

			switch inst.Op {
			case clif.OpIconst:
				if inst.Imm >= math.MinInt32 && inst.Imm <= math.MaxInt32 {
					o.PushImm32(int32(inst.Imm))
				} else {
					o.MovImm64(RAX, inst.Imm)
					o.PushReg(RAX)
				}
				depth++
			case clif.OpArg:
				o.PushLocal(int8(-8 * (inst.Imm + 1)))
				depth++
			case clif.OpIadd, clif.OpIsub, clif.OpImul:
				o.PopReg(RCX)
				o.PopReg(RAX)
				switch inst.Op {
				case clif.OpIadd:
					o.AddRegToReg(RAX, RCX)
				case clif.OpIsub:
					o.SubRegFromReg(RAX, RCX)
				default:
					o.ImulRegWithReg(RAX, RCX)
				}
				o.PushReg(RAX)
				depth--
			case clif.OpCall:
				argc := int(inst.Imm)
				for i := argc - 1; i >= 0; i-- {
					o.PopReg(ArgRegisters[i])
				}
				depth -= argc
				// rbp is 16-byte aligned, so rsp is aligned at an even depth
				pad := depth%2 != 0
				if pad {
					o.AdjustStack(-8)
				}
				at := o.CallRelative(0)
				result.Calls = append(result.Calls, CallReloc{Offset: uint64(at), Callee: inst.Callee})
				if pad {
					o.AdjustStack(8)
				}
				o.PushReg(RAX)
				depth++
			case clif.OpJump:
				target, _ := fn.BlockIndex(inst.Target)
				fixups = append(fixups, branchFixup{at: o.JumpUnconditional(0), target: target})
			case clif.OpBrz:
				o.PopReg(RAX)
				o.TestRegReg(RAX, RAX)
				target, _ := fn.BlockIndex(inst.Target)
				fixups = append(fixups, branchFixup{at: o.JumpIfZero(0), target: target})
				depth--
			case clif.OpReturn:
				o.PopReg(RAX)
				o.Leave()
				o.Ret()
				depth--
			case clif.OpTrap:
				o.Ud2()
			default:
				return nil, fmt.Errorf("%s: cannot lower %s", fn.Name, inst.Op)
			}
		}
		result.Blocks[bi] = table
	}

	for _, f := range fixups {
		o.PatchRel32(f.at, blockStart[f.target])
	}
	result.Code = o.Finish()
	return result, nil
}
