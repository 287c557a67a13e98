package clif

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xyproto/clift/internal/engine"
	"github.com/xyproto/clift/internal/sexpr"
)

// ParseError reports a problem in a function body
type ParseError struct {
	Loc        SourceLoc
	Msg        string
	Suggestion string
}

func (e *ParseError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (did you mean %s?)", e.Loc, e.Msg, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Loc, e.Msg)
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

// Parse reads a function body. firstLine is the document line of the first
// body line and is used for source positions.
func Parse(name, file string, params int, body string, firstLine int) (*Function, error) {
	f := &Function{Name: name, File: file, Params: params}
	var cur *Block

	for i, text := range strings.Split(body, "\n") {
		line := firstLine + i
		nodes, err := sexpr.ParseAll(text)
		if err != nil {
			return nil, &ParseError{Loc: SourceLoc{Line: line, Column: 1}, Msg: err.Error()}
		}
		for _, n := range nodes {
			loc := SourceLoc{Line: line, Column: n.Col}
			switch n.Head() {
			case "block":
				if len(n.Items) != 2 || n.Items[1].Type != sexpr.NodeSymbol {
					return nil, &ParseError{Loc: loc, Msg: "expected (block name)"}
				}
				cur = &Block{Name: n.Items[1].Text}
				f.Blocks = append(f.Blocks, cur)
				continue
			case "layout":
				if f.Layout != nil {
					return nil, &ParseError{Loc: loc, Msg: "duplicate layout"}
				}
				f.Layout = []string{}
				for _, item := range n.Items[1:] {
					if item.Type != sexpr.NodeSymbol {
						return nil, &ParseError{Loc: loc, Msg: "layout expects block names"}
					}
					f.Layout = append(f.Layout, item.Text)
				}
				continue
			}
			inst, err := parseInst(n, loc)
			if err != nil {
				return nil, err
			}
			if cur == nil {
				cur = &Block{Name: "entry"}
				f.Blocks = append(f.Blocks, cur)
			}
			cur.Insts = append(cur.Insts, inst)
		}
	}
	if len(f.Blocks) == 0 {
		return nil, &ParseError{Loc: SourceLoc{Line: firstLine}, Msg: fmt.Sprintf("function %s has no body", name)}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func parseInst(n *sexpr.Node, loc SourceLoc) (Inst, error) {
	var opName string
	var operands []*sexpr.Node
	switch n.Type {
	case sexpr.NodeSymbol:
		opName = n.Text
	case sexpr.NodeList:
		opName = n.Head()
		if opName == "" {
			return Inst{}, &ParseError{Loc: loc, Msg: fmt.Sprintf("expected instruction, got %s", n)}
		}
		operands = n.Items[1:]
	default:
		return Inst{}, &ParseError{Loc: loc, Msg: fmt.Sprintf("expected instruction, got %s", n)}
	}

	op, ok := opcodesByName[opName]
	if !ok {
		names := make([]string, 0, len(opcodesByName))
		for name := range opcodesByName {
			names = append(names, name)
		}
		sort.Strings(names)
		e := &ParseError{Loc: loc, Msg: fmt.Sprintf("unknown opcode %q", opName)}
		if similar := engine.FindSimilar(opName, names, 1); len(similar) > 0 {
			e.Suggestion = similar[0]
		}
		return Inst{}, e
	}

	inst := Inst{Op: op, Loc: loc}
	want := 0
	switch op {
	case OpIconst, OpArg, OpJump, OpBrz:
		want = 1
	case OpCall:
		want = 2
	}
	if len(operands) != want {
		return Inst{}, &ParseError{Loc: loc, Msg: fmt.Sprintf("%s takes %d operands, got %d", op, want, len(operands))}
	}

	var err error
	switch op {
	case OpIconst, OpArg:
		inst.Imm, err = operands[0].Int()
	case OpJump, OpBrz:
		if operands[0].Type != sexpr.NodeSymbol {
			err = fmt.Errorf("expected block name, got %s", operands[0])
		}
		inst.Target = operands[0].Text
	case OpCall:
		if operands[0].Type != sexpr.NodeString && operands[0].Type != sexpr.NodeSymbol {
			err = fmt.Errorf("expected callee name, got %s", operands[0])
		}
		inst.Callee = operands[0].Text
		if err == nil {
			inst.Imm, err = operands[1].Int()
		}
	}
	if err != nil {
		return Inst{}, &ParseError{Loc: loc, Msg: err.Error()}
	}
	return inst, nil
}
