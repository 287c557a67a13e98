package x64

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xyproto/clift/internal/clif"
)

func compile(t *testing.T, params int, body string) *Compiled {
	t.Helper()
	fn, err := clif.Parse("f", "f.md", params, body, 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c, err := Generator{}.Compile(fn)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return c
}

func TestCompileAdd(t *testing.T) {
	c := compile(t, 2, "(arg 0) (arg 1) (iadd) (return)")
	want := []byte{
		0x55, 0x48, 0x89, 0xE5, 0x57, 0x56, // prologue and spills
		0xFF, 0x75, 0xF8, 0xFF, 0x75, 0xF0, // arg 0, arg 1
		0x59, 0x58, 0x48, 0x01, 0xC8, 0x50, // iadd
		0x58, 0xC9, 0xC3, // return
	}
	if !bytes.Equal(c.Code, want) {
		t.Fatalf("code = % x, want % x", c.Code, want)
	}
	if len(c.Blocks) != 1 {
		t.Fatalf("got %d blocks", len(c.Blocks))
	}
	wantOffsets := []uint64{6, 9, 12, 18}
	for i, inst := range c.Blocks[0].Insts {
		if inst.Offset != wantOffsets[i] {
			t.Errorf("inst %d offset = %d, want %d", i, inst.Offset, wantOffsets[i])
		}
		if inst.Loc.File != "f.md" || inst.Loc.Line != 1 {
			t.Errorf("inst %d location = %+v", i, inst.Loc)
		}
	}
	if c.Blocks[0].Insts[2].Loc.Column != 17 {
		t.Errorf("iadd column = %d", c.Blocks[0].Insts[2].Loc.Column)
	}
}

func TestCompileLayoutReordersBlocks(t *testing.T) {
	c := compile(t, 0, "(layout entry b a)\n(block entry)\n(jump a)\n(block a)\n(iconst 1) (return)\n(block b)\n(trap)")
	if c.Blocks[1].Offset != 11 || c.Blocks[2].Offset != 9 {
		t.Fatalf("block offsets a=%d b=%d", c.Blocks[1].Offset, c.Blocks[2].Offset)
	}
	// jmp rel32 at 5 lands on block a at 11
	if !bytes.Equal(c.Code[4:9], []byte{0xE9, 0x02, 0, 0, 0}) {
		t.Fatalf("jump = % x", c.Code[4:9])
	}
	if c.Blocks[1].Insts[0].Loc.Line != 5 {
		t.Errorf("block a line = %d", c.Blocks[1].Insts[0].Loc.Line)
	}
}

func TestCompileCallRelocAndAlignment(t *testing.T) {
	c := compile(t, 0, `(iconst 7) (call "puts" 1) (return)`)
	if len(c.Calls) != 1 || c.Calls[0].Callee != "puts" || c.Calls[0].Offset != 11 {
		t.Fatalf("calls = %+v", c.Calls)
	}
	if c.Code[9] != 0x5F || c.Code[10] != 0xE8 {
		t.Fatalf("expected pop rdi; call, got % x", c.Code[9:11])
	}

	padded := compile(t, 1, `(iconst 2) (call "f" 1) (return)`)
	sub := []byte{0x48, 0x83, 0xEC, 0x08}
	add := []byte{0x48, 0x83, 0xC4, 0x08}
	if !bytes.Contains(padded.Code, sub) || !bytes.Contains(padded.Code, add) {
		t.Fatalf("expected stack padding around the call: % x", padded.Code)
	}
}

func TestCompileBigConstant(t *testing.T) {
	c := compile(t, 0, "(iconst 0x123456789) (return)")
	if !bytes.Equal(c.Code[4:6], []byte{0x48, 0xB8}) {
		t.Fatalf("expected movabs, got % x", c.Code[4:6])
	}
}

func TestDisassemble(t *testing.T) {
	c := compile(t, 2, "(arg 0) (arg 1) (iadd) (return)")
	lines := Disassemble(c.Code, 0x1000)
	if len(lines) != 13 {
		t.Fatalf("got %d lines:\n%s", len(lines), strings.Join(lines, "\n"))
	}
	if !strings.Contains(lines[0], "1000:") || !strings.Contains(lines[0], "push") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[12], "ret") {
		t.Errorf("last line = %q", lines[12])
	}
}
