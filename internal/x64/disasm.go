package x64

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Disassemble renders code, loaded at pc, one instruction per line in GNU
// syntax. Undecodable bytes are shown as "?".
func Disassemble(code []byte, pc uint64) []string {
	var lines []string
	for off := 0; off < len(code); {
		inst, err := x86asm.Decode(code[off:], 64)
		size := inst.Len
		var text string
		if err != nil || size == 0 || inst.Op == 0 {
			size = 1
			text = "?"
		} else {
			text = x86asm.GNUSyntax(inst, pc+uint64(off), nil)
		}
		var hex strings.Builder
		for _, b := range code[off : off+size] {
			fmt.Fprintf(&hex, "%02x ", b)
		}
		lines = append(lines, fmt.Sprintf("%8x:  %-30s %s", pc+uint64(off), hex.String(), text))
		off += size
	}
	return lines
}
