package module

import (
	"encoding/binary"

	"github.com/xyproto/clift/internal/engine"
)

const (
	stubSize = 8 // jmp [rip+disp32] padded with int3
	slotSize = 8
)

// linkedImage is the text plus one jump stub and one address slot per
// import. Calls to imports go through the stub, which jumps through the
// slot; slots are filled when the image is loaded.
type linkedImage struct {
	code  []byte
	slots map[string]int
}

func linkImports(text []byte, relocs []TextReloc, imports []string) linkedImage {
	code := append([]byte(nil), text...)
	for len(code) < engine.AlignUp(len(code), 16) {
		code = append(code, 0xCC)
	}
	stubBase := len(code)
	slotBase := stubBase + len(imports)*stubSize

	stubs := make(map[string]int, len(imports))
	slots := make(map[string]int, len(imports))
	for i, name := range imports {
		stub := stubBase + i*stubSize
		slot := slotBase + i*slotSize
		stubs[name] = stub
		slots[name] = slot

		var disp [4]byte
		binary.LittleEndian.PutUint32(disp[:], uint32(int32(slot-(stub+6))))
		code = append(code, 0xFF, 0x25)
		code = append(code, disp[:]...)
		code = append(code, 0xCC, 0xCC)
	}
	code = append(code, make([]byte, len(imports)*slotSize)...)

	for _, r := range relocs {
		putRel32(code, r.Offset, uint64(int64(stubs[r.Symbol])+r.Addend+4))
	}
	return linkedImage{code: code, slots: slots}
}
