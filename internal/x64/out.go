package x64

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/xyproto/clift/internal/engine"
)

// Out accumulates machine code. In verbose mode each instruction is traced
// to stderr as its mnemonic followed by the encoded bytes.
type Out struct {
	buf *engine.SafeBuffer
}

func NewOut(name string) *Out {
	return &Out{buf: engine.NewSafeBuffer(name)}
}

func (o *Out) Len() int {
	return o.buf.Len()
}

func (o *Out) Bytes() []byte {
	return o.buf.Bytes()
}

func (o *Out) begin(format string, args ...any) {
	if engine.VerboseMode {
		fmt.Fprintf(os.Stderr, format+":", args...)
	}
}

func (o *Out) end() {
	if engine.VerboseMode {
		fmt.Fprintln(os.Stderr)
	}
}

// Write appends one byte
func (o *Out) Write(b uint8) {
	o.buf.WriteByte(b)
	if engine.VerboseMode {
		fmt.Fprintf(os.Stderr, " %x", b)
	}
}

func (o *Out) write32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	for _, b := range tmp {
		o.Write(b)
	}
}

func (o *Out) write64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	for _, b := range tmp {
		o.Write(b)
	}
}

// PatchRel32 stores target-(at+4) into the 4 bytes at at
func (o *Out) PatchRel32(at, target int) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(int32(target-(at+4))))
	o.buf.WriteAt(at, tmp[:])
}

// Finish seals the buffer and returns the code
func (o *Out) Finish() []byte {
	o.buf.Commit()
	return o.buf.Bytes()
}
