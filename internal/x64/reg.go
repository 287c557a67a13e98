package x64

// Register is a 64-bit general purpose register
type Register struct {
	Name     string
	Encoding uint8
}

// Extended reports whether the register needs a REX.B/REX.R bit
func (r Register) Extended() bool {
	return r.Encoding >= 8
}

var (
	RAX = Register{"rax", 0}
	RCX = Register{"rcx", 1}
	RDX = Register{"rdx", 2}
	RBX = Register{"rbx", 3}
	RSP = Register{"rsp", 4}
	RBP = Register{"rbp", 5}
	RSI = Register{"rsi", 6}
	RDI = Register{"rdi", 7}
	R8  = Register{"r8", 8}
	R9  = Register{"r9", 9}
	R10 = Register{"r10", 10}
	R11 = Register{"r11", 11}
)

// ArgRegisters are the System V integer argument registers in order
var ArgRegisters = [...]Register{RDI, RSI, RDX, RCX, R8, R9}
