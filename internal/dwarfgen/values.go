package dwarfgen

// SymbolID names the code symbol a function's machine code will be placed at.
type SymbolID int

// Address is either Absolute or Relative.
type Address interface {
	isAddress()
}

// Absolute is an address that is already known.
type Absolute uint64

// Relative is an address expressed as code symbol plus addend.
type Relative struct {
	Symbol SymbolID
	Addend int64
}

func (Absolute) isAddress() {}
func (Relative) isAddress() {}

// DWARF form codes used by the serializer
const (
	formAddr      = 0x01
	formData2     = 0x05
	formData4     = 0x06
	formData8     = 0x07
	formBlock     = 0x09
	formData1     = 0x0b
	formFlag      = 0x0c
	formStrp      = 0x0e
	formUdata     = 0x0f
	formRef4      = 0x13
	formSecOffset = 0x17
)

// AttributeValue is the closed set of values an Entry attribute can hold:
// StringRef, Udata, Data1, Data2, Data4, Data8, Block, Absolute, Relative,
// EntryRef, Flag and LineProgramRef.
type AttributeValue interface {
	form() uint64
}

type (
	// StringRef refers to a string in the context's StringTable
	StringRef StringID
	// Udata is an unsigned LEB128 constant
	Udata uint64
	Data1 uint8
	Data2 uint16
	Data4 uint32
	Data8 uint64
	// Block is a raw, length-prefixed byte block
	Block []byte
	// EntryRef points at another entry of the same unit
	EntryRef EntryID
	Flag     bool
	// LineProgramRef is an offset into .debug_line
	LineProgramRef uint64
)

func (StringRef) form() uint64      { return formStrp }
func (Udata) form() uint64          { return formUdata }
func (Data1) form() uint64          { return formData1 }
func (Data2) form() uint64          { return formData2 }
func (Data4) form() uint64          { return formData4 }
func (Data8) form() uint64          { return formData8 }
func (Block) form() uint64          { return formBlock }
func (Absolute) form() uint64       { return formAddr }
func (Relative) form() uint64       { return formAddr }
func (EntryRef) form() uint64       { return formRef4 }
func (Flag) form() uint64           { return formFlag }
func (LineProgramRef) form() uint64 { return formSecOffset }
