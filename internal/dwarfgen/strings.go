package dwarfgen

// StringID is a handle into a StringTable
type StringID int

// StringTable interns strings for .debug_str. It is append-only.
type StringTable struct {
	strs  []string
	index map[string]StringID
}

func NewStringTable() *StringTable {
	return &StringTable{index: make(map[string]StringID)}
}

// Add interns s and returns its id; equal strings share one id
func (t *StringTable) Add(s string) StringID {
	if id, ok := t.index[s]; ok {
		return id
	}
	id := StringID(len(t.strs))
	t.strs = append(t.strs, s)
	t.index[s] = id
	return id
}

// Get returns the string for id
func (t *StringTable) Get(id StringID) string {
	return t.strs[id]
}

// Len returns the number of distinct strings
func (t *StringTable) Len() int {
	return len(t.strs)
}

// StringOffsets maps a StringID to its offset in .debug_str
type StringOffsets []uint64

// Get returns the offset for id, panicking on a dangling reference
func (o StringOffsets) Get(id StringID) uint64 {
	if int(id) < 0 || int(id) >= len(o) {
		panic("dwarfgen: dangling string reference")
	}
	return o[id]
}

// Write serializes every string in insertion order
func (t *StringTable) Write(w *Writer) StringOffsets {
	offsets := make(StringOffsets, len(t.strs))
	for i, s := range t.strs {
		offsets[i] = uint64(w.Len())
		w.WriteCString(s)
	}
	return offsets
}
