package engine

import "fmt"

// Linkage is the output linkage class of a symbol
type Linkage uint8

const (
	LinkageExport Linkage = iota
	LinkageLocal
	LinkageImport
)

func (l Linkage) String() string {
	switch l {
	case LinkageExport:
		return "export"
	case LinkageLocal:
		return "local"
	case LinkageImport:
		return "import"
	default:
		return fmt.Sprintf("linkage(%d)", uint8(l))
	}
}

// ParseLinkage is the inverse of String
func ParseLinkage(s string) (Linkage, error) {
	switch s {
	case "export":
		return LinkageExport, nil
	case "local":
		return LinkageLocal, nil
	case "import":
		return LinkageImport, nil
	default:
		return 0, fmt.Errorf("unknown linkage class %q", s)
	}
}

// IsDefinable reports whether a symbol with this linkage can have a body
func (l Linkage) IsDefinable() bool {
	return l == LinkageExport || l == LinkageLocal
}

// Merge combines the linkage of an existing declaration with a new one.
// Import yields to anything; Export and Local cannot be mixed.
func (l Linkage) Merge(other Linkage) (Linkage, error) {
	switch {
	case l == other:
		return l, nil
	case l == LinkageImport:
		return other, nil
	case other == LinkageImport:
		return l, nil
	default:
		return l, fmt.Errorf("incompatible linkage: %s vs %s", l, other)
	}
}
