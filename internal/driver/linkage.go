package driver

import (
	"fmt"

	"github.com/xyproto/clift/internal/engine"
)

// Linkage is the linkage a work item asks for
type Linkage int

const (
	LinkageExternal Linkage = iota
	LinkageInternal
)

func (l Linkage) String() string {
	switch l {
	case LinkageExternal:
		return "external"
	case LinkageInternal:
		return "internal"
	default:
		return fmt.Sprintf("Linkage(%d)", int(l))
	}
}

func ParseLinkage(s string) (Linkage, error) {
	switch s {
	case "external":
		return LinkageExternal, nil
	case "internal":
		return LinkageInternal, nil
	}
	return 0, fmt.Errorf("unknown linkage %q (want external or internal)", s)
}

// Visibility is the symbol visibility a work item asks for
type Visibility int

const (
	VisibilityDefault Visibility = iota
	VisibilityHidden
)

func (v Visibility) String() string {
	switch v {
	case VisibilityDefault:
		return "default"
	case VisibilityHidden:
		return "hidden"
	default:
		return fmt.Sprintf("Visibility(%d)", int(v))
	}
}

func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "default":
		return VisibilityDefault, nil
	case "hidden":
		return VisibilityHidden, nil
	}
	return 0, fmt.Errorf("unknown visibility %q (want default or hidden)", s)
}

// MapLinkage maps a requested linkage and visibility to an output class.
// Hidden external items are exported; hidden visibility itself is not
// represented in the output.
func MapLinkage(l Linkage, v Visibility) (engine.Linkage, error) {
	switch {
	case l == LinkageExternal && v == VisibilityDefault:
		return engine.LinkageExport, nil
	case l == LinkageInternal && v == VisibilityDefault:
		return engine.LinkageLocal, nil
	case l == LinkageExternal && v == VisibilityHidden:
		return engine.LinkageExport, nil
	}
	return 0, engine.FatalError(fmt.Sprintf("no output linkage for %s linkage with %s visibility", l, v))
}
