package metadata

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/xyproto/clift/internal/engine"
)

const magic = "CLIFMETA1"

// Manifest lists the functions a compiled program defines or imports
type Manifest struct {
	Program  string
	Producer string
	Items    []ManifestItem
}

type ManifestItem struct {
	Name    string
	Linkage engine.Linkage
}

// Exported returns the names of items visible outside the object
func (m *Manifest) Exported() []string {
	var names []string
	for _, it := range m.Items {
		if it.Linkage == engine.LinkageExport {
			names = append(names, it.Name)
		}
	}
	return names
}

// Encode renders m as the metadata section payload
func Encode(m *Manifest) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\nprogram\t%s\nproducer\t%s\n", magic, m.Program, m.Producer)
	for _, it := range m.Items {
		fmt.Fprintf(&buf, "item\t%s\t%s\n", it.Name, it.Linkage)
	}
	return buf.Bytes()
}

// Decode parses a payload produced by Encode
func Decode(data []byte) (*Manifest, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() || sc.Text() != magic {
		return nil, errors.Errorf("metadata: missing %s header", magic)
	}
	m := &Manifest{}
	lineNo := 1
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		switch {
		case fields[0] == "program" && len(fields) == 2:
			m.Program = fields[1]
		case fields[0] == "producer" && len(fields) == 2:
			m.Producer = fields[1]
		case fields[0] == "item" && len(fields) == 3:
			l, err := engine.ParseLinkage(fields[2])
			if err != nil {
				return nil, errors.Wrapf(err, "metadata line %d", lineNo)
			}
			m.Items = append(m.Items, ManifestItem{Name: fields[1], Linkage: l})
		default:
			return nil, errors.Errorf("metadata line %d: unexpected %q", lineNo, line)
		}
	}
	return m, errors.Wrap(sc.Err(), "read metadata")
}
