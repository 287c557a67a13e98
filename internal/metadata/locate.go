// Package metadata finds and decodes the metadata section that builds embed
// in their object files.
package metadata

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/xyproto/clift/internal/engine"
)

// SectionName is the section the object writer stores metadata in
const SectionName = ".clift.clif_metadata"

// ErrNotFound is returned when no section or member matches
var ErrNotFound = errors.New("couldn't find metadata entry")

// ParseError reports an unreadable file or an unparsable container
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsMetadataSection is the default section predicate
func IsMetadataSection(name string) bool {
	return strings.Contains(name, ".clif_metadata")
}

// Load returns the contents of the first section of the file at path whose
// name satisfies pred. Archives are scanned member by member.
func Load(path string, pred func(string) bool) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if pred == nil {
		pred = IsMetadataSection
	}
	found, err := scan(data, pred)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	if engine.VerboseMode {
		engine.Debugf("metadata: %s: found %d bytes", path, len(found))
	}
	return found, nil
}

const arMagic = "!<arch>\n"

func scan(data []byte, pred func(string) bool) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, []byte(arMagic)):
		return scanArchive(data[len(arMagic):], pred)
	case bytes.HasPrefix(data, []byte(elf.ELFMAG)):
		f, err := elf.NewFile(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "parse ELF")
		}
		for _, s := range f.Sections {
			if s.Type != elf.SHT_NOBITS && pred(s.Name) {
				return s.Data()
			}
		}
		return nil, ErrNotFound
	case isMachO(data):
		f, err := macho.NewFile(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "parse Mach-O")
		}
		for _, s := range f.Sections {
			if pred(s.Name) {
				return s.Data()
			}
		}
		return nil, ErrNotFound
	case bytes.HasPrefix(data, []byte("MZ")) || isCOFF(data):
		f, err := pe.NewFile(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "parse PE/COFF")
		}
		for _, s := range f.Sections {
			if pred(s.Name) {
				b, err := s.Data()
				if err != nil {
					return nil, err
				}
				// raw data is padded to the file alignment
				if s.VirtualSize != 0 && int(s.VirtualSize) < len(b) {
					b = b[:s.VirtualSize]
				}
				return b, nil
			}
		}
		return nil, ErrNotFound
	}
	return nil, errors.New("unknown object file format")
}

// isCOFF recognizes a bare COFF relocatable object: a known machine and no
// optional header
func isCOFF(data []byte) bool {
	if len(data) < 20 {
		return false
	}
	if binary.LittleEndian.Uint16(data[16:]) != 0 {
		return false
	}
	switch binary.LittleEndian.Uint16(data) {
	case pe.IMAGE_FILE_MACHINE_AMD64, pe.IMAGE_FILE_MACHINE_I386,
		pe.IMAGE_FILE_MACHINE_ARM64, pe.IMAGE_FILE_MACHINE_ARMNT:
		return true
	}
	return false
}

func isMachO(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	switch binary.LittleEndian.Uint32(data) {
	case macho.Magic32, macho.Magic64:
		return true
	}
	switch binary.BigEndian.Uint32(data) {
	case macho.Magic32, macho.Magic64:
		return true
	}
	return false
}

// scanArchive walks a System V or BSD ar archive. A member whose name
// matches is returned whole; other members are scanned as objects.
func scanArchive(data []byte, pred func(string) bool) ([]byte, error) {
	var longNames []byte
	for len(data) > 0 {
		if len(data) < 60 {
			return nil, errors.New("truncated archive member header")
		}
		hdr := data[:60]
		if string(hdr[58:60]) != "`\n" {
			return nil, errors.New("bad archive member header")
		}
		size, err := strconv.ParseInt(strings.TrimSpace(string(hdr[48:58])), 10, 64)
		if err != nil || size < 0 || int64(len(data)-60) < size {
			return nil, errors.Errorf("bad archive member size %q", hdr[48:58])
		}
		body := data[60 : 60+size]
		data = data[60+size:]
		if size%2 == 1 && len(data) > 0 {
			data = data[1:]
		}

		name := strings.TrimRight(string(hdr[:16]), " ")
		switch {
		case name == "/" || name == "/SYM64/" || name == "__.SYMDEF" || name == "__.SYMDEF SORTED":
			continue
		case name == "//":
			longNames = body
			continue
		case strings.HasPrefix(name, "#1/"):
			n, err := strconv.Atoi(name[3:])
			if err != nil || n > len(body) {
				return nil, errors.Errorf("bad BSD member name %q", name)
			}
			name = strings.TrimRight(string(body[:n]), "\x00")
			body = body[n:]
		case strings.HasPrefix(name, "/"):
			off, err := strconv.Atoi(name[1:])
			if err != nil || off >= len(longNames) {
				return nil, errors.Errorf("bad long member name %q", name)
			}
			end := bytes.Index(longNames[off:], []byte("/\n"))
			if end < 0 {
				end = len(longNames) - off
			}
			name = string(longNames[off : off+end])
		default:
			name = strings.TrimSuffix(name, "/")
		}

		if pred(name) {
			return body, nil
		}
		found, err := scan(body, pred)
		switch {
		case err == nil:
			return found, nil
		case errors.Is(err, ErrNotFound):
		default:
			if engine.VerboseMode {
				engine.Debugf("metadata: skipping archive member %s: %v", name, err)
			}
		}
	}
	return nil, ErrNotFound
}
