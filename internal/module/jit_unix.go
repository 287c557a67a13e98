//go:build (linux || darwin) && amd64

package module

import (
	"encoding/binary"
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/xyproto/clift/internal/engine"
)

// JITSupported reports whether Load can run code on this platform
const JITSupported = true

// Resolver returns the address of an imported function
type Resolver func(name string) (uintptr, error)

// DefaultResolver looks names up in the objects already loaded into the
// process, libc included.
func DefaultResolver(name string) (uintptr, error) {
	addr, err := purego.Dlsym(purego.RTLD_DEFAULT, name)
	if err != nil {
		return 0, errors.Wrapf(err, "resolve %s", name)
	}
	return addr, nil
}

// Image is finalized code mapped executable in this process
type Image struct {
	mem     []byte
	offsets map[string]uint64
}

// Load maps the finalized module into executable memory and fills the
// import slots using resolve.
func (m *Module) Load(resolve Resolver) (*Image, error) {
	m.mustBeFinalized()
	if resolve == nil {
		resolve = DefaultResolver
	}
	linked := linkImports(m.text, m.relocs, m.Imports())

	size := engine.AlignUp(max(len(linked.code), 1), unix.Getpagesize())
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	copy(mem, linked.code)

	for name, slot := range linked.slots {
		addr, err := resolve(name)
		if err != nil {
			unix.Munmap(mem)
			return nil, errors.Wrapf(err, "unresolved import %s", name)
		}
		binary.LittleEndian.PutUint64(mem[slot:], uint64(addr))
	}

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, errors.Wrap(err, "mprotect")
	}

	img := &Image{mem: mem, offsets: make(map[string]uint64)}
	for _, f := range m.funcs {
		if f.Code != nil {
			img.offsets[f.Name] = f.Offset
		}
	}
	if engine.VerboseMode {
		engine.Debugf("module: loaded %s at %#x (%d bytes, %d imports)", m.name, img.Base(), len(linked.code), len(linked.slots))
	}
	return img, nil
}

// Base returns the address of the first byte of text
func (img *Image) Base() uintptr {
	return uintptr(unsafe.Pointer(&img.mem[0]))
}

// Lookup returns the address of a defined function
func (img *Image) Lookup(name string) (uintptr, bool) {
	off, ok := img.offsets[name]
	if !ok {
		return 0, false
	}
	return img.Base() + uintptr(off), true
}

// CallMain calls main(argc, argv) with a NULL-terminated argv and returns
// the low 32 bits of its result.
func (img *Image) CallMain(args []string) (int, error) {
	entry, ok := img.Lookup("main")
	if !ok {
		return 0, errors.New("no main function defined")
	}

	// argv lives outside the Go heap for the duration of the call
	size := (len(args) + 1) * 8
	for _, a := range args {
		size += len(a) + 1
	}
	argMem, err := unix.Mmap(-1, 0, engine.AlignUp(size, unix.Getpagesize()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, errors.Wrap(err, "mmap argv")
	}
	defer unix.Munmap(argMem)

	base := uintptr(unsafe.Pointer(&argMem[0]))
	strAt := (len(args) + 1) * 8
	for i, a := range args {
		binary.LittleEndian.PutUint64(argMem[i*8:], uint64(base+uintptr(strAt)))
		strAt += copy(argMem[strAt:], a)
		argMem[strAt] = 0
		strAt++
	}

	r1, _, _ := purego.SyscallN(entry, uintptr(len(args)), base)
	runtime.KeepAlive(argMem)
	return int(int32(r1)), nil
}

// Close unmaps the image
func (img *Image) Close() error {
	if img.mem == nil {
		return nil
	}
	err := unix.Munmap(img.mem)
	img.mem = nil
	return err
}
