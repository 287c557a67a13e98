//go:build !((linux || darwin) && amd64)

package module

import (
	"runtime"

	"github.com/pkg/errors"
)

const JITSupported = false

type Resolver func(name string) (uintptr, error)

func DefaultResolver(name string) (uintptr, error) {
	return 0, errors.Errorf("cannot resolve %s on %s/%s", name, runtime.GOOS, runtime.GOARCH)
}

type Image struct{}

func (m *Module) Load(resolve Resolver) (*Image, error) {
	m.mustBeFinalized()
	return nil, errors.Errorf("in-process execution is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
}

func (img *Image) Base() uintptr { return 0 }

func (img *Image) Lookup(name string) (uintptr, bool) { return 0, false }

func (img *Image) CallMain(args []string) (int, error) {
	return 0, errors.New("in-process execution is not supported")
}

func (img *Image) Close() error { return nil }
