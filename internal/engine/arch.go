// Completion: 100% - Utility module complete
package engine

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"runtime"
	"strings"
)

// Architecture type
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_64
	ArchARM64
	ArchRiscv64
)

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	case ArchRiscv64:
		return "riscv64"
	default:
		return "unknown"
	}
}

// ParseArch parses an architecture string (like GOARCH values)
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(s) {
	case "x86_64", "amd64", "x86-64":
		return ArchX86_64, nil
	case "aarch64", "arm64":
		return ArchARM64, nil
	case "riscv64", "riscv", "rv64":
		return ArchRiscv64, nil
	default:
		return ArchUnknown, fmt.Errorf("unsupported architecture: %s (supported: amd64, arm64, riscv64)", s)
	}
}

// AddressSize is the width of a code address in bytes
func (a Arch) AddressSize() uint8 {
	switch a {
	case ArchX86_64, ArchARM64, ArchRiscv64:
		return 8
	default:
		return 0
	}
}

// ELFMachine maps the architecture to its e_machine value
func (a Arch) ELFMachine() elf.Machine {
	switch a {
	case ArchX86_64:
		return elf.EM_X86_64
	case ArchARM64:
		return elf.EM_AARCH64
	case ArchRiscv64:
		return elf.EM_RISCV
	default:
		return elf.EM_NONE
	}
}

// OS type
type OS int

const (
	OSLinux OS = iota
	OSDarwin
	OSFreeBSD
	OSWindows
)

func (o OS) String() string {
	switch o {
	case OSLinux:
		return "linux"
	case OSDarwin:
		return "darwin"
	case OSFreeBSD:
		return "freebsd"
	case OSWindows:
		return "windows"
	default:
		return "unknown"
	}
}

// ParseOS parses an OS string (like GOOS values)
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(s) {
	case "linux":
		return OSLinux, nil
	case "darwin", "macos":
		return OSDarwin, nil
	case "freebsd":
		return OSFreeBSD, nil
	case "windows", "win":
		return OSWindows, nil
	default:
		return 0, fmt.Errorf("unsupported OS: %s (supported: linux, darwin, freebsd, windows)", s)
	}
}

// Platform represents a target platform (architecture + OS)
type Platform struct {
	Arch Arch
	OS   OS
}

// String returns a human-readable platform string
func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.Arch, p.OS)
}

// ByteOrder is little endian for every supported target
func (p Platform) ByteOrder() binary.ByteOrder {
	return binary.LittleEndian
}

// HostPlatform returns the platform the compiler itself runs on
func HostPlatform() Platform {
	arch, err := ParseArch(runtime.GOARCH)
	if err != nil {
		arch = ArchUnknown
	}
	os, err := ParseOS(runtime.GOOS)
	if err != nil {
		os = OSLinux
	}
	return Platform{Arch: arch, OS: os}
}

// ParsePlatform accepts "arch" or "arch-os" strings such as "amd64-linux"
func ParsePlatform(s string) (Platform, error) {
	if arch, err := ParseArch(s); err == nil {
		return Platform{Arch: arch, OS: HostPlatform().OS}, nil
	}
	idx := strings.LastIndex(s, "-")
	if idx < 0 {
		return Platform{}, fmt.Errorf("invalid platform: %s", s)
	}
	arch, err := ParseArch(s[:idx])
	if err != nil {
		return Platform{}, err
	}
	os, err := ParseOS(s[idx+1:])
	if err != nil {
		return Platform{}, err
	}
	return Platform{Arch: arch, OS: os}, nil
}
