package driver

import (
	"fmt"
	"os"
	"slices"

	"github.com/xyproto/env/v2"

	"github.com/xyproto/clift/internal/engine"
	"github.com/xyproto/clift/internal/module"
)

// CrateType is a requested output kind
type CrateType string

const (
	CrateBin   CrateType = "bin"
	CrateLib   CrateType = "lib"
	CrateDylib CrateType = "dylib"
)

var supportedCrateTypes = []CrateType{CrateBin, CrateLib, CrateDylib}

// Config is the session configuration
type Config struct {
	Program    string // overrides the work list's program name
	CrateTypes []CrateType
	Target     engine.Platform
	LTO        string // "" or "no" disables
	OptLevel   string // "" means the default, 2
	RPath      bool
	PGOGen     string
	Debug      bool // emit debug sections
	Run        bool // execute main in-process instead of writing an object
	JITArgs    string
	Producer   string
	CompDir    string
}

// DefaultConfig returns the configuration for a plain executable build on
// the host
func DefaultConfig() Config {
	wd, _ := os.Getwd()
	return Config{
		CrateTypes: []CrateType{CrateBin},
		Target:     engine.HostPlatform(),
		Debug:      true,
		Producer:   "clift " + Version,
		CompDir:    wd,
	}
}

// ApplyEnv reads SHOULD_RUN, JIT_ARGS, CLIFT_PRODUCER and CLIFT_VERBOSE
func (c *Config) ApplyEnv() {
	if env.Has("SHOULD_RUN") {
		c.Run = true
	}
	c.JITArgs = env.Str("JIT_ARGS", c.JITArgs)
	c.Producer = env.Str("CLIFT_PRODUCER", c.Producer)
	if env.Bool("CLIFT_VERBOSE") {
		engine.VerboseMode = true
	}
}

// Validate reports every configuration problem. Warnings do not stop a run.
func (c Config) Validate() *engine.ErrorCollector {
	errs := engine.NewErrorCollector()
	for _, ct := range c.CrateTypes {
		if !slices.Contains(supportedCrateTypes, ct) {
			e := engine.ConfigError(fmt.Sprintf("clift doesn't support output type %s", ct))
			var names []string
			for _, s := range supportedCrateTypes {
				names = append(names, string(s))
			}
			if similar := engine.FindSimilar(string(ct), names, 1); len(similar) > 0 {
				e.Context.Suggestion = fmt.Sprintf("did you mean '%s'?", similar[0])
			}
			errs.Add(e)
		}
	}
	switch c.OptLevel {
	case "", "0", "1", "2", "3":
	case "s", "z":
		errs.Add(engine.ConfigWarning(fmt.Sprintf("optimizing for size (opt-level=%s) is not supported, optimizing for speed", c.OptLevel)))
	default:
		errs.Add(engine.ConfigError(fmt.Sprintf("unsupported optimization level %q", c.OptLevel)))
	}
	if c.LTO != "" && c.LTO != "no" {
		errs.Add(engine.ConfigWarning("clift doesn't support lto"))
	}
	if c.RPath {
		errs.Add(engine.ConfigError("rpath is not yet supported"))
	}
	if c.PGOGen != "" {
		errs.Add(engine.ConfigError("pgo is not supported"))
	}
	if c.Target.Arch != engine.ArchX86_64 {
		errs.Add(engine.ConfigError(fmt.Sprintf("code generation for %s is not supported", c.Target.Arch)))
	}
	if c.Run {
		if !slices.Contains(c.CrateTypes, CrateBin) {
			errs.Add(engine.ConfigError("can't JIT run non executable (SHOULD_RUN is set)"))
		}
		if host := engine.HostPlatform(); c.Target != host {
			errs.Add(engine.ConfigError(fmt.Sprintf("can't JIT run %s code on %s", c.Target, host)))
		} else if !module.JITSupported {
			errs.Add(engine.ConfigError(fmt.Sprintf("in-process execution is not supported on %s", host)))
		}
	}
	return errs
}
