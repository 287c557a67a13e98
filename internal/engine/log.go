package engine

import (
	"fmt"
	"os"
	"time"
)

// VerboseMode enables DEBUG traces on stderr
var VerboseMode bool

// Debugf prints a trace line to stderr when VerboseMode is set
func Debugf(format string, args ...any) {
	if !VerboseMode {
		return
	}
	fmt.Fprintf(os.Stderr, "DEBUG "+format+"\n", args...)
}

// Timed runs f and, in verbose mode, reports how long it took
func Timed[T any](name string, f func() (T, error)) (T, error) {
	if !VerboseMode {
		return f()
	}
	fmt.Fprintf(os.Stderr, "[%s] start\n", name)
	start := time.Now()
	v, err := f()
	fmt.Fprintf(os.Stderr, "[%s] end time: %v\n", name, time.Since(start))
	return v, err
}
