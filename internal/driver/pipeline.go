package driver

import (
	"fmt"
	"os"

	"github.com/xyproto/clift/internal/engine"
)

// Stage is a step of a driver run
type Stage int

const (
	StageInit Stage = iota
	StageCodegen
	StageFinalize
	StageEmit
	StageExecute
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageInit:
		return "Initialization"
	case StageCodegen:
		return "Code Generation"
	case StageFinalize:
		return "Module Finalization"
	case StageEmit:
		return "Emission"
	case StageExecute:
		return "Execution"
	case StageComplete:
		return "Complete"
	default:
		return fmt.Sprintf("Unknown Stage %d", int(s))
	}
}

// Pipeline tracks the current stage and validates transitions
type Pipeline struct {
	current Stage
	history []Stage
}

func NewPipeline() *Pipeline {
	return &Pipeline{current: StageInit, history: []Stage{StageInit}}
}

func (p *Pipeline) Current() Stage {
	return p.current
}

// AdvanceTo moves to stage, panicking on a transition the driver never makes
func (p *Pipeline) AdvanceTo(stage Stage) {
	valid := false
	switch p.current {
	case StageInit:
		valid = stage == StageCodegen
	case StageCodegen:
		valid = stage == StageFinalize
	case StageFinalize:
		valid = stage == StageEmit
	case StageEmit:
		valid = stage == StageExecute || stage == StageComplete
	case StageExecute:
		valid = stage == StageComplete
	}

	if !valid {
		fmt.Fprintf(os.Stderr, "ERROR: Invalid stage transition: %s -> %s\n", p.current, stage)
		fmt.Fprintf(os.Stderr, "Stage history:\n")
		for i, s := range p.history {
			fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, s)
		}
		panic(fmt.Sprintf("invalid driver stage transition: %s -> %s", p.current, stage))
	}

	p.current = stage
	p.history = append(p.history, stage)
	if engine.VerboseMode {
		fmt.Fprintf(os.Stderr, "PIPELINE: Advanced to stage: %s\n", stage)
	}
}
