// Completion: 100% - Utility module complete
package main

import (
	"debug/dwarf"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/xyproto/clift/internal/driver"
	"github.com/xyproto/clift/internal/engine"
	"github.com/xyproto/clift/internal/metadata"
	"github.com/xyproto/clift/internal/worklist"
	"github.com/xyproto/clift/internal/x64"
)

// cli.go - subcommands of clift
//
// - clift build <file.md>   compile a work list to a relocatable object
// - clift run <file.md>     compile and run main in-process
// - clift dump <file.md>    print disassembly and line rows
// - clift meta <file>       print the metadata of an object or archive
// - clift <file.md>         shorthand for build
//
// SHOULD_RUN in the environment turns build into run.

// CommandContext holds the execution context for a CLI command
type CommandContext struct {
	Args       []string
	Config     driver.Config
	OutputPath string
	Stdout     io.Writer
	Stderr     io.Writer
}

// RunCLI dispatches args to a subcommand and returns the process exit code
func RunCLI(args []string, cfg driver.Config, outputPath string) (int, error) {
	ctx := &CommandContext{
		Args:       args,
		Config:     cfg,
		OutputPath: outputPath,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	return ctx.dispatch()
}

func (ctx *CommandContext) dispatch() (int, error) {
	args := ctx.Args
	if len(args) == 0 {
		return 0, cmdHelp(ctx)
	}

	switch subcmd := args[0]; subcmd {
	case "build":
		if len(args) < 2 {
			return 1, fmt.Errorf("usage: clift build <file.md> [-o output.o]")
		}
		return cmdBuild(ctx, args[1:])

	case "run":
		if len(args) < 2 {
			return 1, fmt.Errorf("usage: clift run <file.md> [args...]")
		}
		ctx.Config.Run = true
		if len(args) > 2 {
			ctx.Config.JITArgs = strings.Join(args[2:], " ")
		}
		return cmdBuild(ctx, args[1:2])

	case "dump":
		if len(args) < 2 {
			return 1, fmt.Errorf("usage: clift dump <file.md>")
		}
		return 0, cmdDump(ctx, args[1])

	case "meta":
		if len(args) < 2 {
			return 1, fmt.Errorf("usage: clift meta <object-or-archive>")
		}
		return 0, cmdMeta(ctx, args[1])

	case "help", "--help", "-h":
		return 0, cmdHelp(ctx)

	case "version", "--version", "-V":
		fmt.Fprintln(ctx.Stdout, versionString)
		return 0, nil

	default:
		if strings.HasSuffix(subcmd, ".md") {
			return cmdBuild(ctx, args)
		}
		suggestion := ""
		if similar := engine.FindSimilar(subcmd, []string{"build", "run", "dump", "meta", "help", "version"}, 1); len(similar) > 0 {
			suggestion = fmt.Sprintf(" (did you mean '%s'?)", similar[0])
		}
		return 1, fmt.Errorf("unknown command: %s%s\n\nRun 'clift help' for usage information", subcmd, suggestion)
	}
}

// compile reads a work list and runs the driver on it. Configuration
// warnings go to stderr.
func compile(ctx *CommandContext, path string) (*driver.Result, error) {
	diags := ctx.Config.Validate()
	if diags.HasErrors() {
		fmt.Fprint(ctx.Stderr, diags.Report(useColor()))
		return nil, fmt.Errorf("invalid configuration")
	}

	doc, err := worklist.Load(path)
	if err != nil {
		return nil, err
	}
	items, err := driver.WorkItems(doc)
	if err != nil {
		return nil, err
	}
	engine.Debugf("cli: %s: program %s, %d items", path, doc.Program, len(items))

	result, err := driver.New(ctx.Config).Run(doc.Program, doc.File, items)
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		fmt.Fprint(ctx.Stderr, w.Format(useColor()))
	}
	return result, nil
}

// cmdBuild compiles a work list and either writes the object or runs main
func cmdBuild(ctx *CommandContext, args []string) (int, error) {
	var input string
	outputPath := ctx.OutputPath
	for i := 0; i < len(args); i++ {
		if args[i] == "-o" && i+1 < len(args) {
			outputPath = args[i+1]
			i++
		} else if !strings.HasPrefix(args[i], "-") && input == "" {
			input = args[i]
		}
	}
	if input == "" {
		return 1, fmt.Errorf("no input file specified")
	}
	if _, err := os.Stat(input); os.IsNotExist(err) {
		return 1, fmt.Errorf("file not found: %s", input)
	}

	result, err := compile(ctx, input)
	if err != nil {
		return 1, err
	}

	if ctx.Config.Run {
		argv := driver.BuildArgv(ctx.Config.JITArgs, result.Program)
		return result.Execute(argv)
	}

	if outputPath == "" {
		outputPath = objectPath(input)
	}
	if err := result.WriteObject(outputPath); err != nil {
		return 1, err
	}
	if engine.VerboseMode {
		fmt.Fprintf(ctx.Stderr, "Wrote %s (%d functions, %d bytes of code)\n",
			outputPath, len(result.Items), len(result.Module.Text()))
	}
	return 0, nil
}

// objectPath derives "prog.o" from "dir/prog.md"
func objectPath(input string) string {
	return strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)) + ".o"
}

// cmdDump prints the disassembly of every defined function followed by the
// line table as a debugger would see it
func cmdDump(ctx *CommandContext, path string) error {
	ctx.Config.Run = false
	result, err := compile(ctx, path)
	if err != nil {
		return err
	}

	text := result.Module.Text()
	for _, fn := range result.Module.Functions() {
		if fn.Code == nil {
			fmt.Fprintf(ctx.Stdout, "%s: import\n\n", fn.Name)
			continue
		}
		fmt.Fprintf(ctx.Stdout, "%016x <%s> (%s):\n", fn.Offset, fn.Name, fn.Linkage)
		code := text[fn.Offset : fn.Offset+fn.Size()]
		for _, line := range x64.Disassemble(code, fn.Offset) {
			fmt.Fprintln(ctx.Stdout, line)
		}
		fmt.Fprintln(ctx.Stdout)
	}

	if result.Debug == nil {
		return nil
	}
	data, err := result.DWARF()
	if err != nil {
		return errors.Wrap(err, "read back debug info")
	}
	return dumpLines(ctx.Stdout, data)
}

func dumpLines(w io.Writer, data *dwarf.Data) error {
	r := data.Reader()
	for {
		e, err := r.Next()
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}
		if e.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		lr, err := data.LineReader(e)
		if err != nil {
			return err
		}
		if lr == nil {
			continue
		}
		fmt.Fprintln(w, "Line table:")
		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err == io.EOF {
				break
			} else if err != nil {
				return err
			}
			if le.EndSequence {
				fmt.Fprintf(w, "%8x  end of sequence\n", le.Address)
				continue
			}
			fmt.Fprintf(w, "%8x  %s:%d:%d\n", le.Address, le.File.Name, le.Line, le.Column)
		}
	}
}

// cmdMeta prints the metadata manifest found in an object or archive
func cmdMeta(ctx *CommandContext, path string) error {
	raw, err := metadata.Load(path, metadata.IsMetadataSection)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			return fmt.Errorf("%s: no metadata section", path)
		}
		return err
	}
	m, err := metadata.Decode(raw)
	if err != nil {
		return errors.Wrapf(err, "%s", path)
	}
	fmt.Fprintf(ctx.Stdout, "program:  %s\n", m.Program)
	fmt.Fprintf(ctx.Stdout, "producer: %s\n", m.Producer)
	fmt.Fprintf(ctx.Stdout, "exported: %s\n", strings.Join(m.Exported(), " "))
	for _, item := range m.Items {
		fmt.Fprintf(ctx.Stdout, "  %-8s %s\n", item.Linkage, item.Name)
	}
	return nil
}

func cmdHelp(ctx *CommandContext) error {
	fmt.Fprintf(ctx.Stdout, `%s - native code generation for clif work lists

USAGE:
    clift [flags] <command> [arguments]

COMMANDS:
    build <file.md>       Compile a work list to a relocatable object
    run <file.md> [args]  Compile and run main in-process
    dump <file.md>        Print disassembly and the DWARF line table
    meta <file>           Print the metadata of an object or archive
    help                  Show this help message
    version               Show version information

SHORTHAND:
    clift <file.md>       Same as 'clift build <file.md>'

FLAGS (must come before the command):
    -o, --output <file>    Output object filename (default: input name with .o)
    -v, --verbose          Verbose mode (stages, timings and disassembly)
    --arch <arch>          Target architecture (default: host)
    --os <os>              Target OS (default: host)
    --target <platform>    Target platform such as amd64-linux
    --crate-type <types>   Comma separated output kinds: bin, lib, dylib
    --opt-level <level>    Optimization level: 0, 1, 2, 3, s, z
    --debug                Emit DWARF debug sections (default: true)
    --program <name>       Override the program name of the work list
    -V, --version          Print version information

ENVIRONMENT:
    SHOULD_RUN             Run main in-process instead of writing an object
    JIT_ARGS               Space separated arguments passed to main
    CLIFT_PRODUCER         Producer string recorded in the debug info
    CLIFT_VERBOSE          Same as --verbose
    NO_COLOR               Disable colored diagnostics
`, versionString)
	return nil
}
