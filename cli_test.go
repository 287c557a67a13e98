package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xyproto/clift/internal/driver"
	"github.com/xyproto/clift/internal/engine"
)

const squareProgram = "# Program: square\n" +
	"\n" +
	"## Item: main\n" +
	"\n" +
	"```item\n" +
	"params: argc argv\n" +
	"```\n" +
	"\n" +
	"```clif\n" +
	"(arg 0) (arg 0) (imul)\n" +
	"(return)\n" +
	"```\n"

func testContext(t *testing.T, args ...string) (*CommandContext, *bytes.Buffer) {
	t.Helper()
	cfg := driver.DefaultConfig()
	cfg.Target = engine.Platform{Arch: engine.ArchX86_64, OS: engine.OSLinux}
	var out bytes.Buffer
	return &CommandContext{Args: args, Config: cfg, Stdout: &out, Stderr: &out}, &out
}

func writeProgram(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "square.md")
	if err := os.WriteFile(path, []byte(squareProgram), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestObjectPath(t *testing.T) {
	if got := objectPath("dir/prog.md"); got != "prog.o" {
		t.Errorf("objectPath = %q", got)
	}
}

func TestTargetPlatform(t *testing.T) {
	p, err := targetPlatform("amd64-darwin", "arm64", "linux")
	if err != nil || p != (engine.Platform{Arch: engine.ArchX86_64, OS: engine.OSDarwin}) {
		t.Errorf("--target = %v, %v", p, err)
	}
	p, err = targetPlatform("", "amd64", "freebsd")
	if err != nil || p != (engine.Platform{Arch: engine.ArchX86_64, OS: engine.OSFreeBSD}) {
		t.Errorf("--arch/--os = %v, %v", p, err)
	}
	if _, err := targetPlatform("sparc-linux", "amd64", "linux"); err == nil {
		t.Error("expected an error for an unknown --target")
	}
}

func TestParseCrateTypes(t *testing.T) {
	got := parseCrateTypes("bin, lib,,dylib")
	if len(got) != 3 || got[0] != driver.CrateBin || got[2] != driver.CrateDylib {
		t.Errorf("parseCrateTypes = %v", got)
	}
}

func TestBuildThenMeta(t *testing.T) {
	src := writeProgram(t)
	obj := filepath.Join(t.TempDir(), "square.o")

	ctx, _ := testContext(t, "build", src, "-o", obj)
	if code, err := ctx.dispatch(); err != nil || code != 0 {
		t.Fatalf("build: %d, %v", code, err)
	}

	ctx, out := testContext(t, "meta", obj)
	if _, err := ctx.dispatch(); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if !strings.Contains(out.String(), "program:  square") || !strings.Contains(out.String(), "export   main") ||
		!strings.Contains(out.String(), "exported: main\n") {
		t.Errorf("meta output:\n%s", out)
	}
}

func TestDump(t *testing.T) {
	ctx, out := testContext(t, "dump", writeProgram(t))
	if _, err := ctx.dispatch(); err != nil {
		t.Fatalf("dump: %v", err)
	}
	for _, want := range []string{"<main> (export):", "imul", "Line table:", "square.md:10:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dump output lacks %q:\n%s", want, out)
		}
	}
}

func TestUnknownCommand(t *testing.T) {
	ctx, _ := testContext(t, "biuld")
	_, err := ctx.dispatch()
	if err == nil || !strings.Contains(err.Error(), "did you mean 'build'?") {
		t.Fatalf("err = %v", err)
	}
}

func TestMetaWithoutSection(t *testing.T) {
	ctx, _ := testContext(t, "meta", writeProgram(t))
	if _, err := ctx.dispatch(); err == nil {
		t.Fatal("expected an error for a file without metadata")
	}
}
