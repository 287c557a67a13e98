package worklist

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

const demo = "# Program: demo\n" + // 1
	"\n" + // 2
	"## Item: add\n" + // 3
	"\n" + // 4
	"```item\n" + // 5
	"linkage: internal\n" + // 6
	"params: a b\n" + // 7
	"```\n" + // 8
	"\n" + // 9
	"```clif\n" + // 10
	"(arg 0) (arg 1) (iadd)\n" + // 11
	"(return)\n" + // 12
	"```\n" + // 13
	"\n" + // 14
	"## Item: main\n" + // 15
	"\n" + // 16
	"Prose is ignored.\n" + // 17
	"\n" + // 18
	"```clif\n" + // 19
	"(iconst 2) (iconst 3) (call \"add\" 2) (return)\n" + // 20
	"```\n"

func TestParseDocument(t *testing.T) {
	doc, err := Parse("demo.md", []byte(demo))
	be.Err(t, err, nil)
	be.Equal(t, doc.Program, "demo")
	be.Equal(t, len(doc.Items), 2)

	add := doc.Items[0]
	be.Equal(t, add.Name, "add")
	be.Equal(t, add.Linkage, "internal")
	be.Equal(t, add.Visibility, "default")
	be.Equal(t, strings.Join(add.Params, ","), "a,b")
	be.Equal(t, add.Line, 3)
	be.Equal(t, add.BodyLine, 11)
	be.Equal(t, add.Body, "(arg 0) (arg 1) (iadd)\n(return)")

	main := doc.Items[1]
	be.Equal(t, main.Linkage, "external")
	be.Equal(t, len(main.Params), 0)
	be.Equal(t, main.BodyLine, 20)
}

func TestProgramNameDefaultsToFile(t *testing.T) {
	doc, err := Parse("dir/tool.md", []byte("## Item: f\n\n```clif\n(trap)\n```\n"))
	be.Err(t, err, nil)
	be.Equal(t, doc.Program, "tool")
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"fence outside item": "```clif\n(trap)\n```\n",
		"missing body":       "## Item: f\n\n```item\nlinkage: external\n```\n",
		"duplicate item":     "## Item: f\n```clif\n(trap)\n```\n## Item: f\n```clif\n(trap)\n```\n",
		"two bodies":         "## Item: f\n```clif\n(trap)\n```\n```clif\n(trap)\n```\n",
		"bad key":            "## Item: f\n```item\ncolor: red\n```\n```clif\n(trap)\n```\n",
	}
	for name, src := range cases {
		_, err := Parse("x.md", []byte(src))
		if err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
