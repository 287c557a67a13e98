// Package worklist reads a Markdown document describing the functions of one
// program:
//
//	# Program: demo
//
//	## Item: main
//
//	```item
//	linkage: external
//	params: argc argv
//	```
//
//	```clif
//	(arg 0) (return)
//	```
package worklist

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const (
	FenceItem = "item"
	FenceClif = "clif"
)

// Item is one function to compile
type Item struct {
	Name       string
	Linkage    string   // "external" or "internal"
	Visibility string   // "default" or "hidden"
	Params     []string // parameter names, in order
	Body       string   // clif text
	BodyLine   int      // document line of the first body line
	Line       int      // document line of the heading
}

// Document is a parsed work list
type Document struct {
	File    string
	Program string
	Items   []Item
}

// Load reads and parses the work list at path
func Load(path string) (*Document, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, source)
}

// Parse parses a work list. The program name defaults to the file name
// without its extension.
func Parse(file string, source []byte) (*Document, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	wl := &Document{File: file}
	var current *Item
	seen := make(map[string]bool)

	finish := func() error {
		if current == nil {
			return nil
		}
		if current.Body == "" {
			return fmt.Errorf("line %d: item '%s' has no clif fence", current.Line, current.Name)
		}
		wl.Items = append(wl.Items, *current)
		current = nil
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := node.(type) {
		case *ast.Heading:
			headingText := extractTextFromNode(n, source)
			lineNum := getLineNumber(n, source)
			switch {
			case strings.HasPrefix(headingText, "Program: "):
				if wl.Program != "" {
					return ast.WalkStop, fmt.Errorf("line %d: duplicate program heading", lineNum)
				}
				wl.Program = strings.TrimSpace(strings.TrimPrefix(headingText, "Program: "))
			case strings.HasPrefix(headingText, "Item: "):
				if err := finish(); err != nil {
					return ast.WalkStop, err
				}
				name := strings.TrimSpace(strings.TrimPrefix(headingText, "Item: "))
				if name == "" {
					return ast.WalkStop, fmt.Errorf("line %d: item without a name", lineNum)
				}
				if seen[name] {
					return ast.WalkStop, fmt.Errorf("line %d: duplicate item '%s'", lineNum, name)
				}
				seen[name] = true
				current = &Item{Name: name, Linkage: "external", Visibility: "default", Line: lineNum}
			}

		case *ast.FencedCodeBlock:
			language := string(n.Language(source))
			if language != FenceItem && language != FenceClif {
				return ast.WalkContinue, nil
			}
			lineNum := getLineNumber(n, source)
			if current == nil {
				return ast.WalkStop, fmt.Errorf("line %d: %s fence found outside of an item", lineNum, language)
			}
			content := extractCodeBlockContent(n, source)
			if language == FenceClif {
				if current.Body != "" {
					return ast.WalkStop, fmt.Errorf("line %d: multiple clif fences in item '%s'", lineNum, current.Name)
				}
				current.Body = strings.TrimRight(content, "\n")
				current.BodyLine = lineNum
				if current.Body == "" {
					return ast.WalkStop, fmt.Errorf("line %d: empty clif fence in item '%s'", lineNum, current.Name)
				}
				return ast.WalkContinue, nil
			}
			if err := parseItemFence(current, content, lineNum); err != nil {
				return ast.WalkStop, err
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if err := finish(); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if wl.Program == "" {
		base := filepath.Base(file)
		wl.Program = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return wl, nil
}

func parseItemFence(item *Item, content string, firstLine int) error {
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return fmt.Errorf("line %d: expected 'key: value', got %q", firstLine+i, line)
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "linkage":
			item.Linkage = value
		case "visibility":
			item.Visibility = value
		case "params":
			item.Params = strings.Fields(value)
		default:
			return fmt.Errorf("line %d: unknown item key %q", firstLine+i, key)
		}
	}
	return nil
}

// extractTextFromNode extracts plain text content from a markdown node
func extractTextFromNode(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := n.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func extractCodeBlockContent(codeBlock *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < codeBlock.Lines().Len(); i++ {
		line := codeBlock.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

// getLineNumber returns the 1-based line of the node's first content line
func getLineNumber(node ast.Node, source []byte) int {
	if node.Lines().Len() == 0 {
		return 1
	}
	startPos := node.Lines().At(0).Start
	lineNum := 1
	for i := 0; i < startPos && i < len(source); i++ {
		if source[i] == '\n' {
			lineNum++
		}
	}
	return lineNum
}
