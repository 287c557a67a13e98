package sexpr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// NodeType represents the type of a Node
type NodeType int

const (
	NodeSymbol NodeType = iota
	NodeString
	NodeInteger
	NodeList
)

func (t NodeType) String() string {
	switch t {
	case NodeSymbol:
		return "symbol"
	case NodeString:
		return "string"
	case NodeInteger:
		return "integer"
	case NodeList:
		return "list"
	default:
		return "unknown"
	}
}

// Node is a parsed datum
type Node struct {
	Type  NodeType
	Text  string  // NodeSymbol, NodeString, NodeInteger
	Items []*Node // NodeList
	Col   int     // 1-based column of the first character
}

func (n *Node) String() string {
	switch n.Type {
	case NodeString:
		return strconv.Quote(n.Text)
	case NodeList:
		parts := make([]string, len(n.Items))
		for i, item := range n.Items {
			parts[i] = item.String()
		}
		return "(" + strings.Join(parts, " ") + ")"
	default:
		return n.Text
	}
}

// Int returns the value of an integer node
func (n *Node) Int() (int64, error) {
	if n.Type != NodeInteger {
		return 0, fmt.Errorf("column %d: expected integer, got %s %q", n.Col, n.Type, n.Text)
	}
	return strconv.ParseInt(n.Text, 0, 64)
}

// Head returns the leading symbol of a list, or ""
func (n *Node) Head() string {
	if n.Type != NodeList || len(n.Items) == 0 || n.Items[0].Type != NodeSymbol {
		return ""
	}
	return n.Items[0].Text
}

// Parse parses exactly one datum
func Parse(input string) (*Node, error) {
	nodes, err := ParseAll(input)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, fmt.Errorf("expected one datum, got %d", len(nodes))
	}
	return nodes[0], nil
}

// ParseAll parses every datum in input. A ';' starts a comment that runs to
// the end of the line.
func ParseAll(input string) ([]*Node, error) {
	p := &parser{src: []rune(input)}
	var nodes []*Node
	for {
		p.skipSpace()
		if p.eof() {
			return nodes, nil
		}
		n, err := p.datum()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
}

type parser struct {
	src []rune
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) skipSpace() {
	for !p.eof() {
		r := p.src[p.pos]
		switch {
		case unicode.IsSpace(r):
			p.pos++
		case r == ';':
			for !p.eof() && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *parser) datum() (*Node, error) {
	col := p.pos + 1
	r := p.src[p.pos]
	switch {
	case r == '(':
		p.pos++
		list := &Node{Type: NodeList, Col: col}
		for {
			p.skipSpace()
			if p.eof() {
				return nil, fmt.Errorf("column %d: unterminated list", col)
			}
			if p.src[p.pos] == ')' {
				p.pos++
				return list, nil
			}
			item, err := p.datum()
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
		}
	case r == ')':
		return nil, fmt.Errorf("column %d: unexpected ')'", col)
	case r == '"':
		return p.str(col)
	default:
		start := p.pos
		for !p.eof() && isSymbolChar(p.src[p.pos]) {
			p.pos++
		}
		if start == p.pos {
			return nil, fmt.Errorf("column %d: unexpected character %q", col, r)
		}
		text := string(p.src[start:p.pos])
		if isInteger(text) {
			return &Node{Type: NodeInteger, Text: text, Col: col}, nil
		}
		return &Node{Type: NodeSymbol, Text: text, Col: col}, nil
	}
}

func (p *parser) str(col int) (*Node, error) {
	p.pos++ // opening quote
	var sb strings.Builder
	for !p.eof() {
		r := p.src[p.pos]
		p.pos++
		switch r {
		case '"':
			return &Node{Type: NodeString, Text: sb.String(), Col: col}, nil
		case '\\':
			if p.eof() {
				return nil, fmt.Errorf("column %d: unterminated string", col)
			}
			esc := p.src[p.pos]
			p.pos++
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			default:
				sb.WriteRune(esc)
			}
		default:
			sb.WriteRune(r)
		}
	}
	return nil, fmt.Errorf("column %d: unterminated string", col)
}

func isSymbolChar(r rune) bool {
	return !unicode.IsSpace(r) && r != '(' && r != ')' && r != '"' && r != ';'
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 0, 64)
	return err == nil
}
