package applicability

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/trailofbits/cvedb/src/cpe"
)

// dumper accumulates the canonical serialization of a tree.
type dumper struct {
	sb strings.Builder
}

func (d *dumper) writeByte(b byte)    { d.sb.WriteByte(b) }
func (d *dumper) writeLine(s string)  { d.sb.WriteString(s); d.sb.WriteByte('\n') }

func (n CPELeaf) dump(w *dumper) {
	w.writeByte('c')
	w.writeLine(n.CPE.String())
}

func dumpChildren(w *dumper, negate bool, children []Node) {
	if negate {
		w.writeByte('~')
	} else {
		w.writeByte('=')
	}
	w.writeLine(strconv.Itoa(len(children)))
	for _, c := range children {
		c.dump(w)
	}
}

func (n And) dump(w *dumper) {
	w.writeByte('a')
	dumpChildren(w, n.Negate, n.Children)
}

func (n Or) dump(w *dumper) {
	w.writeByte('o')
	dumpChildren(w, n.Negate, n.Children)
}

func (n Not) dump(w *dumper) {
	w.writeByte('!')
	n.Wrapped.dump(w)
}

func (n VersionRange) dump(w *dumper) {
	w.writeByte('v')
	dumpBound(w, n.IncludeStart, n.Start)
	dumpBound(w, n.IncludeEnd, n.End)
	n.Wrapped.dump(w)
}

func dumpBound(w *dumper, include bool, value *string) {
	if include {
		w.writeByte('I')
	} else {
		w.writeByte('E')
	}
	if value != nil {
		w.sb.WriteString(*value)
	}
	w.sb.WriteByte('\n')
}

// DumpNode renders a single node in the canonical wire format.
func DumpNode(n Node) string {
	var w dumper
	n.dump(&w)
	return w.sb.String()
}

// Dumps renders the ordered configuration list in the canonical wire
// format: a count line followed by each tree.
func (c Configurations) Dumps() string {
	var w dumper
	w.writeLine(strconv.Itoa(len(c.Nodes)))
	for _, n := range c.Nodes {
		n.dump(&w)
	}
	return w.sb.String()
}

// reader is the deserialization counterpart of dumper: a line-oriented
// cursor over the wire format.
type reader struct {
	r *bufio.Reader
}

func (r *reader) readByte() (byte, error) { return r.r.ReadByte() }

func (r *reader) readLine() (string, error) {
	line, err := r.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

func (r *reader) readCount() (int, error) {
	line, err := r.readLine()
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("applicability: invalid count %q: %w", line, err)
	}
	return n, nil
}

func (r *reader) readBound() (bool, *string, error) {
	line, err := r.readLine()
	if err != nil {
		return false, nil, err
	}
	if line == "" {
		return false, nil, fmt.Errorf("applicability: empty version bound marker")
	}
	include := line[0] == 'I'
	if !include && line[0] != 'E' {
		return false, nil, fmt.Errorf("applicability: invalid version bound marker %q", line[0])
	}
	literal := line[1:]
	if literal == "" {
		return include, nil, nil
	}
	return include, &literal, nil
}

func (r *reader) readNode() (Node, error) {
	tag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 'c':
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		c, err := cpe.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("applicability: %w", err)
		}
		return CPELeaf{CPE: c}, nil
	case 'a', 'o':
		op, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if op != '~' && op != '=' {
			return nil, fmt.Errorf("applicability: invalid negation marker %q", op)
		}
		negate := op == '~'
		count, err := r.readCount()
		if err != nil {
			return nil, err
		}
		children := make([]Node, 0, count)
		for i := 0; i < count; i++ {
			c, err := r.readNode()
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		if tag == 'a' {
			return And{Children: children, Negate: negate}, nil
		}
		return Or{Children: children, Negate: negate}, nil
	case '!':
		wrapped, err := r.readNode()
		if err != nil {
			return nil, err
		}
		return Not{Wrapped: wrapped}, nil
	case 'v':
		includeStart, start, err := r.readBound()
		if err != nil {
			return nil, err
		}
		includeEnd, end, err := r.readBound()
		if err != nil {
			return nil, err
		}
		wrapped, err := r.readNode()
		if err != nil {
			return nil, err
		}
		return VersionRange{
			Wrapped:      wrapped,
			Start:        start,
			End:          end,
			IncludeStart: includeStart,
			IncludeEnd:   includeEnd,
		}, nil
	default:
		return nil, fmt.Errorf("applicability: unknown node tag %q", tag)
	}
}

// LoadNode parses a single node from its canonical wire format.
func LoadNode(s string) (Node, error) {
	rd := &reader{r: bufio.NewReader(strings.NewReader(s))}
	return rd.readNode()
}

// Loads parses an ordered configuration list from its canonical wire
// format, the inverse of Configurations.Dumps.
func Loads(s string) (Configurations, error) {
	rd := &reader{r: bufio.NewReader(strings.NewReader(s))}
	count, err := rd.readCount()
	if err != nil {
		return Configurations{}, err
	}
	nodes := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		n, err := rd.readNode()
		if err != nil {
			return Configurations{}, err
		}
		nodes = append(nodes, n)
	}
	return Configurations{Nodes: nodes}, nil
}
