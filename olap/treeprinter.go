package olap

import (
	"bytes"
	"fmt"
	"strings"
)

// TreePrinter is a printer for tree-shaped structures such as step DAGs.
type TreePrinter struct {
	buf         bytes.Buffer
	nodeWritten bool
	written     bool
}

// NewTreePrinter creates a new tree printer.
func NewTreePrinter() *TreePrinter {
	return new(TreePrinter)
}

// WriteNode writes the main node.
func (p *TreePrinter) WriteNode(format string, args ...interface{}) {
	if p.nodeWritten {
		return
	}
	fmt.Fprintf(&p.buf, format, args...)
	p.buf.WriteRune('\n')
	p.nodeWritten = true
}

// WriteChildren writes a children of the tree. Each child is the string
// representation of a node, possibly spanning several lines.
func (p *TreePrinter) WriteChildren(children ...string) {
	if p.written {
		return
	}

	for i, child := range children {
		last := i+1 == len(children)
		lines := strings.Split(strings.TrimRight(child, "\n"), "\n")
		for j, line := range lines {
			switch {
			case j == 0 && last:
				p.buf.WriteString(" └─ ")
			case j == 0:
				p.buf.WriteString(" ├─ ")
			case last:
				p.buf.WriteString("     ")
			default:
				p.buf.WriteString(" │   ")
			}
			p.buf.WriteString(line)
			p.buf.WriteRune('\n')
		}
	}
	p.written = true
}

// String returns the output of the printed tree.
func (p *TreePrinter) String() string {
	return p.buf.String()
}
