package mlir

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// PrintOptions configures module printing.
type PrintOptions struct {
	// Locations appends loc(...) to every operation.
	Locations bool
}

const segmentSizesAttr = "operandSegmentSizes"

// Print writes m in the MLIR generic operation form.
func Print(w io.Writer, m *Module, opts PrintOptions) error {
	p := &printer{opts: opts, names: make(map[Value]string), blocks: make(map[*Block]string)}
	p.assignIsolated(m.Operation())
	p.printOp(m.Operation(), 0)
	_, err := io.WriteString(w, p.sb.String())
	return err
}

// String prints the module without locations.
func (m *Module) String() string {
	var sb strings.Builder
	if err := Print(&sb, m, PrintOptions{}); err != nil {
		return fmt.Sprintf("<print error: %v>", err)
	}
	return sb.String()
}

type printer struct {
	sb     strings.Builder
	opts   PrintOptions
	names  map[Value]string
	blocks map[*Block]string
	next   int
}

func isIsolated(op *Operation) bool {
	return op.Name == FuncOpName || op.Name == ModuleOpName
}

// assignIsolated numbers the values and blocks below an isolated op.
func (p *printer) assignIsolated(op *Operation) {
	saved := p.next
	p.next = 0
	entryArgs := op.Name == FuncOpName
	for _, r := range op.Regions {
		p.assignRegion(r, entryArgs)
	}
	p.next = saved
}

func (p *printer) assignRegion(r *Region, entryArgs bool) {
	for i, b := range r.Blocks {
		p.blocks[b] = "^bb" + strconv.Itoa(i)
		for j, a := range b.Args {
			if i == 0 && entryArgs {
				p.names[a] = "%arg" + strconv.Itoa(j)
				continue
			}
			p.names[a] = "%" + strconv.Itoa(p.next)
			p.next++
		}
		for _, op := range b.Ops {
			for _, res := range op.Results {
				p.names[res] = "%" + strconv.Itoa(p.next)
				p.next++
			}
			if isIsolated(op) {
				p.assignIsolated(op)
				continue
			}
			for _, inner := range op.Regions {
				p.assignRegion(inner, false)
			}
		}
	}
}

func (p *printer) valueName(v Value) string {
	if n, ok := p.names[v]; ok {
		return n
	}
	return "<<UNKNOWN SSA VALUE>>"
}

func (p *printer) blockName(b *Block) string {
	if n, ok := p.blocks[b]; ok {
		return n
	}
	return "^<<UNKNOWN BLOCK>>"
}

func (p *printer) indent(n int) {
	for range n {
		p.sb.WriteString("  ")
	}
}

func (p *printer) printOp(op *Operation, depth int) {
	p.indent(depth)
	if len(op.Results) > 0 {
		for i, r := range op.Results {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(p.valueName(r))
		}
		p.sb.WriteString(" = ")
	}
	p.sb.WriteString(strconv.Quote(op.Name))

	operands := append([]Value(nil), op.Operands...)
	for _, s := range op.Successors {
		operands = append(operands, s.Args...)
	}
	p.sb.WriteString("(")
	for i, v := range operands {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		p.sb.WriteString(p.valueName(v))
	}
	p.sb.WriteString(")")

	if len(op.Successors) > 0 {
		p.sb.WriteString("[")
		for i, s := range op.Successors {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(p.blockName(s.Block))
		}
		p.sb.WriteString("]")
	}

	if len(op.Regions) > 0 {
		p.sb.WriteString(" (")
		for i, r := range op.Regions {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.printRegion(r, depth)
		}
		p.sb.WriteString(")")
	}

	attrs := op.Attrs
	if len(op.Successors) > 0 && len(operands) > 0 {
		segs := make(DenseI32ArrayAttr, 0, len(op.Successors)+1)
		segs = append(segs, int32(len(op.Operands)))
		for _, s := range op.Successors {
			segs = append(segs, int32(len(s.Args)))
		}
		attrs = append(append([]NamedAttr(nil), attrs...), NamedAttr{Name: segmentSizesAttr, Value: segs})
		sort.SliceStable(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })
	}
	if len(attrs) > 0 {
		p.sb.WriteString(" {")
		for i, a := range attrs {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.sb.WriteString(a.Name)
			if _, unit := a.Value.(UnitAttr); unit {
				continue
			}
			p.sb.WriteString(" = ")
			p.sb.WriteString(a.Value.String())
		}
		p.sb.WriteString("}")
	}

	p.sb.WriteString(" : ")
	p.sb.WriteString(FunctionType{Inputs: valueTypes(operands), Results: op.ResultTypes()}.String())
	if p.opts.Locations {
		p.sb.WriteString(" ")
		p.sb.WriteString(op.Loc.String())
	}
	p.sb.WriteString("\n")
}

func (p *printer) printRegion(r *Region, depth int) {
	p.sb.WriteString("{\n")
	for _, b := range r.Blocks {
		p.indent(depth)
		p.sb.WriteString(p.blockName(b))
		if len(b.Args) > 0 {
			p.sb.WriteString("(")
			for i, a := range b.Args {
				if i > 0 {
					p.sb.WriteString(", ")
				}
				p.sb.WriteString(p.valueName(a))
				p.sb.WriteString(": ")
				p.sb.WriteString(a.Type().String())
			}
			p.sb.WriteString(")")
		}
		p.sb.WriteString(":\n")
		for _, op := range b.Ops {
			p.printOp(op, depth+1)
		}
	}
	p.indent(depth)
	p.sb.WriteString("}")
}
