package wax

import (
	"fmt"
	"io"
	"strings"
)

func (u *Use) String() string {
	if u.IsTemp() {
		return fmt.Sprintf("s%d", u.Temp)
	}
	return u.X.String()
}

func (x *Expression) String() string {
	name := x.Instr.String()
	if len(x.Uses) == 0 {
		return name
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, u := range x.Uses {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(u.String())
	}
	b.WriteByte(')')
	return b.String()
}

func (d *Def) String() string {
	if len(d.Types) == 0 {
		return d.Expression.String()
	}

	var b strings.Builder
	for i := range d.Types {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "s%d", d.Temp+i)
	}
	b.WriteString(" = ")
	b.WriteString(d.Expression.String())
	return b.String()
}

// Format writes the function's statements to w, one per line, indented by nesting level.
func (f *Function) Format(w io.Writer) error {
	depth := 0
	for _, d := range f.Body {
		if d.Block != nil && (d == d.Block.Else || d == d.Block.End) {
			depth--
		}
		if _, err := fmt.Fprintf(w, "%s%v\n", strings.Repeat("  ", depth), d); err != nil {
			return err
		}
		if d.Block != nil && (d == d.Block.Entry || d == d.Block.Else) {
			depth++
		}
	}
	return nil
}
