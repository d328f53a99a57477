package dump

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/pgavlin/polywarp/wasm"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))
)

// A printer writes module summaries, optionally styled for a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func (p *printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

func (p *printer) header(title string) {
	fmt.Fprintln(p.w, p.render(headerStyle, title))
}

func sectionName(s wasm.Section) string {
	if custom, ok := s.(*wasm.SectionCustom); ok {
		return fmt.Sprintf("custom %q", custom.Name)
	}
	return s.SectionID().String()
}

// sections prints the offset and size of each section in the order they appear in the module.
func (p *printer) sections(m *wasm.Module) {
	p.header("Sections")
	for _, s := range m.Sections {
		raw := s.GetRawSection()
		fmt.Fprintf(p.w, "  %-24s start=0x%08x end=0x%08x size=%d\n", p.render(nameStyle, sectionName(s)), raw.Start, raw.End, raw.End-raw.Start)
	}
}

func functionSignature(m *wasm.Module, typeidx uint32) string {
	if m.Types == nil || int(typeidx) >= len(m.Types.Entries) {
		return fmt.Sprintf("(type %d)", typeidx)
	}
	return m.Types.Entries[typeidx].String()
}

// summary prints the module's imports and exports.
func (p *printer) summary(m *wasm.Module) {
	if m.Import != nil && len(m.Import.Entries) != 0 {
		p.header("Imports")
		for _, entry := range m.Import.Entries {
			desc := entry.Type.String()
			if f, ok := entry.Type.(wasm.FuncImport); ok {
				desc = functionSignature(m, f.Type)
			}
			fmt.Fprintf(p.w, "  %s.%s %s\n", entry.ModuleName, p.render(nameStyle, entry.FieldName), p.render(typeStyle, desc))
		}
	}

	if m.Export != nil && len(m.Export.Entries) != 0 {
		functionNames := m.FunctionNames()
		importedFunctions, _, _, _ := m.ImportCounts()

		p.header("Exports")
		for _, entry := range m.Export.Entries {
			desc := fmt.Sprintf("%v %d", entry.Kind, entry.Index)
			if entry.Kind == wasm.ExternalFunction && int(entry.Index) >= importedFunctions {
				typeidx := m.Function.Types[int(entry.Index)-importedFunctions]
				desc = functionSignature(m, typeidx)
				if name, ok := functionNames[entry.Index]; ok && name != entry.FieldStr {
					desc += " $" + name
				}
			}
			fmt.Fprintf(p.w, "  %s %s\n", p.render(nameStyle, entry.FieldStr), p.render(typeStyle, desc))
		}
	}

	if m.Start != nil {
		p.header("Start")
		fmt.Fprintf(p.w, "  function %d\n", m.Start.Index)
	}
}
