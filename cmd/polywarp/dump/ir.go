package dump

import (
	"fmt"

	"github.com/pgavlin/polywarp/compiler/wax"
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

// ir prints the statements that each function defined by the module compiles to.
func (p *printer) ir(m *wasm.Module, eager bool) error {
	if m.Code == nil {
		return nil
	}

	depth := wax.DefaultMaxPendingDepth
	if eager {
		depth = 0
	}

	names := m.FunctionNames()
	importedFunctions, _, _, _ := m.ImportCounts()
	scope := code.NewStaticScope(m)
	for i, body := range m.Code.Bodies {
		index := uint32(importedFunctions + i)
		sig, _ := scope.GetFunctionSignature(index)

		f, err := wax.ImportFunction(sig, body, scope, depth)
		if err != nil {
			return fmt.Errorf("function %d: %w", index, err)
		}

		title := fmt.Sprintf("func %d %v", index, sig)
		if name, ok := names[index]; ok {
			title = fmt.Sprintf("func %d $%s %v", index, name, sig)
		}
		p.header(title)
		if err := f.Format(p.w); err != nil {
			return err
		}
	}
	return nil
}
