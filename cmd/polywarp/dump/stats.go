package dump

import (
	"encoding/csv"
	"io"

	"github.com/jszwec/csvutil"

	"github.com/pgavlin/polywarp/engine"
	"github.com/pgavlin/polywarp/wasm"
	"github.com/pgavlin/polywarp/wasm/code"
)

// A statsRow combines the compiler's view of a function with counts of its instructions by class.
type statsRow struct {
	engine.FunctionStats

	In           int `csv:"in"`
	Out          int `csv:"out"`
	Instructions int `csv:"instructions"`
	Blocks       int `csv:"blocks"`
	Branches     int `csv:"branches"`
	Calls        int `csv:"calls"`
	Loads        int `csv:"loads"`
	Stores       int `csv:"stores"`
	Constants    int `csv:"constants"`
	Bulk         int `csv:"bulk"`
}

func (r *statsRow) count(instr *code.Instruction) {
	switch op := instr.Opcode; {
	case op == code.OpBlock || op == code.OpLoop || op == code.OpIf:
		r.Blocks++
	case op == code.OpBr || op == code.OpBrIf || op == code.OpBrTable || op == code.OpReturn:
		r.Branches++
	case op == code.OpCall || op == code.OpCallIndirect:
		r.Calls++
	case op >= code.OpI32Load && op <= code.OpI64Load32U:
		r.Loads++
	case op >= code.OpI32Store && op <= code.OpI64Store32:
		r.Stores++
	case op == code.OpI32Const || op == code.OpI64Const || op == code.OpF32Const || op == code.OpF64Const:
		r.Constants++
	case op == code.OpMemoryInit || op == code.OpMemoryCopy || op == code.OpMemoryFill ||
		op == code.OpTableInit || op == code.OpTableCopy || op == code.OpTableFill:
		r.Bulk++
	}
}

// dumpStats writes one CSV row for each function defined by the module.
func dumpStats(w io.Writer, m *wasm.Module, def *engine.ModuleDefinition) error {
	csvWriter := csv.NewWriter(w)
	defer csvWriter.Flush()

	encoder := csvutil.NewEncoder(csvWriter)

	s := code.NewStaticScope(m)
	for idx, stats := range def.Stats() {
		body := m.Code.Bodies[idx]
		sig := m.Types.Entries[m.Function.Types[idx]]
		s.SetFunction(sig, body)

		decoded, err := code.Decode(body.Code, s, sig.ReturnTypes)
		if err != nil {
			return err
		}

		r := statsRow{
			FunctionStats: stats,
			In:            len(sig.ParamTypes),
			Out:           len(sig.ReturnTypes),
			Instructions:  len(decoded.Instructions),
		}
		for i := range decoded.Instructions {
			r.count(&decoded.Instructions[i])
		}

		if err := encoder.Encode(&r); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}
