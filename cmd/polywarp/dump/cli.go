package dump

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgavlin/polywarp/cmd/polywarp/internal/logging"
	"github.com/pgavlin/polywarp/engine"
	"github.com/pgavlin/polywarp/load"
	"github.com/pgavlin/polywarp/wasm"
)

type dumper struct {
	stats    bool
	sections bool
	raw      bool
	ir       bool
	options  engine.Options
	styled   bool
}

func (d *dumper) dump(w io.Writer, path string) error {
	m, err := load.LoadFile(path)
	if err != nil {
		return err
	}

	if d.raw {
		return wasm.EncodeModule(w, m)
	}

	if d.stats {
		def, err := engine.NewModuleDefinition(m, d.options)
		if err != nil {
			return err
		}
		return dumpStats(w, m, def)
	}

	p := printer{w: w, styled: d.styled}
	if d.ir {
		return p.ir(m, d.options.Eager)
	}
	if d.sections {
		p.sections(m)
	}
	p.summary(m)
	return nil
}

func Command() *cobra.Command {
	var d dumper

	command := &cobra.Command{
		Use:   "dump [path to module]",
		Short: "Dump WebAssembly modules",
		Long:  "Print a summary of a WebAssembly module's imports and exports, or per-function statistics in CSV format.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if f, ok := w.(*os.File); ok {
				d.styled = logging.IsTerminal(f)
			}
			return d.dump(w, args[0])
		},
	}

	command.Flags().BoolVarP(&d.stats, "stats", "s", false, "dump function statistics in CSV format")
	command.Flags().BoolVar(&d.sections, "sections", false, "list the module's sections")
	command.Flags().BoolVar(&d.raw, "raw", false, "write the decoded module back out in the binary format")
	command.Flags().BoolVar(&d.ir, "ir", false, "print the statements each function compiles to")
	command.Flags().BoolVar(&d.options.Eager, "eager", false, "flush every value to a slot when gathering statistics or printing statements")

	return command
}
