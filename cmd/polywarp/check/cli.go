package check

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgavlin/polywarp/cmd/polywarp/internal/logging"
	"github.com/pgavlin/polywarp/engine"
	"github.com/pgavlin/polywarp/load"
)

func Command() *cobra.Command {
	var quiet bool

	command := &cobra.Command{
		Use:   "check [paths to modules]",
		Short: "Check WebAssembly modules",
		Long:  "Decode, validate and compile WebAssembly modules without instantiating them.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				def, err := load.CompileFile(path, engine.Options{})
				if err != nil {
					return fmt.Errorf("%v: %w", path, err)
				}
				logging.Logger().Debug("checked module", zap.String("module", path), zap.Int("functions", len(def.Stats())))
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "%v: ok (%d functions)\n", path, len(def.Stats()))
				}
			}
			return nil
		},
	}

	command.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report failures")

	return command
}
