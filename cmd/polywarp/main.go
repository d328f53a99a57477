package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/pgavlin/polywarp/cmd/polywarp/check"
	"github.com/pgavlin/polywarp/cmd/polywarp/dump"
	"github.com/pgavlin/polywarp/cmd/polywarp/internal/logging"
	"github.com/pgavlin/polywarp/cmd/polywarp/run"
	"github.com/pgavlin/polywarp/engine"
	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/wasm"
)

var version = "<unknown>"

// exitCodeTrap is the exit status of a run that ends in a trap.
const exitCodeTrap = 2

func configureCLI() *cobra.Command {
	var cpuProfile string
	var memProfile string
	var logLevel string

	rootCommand := &cobra.Command{
		Use:           "polywarp",
		Short:         "polywarp WebAssembly engine",
		Long:          "polywarp - compile and run WebAssembly modules",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logLevel)
			if err != nil {
				return err
			}
			logging.SetLogger(logger)
			wasm.SetLogger(logger)
			engine.SetLogger(logger)

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return err
				}
				if err := pprof.StartCPUProfile(f); err != nil {
					return err
				}
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = logging.Logger().Sync() }()

			if cpuProfile != "" {
				pprof.StopCPUProfile()
			}

			if memProfile != "" {
				f, err := os.Create(memProfile)
				if err != nil {
					return err
				}
				defer f.Close()
				runtime.GC()
				return pprof.WriteHeapProfile(f)
			}

			return nil
		},
	}

	rootCommand.AddCommand(check.Command())
	rootCommand.AddCommand(dump.Command())
	rootCommand.AddCommand(run.Command())

	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "off", "log level: debug, info, warn, error or off")
	rootCommand.PersistentFlags().StringVar(&cpuProfile, "cpu", "", "emit Go CPU profile data to this path")
	rootCommand.PersistentFlags().StringVar(&memProfile, "mem", "", "emit Go memory profile data to this path")

	_ = rootCommand.PersistentFlags().MarkHidden("cpu")
	_ = rootCommand.PersistentFlags().MarkHidden("mem")

	return rootCommand
}

func main() {
	rootCommand := configureCLI()

	if err := rootCommand.Execute(); err != nil {
		var trap exec.Trap
		if errors.As(err, &trap) {
			fmt.Fprintf(os.Stderr, "trap: %v\n", trap)
			os.Exit(exitCodeTrap)
		}

		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
