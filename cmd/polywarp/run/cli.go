package run

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgavlin/polywarp/cmd/polywarp/internal/logging"
	"github.com/pgavlin/polywarp/engine"
	"github.com/pgavlin/polywarp/exec"
	"github.com/pgavlin/polywarp/load"
	"github.com/pgavlin/polywarp/wasm"
)

// defaultEntryPoints are invoked, in order, when no function is named on the command line.
var defaultEntryPoints = []string{"_start", "main"}

// ParseArgument parses a command-line argument as a value of the given type.
func ParseArgument(t wasm.ValueType, s string) (interface{}, error) {
	switch t {
	case wasm.ValueTypeI32:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			u, uerr := strconv.ParseUint(s, 0, 32)
			if uerr != nil {
				return nil, err
			}
			return int32(uint32(u)), nil
		}
		return int32(v), nil
	case wasm.ValueTypeI64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(s, 0, 64)
			if uerr != nil {
				return nil, err
			}
			return int64(u), nil
		}
		return v, nil
	case wasm.ValueTypeF32:
		v, err := strconv.ParseFloat(s, 32)
		return float32(v), err
	case wasm.ValueTypeF64:
		return strconv.ParseFloat(s, 64)
	default:
		return nil, fmt.Errorf("cannot pass a %v argument from the command line", t)
	}
}

// FormatResult formats a function result for printing.
func FormatResult(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case int32, int64:
		return fmt.Sprint(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case exec.Function:
		return "funcref"
	default:
		return fmt.Sprintf("externref(%v)", v)
	}
}

type runner struct {
	invoke   string
	stats    bool
	options  engine.Options
	stdout   io.Writer
	stderr   io.Writer
	resolver exec.ModuleResolver
}

func (r *runner) run(path string, args []string) error {
	logger := logging.Logger().With(zap.String("module", path))

	start := time.Now()
	def, err := load.CompileFile(path, r.options)
	if err != nil {
		return err
	}
	compiled := time.Now()
	logger.Debug("compiled module", zap.Duration("elapsed", compiled.Sub(start)))

	resolver := r.resolver
	if resolver == nil {
		resolver = load.NewFSResolver(os.DirFS(filepath.Dir(path)), load.Compile(r.options))
	}
	store := exec.NewStore(resolver)

	name := filepath.Base(path)
	name = name[:len(name)-len(filepath.Ext(name))]
	mod, err := store.InstantiateModuleDefinition(name, def)
	if err != nil {
		return err
	}
	instantiated := time.Now()
	logger.Debug("instantiated module", zap.Duration("elapsed", instantiated.Sub(compiled)))

	inst := mod.(*engine.Instance)

	invoke := r.invoke
	if invoke == "" {
		for _, entry := range defaultEntryPoints {
			if _, err := inst.GetFunction(entry); err == nil {
				invoke = entry
				break
			}
		}
	}

	var called time.Time
	if invoke != "" {
		f, err := inst.GetFunction(invoke)
		if err != nil {
			return err
		}

		params := f.GetSignature().ParamTypes
		if len(args) != len(params) {
			return fmt.Errorf("%v expects %d arguments, got %d", invoke, len(params), len(args))
		}
		values := make([]interface{}, len(args))
		for i, arg := range args {
			if values[i], err = ParseArgument(params[i], arg); err != nil {
				return fmt.Errorf("argument %d: %w", i, err)
			}
		}

		results, err := inst.Call(invoke, values...)
		if err != nil {
			return err
		}
		for _, v := range results {
			fmt.Fprintln(r.stdout, FormatResult(v))
		}
		called = time.Now()
		logger.Debug("called function", zap.String("function", invoke), zap.Duration("elapsed", called.Sub(instantiated)))
	} else if len(args) != 0 {
		return errors.New("arguments require a function to invoke")
	}

	if r.stats {
		dispatch := 0
		for _, s := range def.Stats() {
			if s.Dispatch {
				dispatch++
			}
		}
		fmt.Fprintf(r.stderr, "functions: %d (%d dispatch)\n", len(def.Stats()), dispatch)
		fmt.Fprintf(r.stderr, "compile: %v\n", compiled.Sub(start))
		fmt.Fprintf(r.stderr, "instantiate: %v\n", instantiated.Sub(compiled))
		if !called.IsZero() {
			fmt.Fprintf(r.stderr, "call: %v\n", called.Sub(instantiated))
		}
	}
	return nil
}

func Command() *cobra.Command {
	var r runner
	var dispatchThreshold int

	command := &cobra.Command{
		Use:   "run [path to module] [arguments]",
		Short: "Run WebAssembly modules",
		Long: "Compile and instantiate a WebAssembly module, then invoke one of its exported functions.\n\n" +
			"Imports are resolved to modules in the same directory as the module being run. If no function is\n" +
			"named with --invoke, _start or main is invoked if the module exports one.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("dispatch-threshold") {
				r.options.NestingThreshold = dispatchThreshold
				if dispatchThreshold == 0 {
					r.options.NestingThreshold = -1
				}
			}
			r.stdout, r.stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
			return r.run(args[0], args[1:])
		},
	}

	command.Flags().StringVarP(&r.invoke, "invoke", "i", "", "the exported function to invoke")
	command.Flags().BoolVarP(&r.stats, "stats", "s", false, "print compilation and execution statistics to stderr")
	command.Flags().IntVar(&dispatchThreshold, "dispatch-threshold", engine.DefaultNestingThreshold,
		"the nesting level at which control flow is compiled to a dispatch loop; 0 compiles every function this way")
	command.Flags().BoolVar(&r.options.Eager, "eager", false, "store every intermediate value in a slot")
	command.Flags().UintVar(&r.options.MaxCallDepth, "max-call-depth", 0, "the maximum call stack depth")

	return command
}
