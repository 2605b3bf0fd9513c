package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sierra2mlir/internal/driver"
	"sierra2mlir/internal/engine"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [flags] <file.sierra> <function> [args...]",
		Short: "Compile a Sierra program and execute one of its functions",
		Long: `Compile a Sierra program and invoke a function with the lowered module's engine.
Integer arguments accept decimal or 0x-prefixed values; negative values wrap.
Results are printed one per line.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runExecution,
	}
}

func runExecution(cmd *cobra.Command, args []string) error {
	path, name, rawArgs := args[0], args[1], args[2:]
	src, err := readSource(cmd, path)
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	e, err := driver.Execute(cmd.Context(), src, s.opts)
	if err != nil {
		printTimings(cmd, s.opts.Timer, "run", path)
		return fmt.Errorf("%s: %w", path, err)
	}
	values, err := invocationArgs(e, name, rawArgs)
	if err != nil {
		return err
	}

	stop := s.opts.Timer.Start("execute")
	results, err := e.Invoke(cmd.Context(), name, values...)
	stop(fmt.Sprintf("%d steps", e.Steps()))
	printTimings(cmd, s.opts.Timer, "run", path)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintln(cmd.OutOrStdout(), r.String())
	}
	return nil
}

// invocationArgs parses raw command-line values against the parameter types
// of name.
func invocationArgs(e *engine.Engine, name string, raw []string) ([]engine.Value, error) {
	sig, ok := e.Signature(name)
	if !ok {
		return nil, fmt.Errorf("unknown function %q (available: %s)", name, strings.Join(e.Functions(), ", "))
	}
	if len(raw) != len(sig.Inputs) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", name, len(sig.Inputs), len(raw))
	}
	values := make([]engine.Value, len(raw))
	for i, s := range raw {
		v, err := engine.ParseArg(sig.Inputs[i], s)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i+1, name, err)
		}
		values[i] = v
	}
	return values, nil
}
