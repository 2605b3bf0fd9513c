package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sierra2mlir/internal/engine"
	"sierra2mlir/internal/version"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sierra2mlir",
		Short:         "Sierra to MLIR compiler",
		Long:          `sierra2mlir lowers Sierra programs to the MLIR llvm dialect and can execute the result`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return applyColorMode(cmd)
		},
	}

	root.AddCommand(newCompileCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newBuildCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newVersionCmd())

	registerGlobalFlags(root)
	return root
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	errorHeader = color.New(color.FgRed, color.Bold)
	panicHeader = color.New(color.FgMagenta, color.Bold)
)

// printError renders err with a colored header; program panics also list
// their backtrace, innermost frame first.
func printError(w io.Writer, err error) {
	var p *engine.Panic
	if errors.As(err, &p) {
		fmt.Fprintf(w, "%s %s\n", panicHeader.Sprint("panic:"), p.Reason)
		if p.Loc.Known() {
			fmt.Fprintf(w, "  at %s\n", p.Loc.String())
		}
		for _, frame := range p.Backtrace {
			fmt.Fprintf(w, "  in %s\n", frame)
		}
		return
	}
	fmt.Fprintf(w, "%s %v\n", errorHeader.Sprint("error:"), err)
}
