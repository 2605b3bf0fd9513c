package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sierra2mlir/internal/driver"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile [flags] <file.sierra>",
		Short: "Lower a Sierra program and print the MLIR module",
		Long:  "Lower a Sierra program to the llvm dialect and print it in generic form. Use - to read standard input.",
		Args:  cobra.ExactArgs(1),
		RunE:  compileExecution,
	}
	cmd.Flags().StringP("output", "o", "", "write the module to this file instead of stdout")
	return cmd
}

func compileExecution(cmd *cobra.Command, args []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	src, err := readSource(cmd, args[0])
	if err != nil {
		return err
	}
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	text, err := driver.Compile(cmd.Context(), src, s.opts)
	printTimings(cmd, s.opts.Timer, "compile", args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if output == "" {
		_, err = io.WriteString(cmd.OutOrStdout(), text)
		return err
	}
	if err := os.WriteFile(output, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", output, err)
	}
	return nil
}

func readSource(cmd *cobra.Command, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %q: %w", path, err)
	}
	return string(data), nil
}
