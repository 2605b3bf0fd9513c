package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sierra2mlir/internal/buildpipeline"
	"sierra2mlir/internal/observ"
	"sierra2mlir/internal/ui"
)

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build [flags] <file.sierra>...",
		Short: "Compile several Sierra programs to .mlir files",
		Long:  "Compile every input concurrently and write <name>.mlir next to it or into --out-dir.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  buildExecution,
	}
	cmd.Flags().StringP("out-dir", "d", "", "directory for the .mlir files")
	cmd.Flags().IntP("jobs", "j", 0, "parallel compilations (0 = GOMAXPROCS)")
	cmd.Flags().Bool("keep-going", false, "compile remaining files after a failure")
	cmd.Flags().String("ui", "auto", "progress interface (auto|on|off)")
	return cmd
}

func buildExecution(cmd *cobra.Command, args []string) error {
	outDir, err := cmd.Flags().GetString("out-dir")
	if err != nil {
		return err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return err
	}
	keepGoing, err := cmd.Flags().GetBool("keep-going")
	if err != nil {
		return err
	}
	uiValue, err := cmd.Flags().GetString("ui")
	if err != nil {
		return err
	}
	uiMode, err := readSwitchMode("ui", uiValue)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.cleanup()

	opts := s.opts
	// per-file timings replace the shared timer
	showTimings := opts.Timer != nil
	opts.Timer = nil

	req := buildpipeline.BuildRequest{
		Files:     args,
		OutputDir: outDir,
		Jobs:      jobs,
		Options:   opts,
		KeepGoing: keepGoing,
	}

	var res buildpipeline.BuildResult
	if uiMode.enabled(os.Stdout) {
		res, err = ui.RunBuild(cmd.Context(), "sierra2mlir build", cmd.OutOrStdout(), &req)
	} else {
		res, err = buildpipeline.Build(cmd.Context(), &req)
	}
	printBuildSummary(cmd.OutOrStdout(), res, showTimings)
	if err != nil {
		if failed := res.Failed(); failed > 1 {
			return fmt.Errorf("%d of %d files failed:\n%w", failed, len(res.Files), err)
		}
		return err
	}
	return nil
}

func printBuildSummary(out io.Writer, res buildpipeline.BuildResult, timings bool) {
	for _, f := range res.Files {
		if f.Err != nil {
			continue
		}
		if _, wrote := f.Timings.Lookup(buildpipeline.StageWrite); !wrote {
			continue
		}
		fmt.Fprintf(out, "built %s -> %s\n", f.File, f.Output)
		if timings {
			fmt.Fprintf(out, "  %s\n", formatFileTimings(f.Timings))
		}
	}
}

func formatFileTimings(t buildpipeline.Timings) string {
	parts := make([]string, 0, len(t)+1)
	for _, st := range t {
		parts = append(parts, fmt.Sprintf("%s %.1f ms", st.Stage, observ.Millis(st.Elapsed)))
	}
	parts = append(parts, fmt.Sprintf("total %.1f ms", observ.Millis(t.Total())))
	return strings.Join(parts, ", ")
}
