package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"sierra2mlir/internal/driver"
	"sierra2mlir/internal/observ"
)

func registerGlobalFlags(root *cobra.Command) {
	fs := root.PersistentFlags()
	fs.String("config", "", "path to "+driver.ConfigFileName+" (default: search upwards from the working directory)")
	fs.String("color", "auto", "colorize output (auto|on|off)")
	fs.Bool("timings", false, "print per-stage timings to stderr")
	fs.Bool("timings-json", false, "print timings as one JSON line")

	fs.Bool("verify-moves", false, "check that every variable is consumed exactly once")
	fs.Bool("print-locations", false, "print loc(...) attributes in the emitted module")
	fs.String("target", "", "target triple (default x86_64-linux-gnu)")
	fs.Bool("no-cache", false, "bypass the compilation cache")
	fs.String("cache-dir", "", "compilation cache directory")
	fs.Int64("max-steps", 0, "interpreter step budget (0 = unlimited)")
	fs.IntP("opt-level", "O", 0, "engine optimization level (0-3)")

	fs.String("trace", "", "trace output file (- for stderr)")
	fs.String("trace-level", "", "trace level (off|error|phase|detail|debug)")
	fs.String("trace-mode", "", "trace storage mode (stream|ring|both)")
	fs.String("trace-format", "", "trace format (auto|text|ndjson)")
	fs.Int("trace-ring-size", 4096, "events kept in ring mode")
	fs.Duration("trace-heartbeat", 0, "heartbeat interval (0 disables)")
}

// loadConfig reads --config or the nearest sierra2mlir.toml and applies
// explicitly set flags on top.
func loadConfig(cmd *cobra.Command) (driver.Config, error) {
	fs := cmd.Root().PersistentFlags()
	path, err := fs.GetString("config")
	if err != nil {
		return driver.Config{}, err
	}
	cfg := driver.DefaultConfig()
	if path == "" {
		found, ok, findErr := driver.FindConfig(".")
		if findErr != nil {
			return driver.Config{}, findErr
		}
		if ok {
			path = found
		}
	}
	if path != "" {
		if cfg, err = driver.LoadConfig(path); err != nil {
			return driver.Config{}, err
		}
	}
	if err := applyFlagOverrides(&cfg, fs); err != nil {
		return driver.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return driver.Config{}, err
	}
	return cfg, nil
}

// applyFlagOverrides copies every flag the user set into cfg. Unset flags
// keep the file value.
func applyFlagOverrides(cfg *driver.Config, fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err != nil || !fs.Changed(name) {
			return
		}
		err = apply()
	}
	set("verify-moves", func() (e error) { cfg.Compile.VerifyMoves, e = fs.GetBool("verify-moves"); return })
	set("print-locations", func() (e error) { cfg.Compile.PrintLocations, e = fs.GetBool("print-locations"); return })
	set("target", func() (e error) { cfg.Compile.Target, e = fs.GetString("target"); return })
	set("max-steps", func() (e error) { cfg.Engine.MaxSteps, e = fs.GetInt64("max-steps"); return })
	set("opt-level", func() (e error) { cfg.Engine.OptLevel, e = fs.GetInt("opt-level"); return })
	set("no-cache", func() error {
		off, e := fs.GetBool("no-cache")
		if off {
			cfg.Cache.Enabled = false
		}
		return e
	})
	set("cache-dir", func() (e error) { cfg.Cache.Dir, e = fs.GetString("cache-dir"); return })
	set("trace", func() error {
		out, e := fs.GetString("trace")
		if e != nil {
			return e
		}
		cfg.Trace.Output = out
		// --trace alone turns phase tracing on
		if !fs.Changed("trace-level") && cfg.Trace.Level == "off" {
			cfg.Trace.Level = "phase"
		}
		return nil
	})
	set("trace-level", func() (e error) { cfg.Trace.Level, e = fs.GetString("trace-level"); return })
	set("trace-mode", func() (e error) { cfg.Trace.Mode, e = fs.GetString("trace-mode"); return })
	set("trace-format", func() (e error) { cfg.Trace.Format, e = fs.GetString("trace-format"); return })
	return err
}

// pipelineOptions turns cfg into driver options, opening the cache and the
// timer when requested. A cache that cannot be opened is reported and
// skipped.
func pipelineOptions(cmd *cobra.Command, cfg driver.Config) (driver.Options, error) {
	opts := cfg.Options()
	if cfg.Cache.Enabled {
		dir := cfg.Cache.Dir
		if dir == "" {
			var err error
			if dir, err = driver.DefaultCacheDir(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: cache disabled: %v\n", err)
			}
		}
		if dir != "" {
			cache, err := driver.OpenCache(dir)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: cache disabled: %v\n", err)
			} else {
				opts.Cache = cache
			}
		}
	}
	timings, err := wantTimings(cmd)
	if err != nil {
		return driver.Options{}, err
	}
	if timings {
		opts.Timer = observ.NewTimer()
	}
	return opts, nil
}

func wantTimings(cmd *cobra.Command) (bool, error) {
	fs := cmd.Root().PersistentFlags()
	plain, err := fs.GetBool("timings")
	if err != nil {
		return false, err
	}
	asJSON, err := fs.GetBool("timings-json")
	if err != nil {
		return false, err
	}
	return plain || asJSON, nil
}

func printTimings(cmd *cobra.Command, t *observ.Timer, kind, path string) {
	if t == nil {
		return
	}
	asJSON, _ := cmd.Root().PersistentFlags().GetBool("timings-json")
	out, err := driver.FormatTimings(t, kind, path, asJSON)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "timings: %v\n", err)
		return
	}
	fmt.Fprint(cmd.ErrOrStderr(), out)
}
