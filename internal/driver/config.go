package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"sierra2mlir/internal/trace"
)

// ConfigFileName is looked up from the working directory upwards.
const ConfigFileName = "sierra2mlir.toml"

// Config mirrors sierra2mlir.toml.
type Config struct {
	Compile CompileConfig `toml:"compile"`
	Engine  EngineConfig  `toml:"engine"`
	Trace   TraceConfig   `toml:"trace"`
	Cache   CacheConfig   `toml:"cache"`
}

type CompileConfig struct {
	VerifyMoves    bool   `toml:"verify_moves"`
	PrintLocations bool   `toml:"print_locations"`
	Target         string `toml:"target"`
}

type EngineConfig struct {
	MaxSteps int64 `toml:"max_steps"`
	OptLevel int   `toml:"opt_level"`
}

type TraceConfig struct {
	Level  string `toml:"level"`
	Mode   string `toml:"mode"`
	Output string `toml:"output"`
	Format string `toml:"format"`
}

// Settings converts the section for trace.Settings.Resolve.
func (t TraceConfig) Settings() trace.Settings {
	return trace.Settings{Level: t.Level, Mode: t.Mode, Format: t.Format, Output: t.Output}
}

type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// DefaultConfig is used when no file is found and fills keys a file omits.
func DefaultConfig() Config {
	return Config{
		Compile: CompileConfig{Target: "x86_64-linux-gnu"},
		Engine:  EngineConfig{MaxSteps: 10_000_000},
		Trace:   TraceConfig{Level: "off", Mode: "stream", Output: "-", Format: "text"},
		Cache:   CacheConfig{Enabled: true},
	}
}

// FindConfig walks up from startDir to locate sierra2mlir.toml.
func FindConfig(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// LoadConfig decodes path over DefaultConfig. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks enumerated values.
func (c Config) Validate() error {
	if _, err := c.Trace.Settings().Resolve(); err != nil {
		return err
	}
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("engine.max_steps must not be negative")
	}
	if c.Engine.OptLevel < 0 || c.Engine.OptLevel > 3 {
		return fmt.Errorf("engine.opt_level must be between 0 and 3")
	}
	return nil
}

// Options converts the file settings into pipeline options. The cache is
// opened by the caller.
func (c Config) Options() Options {
	return Options{
		VerifyMoves:    c.Compile.VerifyMoves,
		PrintLocations: c.Compile.PrintLocations,
		Target:         c.Compile.Target,
		MaxSteps:       c.Engine.MaxSteps,
		OptLevel:       c.Engine.OptLevel,
	}
}
