package driver

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// config is the optional project-level windstream.toml, per SPEC_FULL.md's
// AMBIENT STACK "Configuration": defaults for optimization level, default
// output directory, and import search paths. CLI flags always override a
// file-supplied value (applyConfig only fills in fields opts left unset).
type config struct {
	OptLevel   string   `toml:"opt_level"`
	OutDir     string   `toml:"out_dir"`
	ImportPath []string `toml:"import_path"`
}

// loadConfig searches for windstream.toml starting at the current
// directory and walking upward, unless explicitPath names one directly. A
// missing file is not an error: config is optional.
func loadConfig(explicitPath string) (*config, error) {
	path := explicitPath
	if path == "" {
		found, ok := findUpward("windstream.toml")
		if !ok {
			return &config{}, nil
		}
		path = found
	}
	var cfg config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return &config{}, err
	}
	return &cfg, nil
}

func findUpward(name string) (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// applyConfig fills in Options fields the CLI left at their zero value
// from cfg, so a flag the user actually passed always wins.
func applyConfig(opts Options, cfg *config) Options {
	if cfg == nil {
		return opts
	}
	if opts.OptLevel == "" {
		opts.OptLevel = cfg.OptLevel
	}
	if opts.Output == "" && cfg.OutDir != "" && opts.Input != "" {
		opts.Output = filepath.Join(cfg.OutDir, filepath.Base(defaultOutput(opts.Input, ".exe")))
	}
	return opts
}
