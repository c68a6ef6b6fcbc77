package forge

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPrefix is where dependencies are installed when nothing else is
// configured, relative to the working directory.
const DefaultPrefix = "engrid-deps"

// Config carries one run's settings. It is built once from file, environment
// and flags, then passed into the orchestrator and never mutated.
type Config struct {
	// Prefix is the root under which all source, build and install trees live.
	Prefix string
	// CacheDir holds downloaded source archives. Defaults to <prefix>/.cache.
	CacheDir string
	// Jobs bounds compile parallelism; 0 means derive from host CPU count.
	Jobs int
	// DepJobs bounds how many dependency pipelines run at once; 0 or 1 is
	// the sequential baseline.
	DepJobs int
	// IdlePriority runs toolchain commands under nice and halves the
	// derived compile job count.
	IdlePriority bool
	Debug        bool

	// Skip lists dependencies to leave entirely alone this run.
	Skip map[string]bool
	// Refs overrides a dependency's version/ref (name -> ref).
	Refs map[string]string
	// Flags overrides desired configuration flags (name -> KEY=VALUE list).
	Flags map[string][]string
}

// fileConfig is the YAML shape of engrid-deps.yaml.
type fileConfig struct {
	Prefix       string `yaml:"prefix"`
	CacheDir     string `yaml:"cache_dir"`
	Jobs         int    `yaml:"jobs"`
	DepJobs      int    `yaml:"dep_jobs"`
	IdlePriority bool   `yaml:"idle"`
	Debug        bool   `yaml:"debug"`
	Dependencies map[string]struct {
		Skip  bool     `yaml:"skip"`
		Ref   string   `yaml:"ref"`
		Flags []string `yaml:"flags"`
	} `yaml:"dependencies"`
}

// LoadConfig builds a Config from the optional YAML file at path (missing
// file is not an error) with ENGRID_* environment overrides merged on top.
// Flag-level overrides are applied afterwards by the CLI.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Prefix: DefaultPrefix,
		Skip:   make(map[string]bool),
		Refs:   make(map[string]string),
		Flags:  make(map[string][]string),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
			if fc.Prefix != "" {
				cfg.Prefix = fc.Prefix
			}
			cfg.CacheDir = fc.CacheDir
			cfg.Jobs = fc.Jobs
			cfg.DepJobs = fc.DepJobs
			cfg.IdlePriority = fc.IdlePriority
			cfg.Debug = fc.Debug
			for name, d := range fc.Dependencies {
				if d.Skip {
					cfg.Skip[name] = true
				}
				if d.Ref != "" {
					cfg.Refs[name] = d.Ref
				}
				if len(d.Flags) > 0 {
					cfg.Flags[name] = append(cfg.Flags[name], d.Flags...)
				}
			}
		case os.IsNotExist(err):
			// No config file; defaults plus environment apply.
		default:
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	mergeEnvOverrides(cfg)

	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.Prefix, ".cache")
	}
	return cfg, nil
}

// mergeEnvOverrides applies ENGRID_* environment variables over the file
// values, mirroring how the config file keys are named.
func mergeEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENGRID_PREFIX"); v != "" {
		cfg.Prefix = v
	}
	if v := os.Getenv("ENGRID_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("ENGRID_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Jobs = n
		}
	}
	if v := os.Getenv("ENGRID_DEP_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DepJobs = n
		}
	}
	if os.Getenv("ENGRID_DEBUG") == "1" {
		cfg.Debug = true
	}
	if os.Getenv("ENGRID_IDLE") == "1" {
		cfg.IdlePriority = true
	}
	if v := os.Getenv("ENGRID_SKIP"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Skip[name] = true
			}
		}
	}
}

// ApplyOverrides specializes the catalog for this run: drops skipped
// dependencies and applies ref and flag overrides. The input slice is not
// modified; overridden dependencies are copies.
func (cfg *Config) ApplyOverrides(catalog []*Dependency) ([]*Dependency, error) {
	out := make([]*Dependency, 0, len(catalog))
	for _, d := range catalog {
		if cfg.Skip[d.Name] {
			debugf("Skipping %s by request\n", d.Name)
			continue
		}
		dep := *d
		if ref, ok := cfg.Refs[d.Name]; ok {
			dep.Ref = ref
			dep.Version = strings.TrimPrefix(ref, "v")
		}
		if flags, ok := cfg.Flags[d.Name]; ok {
			override, err := NewSignature(flags...)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", d.Name, err)
			}
			dep.Desired = dep.Desired.Merge(override)
		}
		out = append(out, &dep)
	}
	return out, nil
}
