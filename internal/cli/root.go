package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skhelladi/engrid-next/internal/forge"
)

var (
	cfgFile  string
	prefix   string
	jobs     int
	depJobs  int
	idle     bool
	debug    bool
	skipDeps []string
	refs     []string
	setFlags []string
)

var rootCmd = &cobra.Command{
	Use:   "engrid-deps",
	Short: "Build orchestrator for enGrid's native dependencies",
	Long: `engrid-deps builds enGrid's heavyweight native dependencies (VTK with Qt
integration and Python wrapping, and the netgen meshing kernel) from source.

For each dependency it probes the existing build and install trees, decides
whether they already satisfy the desired configuration, and otherwise
rebuilds into a staging directory that is swapped into place atomically,
keeping the previous install as a timestamped backup.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, deps, err := loadRun()
		if err != nil {
			return err
		}
		if err := forge.CheckHostTools(deps); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runner := forge.NewRunner(ctx)
		runner.ApplyIdlePriority = cfg.IdlePriority
		orch := forge.NewOrchestrator(cfg, forge.NewCMake(cfg, runner))

		if _, err := orch.Run(deps); err != nil {
			return err
		}
		forge.PrintEnvHints(os.Stdout, cfg, deps)
		return nil
	},
}

// Execute runs the CLI. Errors are printed to stderr and mapped to a
// non-zero exit status by main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "engrid-deps.yaml", "config file (missing file is fine)")
	pf.StringVar(&prefix, "prefix", "", "installation prefix (default \""+forge.DefaultPrefix+"\")")
	pf.BoolVar(&debug, "debug", false, "enable debug output")
	pf.StringArrayVar(&skipDeps, "skip", nil, "skip a dependency entirely (repeatable)")

	f := rootCmd.Flags()
	f.IntVarP(&jobs, "jobs", "j", 0, "compile parallelism (default: host CPU count)")
	f.IntVar(&depJobs, "dep-jobs", 0, "how many dependency pipelines to run at once (default 1)")
	f.BoolVar(&idle, "idle", false, "run toolchain commands at idle priority")
	f.StringArrayVar(&refs, "ref", nil, "override a dependency's version, e.g. --ref vtk=v9.2.6 (repeatable)")
	f.StringArrayVar(&setFlags, "set", nil, "override a desired flag, e.g. --set vtk:VTK_WRAP_PYTHON=OFF (repeatable)")

	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadRun builds the immutable run configuration (file < environment <
// flags) and the specialized dependency catalog.
func loadRun() (*forge.Config, []*forge.Dependency, error) {
	cfg, err := forge.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if prefix != "" {
		cfg.Prefix = prefix
	}
	if jobs > 0 {
		cfg.Jobs = jobs
	}
	if depJobs > 0 {
		cfg.DepJobs = depJobs
	}
	if idle {
		cfg.IdlePriority = true
	}
	if debug {
		cfg.Debug = true
	}
	for _, name := range skipDeps {
		cfg.Skip[name] = true
	}
	for _, r := range refs {
		name, ref, ok := strings.Cut(r, "=")
		if !ok || name == "" || ref == "" {
			return nil, nil, fmt.Errorf("invalid --ref %q (want name=ref)", r)
		}
		cfg.Refs[name] = ref
	}
	for _, s := range setFlags {
		name, assign, ok := strings.Cut(s, ":")
		if !ok || name == "" || !strings.Contains(assign, "=") {
			return nil, nil, fmt.Errorf("invalid --set %q (want name:KEY=VALUE)", s)
		}
		cfg.Flags[name] = append(cfg.Flags[name], assign)
	}

	forge.Debug = cfg.Debug

	deps, err := cfg.ApplyOverrides(forge.DefaultCatalog())
	if err != nil {
		return nil, nil, err
	}
	return cfg, deps, nil
}
