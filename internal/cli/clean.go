package cli

import (
	"github.com/spf13/cobra"

	"github.com/skhelladi/engrid-next/internal/forge"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove final install directories so the next run rebuilds them",
	Long: `clean removes each dependency's final install directory (and any staging
leftover). Source and build trees stay, so the next run reconfigures and
rebuilds from cached build state without re-fetching anything. Timestamped
backups of previous installs are never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, deps, err := loadRun()
		if err != nil {
			return err
		}
		return forge.CleanInstalls(cfg, deps)
	},
}
