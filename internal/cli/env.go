package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skhelladi/engrid-next/internal/forge"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Print shell-sourceable environment hints for the installed dependencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, deps, err := loadRun()
		if err != nil {
			return err
		}
		forge.PrintEnvHints(os.Stdout, cfg, deps)
		return nil
	},
}
