package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"     // overridden at build time
	buildDate = "unknown" // overridden at build time
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("engrid-deps %s (%s, built %s)\n", version, runtime.GOARCH, buildDate)
	},
}
