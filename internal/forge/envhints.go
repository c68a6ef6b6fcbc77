package forge

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// PrintEnvHints emits shell-sourceable assignments pointing downstream
// builds at the final install paths. Advisory text for humans and shells;
// nothing in this system parses it back.
func PrintEnvHints(w io.Writer, cfg *Config, deps []*Dependency) {
	var prefixPaths []string
	fmt.Fprintln(w, "# engrid-deps: source this to point downstream builds at the installed libraries")
	for _, dep := range deps {
		install := dep.InstallDir(cfg.Prefix)
		if abs, err := filepath.Abs(install); err == nil {
			install = abs
		}
		if dep.EnvVar != "" {
			fmt.Fprintf(w, "export %s=%s\n", dep.EnvVar, install)
		}
		prefixPaths = append(prefixPaths, install)
	}
	if len(prefixPaths) > 0 {
		fmt.Fprintf(w, "export CMAKE_PREFIX_PATH=%s${CMAKE_PREFIX_PATH:+:$CMAKE_PREFIX_PATH}\n",
			strings.Join(prefixPaths, ":"))
	}
}
