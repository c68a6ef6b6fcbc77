package forge

import (
	"fmt"
	"os"

	"github.com/gookit/color"
)

// color helpers
var (
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

// Debug enables debugf output. Set once from the loaded Config before the
// orchestrator runs.
var Debug bool

// debugf prints debug messages when Debug is true
func debugf(format string, args ...any) {
	if Debug {
		fmt.Printf(format, args...)
	}
}

// stepf prints a "-> message" status line in the standard style.
func stepf(format string, a ...any) {
	colArrow.Print("-> ")
	colSuccess.Printf(format+"\n", a...)
}

// warnf prints a warning to stderr.
func warnf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", a...)
}
