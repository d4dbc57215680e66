// Command thermofit imports experimental datasets and evaluates residual
// functions for a thermodynamic database and trial parameters.
package main

import (
	"fmt"
	"os"

	_ "thermofit/internal/activity" // registers the activity residual family
)

var exitFunc = os.Exit

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		exitFunc(1)
	}
}
