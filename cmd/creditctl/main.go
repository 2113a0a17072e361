// Command creditctl inspects a user's credit balance, classifies server refusals and
// manages the spend confirmation preference from the command line.
package main

import (
	"fmt"
	"os"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
