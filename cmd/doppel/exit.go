package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/doppelscan/doppel/pkg/ui"
)

// Process exit codes. These are a contract for CI consumers: the scan
// "fails" (1) exactly when at least one VULNERABLE finding exists.
const (
	exitOK         = 0
	exitVulnerable = 1
	exitConfig     = 2
	exitRuntime    = 3
)

// exitWithUsage prints an error plus flag usage and exits with the
// configuration error code.
func exitWithUsage(msg string) {
	ui.PrintError(msg)
	fmt.Fprintln(os.Stderr)
	flag.Usage()
	os.Exit(exitConfig)
}
