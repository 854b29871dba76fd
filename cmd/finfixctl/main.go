// Command finfixctl is the operator tool: it runs schema migrations and
// answers wizard questions offline against a summary file.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
