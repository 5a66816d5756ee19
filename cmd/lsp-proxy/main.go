package main

import (
	"fmt"
	"os"

	"lsp-proxy/src/cli"
)

// runMain executes the CLI and returns the process exit code
func runMain() int {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	exitCode := runMain()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
