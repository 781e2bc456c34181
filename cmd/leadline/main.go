// Command leadline is the entry point for the Leadline apartment-locator
// agent. It provides a CLI interface (via Cobra) and an HTTP server that
// answers lead messages in the persona of a human locator.
package main

import (
	"fmt"
	"os"

	"github.com/leadline-ai/leadline/cmd/leadline/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
