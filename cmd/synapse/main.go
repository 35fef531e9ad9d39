// Package main provides the entry point for the synapse CLI.
package main

import (
	"os"

	"github.com/dlorp/synapse/cmd/synapse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
