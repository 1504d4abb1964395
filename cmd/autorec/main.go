// Package main is the entry point for the autorec appliance daemon.
package main

import (
	"os"

	"github.com/autorec/autorec/cmd/autorec/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
