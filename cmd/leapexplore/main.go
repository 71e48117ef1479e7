// Package main provides the CLI for LeapExplore.
package main

import (
	"os"

	"github.com/leapstack-labs/leapexplore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
