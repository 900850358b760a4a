// Package main is the entry point for the sentry command line.
package main

import (
	"os"

	"cloudtrail-sentry/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
