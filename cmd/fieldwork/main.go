// Package main provides the fieldwork CLI.
package main

import (
	"os"

	"github.com/mkessler/fieldwork/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
