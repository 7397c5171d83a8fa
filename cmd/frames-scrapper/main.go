// Package main provides the entry point for the frames-scrapper command.
package main

import (
	"fmt"
	"os"

	"github.com/maauso/frames-scrapper/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
