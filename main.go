package main

import (
	"fmt"
	"os"

	"github.com/rsjfw/rsjfw/internal/cli"
)

// version, commit, and date are set via ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := cli.Execute(version, commit, date); err != nil {
		fmt.Fprintf(os.Stderr, "[RSJFW] %v\n", err)
		os.Exit(1)
	}
}
