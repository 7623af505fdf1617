package main

import (
	"fmt"
	"os"

	"github.com/lumenchat/governor/internal/cmd"
)

// Version information set via ldflags during build:
// go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-01-01"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "governor: %v\n", err)
		os.Exit(1)
	}
}
