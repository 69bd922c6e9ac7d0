package main

import (
	"os"

	"github.com/pysugar/gmail-agent-nexus/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
