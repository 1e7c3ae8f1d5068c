// Command ipscope is the CLI client for the ipscope API: synchronous
// lookups, recount submissions, and recount retrieval.
package main

import (
	"os"

	"github.com/turtacn/ipscope/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(); err != nil {
		// Execute already printed the error
		os.Exit(1)
	}
}
