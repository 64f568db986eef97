package main

import (
	"context"
	"fmt"
	"os"

	cerr "github.com/cockroachdb/errors"
	"github.com/openfroyo/launchpad/cmd/launchpad/commands"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// The orchestrator installs its own interrupt handling for the run.
	err := commands.Execute(context.Background(), Version, Commit, BuildDate)
	code := commands.ExitCode(err)
	if code != 0 {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hints := cerr.FlattenHints(err); hints != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hints)
		}
	}
	os.Exit(code)
}
