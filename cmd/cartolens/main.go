package main

import (
	"github.com/cartolens/cartolens/internal/cmd"
	"github.com/cartolens/cartolens/internal/observability"
	"github.com/cartolens/cartolens/internal/server/handlers"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-01-15"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		// Commands log their own specifics; this reports the exit code.
		cmd.ExitWithCode(observability.Logger(), cmd.ExitCodeFor(err), "Command execution failed", err)
	}
}
