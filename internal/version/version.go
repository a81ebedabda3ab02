package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/krskas/slack-task-tracker/internal/version.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// GoVersion returns the Go runtime version string.
func GoVersion() string { return runtime.Version() }

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("reaction-tasks %s (commit %s, built %s, %s)", Version, GitCommit, BuildTime, GoVersion())
}
