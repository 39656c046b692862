// Package version reports the tracker build. The variables are overridden
// with -ldflags "-X marker-tracker/internal/version.GitCommit=...".
package version

import "fmt"

var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the build for start-up log lines.
func String() string {
	return fmt.Sprintf("v%s (%s, built %s)", Version, GitCommit, BuildTime)
}
