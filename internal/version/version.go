// Package version holds build information injected with -ldflags "-X".
package version

import "fmt"

// Build information. Defaults identify a development build.
var (
	Version   = "0.0.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String formats the build information for a --version flag.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
