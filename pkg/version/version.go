// Package version holds build information injected with ldflags:
//
//	go build -ldflags "-X docflow/pkg/version.Version=v1.2.3 -X docflow/pkg/version.Commit=abc123"
package version

import "fmt"

//nolint:gochecknoglobals // must be package-level vars for ldflags injection
var (
	// Version is the semantic version, "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("docflow %s (commit %s, built %s)", Version, Commit, Date)
}
