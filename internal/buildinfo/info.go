// Package buildinfo carries release metadata stamped in with -ldflags.
package buildinfo

import "fmt"

// Set via -X github.com/curb-dev/curb/internal/buildinfo.<Name>=... at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the metadata for `curb --version`.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
