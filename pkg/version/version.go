// Package version carries build information stamped in with ldflags:
//
//	go build -ldflags "-X dungeonmaster/pkg/version.Version=v0.3.0 -X dungeonmaster/pkg/version.Commit=$(git rev-parse --short HEAD)"
package version

import "fmt"

//nolint:gochecknoglobals // ldflags targets
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the build for --version output.
func String(binary string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", binary, Version, Commit, Date)
}
