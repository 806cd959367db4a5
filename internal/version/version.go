// Package version holds build metadata stamped in at link time via
// -ldflags "-X github.com/hearth-home/hearth/internal/version.Version=...".
package version

// Set by the build; the zero values identify a local dev build.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the bare version string for headers and banners.
func Short() string { return Version }

// Map returns the build metadata for status payloads.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}
}
