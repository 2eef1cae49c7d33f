// Package version exposes the build identity of the floodmap binary.
package version

// Populated by the linker via -ldflags at release time; the zero values
// identify a local development build.
var (
	// Version is the release version of this build.
	Version = "0.1.0"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
)
