// Package version carries build metadata stamped in at link time:
//
//	go build -ldflags "-X github.com/openquant/feedbridge/internal/version.Version=0.3.0 \
//	                   -X github.com/openquant/feedbridge/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/openquant/feedbridge/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the release tag, "dev" for unstamped local builds.
	Version = "dev"

	// Commit is the short git hash of the build.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp in RFC 3339 form.
	BuildTime = "unknown"
)

// String renders the three parts as a single log-friendly line.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
