// Package version provides build-time version information.
package version

import "go.uber.org/zap"

// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X github.com/javanstorm/vmsession/internal/version.Version=1.0.0 \
//	                   -X github.com/javanstorm/vmsession/internal/version.Commit=$(git rev-parse HEAD) \
//	                   -X github.com/javanstorm/vmsession/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the semantic version of the library build.
	Version = "dev"

	// Commit is the git commit SHA at build time.
	Commit = "unknown"

	// BuildDate is the date when the binary was built.
	BuildDate = "unknown"
)

// Fields returns the build information as log fields.
func Fields() []zap.Field {
	return []zap.Field{
		zap.String("version", Version),
		zap.String("commit", Commit),
		zap.String("build_date", BuildDate),
	}
}
