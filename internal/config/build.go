package config

// Linker-injected build metadata, for example:
//
//	go build -ldflags "-X doorwatch/internal/config.version=1.2.3 \
//	    -X doorwatch/internal/config.commit=$(git rev-parse --short HEAD)" ./cmd/doorwatch
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
