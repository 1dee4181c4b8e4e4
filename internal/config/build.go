package config

import "fmt"

// Overridden by the release build:
//
//	go build -ldflags "-X reorder/internal/config.version=$(git describe --tags) \
//	    -X reorder/internal/config.commit=$(git rev-parse --short HEAD)" ./cmd/precompute
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo returns the build metadata of the running binary.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// UserAgent identifies service on outbound provider calls, e.g.
// "reorder-precompute/1.4.0 (a1b2c3d)".
func (b BuildInfo) UserAgent(service string) string {
	if b.Commit == "" || b.Commit == "none" {
		return fmt.Sprintf("%s/%s", service, b.Version)
	}
	return fmt.Sprintf("%s/%s (%s)", service, b.Version, b.Commit)
}
