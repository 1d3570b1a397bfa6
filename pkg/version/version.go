package version

import (
	"fmt"
	"runtime"
	"time"
)

// Name is the program name used in user agents and version output.
const Name = "mailgun-notifier"

var (
	// Version is the semantic version, injected at build time via -ldflags
	Version = "dev"
	// GitCommit is the git commit hash, injected at build time
	GitCommit = "unknown"
	// BuildDate is the build timestamp, injected at build time
	BuildDate = "unknown"
	// GoVersion is the Go compiler version
	GoVersion = runtime.Version()
	// Platform is the OS/Arch
	Platform = runtime.GOOS + "/" + runtime.GOARCH
)

// BuildInfo contains metadata about the build
type BuildInfo struct {
	Name      string    `json:"name" yaml:"name"`
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string    `json:"buildDate" yaml:"buildDate"`
	GoVersion string    `json:"goVersion" yaml:"goVersion"`
	Platform  string    `json:"platform" yaml:"platform"`
	BuildTime time.Time `json:"buildTime,omitempty" yaml:"buildTime,omitempty"`
}

// GetBuildInfo returns build metadata
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
		Platform:  Platform,
	}

	if t, err := time.Parse(time.RFC3339, BuildDate); err == nil {
		info.BuildTime = t
	}

	return info
}

// UserAgent identifies outbound HTTP requests, e.g. "mailgun-notifier/1.2.0 (linux/amd64)".
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s)", Name, Version, Platform)
}

// String renders the build info on one line.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s, %s)",
		b.Name, b.Version, b.GitCommit, b.BuildDate, b.GoVersion, b.Platform)
}
