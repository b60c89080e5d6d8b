// Package versions reports build metadata of the users API binary.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/Masterminds/semver/v3"
)

// Set at build time with -ldflags "-X github.com/stacklok/synthetic-users-api/internal/versions.Version=..."
var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

const unknown = "unknown"

// VersionInfo is the build metadata exposed by /version and the version command
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the metadata of the running binary. Commit and build
// date fall back to the VCS settings embedded by the Go toolchain.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Normalize(Version),
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			}
		}
	}

	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.BuildDate == "" {
		info.BuildDate = unknown
	}
	return info
}

// Normalize renders a semantic version as "vMAJOR.MINOR.PATCH[-pre][+meta]".
// Strings that are not semantic versions, such as "dev", are returned unchanged.
func Normalize(v string) string {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return v
	}
	return "v" + parsed.String()
}
