package version

import (
	"fmt"
	"runtime"
)

// Build information, set at build time with -ldflags "-X github.com/zsiec/tsingest/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
	OS        = runtime.GOOS
	Arch      = runtime.GOARCH
)

// Info contains version information.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns the version information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        OS,
		Arch:      Arch,
	}
}

// String returns the version string.
func (i Info) String() string {
	return fmt.Sprintf("tsingest %s (commit: %s, built: %s, go: %s, os/arch: %s/%s)",
		i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.OS, i.Arch)
}

// Short returns a short version string.
func (i Info) Short() string {
	return fmt.Sprintf("tsingest %s", i.Version)
}

// UserAgent returns the User-Agent sent with range requests.
func (i Info) UserAgent() string {
	return fmt.Sprintf("tsingest/%s (%s/%s)", i.Version, i.OS, i.Arch)
}

// UserAgent returns the User-Agent of the running build.
func UserAgent() string {
	return GetInfo().UserAgent()
}
