// Package buildinfo carries the firmware identity stamped in by the linker:
//
//	-ldflags "-X co2mon/internal/buildinfo.Version=v1.2.0 -X co2mon/internal/buildinfo.Commit=$(git rev-parse HEAD)"
package buildinfo

import "github.com/rs/zerolog"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

const shortCommit = 7

// Short returns a compact identifier for the splash screen and window title.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		if len(Commit) > shortCommit {
			return Commit[:shortCommit]
		}
		return Commit
	}
	return "dev"
}

// Stamp adds the build identity to a log event.
func Stamp(e *zerolog.Event) *zerolog.Event {
	return e.Str("version", Version).Str("commit", Commit).Str("built", Date)
}
