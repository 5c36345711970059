// Package version reports the skillvet build version.
package version

import (
	"runtime/debug"
)

// Version is set at link time with
// -ldflags "-X github.com/leppikallio/pai-opencode/internal/version.Version=v1.2.3".
var Version string

// Swappable for testing
var readBuildInfo = debug.ReadBuildInfo

// BuildVersion returns the linked version, then the module version, or
// "dev" when neither is known.
func BuildVersion() string {
	if Version != "" {
		return Version
	}
	info, ok := readBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

// Revision returns the short VCS revision embedded by the go tool, with a
// "+dirty" suffix for modified trees. Empty when unavailable.
func Revision() string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "+dirty"
	}
	return rev
}
