package misc

import (
	"fmt"
	"runtime/debug"
	"slices"
)

// Version is set at build time via -ldflags for release binaries.
var Version string

func GetVersionInfo() string {
	if Version != "" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "The version information could not be determined"
	}
	var vcsRev = "(unknown)"
	if fnd := slices.IndexFunc(info.Settings, func(v debug.BuildSetting) bool { return v.Key == "vcs.revision" }); fnd != -1 {
		vcsRev = info.Settings[fnd].Value[0:7]
	}
	return fmt.Sprintf("dev (%s)", vcsRev)
}
