// Package buildconfig exposes version metadata injected at link time:
//
//	go build -ldflags "-X github.com/Harshitk-cp/symstate/internal/buildconfig.version=v1.2.0 \
//	  -X github.com/Harshitk-cp/symstate/internal/buildconfig.commit=$(git rev-parse --short HEAD)"
package buildconfig

import "runtime/debug"

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

// Commit returns the injected commit, falling back to the VCS revision the
// toolchain embedded in the binary.
func Commit() string {
	if commit != "unknown" {
		return commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 7 {
				return s.Value[:7]
			}
		}
	}
	return commit
}

func VersionInfo() map[string]string {
	return map[string]string{
		"version": Version(),
		"commit":  Commit(),
	}
}
