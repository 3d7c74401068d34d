// Package version holds build-time version info injected via ldflags.
//
// Build with:
//
//	go build -ldflags "-X github.com/slonopotamus/stevedore/internal/version.version=v0.3.0 -X github.com/slonopotamus/stevedore/internal/version.commit=$(git rev-parse --short HEAD)"
package version

import "runtime"

var (
	version = "dev"
	commit  = ""
)

// Version returns the build version string.
func Version() string {
	return version
}

// String is the one-line version banner.
func String() string {
	s := "stevedore " + version
	if commit != "" {
		s += " (" + commit + ")"
	}
	return s + " " + runtime.GOOS + "/" + runtime.GOARCH
}
