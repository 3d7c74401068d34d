package config

import (
	"fmt"
	"runtime"
)

// Platform describes the detected host platform.
type Platform struct {
	OS   string // "windows", "linux", ...
	Arch string // "amd64" or "arm64"

	// Supported is false where no WSL host exists. The supervisor still
	// builds and runs its tests there, but cannot host a guest.
	Supported bool
}

// DetectPlatform detects the host platform.
func DetectPlatform() *Platform {
	p := &Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
	p.Supported = p.OS == "windows" && (p.Arch == "amd64" || p.Arch == "arm64")
	return p
}

// Require returns an error when the platform cannot host a WSL guest.
func (p *Platform) Require() error {
	if p.Supported {
		return nil
	}
	return fmt.Errorf(
		"unsupported platform: %s/%s. Stevedore requires Windows with WSL 2",
		p.OS, p.Arch,
	)
}

func (p *Platform) String() string {
	return fmt.Sprintf("%s/%s", p.OS, p.Arch)
}
