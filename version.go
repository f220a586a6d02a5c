package lmkv

import (
	"fmt"

	"github.com/Giulio2002/lmkv/engine"
)

// Version constants
const (
	// Major is the major version number
	Major = 0

	// Minor is the minor version number
	Minor = 1

	// Patch is the patch version number
	Patch = 0
)

// VersionInfo describes the library and the engines it was built with.
type VersionInfo struct {
	Major    uint8
	Minor    uint8
	Release  uint8
	Describe string
	Engines  []string
}

// Version returns the version string of lmkv.
func Version() string {
	return fmt.Sprintf("lmkv %d.%d.%d", Major, Minor, Patch)
}

// GetVersionInfo returns version information.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Major:    Major,
		Minor:    Minor,
		Release:  Patch,
		Describe: fmt.Sprintf("v%d.%d.%d", Major, Minor, Patch),
		Engines:  engine.Names(),
	}
}
