package version

import (
	"fmt"
	"runtime"
)

// Name is the service name reported by /version and startup logs
const Name = "wo-import-server"

// Set at build time via -ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns the build identity as a map for the /version endpoint
func Info() map[string]string {
	return map[string]string{
		"name":      Name,
		"version":   Version,
		"gitCommit": GitCommit,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
	}
}

// String returns a one-line version banner
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", Name, Version, GitCommit, BuildTime)
}
