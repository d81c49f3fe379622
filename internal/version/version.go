// Package version exposes build metadata for the recipe proxy and shard store
// binaries. The variables are overridden with -ldflags at build time.
package version

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or short commit of the build.
	// Set via: -ldflags "-X recipeproxy/internal/version.Version=..."
	Version = "unknown"

	// BuildDate is the UTC build timestamp in RFC 3339 form.
	// Set via: -ldflags "-X recipeproxy/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// GitCommit is the full commit SHA the binary was built from.
	// Set via: -ldflags "-X recipeproxy/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info holds build metadata plus identity of the running process.
type Info struct {
	Version    string `json:"version"`
	GitCommit  string `json:"git_commit"`
	BuildDate  string `json:"build_date"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns build metadata and runtime identity. The instance ID and
// hostname are resolved once per process.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			GoVersion:  runtime.Version(),
			Platform:   runtime.GOOS + "/" + runtime.GOARCH,
			InstanceID: uuid.New().String(),
			Hostname:   getHostname(),
		}
	})
	return info
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}

// String formats version info for CLI display.
func (i Info) String() string {
	return fmt.Sprintf("recipeproxy version %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}
