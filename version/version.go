// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/examtile/examtile/version.GitRelease=v0.1.0 ..."
var (
	GitRelease    = "dev"
	GitCommit     = "unknown"
	GitCommitDate = "unknown"
	GoInfo        = fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
)

// Info is the machine-readable form served by the status endpoint.
type Info struct {
	Release    string `json:"release" yaml:"release"`
	Commit     string `json:"commit" yaml:"commit"`
	CommitDate string `json:"commit_date" yaml:"commit_date"`
	Go         string `json:"go" yaml:"go"`
}

// Get returns the current build info.
func Get() Info {
	return Info{
		Release:    GitRelease,
		Commit:     GitCommit,
		CommitDate: GitCommitDate,
		Go:         GoInfo,
	}
}
