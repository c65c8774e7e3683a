package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersion(t *testing.T) {
	info := GetVersion()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
}

func TestInfoString(t *testing.T) {
	info := Info{
		Version:   "v1.4.0",
		GitCommit: "0123456789abcdef",
		BuildDate: "2026-03-02",
		GoVersion: "go1.25.0",
		Platform:  "linux/amd64",
	}
	assert.Equal(t, "v1.4.0 (commit 0123456, built 2026-03-02, go1.25.0 linux/amd64)", info.String())

	info.GitCommit = "abc"
	assert.Contains(t, info.String(), "commit abc,")
}
