// Package version carries build metadata injected via ldflags:
//
//	go build -ldflags "-X github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/version.Version=0.4.0
//	  -X github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/version.Commit=abc123"
package version

import (
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a one-line build description.
func Info() string {
	return fmt.Sprintf("careai %s (commit: %s, built: %s, %s/%s)",
		Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent by remote agent adapters.
func UserAgent() string {
	return "careai/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
