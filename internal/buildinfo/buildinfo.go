// Package buildinfo carries build-time metadata injected with -ldflags.
package buildinfo

import (
	"fmt"
	"os"
)

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Set with -ldflags "-X github.com/casebridge/dispatch-migrate/internal/buildinfo.version=..."
var (
	version   string
	buildDate string
)

// Context describes the running binary.
type Context struct {
	Version   string
	BuildDate string
	Host      string
}

// NewContext creates a Context from explicit values.
func NewContext(version, buildDate, host string) *Context {
	return &Context{Version: version, BuildDate: buildDate, Host: host}
}

// Current returns the metadata of the running binary.
func Current() *Context {
	host, _ := os.Hostname()
	return NewContext(version, buildDate, host)
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// Release is the release name reported to Sentry.
func (c *Context) Release() string {
	return "dispatch-migrate@" + c.GetVersion()
}

// String formats the metadata for the version command.
func (c *Context) String() string {
	return fmt.Sprintf("dispatch-migrate %s (built %s)", c.GetVersion(), c.GetBuildDate())
}
