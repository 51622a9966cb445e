// Package buildinfo carries version stamps set with -ldflags at build time.
package buildinfo

import (
	"fmt"

	"github.com/cordum/cordum-import/core/infra/logging"
)

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a single-line build summary.
func Info() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", Version, Commit, Date)
}

// Log writes the build stamps under the given component.
func Log(component string) {
	logging.Info(component, "build", "version", Version, "commit", Commit, "date", Date)
}
