package testlog

import (
	"testing"

	"github.com/danmuck/netspeed/internal/logging"
)

// Start configures test logging and marks the start of t in the log.
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	logging.Infof("test=%s", t.Name())
}
