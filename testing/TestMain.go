// Package testing switches the portal into test mode for every package that
// imports it from its tests.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PORTAL_TEST_MODE", "1")
		if os.Getenv("REALTIME_URL") == "" {
			_ = os.Setenv("REALTIME_URL", "ws://127.0.0.1:0/ws")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
