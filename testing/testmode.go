// Package testing switches binaries into test mode when imported by a test, so
// main packages can be exercised without postgres or redis.
package testing

import (
	"os"
	"sync"
)

var once sync.Once

// EnsureTestMode sets CLINICDESK_TEST_MODE and a throwaway token secret.
func EnsureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CLINICDESK_TEST_MODE", "1")
		if os.Getenv("IDP_JWT_SECRET") == "" {
			_ = os.Setenv("IDP_JWT_SECRET", "test-secret")
		}
	})
}

func init() {
	EnsureTestMode()
}
