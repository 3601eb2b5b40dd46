// Package testutil holds helpers shared by package tests
package testutil

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoGoroutineLeaks waits for the goroutine count to return to
// baseline+margin and fails the test if it does not within two seconds
func AssertNoGoroutineLeaks(t *testing.T, baseline int, margin int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= baseline+margin {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	t.Errorf("goroutine leak: baseline=%d, current=%d, margin=%d\n%s", baseline, runtime.NumGoroutine(), margin, buf[:n])
}
