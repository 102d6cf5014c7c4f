// Package safego provides a panic-recovering goroutine launcher for background work.
package safego

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/lanehq/lanehq/internal/telemetry"
)

// Go launches fn in a new goroutine. A panic in fn is recovered, logged with the
// task name and stack, and reported to error tracking. Use it for fire-and-forget
// work such as release announcements and audit writes.
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("recovered panic in background goroutine",
					"task", task, "panic", r, "stack", string(debug.Stack()))
				telemetry.CaptureError(fmt.Errorf("panic in %s: %v", task, r), "safego")
			}
		}()
		fn()
	}()
}
