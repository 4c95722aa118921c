// Package safego launches background work that must never take the process down.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/msgcore/msgcore-sub001/internal/telemetry"
)

// Go runs fn in a new goroutine. A panic in fn is recovered, logged with the
// task name and stack, and counted in background_panics_total.
func Go(task string, fn func()) {
	go run(task, fn)
}

func run(task string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.BackgroundPanicsTotal.WithLabelValues(task).Inc()
			slog.Error("recovered panic in background task",
				"task", task, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
