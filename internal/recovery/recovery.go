// Package recovery provides panic recovery for task bodies and background
// goroutines. Recoverable errors in the node become counters; a panic in
// one task must not unwind the scheduler loop.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Protect runs fn, recovering and logging any panic. The scheduler wraps
// every task release with it; onPanic, when non-nil, records the fault.
func Protect(logger *slog.Logger, name string, onPanic func(recovered any), fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic recovered",
				"task", name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()))
			if onPanic != nil {
				onPanic(r)
			}
		}
	}()
	fn()
}

// RecoverWithLog recovers from panics and logs them with the provided
// logger. Use with defer at the start of goroutines.
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered",
			"goroutine", name,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()))
	}
}
