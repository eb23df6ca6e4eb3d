// Package safego launches background goroutines that recover and log panics
// instead of crashing the process.
package safego

import "log/slog"

// Go launches fn in a new goroutine with panic recovery. Used for
// fire-and-forget work such as the claim sweeper and the metrics server,
// where an unrecovered panic would otherwise kill the goroutine silently.
func Go(fn func()) {
	GoNamed("", fn)
}

// GoNamed is Go with a job name attached to the recovery log entry so panics
// from long-running background jobs can be attributed.
func GoNamed(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if name != "" {
					slog.Error("recovered panic in background goroutine", "job", name, "panic", r)
					return
				}
				slog.Error("recovered panic in background goroutine", "panic", r)
			}
		}()
		fn()
	}()
}
