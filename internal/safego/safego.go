// Package safego launches background work that must never take the process down.
package safego

import (
	"context"
	"log/slog"
	"time"
)

// Go runs fn on a new goroutine. A panic inside fn is recovered and logged
// under the given task name.
func Go(task string, fn func()) {
	go func() {
		defer recoverTask(task)
		fn()
	}()
}

// GoWithTimeout runs fn on a new goroutine with a context detached from any
// request and bounded by timeout. The caller never waits for the result.
func GoWithTimeout(task string, timeout time.Duration, fn func(ctx context.Context)) {
	go func() {
		defer recoverTask(task)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}()
}

func recoverTask(task string) {
	if r := recover(); r != nil {
		slog.Error("recovered panic in background task", "task", task, "panic", r)
	}
}
