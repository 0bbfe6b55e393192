// Package schedule gates autonomous runs behind a cron-defined window, so a
// loop can be configured to start only at quiet hours.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Window is a recurring point in time at which a run may start
type Window struct {
	expr  string
	sched cron.Schedule
}

// Parse parses a standard five-field cron expression into a Window
func Parse(expr string) (*Window, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return &Window{expr: expr, sched: sched}, nil
}

// String returns the original cron expression
func (w *Window) String() string {
	return w.expr
}

// Next returns the first window at or after the given time
func (w *Window) Next(from time.Time) time.Time {
	return w.sched.Next(from)
}

// Wait blocks until the next window opens or the context is cancelled
func (w *Window) Wait(ctx context.Context) error {
	delay := time.Until(w.Next(time.Now()))
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
