package bqetl

import (
	"context"
	"time"
)

type contextKey string

const (
	startedTimeKey contextKey = "startedTime"
)

func withStartedTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startedTimeKey, t)
}

func startedTimeFrom(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startedTimeKey).(time.Time)
	return t, ok
}

// WithRunDate sets the date used to name the artifacts of runs started with
// ctx. Entry points use it to date runs by their trigger event.
func WithRunDate(ctx context.Context, t time.Time) context.Context {
	return withStartedTime(ctx, t)
}
