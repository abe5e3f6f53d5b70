// Package panicerr converts panics in background callbacks into errors or log
// records so a misbehaving timer or goroutine never takes the daemon down.
package panicerr

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps a function returning an error, converting a panic into an error.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// SafeContext is Safe for context-taking functions.
func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn(ctx)
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

// Logged runs fn and logs a recovered panic. Intended for time.AfterFunc
// callbacks that have nowhere to return an error.
func Logged(name string, fn func()) func() {
	return func() {
		var catcher panics.Catcher
		catcher.Try(fn)
		if r := catcher.Recovered(); r != nil {
			slog.Error("panic recovered", "callback", name, "error", r.AsError())
		}
	}
}
