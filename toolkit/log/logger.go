package log

import (
	"context"
	"log/slog"
	"sync"
)

type handlerKey struct{}

// WithHandler sets the provided [slog.Handler] to be used by calls to
// [Logger] against the returned Context.
func WithHandler(ctx context.Context, h slog.Handler) context.Context {
	return context.WithValue(ctx, handlerKey{}, h)
}

var discardLogger = sync.OnceValue(func() *slog.Logger {
	return slog.New(slog.DiscardHandler)
})

// Logger returns a *[slog.Logger] for the request-scoped handler installed
// with [WithHandler], wrapped so that it honors [With]/[WithAttr] baggage
// and [WithLevel] overrides.
//
// If no handler has been installed, the returned Logger discards everything,
// so callers never need to nil-check.
func Logger(ctx context.Context) *slog.Logger {
	v := ctx.Value(handlerKey{})
	if v == nil {
		return discardLogger()
	}
	return slog.New(WrapHandler(v.(slog.Handler)))
}
