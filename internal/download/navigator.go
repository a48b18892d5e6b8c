package download

import (
	"context"

	"github.com/italolelis/aria2_downloader/internal/logctx"
)

// Navigator moves the user to another view of the application.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func(ctx context.Context, path string)

func (f NavigatorFunc) Navigate(ctx context.Context, path string) {
	f(ctx, path)
}

type navigatorKey struct{}

// WithNavigator returns a context carrying n. Submitter navigates through it
// once a download has been recorded.
func WithNavigator(ctx context.Context, n Navigator) context.Context {
	return context.WithValue(ctx, navigatorKey{}, n)
}

// NavigatorFromContext returns the navigator stored in ctx, or one that only logs
// the destination.
func NavigatorFromContext(ctx context.Context) Navigator {
	if n, ok := ctx.Value(navigatorKey{}).(Navigator); ok && n != nil {
		return n
	}

	return logNavigator{}
}

type logNavigator struct{}

func (logNavigator) Navigate(ctx context.Context, path string) {
	logctx.LoggerFromContext(ctx).DebugContext(ctx, "navigate", "path", path)
}

// DetailsPath is the location of the details view for a download.
func DetailsPath(id string) string {
	return "/download/" + id
}
