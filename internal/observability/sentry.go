package observability

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"
)

func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// CaptureError reports err to Sentry tagged with the request id from ctx.
// It is a no-op when Sentry was never initialised.
func CaptureError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		if id := RequestIDFrom(ctx); id != "" {
			scope.SetTag("request_id", id)
		}
		sentry.CaptureException(err)
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
