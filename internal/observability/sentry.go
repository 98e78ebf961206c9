package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry wires crash reporting. An empty DSN disables the client, which
// keeps local runs and tests quiet without branching at call sites.
func InitSentry(dsn, environment string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// FlushSentry drains buffered events before process exit.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
