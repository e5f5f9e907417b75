package observe

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

// Reporter forwards unexpected errors to an error tracker.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: reporting is best-effort and must not panic or block the caller
//   beyond enqueueing the event.
type Reporter interface {
	// Report records err with the given tags.
	Report(ctx context.Context, err error, tags map[string]string)

	// Flush waits for queued reports until ctx ends. It reports whether the
	// queue drained.
	Flush(ctx context.Context) bool
}

// defaultFlushTimeout bounds Flush when ctx carries no deadline.
const defaultFlushTimeout = 2 * time.Second

var (
	keyRx  = regexp.MustCompile(`\b[0-9a-f]{64}\b`)
	uuidRx = regexp.MustCompile(`[0-9a-f]{8}-?([0-9a-f]{4}-?){3}[0-9a-f]{12}`)
)

// sanitizeError strips cache keys and owner tokens so equal failures group
// under one Sentry issue.
func sanitizeError(msg string) string {
	msg = keyRx.ReplaceAllString(msg, "<key>")
	return uuidRx.ReplaceAllString(msg, "<uuid>")
}

// SentryReporter reports errors to Sentry through its own hub.
type SentryReporter struct {
	hub *sentry.Hub
}

// SentryOptions builds client options from cfg.
func SentryOptions(cfg Config) sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:         cfg.Reporting.DSN,
		Environment: cfg.Reporting.Environment,
		Release:     cfg.Reporting.Release,
		ServerName:  cfg.ServiceName,
	}
}

// NewSentryReporter creates a reporter with a dedicated client, leaving the
// global sentry hub untouched.
func NewSentryReporter(opts sentry.ClientOptions) (*SentryReporter, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Report implements Reporter. A hub carried by ctx (e.g. from sentryhttp
// middleware) takes precedence over the reporter's own.
func (r *SentryReporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		err = errors.New("no error provided")
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = r.hub
	}
	hub = hub.Clone()

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetFingerprint([]string{"{{ default }}", sanitizeError(err.Error())})
		hub.CaptureException(err)
	})
}

// Flush implements Reporter.
func (r *SentryReporter) Flush(ctx context.Context) bool {
	timeout := defaultFlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return false
	}
	return r.hub.Flush(timeout)
}

// NoopReporter discards reports.
type NoopReporter struct{}

// Report implements Reporter.
func (NoopReporter) Report(context.Context, error, map[string]string) {}

// Flush implements Reporter.
func (NoopReporter) Flush(context.Context) bool { return true }

var (
	_ Reporter = (*SentryReporter)(nil)
	_ Reporter = NoopReporter{}
)
