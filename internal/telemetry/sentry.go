package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/lanehq/lanehq/internal/config"
)

// sentryEnabled is set once InitSentry installs a client.
var sentryEnabled bool

func sentryClientOptions(cfg config.SentryConfig, release string) sentry.ClientOptions {
	env := cfg.Environment
	if env == "" {
		env = "production"
	}
	return sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		Release:          "lanehq@" + release,
		SampleRate:       1.0,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
		// Never ship the host name of the API instance.
		ServerName: "",
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			event.User = sentry.User{}
			if event.Request != nil {
				event.Request.Cookies = ""
				delete(event.Request.Headers, "Authorization")
				delete(event.Request.Headers, "Cookie")
			}
			return event
		},
	}
}

// InitSentry configures error reporting. It is a no-op returning false when no DSN is set.
func InitSentry(cfg config.SentryConfig, release string) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}
	if err := sentry.Init(sentryClientOptions(cfg, release)); err != nil {
		return false, fmt.Errorf("sentry initialization failed: %w", err)
	}
	sentryEnabled = true
	return true, nil
}

// CaptureError reports err tagged with the component that observed it.
// Does nothing when error reporting is disabled.
func CaptureError(err error, component string) {
	if !sentryEnabled || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		sentry.CaptureException(err)
	})
}

// FlushSentry waits up to timeout for buffered events to be delivered.
func FlushSentry(timeout time.Duration) {
	if sentryEnabled {
		sentry.Flush(timeout)
	}
}
