package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/lanehq/lanehq/internal/config"
)

// recordingTransport implements sentry.Transport and keeps every event in memory.
type recordingTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *recordingTransport) Configure(_ sentry.ClientOptions) {}

func (t *recordingTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *recordingTransport) Flush(_ time.Duration) bool { return true }

func (t *recordingTransport) FlushWithContext(_ context.Context) bool { return true }

func (t *recordingTransport) Close() {}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// ---------------------------------------------------------------------------
// InitSentry / CaptureError
// ---------------------------------------------------------------------------

func TestInitSentry_NoDSNIsNoop(t *testing.T) {
	enabled, err := InitSentry(config.SentryConfig{}, "test")
	if err != nil {
		t.Fatalf("InitSentry() error: %v", err)
	}
	if enabled {
		t.Error("InitSentry() enabled reporting without a DSN")
	}
}

func TestSentryClientOptions_DefaultsEnvironment(t *testing.T) {
	opts := sentryClientOptions(config.SentryConfig{DSN: "https://k@example.com/1"}, "1.2.3")
	if opts.Environment != "production" {
		t.Errorf("Environment = %q, want production", opts.Environment)
	}
	if opts.Release != "lanehq@1.2.3" {
		t.Errorf("Release = %q, want lanehq@1.2.3", opts.Release)
	}
}

func TestSentryClientOptions_BeforeSendScrubsCredentials(t *testing.T) {
	opts := sentryClientOptions(config.SentryConfig{}, "test")
	event := &sentry.Event{
		User: sentry.User{Email: "someone@example.com"},
		Request: &sentry.Request{
			Cookies: "session=abc",
			Headers: map[string]string{"Authorization": "Bearer x", "Accept": "application/json"},
		},
	}
	out := opts.BeforeSend(event, nil)
	if out.User.Email != "" {
		t.Error("user data not cleared")
	}
	if out.Request.Cookies != "" {
		t.Error("cookies not cleared")
	}
	if _, ok := out.Request.Headers["Authorization"]; ok {
		t.Error("authorization header not removed")
	}
	if out.Request.Headers["Accept"] != "application/json" {
		t.Error("unrelated header removed")
	}
}

func TestCaptureError_SendsWhenEnabled(t *testing.T) {
	transport := &recordingTransport{}
	opts := sentryClientOptions(config.SentryConfig{}, "test")
	opts.Transport = transport
	if err := sentry.Init(opts); err != nil {
		t.Fatalf("sentry.Init: %v", err)
	}
	sentryEnabled = true
	defer func() { sentryEnabled = false }()

	CaptureError(errors.New("reposition failed"), "roadmap")
	CaptureError(nil, "roadmap")
	FlushSentry(time.Second)

	if got := transport.count(); got != 1 {
		t.Errorf("captured %d events, want 1", got)
	}
}

func TestCaptureError_DisabledIsNoop(t *testing.T) {
	sentryEnabled = false
	CaptureError(errors.New("ignored"), "roadmap")
}
