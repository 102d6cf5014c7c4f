// Package notify sends release announcements to an organization's chat
// channel. Targets are shoutrrr service URLs (slack://, discord://, teams://,
// generic://, ...) stored sealed on the organization row.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/url"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/lanehq/lanehq/internal/config"
	"github.com/lanehq/lanehq/internal/db/models"
	"github.com/lanehq/lanehq/internal/telemetry"
)

// ErrInvalidURL is returned for notification URLs shoutrrr cannot route.
var ErrInvalidURL = errors.New("invalid notification url")

// Sender delivers one message. Implemented by *router.ServiceRouter.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// SenderFactory builds a sender for a single service URL.
type SenderFactory func(rawURL string, timeout time.Duration) (Sender, error)

// OrganizationStore loads the organization that owns a release.
type OrganizationStore interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
}

// Opener decrypts sealed notification URLs. Implemented by *crypto.Sealer.
type Opener interface {
	Open(sealed string) (string, error)
}

// PlainTexter renders release notes for chat. Implemented by *changelog.Renderer.
type PlainTexter interface {
	PlainText(notes string) (string, error)
}

// NewShoutrrrSender creates a shoutrrr router for rawURL with logging silenced.
func NewShoutrrrSender(rawURL string, timeout time.Duration) (Sender, error) {
	sender, err := shoutrrr.CreateSender(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, redact(err.Error(), rawURL))
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return sender, nil
}

// ValidateURL checks that rawURL names a service shoutrrr can deliver to.
func ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("%w: url is empty", ErrInvalidURL)
	}
	_, err := NewShoutrrrSender(rawURL, 0)
	return err
}

// Announcer implements changelog.Announcer.
type Announcer struct {
	orgs      OrganizationStore
	opener    Opener
	text      PlainTexter
	newSender SenderFactory
	cfg       config.NotificationsConfig
	publicURL string
	logger    *slog.Logger
}

// NewAnnouncer creates an announcer. publicURL is the base of the changelog
// link included in each message.
func NewAnnouncer(orgs OrganizationStore, opener Opener, text PlainTexter, cfg config.NotificationsConfig, publicURL string, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{
		orgs:      orgs,
		opener:    opener,
		text:      text,
		newSender: NewShoutrrrSender,
		cfg:       cfg,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}
}

// WithSenderFactory replaces the shoutrrr sender constructor.
func (a *Announcer) WithSenderFactory(f SenderFactory) *Announcer {
	a.newSender = f
	return a
}

// AnnounceRelease posts rel to the organization's notification target. It is
// a no-op when announcements are disabled or the organization has no target.
func (a *Announcer) AnnounceRelease(ctx context.Context, orgID string, rel *models.Release) error {
	if !a.cfg.Enabled || rel == nil {
		return nil
	}
	org, err := a.orgs.GetByID(ctx, orgID)
	if err != nil {
		return fmt.Errorf("failed to load organization: %w", err)
	}
	if org == nil || !org.HasNotificationTarget() {
		return nil
	}

	target, err := a.opener.Open(org.NotificationURLEncrypted.String)
	if err != nil {
		a.fail()
		return fmt.Errorf("failed to open notification url: %w", err)
	}

	sender, err := a.newSender(target, a.cfg.Timeout)
	if err != nil {
		a.fail()
		return err
	}

	body, err := a.message(org, rel)
	if err != nil {
		a.fail()
		return err
	}

	params := stypes.Params{}
	params.SetTitle(rel.Title)
	for _, sendErr := range sender.Send(body, &params) {
		if sendErr != nil {
			a.fail()
			return fmt.Errorf("failed to send release announcement: %s", redact(sendErr.Error(), target))
		}
	}

	telemetry.NotificationsSentTotal.WithLabelValues("sent").Inc()
	a.logger.Info("release announced", "organization", org.Slug, "release_id", rel.ID)
	return nil
}

func (a *Announcer) message(org *models.Organization, rel *models.Release) (string, error) {
	var b strings.Builder
	if a.text != nil && rel.Notes != "" {
		notes, err := a.text.PlainText(rel.Notes)
		if err != nil {
			return "", fmt.Errorf("failed to render release notes: %w", err)
		}
		if notes != "" {
			b.WriteString(notes)
			b.WriteString("\n\n")
		}
	}
	if a.publicURL != "" {
		b.WriteString(a.publicURL + "/" + url.PathEscape(org.Slug) + "/changelog")
	}
	if b.Len() == 0 {
		return rel.Title, nil
	}
	return b.String(), nil
}

func (a *Announcer) fail() {
	telemetry.NotificationsSentTotal.WithLabelValues("failed").Inc()
}

// redact removes the service URL, and with it any embedded token, from msg.
func redact(msg, rawURL string) string {
	if rawURL == "" {
		return msg
	}
	scheme := "url"
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" {
		scheme = u.Scheme
	}
	return strings.ReplaceAll(msg, rawURL, scheme+"://[redacted]")
}
