// Package notify delivers recipient-facing email when a gift becomes
// viewable. Delivery is best-effort: the lifecycle never blocks or fails
// on a mail error.
package notify

import (
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
)

// Notifier sends the gift-ready message to a gift's owner.
type Notifier interface {
	GiftReady(user model.User, gift model.Gift, link string) error
}

// NewNoop returns a Notifier that drops every message. Used when SMTP is
// not configured.
func NewNoop() Notifier { return noop{} }

type noop struct{}

func (noop) GiftReady(model.User, model.Gift, string) error { return nil }

// SMTPConfig carries dialer settings for the outbound mail relay.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
}

type smtpNotifier struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
	logger *slog.Logger
}

// NewSMTP returns a Notifier backed by an SMTP relay.
func NewSMTP(cfg SMTPConfig, logger *slog.Logger) Notifier {
	return &smtpNotifier{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		logger: logger,
	}
}

// formatOccasion renders the occasion enum for display in the subject line.
func formatOccasion(o model.Occasion) string {
	switch o {
	case model.OccasionBirthday:
		return "Birthday"
	case model.OccasionAnniversary:
		return "Anniversary"
	case model.OccasionValentines:
		return "Valentine's Day"
	default:
		return "a Special Occasion"
	}
}

func (n *smtpNotifier) GiftReady(user model.User, gift model.Gift, link string) error {
	occasion := formatOccasion(gift.Occasion)
	subject := fmt.Sprintf("You've received a special gift for %s!", occasion)

	htmlBody := fmt.Sprintf(`
		<html>
		<body>
			<h2>You've received a special gift!</h2>
			<p>A personalized memory gift has been created just for you to celebrate %s.</p>
			<p><a href="%s">Open your gift</a></p>
			<p>Or copy and paste this URL into your browser:</p>
			<p>%s</p>
			<p>This gift is exclusively for you. You'll need to sign in with this email address to view it.</p>
		</body>
		</html>
	`, occasion, link, link)

	plainBody := fmt.Sprintf(`
You've received a special gift for %s!

A personalized memory gift has been created just for you.

Open your gift: %s

This gift is exclusively for you. You'll need to sign in with this email address to view it.
	`, occasion, link)

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromAddress)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainBody)
	m.AddAlternative("text/html", htmlBody)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send gift-ready email: %w", err)
	}
	n.logger.Info("gift-ready email sent", "user_id", user.ID, "gift_id", gift.ID)
	return nil
}
