package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/noah-isme/classroom-portal/internal/observability"
)

// Notification kinds sent out of band.
const (
	NotificationCredentialSetup = "credential_setup"
	NotificationPasswordReset   = "password_reset"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// AccountNotification carries a message addressed to one account holder.
type AccountNotification struct {
	Kind      string    `json:"kind"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Link      string    `json:"link"`
	SentAt    time.Time `json:"sent_at"`
}

// Notifier delivers account notifications such as password reset links.
type Notifier interface {
	Notify(ctx context.Context, notification AccountNotification) error
}

// NotifierConfig selects and configures the delivery channels.
type NotifierConfig struct {
	AppName        string
	SendGridAPIKey string
	FromName       string
	FromAddress    string
	NATS           *nats.Conn
	NATSSubject    string
}

// NewNotifier builds a notifier fanning out to every configured channel.
// With no channel configured notifications are only logged.
func NewNotifier(cfg NotifierConfig, logger zerolog.Logger) Notifier {
	logger = logger.With().Str("component", "notifier").Logger()

	var channels []Notifier
	if strings.TrimSpace(cfg.SendGridAPIKey) != "" {
		channels = append(channels, &sendgridNotifier{
			key:        cfg.SendGridAPIKey,
			from:       sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
			subjPrefix: "[" + cfg.AppName + "] ",
		})
	}
	if cfg.NATS != nil && cfg.NATSSubject != "" {
		channels = append(channels, &natsNotifier{conn: cfg.NATS, subject: cfg.NATSSubject})
	}
	if len(channels) == 0 {
		channels = append(channels, &logNotifier{logger: logger})
	}

	return &fanoutNotifier{channels: channels, logger: logger}
}

type fanoutNotifier struct {
	channels []Notifier
	logger   zerolog.Logger
}

func (n *fanoutNotifier) Notify(ctx context.Context, notification AccountNotification) error {
	if notification.SentAt.IsZero() {
		notification.SentAt = time.Now().UTC()
	}

	var firstErr error
	for _, channel := range n.channels {
		if err := channel.Notify(ctx, notification); err != nil {
			n.logger.Warn().Err(err).
				Str("kind", notification.Kind).
				Str("account_id", notification.AccountID).
				Str("email", maskEmail(notification.Email)).
				Msg("notification delivery failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

type sendgridNotifier struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
}

func (n *sendgridNotifier) Notify(_ context.Context, notification AccountNotification) error {
	subject, text := renderNotification(notification)

	p := sgmail.NewPersonalization()
	p.Subject = n.subjPrefix + subject
	p.AddTos(sgmail.NewEmail(notification.FullName, notification.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", text))

	req := sendgrid.GetRequest(n.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending email: status %d: %s", res.StatusCode, res.Body)
	}

	observability.NotificationsSent().WithLabelValues("sendgrid", notification.Kind).Inc()
	return nil
}

type natsNotifier struct {
	conn    *nats.Conn
	subject string
}

func (n *natsNotifier) Notify(_ context.Context, notification AccountNotification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, payload); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}

	observability.NotificationsSent().WithLabelValues("nats", notification.Kind).Inc()
	return nil
}

type logNotifier struct {
	logger zerolog.Logger
}

func (n *logNotifier) Notify(_ context.Context, notification AccountNotification) error {
	n.logger.Info().
		Str("kind", notification.Kind).
		Str("account_id", notification.AccountID).
		Str("email", maskEmail(notification.Email)).
		Str("link", notification.Link).
		Msg("notification not delivered, no channel configured")

	observability.NotificationsSent().WithLabelValues("log", notification.Kind).Inc()
	return nil
}

func renderNotification(notification AccountNotification) (string, string) {
	name := notification.FullName
	if name == "" {
		name = notification.Email
	}

	switch notification.Kind {
	case NotificationCredentialSetup:
		return "Set up your account", fmt.Sprintf("Hello %s,\n\nAn account was created for you. Choose a password to get started:\n%s\n", name, notification.Link)
	default:
		return "Reset your password", fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password:\n%s\n\nIf you did not ask for this, ignore this message.\n", name, notification.Link)
	}
}

// maskEmail keeps the first and last character of the local part for log lines.
func maskEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return "***"
	}
	if len(local) <= 2 {
		return local[:1] + "***@" + domain
	}
	return local[:1] + "***" + local[len(local)-1:] + "@" + domain
}
