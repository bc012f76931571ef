// Package mailer delivers portal emails through SendGrid, Brevo, SMTP or Mailgun.
//
// The configured providers form a chain tried in that order.
// A failing provider ends the attempt unless fallback is enabled.
// Without a sender address or any provider the message is only logged.
package mailer

import (
	"context"
	"net/http"
	"time"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/httpkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"

	"plangrid/port/mail"
)

const ErrProviderStatus errorkit.Error = "email provider rejected the message"

type Config struct {
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	BrevoAPIKey    string `env:"BREVO_API_KEY"`
	MailgunAPIKey  string `env:"MAILGUN_API_KEY"`
	MailgunDomain  string `env:"MAILGUN_DOMAIN"`
	SMTP           SMTPConfig

	FromEmail string `env:"FROM_EMAIL"`
	FromName  string `env:"FROM_NAME" default:"PLANGRID Team"`
	// Fallback lets the chain continue with the next provider after a failure.
	Fallback bool `env:"EMAIL_FALLBACK" default:"false"`
}

type SMTPConfig struct {
	Host   string `env:"SMTP_HOST"`
	Port   int    `env:"SMTP_PORT" default:"587"`
	User   string `env:"SMTP_USER"`
	Pass   string `env:"SMTP_PASS"`
	UseTLS bool   `env:"SMTP_USE_TLS" default:"true"`
}

func (c SMTPConfig) configured() bool {
	return c.Host != "" && c.User != "" && c.Pass != ""
}

// IsConfigured reports whether a sender address and at least one provider are set.
func (c Config) IsConfigured() bool {
	hasProvider := c.SendGridAPIKey != "" ||
		c.BrevoAPIKey != "" ||
		(c.MailgunAPIKey != "" && c.MailgunDomain != "") ||
		c.SMTP.configured()
	return hasProvider && c.FromEmail != ""
}

type Status struct {
	IsConfigured      bool   `json:"is_configured"`
	SendGridAPIKeySet bool   `json:"sendgrid_api_key_set"`
	FromEmail         string `json:"from_email"`
	FromName          string `json:"from_name"`
	BrevoAPIKeySet    bool   `json:"brevo_api_key_set"`
	SMTPConfigured    bool   `json:"smtp_configured"`
}

// Status describes the configuration without exposing any secret.
func (c Config) Status() Status {
	from := c.FromEmail
	if from == "" {
		from = "NOT SET"
	}
	return Status{
		IsConfigured:      c.IsConfigured(),
		SendGridAPIKeySet: c.SendGridAPIKey != "",
		FromEmail:         from,
		FromName:          c.FromName,
		BrevoAPIKeySet:    c.BrevoAPIKey != "",
		SMTPConfigured:    c.SMTP.Host != "" && c.SMTP.User != "",
	}
}

type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return a.Name + " <" + a.Email + ">"
}

// Provider is a single delivery channel of the chain.
type Provider interface {
	mail.Sender
	Name() string
}

type Mailer struct {
	Providers []Provider
	Fallback  bool
	// Configured is false when messages should only be logged.
	Configured bool
}

var _ mail.Sender = Mailer{}

// New builds the provider chain from the configuration.
// A nil client selects an http.Client that retries temporary failures.
func New(c Config, client *http.Client) Mailer {
	if client == nil {
		client = &http.Client{
			Transport: httpkit.RetryRoundTripper{},
			Timeout:   20 * time.Second,
		}
	}
	from := Address{Email: c.FromEmail, Name: c.FromName}
	var ps []Provider
	if c.SendGridAPIKey != "" {
		ps = append(ps, SendGrid{APIKey: c.SendGridAPIKey, From: from, HTTPClient: client})
	}
	if c.BrevoAPIKey != "" {
		ps = append(ps, Brevo{APIKey: c.BrevoAPIKey, From: from, HTTPClient: client})
	}
	if c.SMTP.configured() {
		ps = append(ps, SMTP{Config: c.SMTP, From: from})
	}
	if c.MailgunAPIKey != "" && c.MailgunDomain != "" {
		ps = append(ps, Mailgun{APIKey: c.MailgunAPIKey, Domain: c.MailgunDomain, From: from, HTTPClient: client})
	}
	return Mailer{Providers: ps, Fallback: c.Fallback, Configured: c.IsConfigured()}
}

func (m Mailer) Send(ctx context.Context, msg mail.Message) error {
	if !m.Configured || len(m.Providers) == 0 {
		logger.Info(ctx, "email delivery is not configured, would send",
			logging.Field("to", msg.To),
			logging.Field("subject", msg.Subject))
		return nil
	}
	if msg.Text == "" {
		msg.Text = mail.StripTags(msg.HTML)
	}
	var errs []error
	for _, p := range m.Providers {
		err := p.Send(ctx, msg)
		if err == nil {
			logger.Info(ctx, "email sent",
				logging.Field("provider", p.Name()),
				logging.Field("to", msg.To),
				logging.Field("subject", msg.Subject))
			return nil
		}
		logger.Warn(ctx, "email provider failed",
			logging.Field("provider", p.Name()),
			logging.ErrField(err))
		errs = append(errs, err)
		if !m.Fallback {
			break
		}
	}
	return mail.ErrNotDelivered.Wrap(errorkit.Merge(errs...))
}

const TestSubject = "Test Email from PlanGrid"

// TestMessage is the message sent by the configuration check.
func TestMessage(to string) mail.Message {
	return mail.Message{
		To:      to,
		Subject: TestSubject,
		HTML:    "<h1>Test Email</h1><p>If you received this, email is working!</p>",
		Text:    "Test Email\n\nIf you received this, email is working!",
	}
}
