package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"plangrid/port/mail"
)

const (
	DefaultSendGridURL = "https://api.sendgrid.com"
	DefaultBrevoURL    = "https://api.brevo.com"
	DefaultMailgunURL  = "https://api.mailgun.net"
)

// SendGrid uses the v3 mail send API.
type SendGrid struct {
	APIKey     string
	From       Address
	BaseURL    string
	HTTPClient *http.Client
}

func (SendGrid) Name() string { return "sendgrid" }

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridPersonalization struct {
	To []Address `json:"to"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             Address                   `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

func (p SendGrid) Send(ctx context.Context, msg mail.Message) error {
	body := sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []Address{{Email: msg.To}}}},
		From:             p.From,
		Subject:          msg.Subject,
		Content: []sendGridContent{
			{Type: "text/plain", Value: msg.Text},
			{Type: "text/html", Value: msg.HTML},
		},
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.APIKey)
	return postJSON(ctx, p.HTTPClient, p.Name(), baseURL(p.BaseURL, DefaultSendGridURL)+"/v3/mail/send", header, body)
}

// Brevo uses the transactional email API authenticated with the api-key header.
type Brevo struct {
	APIKey     string
	From       Address
	BaseURL    string
	HTTPClient *http.Client
}

func (Brevo) Name() string { return "brevo" }

type brevoRequest struct {
	Sender      Address   `json:"sender"`
	To          []Address `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
	TextContent string    `json:"textContent"`
}

func (p Brevo) Send(ctx context.Context, msg mail.Message) error {
	header := http.Header{}
	header.Set("api-key", p.APIKey)
	return postJSON(ctx, p.HTTPClient, p.Name(), baseURL(p.BaseURL, DefaultBrevoURL)+"/v3/smtp/email", header, brevoRequest{
		Sender:      p.From,
		To:          []Address{{Email: msg.To}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		TextContent: msg.Text,
	})
}

// Mailgun posts form encoded messages with basic auth api:<key>.
type Mailgun struct {
	APIKey     string
	Domain     string
	From       Address
	BaseURL    string
	HTTPClient *http.Client
}

func (Mailgun) Name() string { return "mailgun" }

func (p Mailgun) Send(ctx context.Context, msg mail.Message) error {
	form := url.Values{}
	form.Set("from", p.From.String())
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("text", msg.Text)
	form.Set("html", msg.HTML)
	endpoint := baseURL(p.BaseURL, DefaultMailgunURL) + "/v3/" + url.PathEscape(p.Domain) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", p.APIKey)
	return do(p.HTTPClient, p.Name(), req)
}

func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, header http.Header, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header = header
	req.Header.Set("Content-Type", "application/json")
	return do(client, provider, req)
}

// maxErrorBody bounds how much of a rejected response is kept in the error.
const maxErrorBody = 512

func do(client *http.Client, provider string, req *http.Request) error {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if 200 <= resp.StatusCode && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return ErrProviderStatus.F("%s responded %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(detail)))
}

func baseURL(configured, fallback string) string {
	if configured == "" {
		return fallback
	}
	return strings.TrimSuffix(configured, "/")
}
