// Package twilio sends text messages through the Twilio Messages API.
package twilio

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/httpkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"

	"plangrid/domain/account"
)

const DefaultBaseURL = "https://api.twilio.com"

const (
	ErrNotConfigured    errorkit.Error = "twilio is not configured"
	ErrUnexpectedStatus errorkit.Error = "twilio rejected the message"
)

type Config struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	FromNumber string `env:"TWILIO_FROM_NUMBER"`
}

func (c Config) IsConfigured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.FromNumber != ""
}

type Client struct {
	Config     Config
	BaseURL    string
	HTTPClient *http.Client
}

var _ account.SMSSender = Client{}

func (c Client) SendSMS(ctx context.Context, to, body string) error {
	if !c.Config.IsConfigured() {
		return ErrNotConfigured
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.Config.FromNumber)
	form.Set("Body", body)
	endpoint := c.baseURL() + "/2010-04-01/Accounts/" + url.PathEscape(c.Config.AccountSID) + "/Messages.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.Config.AccountSID, c.Config.AuthToken)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ErrUnexpectedStatus.F("%d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	logger.Info(ctx, "sms sent", logging.Field("to", to))
	return nil
}

func (c Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimSuffix(c.BaseURL, "/")
}

func (c Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Transport: httpkit.RetryRoundTripper{}, Timeout: 20 * time.Second}
}
