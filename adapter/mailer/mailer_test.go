package mailer_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.llib.dev/testcase"
	"go.llib.dev/testcase/assert"
	"go.uber.org/goleak"

	"plangrid/adapter/mailer"
	"plangrid/port/mail"
)

type request struct {
	Path   string
	Header http.Header
	Body   []byte
	Form   map[string][]string
}

// provider fakes an HTTP mail provider that answers with status.
type provider struct {
	m        sync.Mutex
	status   int
	requests []request
}

func (p *provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.m.Lock()
	defer p.m.Unlock()
	req := request{Path: r.URL.Path, Header: r.Header.Clone()}
	if r.Header.Get("Content-Type") == "application/x-www-form-urlencoded" {
		_ = r.ParseForm()
		req.Form = r.PostForm
	} else {
		req.Body, _ = io.ReadAll(r.Body)
	}
	p.requests = append(p.requests, req)
	w.WriteHeader(p.status)
	_, _ = w.Write([]byte(`{"message":"fake"}`))
}

func (p *provider) Requests() []request {
	p.m.Lock()
	defer p.m.Unlock()
	return append([]request(nil), p.requests...)
}

func LetProvider(s *testcase.Spec, status int) testcase.Var[*provider] {
	return testcase.Let(s, func(t *testcase.T) *provider {
		return &provider{status: status}
	})
}

func serve(t *testcase.T, h http.Handler) string {
	srv := httptest.NewServer(h)
	t.Defer(srv.Close)
	return srv.URL
}

var from = mailer.Address{Email: "noreply@plangrid.test", Name: "PLANGRID Team"}

func TestMailer_Send(t *testing.T) {
	s := testcase.NewSpec(t)

	var (
		sendgrid = LetProvider(s, http.StatusAccepted)
		brevo    = LetProvider(s, http.StatusCreated)
		mailgun  = LetProvider(s, http.StatusOK)
		fallback = testcase.LetValue(s, false)
	)
	subject := testcase.Let(s, func(t *testcase.T) mailer.Mailer {
		return mailer.Mailer{
			Configured: true,
			Fallback:   fallback.Get(t),
			Providers: []mailer.Provider{
				mailer.SendGrid{APIKey: "sg-key", From: from, BaseURL: serve(t, sendgrid.Get(t))},
				mailer.Brevo{APIKey: "brevo-key", From: from, BaseURL: serve(t, brevo.Get(t))},
				mailer.Mailgun{APIKey: "mg-key", Domain: "mg.plangrid.test", From: from, BaseURL: serve(t, mailgun.Get(t))},
			},
		}
	})
	msg := testcase.LetValue(s, mail.Message{
		To:      "alice@example.com",
		Subject: "Hello",
		HTML:    "<p>Hi &amp; welcome</p>",
	})
	act := func(t *testcase.T) error {
		return subject.Get(t).Send(context.Background(), msg.Get(t))
	}

	s.Then("the first provider delivers the message", func(t *testcase.T) {
		assert.Must(t).NoError(act(t))
		reqs := sendgrid.Get(t).Requests()
		assert.Must(t).Equal(1, len(reqs))
		assert.Must(t).Equal("/v3/mail/send", reqs[0].Path)
		assert.Must(t).Equal("Bearer sg-key", reqs[0].Header.Get("Authorization"))

		var body struct {
			Personalizations []struct {
				To []mailer.Address `json:"to"`
			} `json:"personalizations"`
			From    mailer.Address `json:"from"`
			Subject string         `json:"subject"`
			Content []struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"content"`
		}
		assert.Must(t).NoError(json.Unmarshal(reqs[0].Body, &body))
		assert.Must(t).Equal("alice@example.com", body.Personalizations[0].To[0].Email)
		assert.Must(t).Equal(from, body.From)
		assert.Must(t).Equal("Hello", body.Subject)
		assert.Must(t).Equal("text/plain", body.Content[0].Type)
		assert.Must(t).Equal("Hi & welcome", body.Content[0].Value)
		assert.Must(t).Empty(brevo.Get(t).Requests())
	})

	s.When("the first provider fails", func(s *testcase.Spec) {
		sendgrid.Let(s, func(t *testcase.T) *provider {
			return &provider{status: http.StatusUnauthorized}
		})

		s.Then("delivery fails without fallback", func(t *testcase.T) {
			err := act(t)
			assert.Must(t).ErrorIs(mail.ErrNotDelivered, err)
			assert.Must(t).True(errors.Is(err, mailer.ErrProviderStatus))
			assert.Must(t).Empty(brevo.Get(t).Requests())
		})

		s.And("fallback is enabled", func(s *testcase.Spec) {
			fallback.LetValue(s, true)

			s.Then("the next provider delivers", func(t *testcase.T) {
				assert.Must(t).NoError(act(t))
				reqs := brevo.Get(t).Requests()
				assert.Must(t).Equal(1, len(reqs))
				assert.Must(t).Equal("/v3/smtp/email", reqs[0].Path)
				assert.Must(t).Equal("brevo-key", reqs[0].Header.Get("api-key"))

				var body struct {
					Sender      mailer.Address   `json:"sender"`
					To          []mailer.Address `json:"to"`
					HTMLContent string           `json:"htmlContent"`
				}
				assert.Must(t).NoError(json.Unmarshal(reqs[0].Body, &body))
				assert.Must(t).Equal(from, body.Sender)
				assert.Must(t).Equal("alice@example.com", body.To[0].Email)
				assert.Must(t).Equal("<p>Hi &amp; welcome</p>", body.HTMLContent)
			})

			s.And("every HTTP provider but the last fails", func(s *testcase.Spec) {
				brevo.Let(s, func(t *testcase.T) *provider {
					return &provider{status: http.StatusBadRequest}
				})

				s.Then("mailgun receives a form post", func(t *testcase.T) {
					assert.Must(t).NoError(act(t))
					reqs := mailgun.Get(t).Requests()
					assert.Must(t).Equal(1, len(reqs))
					assert.Must(t).Equal("/v3/mg.plangrid.test/messages", reqs[0].Path)
					user, pass, ok := (&http.Request{Header: reqs[0].Header}).BasicAuth()
					assert.Must(t).True(ok)
					assert.Must(t).Equal("api", user)
					assert.Must(t).Equal("mg-key", pass)
					assert.Must(t).Equal([]string{"PLANGRID Team <noreply@plangrid.test>"}, reqs[0].Form["from"])
					assert.Must(t).Equal([]string{"alice@example.com"}, reqs[0].Form["to"])
				})
			})
		})
	})

	s.When("delivery is not configured", func(s *testcase.Spec) {
		subject.Let(s, func(t *testcase.T) mailer.Mailer {
			return mailer.New(mailer.Config{SendGridAPIKey: "sg-key"}, nil)
		})

		s.Then("the message is accepted without any request", func(t *testcase.T) {
			assert.Must(t).NoError(act(t))
			assert.Must(t).Empty(sendgrid.Get(t).Requests())
		})
	})
}

func TestMailer_smtpFallback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	assert.NoError(t, ln.Close())

	p := &provider{status: http.StatusOK}
	srv := httptest.NewServer(p)
	defer srv.Close()

	m := mailer.Mailer{
		Configured: true,
		Fallback:   true,
		Providers: []mailer.Provider{
			mailer.SMTP{Config: mailer.SMTPConfig{Host: "127.0.0.1", Port: addr.Port, User: "u", Pass: "p"}, From: from},
			mailer.Mailgun{APIKey: "k", Domain: "d", From: from, BaseURL: srv.URL},
		},
	}
	assert.NoError(t, m.Send(context.Background(), mail.Generic("bob@example.com", "Hi", "<b>hi</b>")))
	assert.Equal(t, 1, len(p.Requests()))
}

func TestNew(t *testing.T) {
	c := mailer.Config{
		SendGridAPIKey: "sg",
		BrevoAPIKey:    "brevo",
		MailgunAPIKey:  "mg",
		MailgunDomain:  "mg.example.com",
		SMTP:           mailer.SMTPConfig{Host: "smtp.example.com", Port: 587, User: "u", Pass: "p", UseTLS: true},
		FromEmail:      "noreply@example.com",
		FromName:       "PLANGRID Team",
		Fallback:       true,
	}
	m := mailer.New(c, nil)
	var names []string
	for _, p := range m.Providers {
		names = append(names, p.Name())
	}
	assert.Equal(t, []string{"sendgrid", "brevo", "smtp", "mailgun"}, names)
	assert.True(t, m.Configured)
	assert.True(t, m.Fallback)

	c.MailgunDomain = ""
	c.SMTP.Pass = ""
	m = mailer.New(c, nil)
	assert.Equal(t, 2, len(m.Providers))
}

func TestConfig_Status(t *testing.T) {
	assert.Equal(t, mailer.Status{
		IsConfigured:   false,
		FromEmail:      "NOT SET",
		FromName:       "PLANGRID Team",
		BrevoAPIKeySet: true,
	}, mailer.Config{BrevoAPIKey: "k", FromName: "PLANGRID Team"}.Status())

	st := mailer.Config{
		SMTP:      mailer.SMTPConfig{Host: "smtp.example.com", User: "u"},
		FromEmail: "noreply@example.com",
	}.Status()
	assert.True(t, st.SMTPConfigured)
	assert.False(t, st.IsConfigured, "smtp needs a password to deliver")
	assert.Equal(t, "noreply@example.com", st.FromEmail)
}

type recorder struct {
	m    sync.Mutex
	msgs []mail.Message
}

func (r *recorder) Send(ctx context.Context, msg mail.Message) error {
	r.m.Lock()
	defer r.m.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func TestOutbox(t *testing.T) {
	defer goleak.VerifyNone(t)

	rec := &recorder{}
	o := &mailer.Outbox{Sender: rec, Size: 2}
	ctx := context.Background()
	assert.NoError(t, o.Send(ctx, mail.Message{To: "a@example.com"}))
	assert.NoError(t, o.Send(ctx, mail.Message{To: "b@example.com"}))
	assert.ErrorIs(t, mailer.ErrOutboxFull, o.Send(ctx, mail.Message{To: "c@example.com"}))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.NoError(t, o.Run(cctx))
	assert.Equal(t, []mail.Message{{To: "a@example.com"}, {To: "b@example.com"}}, rec.msgs)

	done := make(chan error)
	rctx, stop := context.WithCancel(ctx)
	go func() { done <- o.Run(rctx) }()
	assert.NoError(t, o.Send(ctx, mail.Message{To: "d@example.com"}))
	assert.Eventually(t, time.Second, func(it testing.TB) {
		rec.m.Lock()
		defer rec.m.Unlock()
		assert.Equal(it, 3, len(rec.msgs))
	})
	stop()
	assert.NoError(t, <-done)
}
