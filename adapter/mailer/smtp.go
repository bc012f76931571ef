package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"plangrid/port/mail"
)

const smtpTimeout = 20 * time.Second

// SMTP sends multipart/alternative messages, upgrading with STARTTLS when UseTLS is set.
type SMTP struct {
	Config SMTPConfig
	From   Address
}

func (SMTP) Name() string { return "smtp" }

func (p SMTP) Send(ctx context.Context, msg mail.Message) error {
	data, err := p.compose(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, smtpTimeout)
	defer cancel()
	addr := net.JoinHostPort(p.Config.Host, strconv.Itoa(p.Config.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, err := smtp.NewClient(conn, p.Config.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()
	if p.Config.UseTLS {
		if err := c.StartTLS(&tls.Config{ServerName: p.Config.Host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if p.Config.User != "" {
		if err := c.Auth(smtp.PlainAuth("", p.Config.User, p.Config.Pass, p.Config.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(p.From.Email); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (p SMTP) compose(msg mail.Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, part := range []struct{ contentType, content string }{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {part.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", (Address{Email: p.From.Email, Name: mime.QEncoding.Encode("utf-8", p.From.Name)}).String())
	fmt.Fprintf(&out, "To: %s\r\n", msg.To)
	fmt.Fprintf(&out, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&out, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", mw.Boundary())
	out.Write(body.Bytes())
	return out.Bytes(), nil
}
