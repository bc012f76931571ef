// Package mail defines the outbound email port and the portal's message templates.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html"
	htmltemplate "html/template"
	"regexp"
	"strings"
	texttemplate "text/template"

	"go.llib.dev/frameless/pkg/errorkit"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const ErrNotDelivered errorkit.Error = "email not delivered"

type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc lets a plain function act as a Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (fn SenderFunc) Send(ctx context.Context, msg Message) error { return fn(ctx, msg) }

//go:embed templates/*.tmpl
var templatesFS embed.FS

type template struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func mustTemplate(name string) template {
	return template{
		html: htmltemplate.Must(htmltemplate.ParseFS(templatesFS,
			"templates/layout.html.tmpl",
			"templates/"+name+".html.tmpl")),
		text: texttemplate.Must(texttemplate.ParseFS(templatesFS,
			"templates/"+name+".txt.tmpl")),
	}
}

var (
	passwordResetTemplate     = mustTemplate("password_reset")
	teamInvitationTemplate    = mustTemplate("team_invitation")
	projectInvitationTemplate = mustTemplate("project_invitation")
)

func (t template) render(to, subject string, data any) (Message, error) {
	var h, txt bytes.Buffer
	if err := t.html.ExecuteTemplate(&h, "layout", data); err != nil {
		return Message{}, err
	}
	if err := t.text.Execute(&txt, data); err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: subject, HTML: h.String(), Text: txt.String()}, nil
}

const PasswordResetSubject = "Password Reset Request - PLANGRID"

func PasswordReset(to, username, resetURL string) (Message, error) {
	return passwordResetTemplate.render(to, PasswordResetSubject, struct {
		Title    string
		Username string
		URL      string
	}{Title: "Password Reset", Username: username, URL: resetURL})
}

// Invitation describes a team or project invitation email.
// Existing tells whether the invitee already has an account.
type Invitation struct {
	To        string
	Name      string
	Role      string
	InvitedBy string
	URL       string
	Existing  bool

	Location    string
	Status      string
	Description string
}

func TeamInvitation(inv Invitation) (Message, error) {
	subject := fmt.Sprintf("Join %s Team - PlanGrid", inv.Name)
	if inv.Existing {
		subject = fmt.Sprintf("Team Invitation - %s", inv.Name)
	}
	return teamInvitationTemplate.render(inv.To, subject, struct {
		Invitation
		Title string
	}{Invitation: titleRole(inv), Title: "Team Invitation"})
}

func ProjectInvitation(inv Invitation) (Message, error) {
	subject := fmt.Sprintf("Join Project %s - PlanGrid", inv.Name)
	if inv.Existing {
		subject = fmt.Sprintf("Project Invitation - %s", inv.Name)
	}
	return projectInvitationTemplate.render(inv.To, subject, struct {
		Invitation
		Title string
	}{Invitation: titleRole(inv), Title: "Project Invitation"})
}

// Generic wraps caller supplied HTML. The text part is derived by stripping the markup.
func Generic(to, subject, htmlBody string) Message {
	return Message{To: to, Subject: subject, HTML: htmlBody, Text: StripTags(htmlBody)}
}

var (
	tagRE   = regexp.MustCompile(`<[^>]*>`)
	blankRE = regexp.MustCompile(`\n\s*\n+`)
)

func StripTags(s string) string {
	s = tagRE.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func titleRole(inv Invitation) Invitation {
	if inv.Role == "" {
		inv.Role = "member"
	}
	inv.Role = cases.Title(language.Und).String(inv.Role)
	return inv
}
