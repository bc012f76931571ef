package mail_test

import (
	"testing"

	"go.llib.dev/testcase/assert"

	"plangrid/port/mail"
)

func TestPasswordReset(t *testing.T) {
	msg, err := mail.PasswordReset("a@example.com", "alice", "http://front/reset-password?token=abc")
	assert.NoError(t, err)
	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, mail.PasswordResetSubject, msg.Subject)
	assert.Contains(t, msg.HTML, "Hello alice")
	assert.Contains(t, msg.HTML, "http://front/reset-password?token=abc")
	assert.Contains(t, msg.Text, "expire in 1 hour")
	assert.Contains(t, msg.Text, "http://front/reset-password?token=abc")
}

func TestTeamInvitation(t *testing.T) {
	inv := mail.Invitation{To: "b@example.com", Name: "Grid", Role: "admin", InvitedBy: "alice", URL: "http://x"}

	msg, err := mail.TeamInvitation(inv)
	assert.NoError(t, err)
	assert.Equal(t, "Join Grid Team - PlanGrid", msg.Subject)
	assert.Contains(t, msg.Text, "Role: Admin")

	inv.Existing = true
	msg, err = mail.TeamInvitation(inv)
	assert.NoError(t, err)
	assert.Equal(t, "Team Invitation - Grid", msg.Subject)
}

func TestProjectInvitation(t *testing.T) {
	inv := mail.Invitation{To: "b@example.com", Name: "Line 7", InvitedBy: "alice", URL: "http://x"}

	msg, err := mail.ProjectInvitation(inv)
	assert.NoError(t, err)
	assert.Equal(t, "Join Project Line 7 - PlanGrid", msg.Subject)
	assert.Contains(t, msg.Text, "Location: Not specified")
	assert.NotContains(t, msg.HTML, "Description:")

	inv.Existing = true
	inv.Description = "<b>tower</b>"
	msg, err = mail.ProjectInvitation(inv)
	assert.NoError(t, err)
	assert.Equal(t, "Project Invitation - Line 7", msg.Subject)
	assert.Contains(t, msg.HTML, "&lt;b&gt;tower&lt;/b&gt;")
}

func TestGeneric(t *testing.T) {
	msg := mail.Generic("c@example.com", "Hi", "<h1>Title</h1>\n\n\n<p>Body &amp; more</p>")
	assert.Equal(t, "Title\n\nBody & more", msg.Text)
	assert.Equal(t, "Hi", msg.Subject)
}
