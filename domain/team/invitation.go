package team

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/testcase/clock"

	"plangrid/domain/account"
	"plangrid/domain/notification"
	"plangrid/port/mail"
)

type Kind string

const (
	TeamInvitation    Kind = "team_invitation"
	ProjectInvitation Kind = "project_invitation"
)

type InvitationStatus string

const (
	Pending  InvitationStatus = "pending"
	Accepted InvitationStatus = "accepted"
)

const InvitationTTL = 7 * 24 * time.Hour

type Invitation struct {
	Token       string           `ext:"id" json:"invitation_token"`
	Kind        Kind             `json:"type"`
	TeamID      string           `json:"team_id,omitempty"`
	TeamName    string           `json:"team_name,omitempty"`
	ProjectID   string           `json:"project_id,omitempty"`
	ProjectName string           `json:"project_name,omitempty"`
	Email       string           `json:"email"`
	Role        Role             `json:"role"`
	InvitedBy   string           `json:"invited_by"`
	CreatedAt   time.Time        `json:"created_at"`
	Status      InvitationStatus `json:"status"`
	UserExists  bool             `json:"user_exists"`
	AcceptedAt  *time.Time       `json:"accepted_at,omitempty"`
}

func (inv Invitation) IsPending(now time.Time) bool {
	return inv.Status == Pending && now.Sub(inv.CreatedAt) < InvitationTTL
}

type InvitationRepository interface {
	crud.Creator[Invitation]
	crud.ByIDFinder[Invitation, string]
	crud.Updater[Invitation]
}

// ParseRole defaults to member and accepts admin or member.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case "":
		return Member, nil
	case Admin, Member:
		return r, nil
	default:
		return "", ErrInvalidRole.F("%q", raw)
	}
}

// Issue completes and stores a pending invitation.
func (s Service) Issue(ctx context.Context, inv Invitation) (Invitation, error) {
	if strings.TrimSpace(inv.Email) == "" {
		return Invitation{}, ErrEmailRequired
	}
	token, err := account.NewToken()
	if err != nil {
		return Invitation{}, err
	}
	exists, err := s.Directory.EmailRegistered(ctx, inv.Email)
	if err != nil {
		return Invitation{}, err
	}
	inv.Token = token
	inv.Email = strings.TrimSpace(inv.Email)
	inv.CreatedAt = clock.Now().UTC()
	inv.Status = Pending
	inv.UserExists = exists
	if inv.Role == "" {
		inv.Role = Member
	}
	if err := s.Invitations.Create(ctx, &inv); err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

// InvitationURL is the page the invitee lands on: the acceptance page for
// registered users, the registration page otherwise.
func (s Service) InvitationURL(inv Invitation) string {
	if !inv.UserExists {
		return s.link("/register", "invite", inv.Token)
	}
	if inv.Kind == ProjectInvitation {
		return s.link("/project-invitation", "token", inv.Token)
	}
	return s.link("/team-invitation", "token", inv.Token)
}

// Invite invites an email address into the team. Only owners and admins may invite.
func (s Service) Invite(ctx context.Context, username, teamID, email string, role Role) (Invitation, error) {
	if strings.TrimSpace(email) == "" {
		return Invitation{}, ErrEmailRequired
	}
	t, found, err := s.Teams.FindByID(ctx, teamID)
	if err != nil {
		return Invitation{}, err
	}
	if !found || !t.HasRole(username, Owner, Admin) {
		return Invitation{}, ErrPermissionDenied
	}
	inv, err := s.Issue(ctx, Invitation{
		Kind:      TeamInvitation,
		TeamID:    t.ID,
		TeamName:  t.Name,
		Email:     email,
		Role:      role,
		InvitedBy: username,
	})
	if err != nil {
		return Invitation{}, err
	}
	msg, err := mail.TeamInvitation(mail.Invitation{
		To:        inv.Email,
		Name:      t.Name,
		Role:      string(inv.Role),
		InvitedBy: username,
		URL:       s.InvitationURL(inv),
		Existing:  inv.UserExists,
	})
	if err != nil {
		return Invitation{}, err
	}
	s.SendInvitation(ctx, msg)
	return inv, nil
}

// SendInvitation hands the message to the mailer and only logs a failure,
// the stored invitation stays valid either way.
func (s Service) SendInvitation(ctx context.Context, msg mail.Message) {
	if err := s.Mailer.Send(ctx, msg); err != nil {
		logger.Warn(ctx, "failed to queue invitation email",
			logging.ErrField(err),
			logging.Field("subject", msg.Subject))
		return
	}
	logger.Info(ctx, "invitation email queued", logging.Field("subject", msg.Subject))
}

// PendingInvitation returns an invitation that is still pending and younger than seven days.
func (s Service) PendingInvitation(ctx context.Context, token string) (Invitation, error) {
	inv, found, err := s.Invitations.FindByID(ctx, token)
	if err != nil {
		return Invitation{}, err
	}
	if !found || !inv.IsPending(clock.Now()) {
		return Invitation{}, ErrInvalidInvitation
	}
	return inv, nil
}

func (s Service) MarkAccepted(ctx context.Context, inv Invitation) error {
	now := clock.Now().UTC()
	inv.Status = Accepted
	inv.AcceptedAt = &now
	return s.Invitations.Update(ctx, &inv)
}

// Accept joins the user to the invitation's team and lets the other members know.
func (s Service) Accept(ctx context.Context, username, token string) error {
	inv, err := s.PendingInvitation(ctx, token)
	if err != nil {
		return err
	}
	if inv.TeamID == "" {
		return ErrInvalidInvitation
	}
	t, err := s.AddMember(ctx, inv.TeamID, username, inv.Role)
	if err != nil {
		return err
	}
	if err := s.MarkAccepted(ctx, inv); err != nil {
		return err
	}
	s.Notifications.Notify(ctx, username, notification.TeamJoined,
		fmt.Sprintf("You joined team %q", inv.TeamName), nil)
	for _, m := range t.Members {
		if m.Username == username {
			continue
		}
		s.Notifications.Notify(ctx, m.Username, notification.TeamMemberJoined,
			fmt.Sprintf("%s joined team %q", username, inv.TeamName), nil)
	}
	s.Hub.Publish(ctx, inv.TeamID, notification.UpdateMemberJoined, map[string]any{
		"username": username,
		"role":     inv.Role,
	})
	return nil
}
