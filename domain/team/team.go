// Package team manages teams, their members and email invitations.
package team

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sort"
	"strings"
	"time"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/iterkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/testcase/clock"

	"plangrid/domain/notification"
	"plangrid/port/mail"
)

const (
	ErrNotFound          errorkit.Error = "Team not found or access denied"
	ErrPermissionDenied  errorkit.Error = "Permission denied"
	ErrOwnerOnly         errorkit.Error = "Permission denied. Only team owner can delete the team."
	ErrCannotRemoveOwner errorkit.Error = "Cannot remove team owner"
	ErrEmailRequired     errorkit.Error = "Email is required"
	ErrNameRequired      errorkit.Error = "Team name is required"
	ErrInvalidRole       errorkit.Error = "Invalid role"
	ErrInvalidInvitation errorkit.Error = "Invalid or expired invitation"
)

type Role string

const (
	Owner  Role = "owner"
	Admin  Role = "admin"
	Member Role = "member"
)

type Membership struct {
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type Settings struct {
	AllowMemberInvites         bool `json:"allow_member_invites"`
	RequireApprovalForProjects bool `json:"require_approval_for_projects"`
}

var DefaultSettings = Settings{AllowMemberInvites: true}

type Team struct {
	ID          string       `ext:"id" json:"team_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	CreatedBy   string       `json:"created_by"`
	CreatedAt   time.Time    `json:"created_at"`
	Members     []Membership `json:"members"`
	Settings    *Settings    `json:"settings,omitempty"`
	ProjectID   string       `json:"project_id,omitempty"`
}

func (t Team) Membership(username string) (Membership, bool) {
	for _, m := range t.Members {
		if m.Username == username {
			return m, true
		}
	}
	return Membership{}, false
}

func (t Team) IsMember(username string) bool {
	_, ok := t.Membership(username)
	return ok
}

func (t Team) HasRole(username string, roles ...Role) bool {
	m, ok := t.Membership(username)
	return ok && slices.Contains(roles, m.Role)
}

func (t Team) Usernames() []string {
	out := make([]string, 0, len(t.Members))
	for _, m := range t.Members {
		out = append(out, m.Username)
	}
	return out
}

type Repository interface {
	crud.Creator[Team]
	crud.ByIDFinder[Team, string]
	crud.Updater[Team]
	crud.ByIDDeleter[string]
	QueryMany(ctx context.Context, filter func(Team) bool) iter.Seq2[Team, error]
}

// Directory tells whether an email address belongs to a registered user.
type Directory interface {
	EmailRegistered(ctx context.Context, email string) (bool, error)
}

type Service struct {
	Teams         Repository
	Invitations   InvitationRepository
	Directory     Directory
	Notifications notification.Service
	Hub           *notification.Hub
	Mailer        mail.Sender
	FrontendURL   string
}

// NewID returns TEAM_<YYYYMMDDHHMMSS>.
func NewID(now time.Time) string {
	return "TEAM_" + now.Format("20060102150405")
}

// NewUniqueID returns TEAM_<YYYYMMDDHHMMSS>_<hex8>.
func NewUniqueID(now time.Time) string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return NewID(now) + "_" + hex.EncodeToString(b)
}

type NewTeam struct {
	ID          string
	Name        string
	Description string
	Owner       string
	ProjectID   string
}

// Insert stores a team owned by nt.Owner.
// Without an explicit ID the timestamp based id is used, suffixed when already taken.
func (s Service) Insert(ctx context.Context, nt NewTeam) (Team, error) {
	now := clock.Now().UTC()
	settings := DefaultSettings
	t := Team{
		ID:          nt.ID,
		Name:        nt.Name,
		Description: nt.Description,
		CreatedBy:   nt.Owner,
		CreatedAt:   now,
		Members:     []Membership{{Username: nt.Owner, Role: Owner, JoinedAt: now}},
		Settings:    &settings,
		ProjectID:   nt.ProjectID,
	}
	if t.ID != "" {
		return t, s.Teams.Create(ctx, &t)
	}
	t.ID = NewID(now)
	err := s.Teams.Create(ctx, &t)
	if errors.Is(err, crud.ErrAlreadyExists) {
		t.ID = NewUniqueID(now)
		err = s.Teams.Create(ctx, &t)
	}
	return t, err
}

func (s Service) Create(ctx context.Context, username, name, description string) (Team, error) {
	if strings.TrimSpace(name) == "" {
		return Team{}, ErrNameRequired
	}
	t, err := s.Insert(ctx, NewTeam{Name: name, Description: description, Owner: username})
	if err != nil {
		return Team{}, err
	}
	s.Notifications.Notify(ctx, username, notification.TeamCreated,
		fmt.Sprintf("Team %q created successfully", t.Name), nil)
	return t, nil
}

// ForMember lists the teams the user is a member of.
func (s Service) ForMember(ctx context.Context, username string) ([]Team, error) {
	ts, err := iterkit.CollectE(s.Teams.QueryMany(ctx, func(t Team) bool {
		return t.IsMember(username)
	}))
	if err != nil {
		return nil, err
	}
	if ts == nil {
		ts = []Team{}
	}
	return ts, nil
}

// Get returns the team when the user is a member of it.
func (s Service) Get(ctx context.Context, username, teamID string) (Team, error) {
	t, found, err := s.Teams.FindByID(ctx, teamID)
	if err != nil {
		return Team{}, err
	}
	if !found || !t.IsMember(username) {
		return Team{}, ErrNotFound
	}
	return t, nil
}

func (s Service) Members(ctx context.Context, username, teamID string) ([]Membership, error) {
	t, err := s.Get(ctx, username, teamID)
	if err != nil {
		return nil, err
	}
	return t.Members, nil
}

// AddMember appends the user to the team unless already a member.
func (s Service) AddMember(ctx context.Context, teamID, username string, role Role) (Team, error) {
	t, found, err := s.Teams.FindByID(ctx, teamID)
	if err != nil {
		return Team{}, err
	}
	if !found {
		return Team{}, ErrNotFound
	}
	if t.IsMember(username) {
		return t, nil
	}
	t.Members = append(t.Members, Membership{Username: username, Role: role, JoinedAt: clock.Now().UTC()})
	return t, s.Teams.Update(ctx, &t)
}

func (s Service) RemoveMember(ctx context.Context, username, teamID, member string) error {
	t, found, err := s.Teams.FindByID(ctx, teamID)
	if err != nil {
		return err
	}
	if !found || !t.HasRole(username, Owner, Admin) {
		return ErrPermissionDenied
	}
	if m, ok := t.Membership(member); ok && m.Role == Owner {
		return ErrCannotRemoveOwner
	}
	t.Members = slices.DeleteFunc(t.Members, func(m Membership) bool {
		return m.Username == member
	})
	if err := s.Teams.Update(ctx, &t); err != nil {
		return err
	}
	s.Notifications.Notify(ctx, member, notification.TeamRemoved,
		fmt.Sprintf("You were removed from team %q", t.Name), nil)
	return nil
}

func (s Service) Delete(ctx context.Context, username, teamID string) error {
	t, found, err := s.Teams.FindByID(ctx, teamID)
	if err != nil {
		return err
	}
	if !found || !t.HasRole(username, Owner) {
		return ErrOwnerOnly
	}
	for _, m := range t.Members {
		if m.Username == username {
			continue
		}
		s.Notifications.Notify(ctx, m.Username, notification.TeamDeleted,
			fmt.Sprintf("Team %q has been deleted by the owner", t.Name), nil)
	}
	if err := s.Teams.DeleteByID(ctx, teamID); err != nil {
		return err
	}
	logger.Info(ctx, "team deleted", logging.Field("team_id", teamID))
	return nil
}

// Teammates returns the user and every member of the user's teams, sorted.
func (s Service) Teammates(ctx context.Context, username string) ([]string, error) {
	ts, err := s.ForMember(ctx, username)
	if err != nil {
		return nil, err
	}
	set := map[string]struct{}{username: {}}
	for _, t := range ts {
		for _, m := range t.Members {
			set[m.Username] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// TeamIDs returns the ids of the teams the user is a member of.
func (s Service) TeamIDs(ctx context.Context, username string) ([]string, error) {
	ts, err := s.ForMember(ctx, username)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ts))
	for _, t := range ts {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s Service) link(path, param, token string) string {
	return strings.TrimRight(s.FrontendURL, "/") + path + "?" + param + "=" + token
}
