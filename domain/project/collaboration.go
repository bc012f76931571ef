package project

import (
	"context"
	"fmt"

	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/testcase/clock"

	"plangrid/domain/notification"
	"plangrid/domain/team"
	"plangrid/port/mail"
)

type CreatedTeam struct {
	ProjectName string `json:"project_name"`
	TeamName    string `json:"team_name"`
	TeamID      string `json:"team_id"`
}

type BackfillReport struct {
	CreatedTeams               []CreatedTeam `json:"created_teams"`
	TotalProjects              int           `json:"total_projects"`
	ProjectsWithTeams          int           `json:"projects_with_teams"`
	ProjectsWithoutTeamsBefore int           `json:"projects_without_teams_before"`
}

// CreateTeamsForExisting gives every project of the user without a team its own TEAM_<project_id> team.
// A failing project is logged and skipped.
func (s Service) CreateTeamsForExisting(ctx context.Context, username string) (BackfillReport, error) {
	own, err := s.Query(ctx, func(p Project) bool { return p.CreatedBy == username })
	if err != nil {
		return BackfillReport{}, err
	}
	teams, err := s.Teams.ForMember(ctx, username)
	if err != nil {
		return BackfillReport{}, err
	}
	withTeam := map[string]struct{}{}
	for _, t := range teams {
		if t.ProjectID != "" {
			withTeam[t.ProjectID] = struct{}{}
		}
	}
	report := BackfillReport{
		CreatedTeams:      []CreatedTeam{},
		TotalProjects:     len(own),
		ProjectsWithTeams: len(withTeam),
	}
	for _, p := range own {
		if _, ok := withTeam[p.ID]; ok {
			continue
		}
		report.ProjectsWithoutTeamsBefore++
		created, err := s.backfillTeam(ctx, p)
		if err != nil {
			logger.Warn(ctx, "failed to create team for project",
				logging.ErrField(err),
				logging.Field("project_id", p.ID))
			continue
		}
		if created != nil {
			report.CreatedTeams = append(report.CreatedTeams, *created)
		}
	}
	return report, nil
}

func (s Service) backfillTeam(ctx context.Context, p Project) (*CreatedTeam, error) {
	teamID := "TEAM_" + p.ID
	_, found, err := s.Teams.Teams.FindByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if found {
		return nil, nil
	}
	t, err := s.Teams.Insert(ctx, team.NewTeam{
		ID:          teamID,
		Name:        p.Name + " Team",
		Description: fmt.Sprintf("Collaboration team for %s project", p.Name),
		Owner:       p.CreatedBy,
		ProjectID:   p.ID,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.SetTeam(ctx, p, t.ID); err != nil {
		return nil, err
	}
	return &CreatedTeam{ProjectName: p.Name, TeamName: t.Name, TeamID: t.ID}, nil
}

// Invite invites an email address to a project owned by the user.
func (s Service) Invite(ctx context.Context, username, id, email string, role team.Role) (team.Invitation, error) {
	if email == "" {
		return team.Invitation{}, team.ErrEmailRequired
	}
	p, found, err := s.Projects.FindByID(ctx, id)
	if err != nil {
		return team.Invitation{}, err
	}
	if !found || p.CreatedBy != username {
		return team.Invitation{}, ErrNotFound
	}
	inv, err := s.Teams.Issue(ctx, team.Invitation{
		Kind:        team.ProjectInvitation,
		ProjectID:   p.ID,
		ProjectName: p.Name,
		Email:       email,
		Role:        role,
		InvitedBy:   username,
	})
	if err != nil {
		return team.Invitation{}, err
	}
	msg, err := mail.ProjectInvitation(mail.Invitation{
		To:          inv.Email,
		Name:        p.Name,
		Role:        string(inv.Role),
		InvitedBy:   username,
		URL:         s.Teams.InvitationURL(inv),
		Existing:    inv.UserExists,
		Location:    p.Location,
		Status:      p.Status,
		Description: p.Description,
	})
	if err != nil {
		return team.Invitation{}, err
	}
	s.Teams.SendInvitation(ctx, msg)
	return inv, nil
}

// AcceptInvitation joins the user to the project's team, creating the team when the project has none.
func (s Service) AcceptInvitation(ctx context.Context, username, token string) error {
	inv, err := s.Teams.PendingInvitation(ctx, token)
	if err != nil {
		return err
	}
	if inv.Kind != team.ProjectInvitation {
		return team.ErrInvalidInvitation
	}
	p, found, err := s.Projects.FindByID(ctx, inv.ProjectID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if p.TeamID == "" {
		t, err := s.Teams.Insert(ctx, team.NewTeam{
			ID:          team.NewUniqueID(clock.Now().UTC()),
			Name:        p.Name + " Team",
			Description: "Auto-generated team for project: " + p.Name,
			Owner:       p.CreatedBy,
			ProjectID:   p.ID,
		})
		if err != nil {
			return err
		}
		if p, err = s.SetTeam(ctx, p, t.ID); err != nil {
			return err
		}
	}
	t, err := s.Teams.AddMember(ctx, p.TeamID, username, inv.Role)
	if err != nil {
		return err
	}
	if err := s.Teams.MarkAccepted(ctx, inv); err != nil {
		return err
	}
	s.Teams.Notifications.Notify(ctx, username, notification.ProjectJoined,
		fmt.Sprintf("You joined project %q", inv.ProjectName), nil)
	for _, m := range t.Members {
		if m.Username == username {
			continue
		}
		s.Teams.Notifications.Notify(ctx, m.Username, notification.ProjectMemberJoined,
			fmt.Sprintf("%s joined project %q", username, inv.ProjectName), nil)
	}
	s.Teams.Hub.Publish(ctx, p.TeamID, notification.UpdateProjectMemberJoined, map[string]any{
		"username":     username,
		"role":         inv.Role,
		"project_name": inv.ProjectName,
	})
	return nil
}
