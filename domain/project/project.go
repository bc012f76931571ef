// Package project stores the transmission line projects and decides who may see them.
//
// A project is visible to its creator and to the members of the team it is linked to.
package project

import (
	"context"
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
	"plangrid/domain/team"
)

const (
	ErrNotFound      errorkit.Error = "Project not found or access denied"
	ErrAlreadyExists errorkit.Error = "Project already exists"
	ErrNameRequired  errorkit.Error = "Project name is required"
)

const (
	StatusPlanned    = "PLANNED"
	StatusInProgress = "IN PROGRESS"
)

type Project struct {
	ID             string    `ext:"id" json:"project_id"`
	Name           string    `json:"name"`
	Location       string    `json:"location,omitempty"`
	State          string    `json:"state,omitempty"`
	City           string    `json:"city,omitempty"`
	Status         string    `json:"status"`
	TowerType      string    `json:"tower_type,omitempty"`
	SubstationType string    `json:"substation_type,omitempty"`
	Cost           *float64  `json:"cost,omitempty"`
	StartDate      string    `json:"start_date,omitempty"`
	EndDate        string    `json:"end_date,omitempty"`
	ProjectSizeKM  *float64  `json:"project_size_km,omitempty"`
	Description    string    `json:"description,omitempty"`
	TeamID         string    `json:"team_id,omitempty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedBy      string    `json:"updated_by,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Budget is the project cost, zero when unknown.
func (p Project) Budget() float64 {
	if p.Cost == nil {
		return 0
	}
	return *p.Cost
}

// Kind is the tower type, else the substation type, else Unknown.
func (p Project) Kind() string {
	switch {
	case p.TowerType != "":
		return p.TowerType
	case p.SubstationType != "":
		return p.SubstationType
	default:
		return "Unknown"
	}
}

type Repository interface {
	crud.Creator[Project]
	crud.ByIDFinder[Project, string]
	crud.Updater[Project]
	crud.ByIDDeleter[string]
	QueryMany(ctx context.Context, filter func(Project) bool) iter.Seq2[Project, error]
}

type Service struct {
	Projects Repository
	Teams    team.Service
}

// NewID returns PROJ_<YYYYMMDDHHMMSS>.
func NewID(now time.Time) string {
	return "PROJ_" + now.Format("20060102150405")
}

// Query returns the projects accepted by filter, newest first.
func (s Service) Query(ctx context.Context, filter func(Project) bool) ([]Project, error) {
	ps, err := iterkit.CollectE(s.Projects.QueryMany(ctx, filter))
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []Project{}
	}
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].CreatedAt.After(ps[j].CreatedAt)
	})
	return ps, nil
}

func (s Service) accessFilter(ctx context.Context, username string) (func(Project) bool, error) {
	teamIDs, err := s.Teams.TeamIDs(ctx, username)
	if err != nil {
		return nil, err
	}
	return func(p Project) bool {
		return p.CreatedBy == username || (p.TeamID != "" && slices.Contains(teamIDs, p.TeamID))
	}, nil
}

// Accessible lists the projects the user created or shares through a team.
func (s Service) Accessible(ctx context.Context, username string) ([]Project, error) {
	filter, err := s.accessFilter(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, filter)
}

func (s Service) AccessibleIDs(ctx context.Context, username string) ([]string, error) {
	ps, err := s.Accessible(ctx, username)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// Get returns the project when the user may access it.
func (s Service) Get(ctx context.Context, username, id string) (Project, error) {
	p, found, err := s.Projects.FindByID(ctx, id)
	if err != nil {
		return Project{}, err
	}
	if !found {
		return Project{}, ErrNotFound
	}
	filter, err := s.accessFilter(ctx, username)
	if err != nil {
		return Project{}, err
	}
	if !filter(p) {
		return Project{}, ErrNotFound
	}
	return p, nil
}

// ByTeammates lists the projects created by the user or anyone sharing a team with the user.
func (s Service) ByTeammates(ctx context.Context, username string) ([]Project, error) {
	mates, err := s.Teams.Teammates(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, func(p Project) bool {
		return slices.Contains(mates, p.CreatedBy)
	})
}

// TeamProjects lists the projects created by the members of a team the user belongs to.
func (s Service) TeamProjects(ctx context.Context, username, teamID string) ([]Project, error) {
	t, err := s.Teams.Get(ctx, username, teamID)
	if err != nil {
		return nil, err
	}
	members := t.Usernames()
	return s.Query(ctx, func(p Project) bool {
		return slices.Contains(members, p.CreatedBy)
	})
}

// Create stores a new project owned by the user.
// A team_id links the project to that team, creating "<name>-Team" when it does not exist yet.
func (s Service) Create(ctx context.Context, username string, draft Project) (Project, error) {
	if strings.TrimSpace(draft.Name) == "" {
		return Project{}, ErrNameRequired
	}
	now := clock.Now().UTC()
	p := draft
	if p.ID == "" {
		p.ID = NewID(now)
	}
	if p.Status == "" {
		p.Status = StatusPlanned
	}
	p.CreatedBy = username
	p.CreatedAt = now
	p.UpdatedAt = now
	p.UpdatedBy = ""
	if err := s.Projects.Create(ctx, &p); err != nil {
		if errors.Is(err, crud.ErrAlreadyExists) {
			return Project{}, ErrAlreadyExists.F("%s", p.ID)
		}
		return Project{}, err
	}
	if p.TeamID != "" {
		if err := s.linkTeam(ctx, username, p); err != nil {
			return Project{}, err
		}
	}
	logger.Info(ctx, "project created",
		logging.Field("project_id", p.ID),
		logging.Field("created_by", username))
	return p, nil
}

func (s Service) linkTeam(ctx context.Context, username string, p Project) error {
	t, found, err := s.Teams.Teams.FindByID(ctx, p.TeamID)
	if err != nil {
		return err
	}
	if !found {
		_, err := s.Teams.Insert(ctx, team.NewTeam{
			ID:          p.TeamID,
			Name:        p.Name + "-Team",
			Description: fmt.Sprintf("Team for %s project", p.Name),
			Owner:       username,
			ProjectID:   p.ID,
		})
		if err != nil {
			return err
		}
		s.Teams.Hub.Publish(ctx, p.TeamID, notification.UpdateProjectCreated, map[string]any{
			"project_name": p.Name,
			"project_id":   p.ID,
			"created_by":   username,
			"status":       p.Status,
		})
		return nil
	}
	t.ProjectID = p.ID
	if err := s.Teams.Teams.Update(ctx, &t); err != nil {
		return err
	}
	s.Teams.Hub.Publish(ctx, p.TeamID, notification.UpdateProjectAssigned, map[string]any{
		"project_name": p.Name,
		"project_id":   p.ID,
		"assigned_by":  username,
		"status":       p.Status,
	})
	return nil
}

// Patch holds the fields of a partial project update. Nil fields are left unchanged.
type Patch struct {
	Name           *string  `json:"name"`
	Location       *string  `json:"location"`
	State          *string  `json:"state"`
	City           *string  `json:"city"`
	Status         *string  `json:"status"`
	TowerType      *string  `json:"tower_type"`
	SubstationType *string  `json:"substation_type"`
	Cost           *float64 `json:"cost"`
	StartDate      *string  `json:"start_date"`
	EndDate        *string  `json:"end_date"`
	ProjectSizeKM  *float64 `json:"project_size_km"`
	Description    *string  `json:"description"`
}

func (patch Patch) apply(p *Project) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.Name, patch.Name)
	set(&p.Location, patch.Location)
	set(&p.State, patch.State)
	set(&p.City, patch.City)
	set(&p.Status, patch.Status)
	set(&p.TowerType, patch.TowerType)
	set(&p.SubstationType, patch.SubstationType)
	set(&p.StartDate, patch.StartDate)
	set(&p.EndDate, patch.EndDate)
	set(&p.Description, patch.Description)
	if patch.Cost != nil {
		p.Cost = patch.Cost
	}
	if patch.ProjectSizeKM != nil {
		p.ProjectSizeKM = patch.ProjectSizeKM
	}
}

func (s Service) Update(ctx context.Context, username, id string, patch Patch) (Project, error) {
	p, err := s.Get(ctx, username, id)
	if err != nil {
		return Project{}, err
	}
	patch.apply(&p)
	p.UpdatedBy = username
	p.UpdatedAt = clock.Now().UTC()
	if err := s.Projects.Update(ctx, &p); err != nil {
		return Project{}, err
	}
	return p, nil
}

// SetTeam links the project to a team without any further side effect.
func (s Service) SetTeam(ctx context.Context, p Project, teamID string) (Project, error) {
	p.TeamID = teamID
	return p, s.Projects.Update(ctx, &p)
}

// Delete removes a project owned by the user together with its team.
func (s Service) Delete(ctx context.Context, username, id string) error {
	p, found, err := s.Projects.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !found || p.CreatedBy != username {
		return ErrNotFound
	}
	if err := s.Projects.DeleteByID(ctx, id); err != nil {
		return err
	}
	if p.TeamID == "" {
		return nil
	}
	if err := s.Teams.Teams.DeleteByID(ctx, p.TeamID); err != nil && !errors.Is(err, crud.ErrNotFound) {
		return err
	}
	logger.Info(ctx, "deleted team of deleted project",
		logging.Field("team_id", p.TeamID),
		logging.Field("project_id", id))
	return nil
}

type Details struct {
	Project
	TeamMembers []team.Membership `json:"team_members"`
	TeamInfo    TeamInfo          `json:"team_info"`
}

type TeamInfo struct {
	TeamID      string `json:"team_id,omitempty"`
	HasTeam     bool   `json:"has_team"`
	MemberCount int    `json:"member_count"`
}

func (s Service) Details(ctx context.Context, username, id string) (Details, error) {
	p, err := s.Get(ctx, username, id)
	if err != nil {
		return Details{}, err
	}
	d := Details{Project: p, TeamMembers: []team.Membership{}}
	if p.TeamID != "" {
		t, found, err := s.Teams.Teams.FindByID(ctx, p.TeamID)
		if err != nil {
			return Details{}, err
		}
		if found {
			d.TeamMembers = t.Members
		}
	}
	d.TeamInfo = TeamInfo{TeamID: p.TeamID, HasTeam: p.TeamID != "", MemberCount: len(d.TeamMembers)}
	return d, nil
}
