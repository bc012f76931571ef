package project_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.llib.dev/testcase"
	"go.llib.dev/testcase/assert"
	"go.llib.dev/testcase/clock/timecop"

	"plangrid/adapter/memory"
	"plangrid/domain/notification"
	"plangrid/domain/project"
	"plangrid/domain/team"
	"plangrid/port/mail"
)

type directory map[string]bool

func (d directory) EmailRegistered(ctx context.Context, email string) (bool, error) {
	return d[email], nil
}

type outbox struct {
	m    sync.Mutex
	msgs []mail.Message
}

func (o *outbox) Send(ctx context.Context, msg mail.Message) error {
	o.m.Lock()
	defer o.m.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

type Subject struct {
	Service project.Service
	Outbox  *outbox
}

func LetSubject(s *testcase.Spec) testcase.Var[Subject] {
	return testcase.Let(s, func(t *testcase.T) Subject {
		box := &outbox{}
		return Subject{
			Service: project.Service{
				Projects: memory.NewRepository[project.Project, string](),
				Teams: team.Service{
					Teams:         memory.NewRepository[team.Team, string](),
					Invitations:   memory.NewRepository[team.Invitation, string](),
					Directory:     directory{"bob@example.com": true},
					Notifications: notification.Service{Repository: memory.NewRepository[notification.Notification, string]()},
					Hub:           &notification.Hub{},
					Mailer:        box,
					FrontendURL:   "http://front",
				},
			},
			Outbox: box,
		}
	})
}

func ptr[T any](v T) *T { return &v }

func TestService(t *testing.T) {
	s := testcase.NewSpec(t)
	sub := LetSubject(s)
	ctx := context.Background()

	create := func(t *testcase.T, user string, draft project.Project) project.Project {
		p, err := sub.Get(t).Service.Create(ctx, user, draft)
		assert.Must(t).NoError(err)
		return p
	}

	s.Describe("#Create", func(s *testcase.Spec) {
		s.Then("defaults are filled in", func(t *testcase.T) {
			timecop.Travel(t, time.Date(2025, 4, 5, 6, 7, 8, 0, time.UTC), timecop.Freeze)
			p := create(t, "alice", project.Project{Name: "Line"})
			assert.Must(t).Equal("PROJ_20250405060708", p.ID)
			assert.Must(t).Equal(project.StatusPlanned, p.Status)
			assert.Must(t).Equal("alice", p.CreatedBy)
		})

		s.Then("duplicate ids are rejected", func(t *testcase.T) {
			create(t, "alice", project.Project{ID: "P1", Name: "Line"})
			_, err := sub.Get(t).Service.Create(ctx, "alice", project.Project{ID: "P1", Name: "Other"})
			assert.Must(t).ErrorIs(project.ErrAlreadyExists, err)
		})

		s.Then("a new team is created for an unknown team id", func(t *testcase.T) {
			sub.Get(t).Service.Teams.Hub.Subscribe(ctx, "alice", "T1")
			p := create(t, "alice", project.Project{ID: "P1", Name: "Line", TeamID: "T1"})

			tm, err := sub.Get(t).Service.Teams.Get(ctx, "alice", "T1")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal("Line-Team", tm.Name)
			assert.Must(t).Equal(p.ID, tm.ProjectID)
			assert.Must(t).True(tm.HasRole("alice", team.Owner))

			updates := sub.Get(t).Service.Teams.Hub.Poll("alice")
			assert.Must(t).Equal(1, len(updates))
			assert.Must(t).Equal(notification.UpdateProjectCreated, updates[0].Type)
		})

		s.Then("an existing team is linked", func(t *testcase.T) {
			tm, err := sub.Get(t).Service.Teams.Create(ctx, "alice", "Grid", "")
			assert.Must(t).NoError(err)
			sub.Get(t).Service.Teams.Hub.Subscribe(ctx, "alice", tm.ID)

			p := create(t, "alice", project.Project{Name: "Line", TeamID: tm.ID})
			got, err := sub.Get(t).Service.Teams.Get(ctx, "alice", tm.ID)
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(p.ID, got.ProjectID)
			assert.Must(t).Equal("Grid", got.Name)
			assert.Must(t).Equal(notification.UpdateProjectAssigned, sub.Get(t).Service.Teams.Hub.Poll("alice")[0].Type)
		})
	})

	s.Describe("access", func(s *testcase.Spec) {
		s.Before(func(t *testcase.T) {
			timecop.Travel(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), timecop.Freeze)
			create(t, "alice", project.Project{ID: "A1", Name: "own"})
			timecop.Travel(t, time.Minute)
			create(t, "carol", project.Project{ID: "C1", Name: "shared", TeamID: "T1"})
			timecop.Travel(t, time.Minute)
			create(t, "carol", project.Project{ID: "C2", Name: "private"})
			_, err := sub.Get(t).Service.Teams.AddMember(ctx, "T1", "alice", team.Member)
			assert.Must(t).NoError(err)
		})

		s.Then("own and team projects are listed newest first", func(t *testcase.T) {
			ps, err := sub.Get(t).Service.Accessible(ctx, "alice")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(2, len(ps))
			assert.Must(t).Equal("C1", ps[0].ID)
			assert.Must(t).Equal("A1", ps[1].ID)
		})

		s.Then("other projects are hidden", func(t *testcase.T) {
			_, err := sub.Get(t).Service.Get(ctx, "alice", "C2")
			assert.Must(t).ErrorIs(project.ErrNotFound, err)
			_, err = sub.Get(t).Service.Get(ctx, "alice", "missing")
			assert.Must(t).ErrorIs(project.ErrNotFound, err)
		})

		s.Then("teammates' projects are visible through ByTeammates", func(t *testcase.T) {
			ps, err := sub.Get(t).Service.ByTeammates(ctx, "alice")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(3, len(ps))
		})

		s.Then("details include the team", func(t *testcase.T) {
			d, err := sub.Get(t).Service.Details(ctx, "alice", "C1")
			assert.Must(t).NoError(err)
			assert.Must(t).True(d.TeamInfo.HasTeam)
			assert.Must(t).Equal(2, d.TeamInfo.MemberCount)
			assert.Must(t).Equal(2, len(d.TeamMembers))

			d, err = sub.Get(t).Service.Details(ctx, "alice", "A1")
			assert.Must(t).NoError(err)
			assert.Must(t).False(d.TeamInfo.HasTeam)
			assert.Must(t).Equal(0, d.TeamInfo.MemberCount)
		})

		s.Then("team projects are the projects of the members", func(t *testcase.T) {
			ps, err := sub.Get(t).Service.TeamProjects(ctx, "alice", "T1")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(3, len(ps))
			_, err = sub.Get(t).Service.TeamProjects(ctx, "dave", "T1")
			assert.Must(t).ErrorIs(team.ErrNotFound, err)
		})
	})

	s.Describe("#Update", func(s *testcase.Spec) {
		s.Then("only the given fields change", func(t *testcase.T) {
			create(t, "alice", project.Project{ID: "P1", Name: "Line", City: "Pune", Cost: ptr(10.0)})
			p, err := sub.Get(t).Service.Update(ctx, "alice", "P1", project.Patch{Status: ptr(project.StatusInProgress)})
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(project.StatusInProgress, p.Status)
			assert.Must(t).Equal("Pune", p.City)
			assert.Must(t).Equal(10.0, p.Budget())
			assert.Must(t).Equal("alice", p.UpdatedBy)
		})

		s.Then("unknown projects are not found", func(t *testcase.T) {
			_, err := sub.Get(t).Service.Update(ctx, "alice", "nope", project.Patch{})
			assert.Must(t).ErrorIs(project.ErrNotFound, err)
		})
	})

	s.Describe("#Delete", func(s *testcase.Spec) {
		s.Then("the owner deletes the project and its team", func(t *testcase.T) {
			create(t, "alice", project.Project{ID: "P1", Name: "Line", TeamID: "T1"})
			assert.Must(t).ErrorIs(project.ErrNotFound, sub.Get(t).Service.Delete(ctx, "bob", "P1"))
			assert.Must(t).NoError(sub.Get(t).Service.Delete(ctx, "alice", "P1"))
			_, found, err := sub.Get(t).Service.Teams.Teams.FindByID(ctx, "T1")
			assert.Must(t).NoError(err)
			assert.Must(t).False(found)
		})
	})

	s.Describe("#CreateTeamsForExisting", func(s *testcase.Spec) {
		s.Then("projects without a team get one", func(t *testcase.T) {
			create(t, "alice", project.Project{ID: "P1", Name: "One"})
			create(t, "alice", project.Project{ID: "P2", Name: "Two", TeamID: "T2"})
			create(t, "bob", project.Project{ID: "P3", Name: "Three"})

			report, err := sub.Get(t).Service.CreateTeamsForExisting(ctx, "alice")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(2, report.TotalProjects)
			assert.Must(t).Equal(1, report.ProjectsWithTeams)
			assert.Must(t).Equal(1, report.ProjectsWithoutTeamsBefore)
			assert.Must(t).Equal([]project.CreatedTeam{{ProjectName: "One", TeamName: "One Team", TeamID: "TEAM_P1"}}, report.CreatedTeams)

			p, err := sub.Get(t).Service.Get(ctx, "alice", "P1")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal("TEAM_P1", p.TeamID)

			again, err := sub.Get(t).Service.CreateTeamsForExisting(ctx, "alice")
			assert.Must(t).NoError(err)
			assert.Must(t).Empty(again.CreatedTeams)
		})
	})

	s.Describe("project invitations", func(s *testcase.Spec) {
		s.Before(func(t *testcase.T) {
			create(t, "alice", project.Project{ID: "P1", Name: "Line", Location: "Pune"})
		})

		s.Then("only the owner can invite", func(t *testcase.T) {
			_, err := sub.Get(t).Service.Invite(ctx, "bob", "P1", "x@example.com", team.Member)
			assert.Must(t).ErrorIs(project.ErrNotFound, err)
		})

		s.Then("accepting creates the project team and joins it", func(t *testcase.T) {
			inv, err := sub.Get(t).Service.Invite(ctx, "alice", "P1", "bob@example.com", team.Member)
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(team.ProjectInvitation, inv.Kind)
			msg := sub.Get(t).Outbox.msgs[0]
			assert.Must(t).Equal("Project Invitation - Line", msg.Subject)
			assert.Must(t).Contains(msg.Text, "http://front/project-invitation?token="+inv.Token)

			assert.Must(t).NoError(sub.Get(t).Service.AcceptInvitation(ctx, "bob", inv.Token))

			p, err := sub.Get(t).Service.Get(ctx, "bob", "P1")
			assert.Must(t).NoError(err)
			assert.Must(t).NotEmpty(p.TeamID)
			tm, err := sub.Get(t).Service.Teams.Get(ctx, "bob", p.TeamID)
			assert.Must(t).NoError(err)
			assert.Must(t).True(tm.HasRole("alice", team.Owner))
			assert.Must(t).Equal("Line Team", tm.Name)

			assert.Must(t).ErrorIs(team.ErrInvalidInvitation, sub.Get(t).Service.AcceptInvitation(ctx, "bob", inv.Token))
		})

		s.Then("team invitations cannot be accepted as project invitations", func(t *testcase.T) {
			tm, err := sub.Get(t).Service.Teams.Create(ctx, "alice", "Grid", "")
			assert.Must(t).NoError(err)
			inv, err := sub.Get(t).Service.Teams.Invite(ctx, "alice", tm.ID, "bob@example.com", team.Member)
			assert.Must(t).NoError(err)
			assert.Must(t).ErrorIs(team.ErrInvalidInvitation, sub.Get(t).Service.AcceptInvitation(ctx, "bob", inv.Token))
		})
	})
}

func TestProject_Kind(t *testing.T) {
	s := testcase.NewSpec(t)
	s.Test("tower type, then substation type, then Unknown", func(t *testcase.T) {
		assert.Must(t).Equal("Lattice", project.Project{TowerType: "Lattice", SubstationType: "GIS"}.Kind())
		assert.Must(t).Equal("GIS", project.Project{SubstationType: "GIS"}.Kind())
		assert.Must(t).Equal("Unknown", project.Project{}.Kind())
	})
}
