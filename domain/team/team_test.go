package team_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.llib.dev/frameless/pkg/iterkit"
	"go.llib.dev/testcase"
	"go.llib.dev/testcase/assert"
	"go.llib.dev/testcase/clock/timecop"

	"plangrid/adapter/memory"
	"plangrid/domain/notification"
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
	Service       team.Service
	Notifications *memory.Repository[notification.Notification, string]
	Outbox        *outbox
}

func LetSubject(s *testcase.Spec) testcase.Var[Subject] {
	return testcase.Let(s, func(t *testcase.T) Subject {
		notifications := memory.NewRepository[notification.Notification, string]()
		box := &outbox{}
		return Subject{
			Service: team.Service{
				Teams:         memory.NewRepository[team.Team, string](),
				Invitations:   memory.NewRepository[team.Invitation, string](),
				Directory:     directory{"known@example.com": true},
				Notifications: notification.Service{Repository: notifications},
				Hub:           &notification.Hub{},
				Mailer:        box,
				FrontendURL:   "http://front",
			},
			Notifications: notifications,
			Outbox:        box,
		}
	})
}

func notificationsOf(t *testcase.T, sub Subject, user string) []notification.Notification {
	ns, err := iterkit.CollectE(sub.Notifications.QueryMany(context.Background(), func(n notification.Notification) bool {
		return n.UserID == user
	}))
	assert.Must(t).NoError(err)
	return ns
}

func TestService(t *testing.T) {
	s := testcase.NewSpec(t)
	sub := LetSubject(s)
	ctx := context.Background()

	createTeam := func(t *testcase.T, owner string) team.Team {
		tm, err := sub.Get(t).Service.Create(ctx, owner, "Grid", "north line")
		assert.Must(t).NoError(err)
		return tm
	}

	s.Describe("#Create", func(s *testcase.Spec) {
		s.Then("the creator becomes the owner", func(t *testcase.T) {
			now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
			timecop.Travel(t, now, timecop.Freeze)

			tm := createTeam(t, "alice")
			assert.Must(t).Equal("TEAM_20250203040506", tm.ID)
			assert.Must(t).Equal(1, len(tm.Members))
			assert.Must(t).Equal(team.Owner, tm.Members[0].Role)
			assert.Must(t).Equal(team.DefaultSettings, *tm.Settings)

			ns := notificationsOf(t, sub.Get(t), "alice")
			assert.Must(t).Equal(1, len(ns))
			assert.Must(t).Equal(notification.TeamCreated, ns[0].Type)
		})

		s.Then("teams created in the same second get distinct ids", func(t *testcase.T) {
			timecop.Travel(t, time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC), timecop.Freeze)
			a := createTeam(t, "alice")
			b := createTeam(t, "alice")
			assert.Must(t).NotEqual(a.ID, b.ID)
		})

		s.Then("a name is required", func(t *testcase.T) {
			_, err := sub.Get(t).Service.Create(ctx, "alice", " ", "")
			assert.Must(t).ErrorIs(team.ErrNameRequired, err)
		})
	})

	s.Describe("#Get", func(s *testcase.Spec) {
		s.Then("non members cannot see the team", func(t *testcase.T) {
			tm := createTeam(t, "alice")
			_, err := sub.Get(t).Service.Get(ctx, "bob", tm.ID)
			assert.Must(t).ErrorIs(team.ErrNotFound, err)

			got, err := sub.Get(t).Service.Get(ctx, "alice", tm.ID)
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(tm.ID, got.ID)
		})
	})

	s.Describe("invitations", func(s *testcase.Spec) {
		tm := testcase.Let(s, func(t *testcase.T) team.Team { return createTeam(t, "alice") })

		s.Then("an existing user is linked to the acceptance page", func(t *testcase.T) {
			inv, err := sub.Get(t).Service.Invite(ctx, "alice", tm.Get(t).ID, "known@example.com", team.Admin)
			assert.Must(t).NoError(err)
			assert.Must(t).True(inv.UserExists)
			assert.Must(t).Equal(team.Pending, inv.Status)
			assert.Must(t).Equal(1, len(sub.Get(t).Outbox.msgs))
			msg := sub.Get(t).Outbox.msgs[0]
			assert.Must(t).Equal("Team Invitation - Grid", msg.Subject)
			assert.Must(t).Contains(msg.Text, "http://front/team-invitation?token="+inv.Token)
		})

		s.Then("a new user is linked to registration", func(t *testcase.T) {
			inv, err := sub.Get(t).Service.Invite(ctx, "alice", tm.Get(t).ID, "new@example.com", team.Member)
			assert.Must(t).NoError(err)
			assert.Must(t).False(inv.UserExists)
			msg := sub.Get(t).Outbox.msgs[0]
			assert.Must(t).Equal("Join Grid Team - PlanGrid", msg.Subject)
			assert.Must(t).Contains(msg.Text, "http://front/register?invite="+inv.Token)
		})

		s.Then("plain members cannot invite", func(t *testcase.T) {
			_, err := sub.Get(t).Service.AddMember(ctx, tm.Get(t).ID, "bob", team.Member)
			assert.Must(t).NoError(err)
			_, err = sub.Get(t).Service.Invite(ctx, "bob", tm.Get(t).ID, "x@example.com", team.Member)
			assert.Must(t).ErrorIs(team.ErrPermissionDenied, err)
		})

		s.Then("an email is required", func(t *testcase.T) {
			_, err := sub.Get(t).Service.Invite(ctx, "alice", tm.Get(t).ID, "", team.Member)
			assert.Must(t).ErrorIs(team.ErrEmailRequired, err)
		})

		s.Then("accepting joins the team once and informs the members", func(t *testcase.T) {
			inv, err := sub.Get(t).Service.Invite(ctx, "alice", tm.Get(t).ID, "known@example.com", team.Admin)
			assert.Must(t).NoError(err)
			sub.Get(t).Service.Hub.Subscribe(ctx, "alice", tm.Get(t).ID)

			assert.Must(t).NoError(sub.Get(t).Service.Accept(ctx, "bob", inv.Token))

			got, err := sub.Get(t).Service.Get(ctx, "bob", tm.Get(t).ID)
			assert.Must(t).NoError(err)
			assert.Must(t).True(got.HasRole("bob", team.Admin))

			assert.Must(t).ErrorIs(team.ErrInvalidInvitation, sub.Get(t).Service.Accept(ctx, "bob", inv.Token))

			var types []notification.Type
			for _, n := range notificationsOf(t, sub.Get(t), "alice") {
				types = append(types, n.Type)
			}
			assert.Must(t).Contains(types, notification.TeamMemberJoined)
			assert.Must(t).Equal(notification.TeamJoined, notificationsOf(t, sub.Get(t), "bob")[0].Type)

			updates := sub.Get(t).Service.Hub.Poll("alice")
			assert.Must(t).Equal(1, len(updates))
			assert.Must(t).Equal(notification.UpdateMemberJoined, updates[0].Type)
		})

		s.Then("invitations expire after seven days", func(t *testcase.T) {
			start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			timecop.Travel(t, start, timecop.Freeze)
			inv, err := sub.Get(t).Service.Invite(ctx, "alice", tm.Get(t).ID, "known@example.com", team.Member)
			assert.Must(t).NoError(err)

			_, err = sub.Get(t).Service.PendingInvitation(ctx, inv.Token)
			assert.Must(t).NoError(err)

			timecop.Travel(t, start.Add(team.InvitationTTL+time.Minute), timecop.Freeze)
			_, err = sub.Get(t).Service.PendingInvitation(ctx, inv.Token)
			assert.Must(t).ErrorIs(team.ErrInvalidInvitation, err)
		})
	})

	s.Describe("#RemoveMember", func(s *testcase.Spec) {
		tm := testcase.Let(s, func(t *testcase.T) team.Team {
			tm := createTeam(t, "alice")
			_, err := sub.Get(t).Service.AddMember(ctx, tm.ID, "bob", team.Member)
			assert.Must(t).NoError(err)
			return tm
		})

		s.Then("the owner can remove members", func(t *testcase.T) {
			assert.Must(t).NoError(sub.Get(t).Service.RemoveMember(ctx, "alice", tm.Get(t).ID, "bob"))
			_, err := sub.Get(t).Service.Get(ctx, "bob", tm.Get(t).ID)
			assert.Must(t).ErrorIs(team.ErrNotFound, err)
			assert.Must(t).Equal(notification.TeamRemoved, notificationsOf(t, sub.Get(t), "bob")[0].Type)
		})

		s.Then("the owner cannot be removed", func(t *testcase.T) {
			_, err := sub.Get(t).Service.AddMember(ctx, tm.Get(t).ID, "carol", team.Admin)
			assert.Must(t).NoError(err)
			assert.Must(t).ErrorIs(team.ErrCannotRemoveOwner, sub.Get(t).Service.RemoveMember(ctx, "carol", tm.Get(t).ID, "alice"))
		})

		s.Then("members cannot remove others", func(t *testcase.T) {
			assert.Must(t).ErrorIs(team.ErrPermissionDenied, sub.Get(t).Service.RemoveMember(ctx, "bob", tm.Get(t).ID, "alice"))
		})
	})

	s.Describe("#Delete", func(s *testcase.Spec) {
		s.Then("only the owner can delete, others are notified", func(t *testcase.T) {
			tm := createTeam(t, "alice")
			_, err := sub.Get(t).Service.AddMember(ctx, tm.ID, "bob", team.Admin)
			assert.Must(t).NoError(err)

			assert.Must(t).ErrorIs(team.ErrOwnerOnly, sub.Get(t).Service.Delete(ctx, "bob", tm.ID))
			assert.Must(t).NoError(sub.Get(t).Service.Delete(ctx, "alice", tm.ID))

			_, err = sub.Get(t).Service.Get(ctx, "alice", tm.ID)
			assert.Must(t).ErrorIs(team.ErrNotFound, err)
			assert.Must(t).Equal(notification.TeamDeleted, notificationsOf(t, sub.Get(t), "bob")[0].Type)
		})
	})

	s.Describe("#Teammates", func(s *testcase.Spec) {
		s.Then("the user and every member of the user's teams are listed", func(t *testcase.T) {
			a := createTeam(t, "alice")
			_, err := sub.Get(t).Service.AddMember(ctx, a.ID, "bob", team.Member)
			assert.Must(t).NoError(err)
			b := createTeam(t, "carol")
			_, err = sub.Get(t).Service.AddMember(ctx, b.ID, "alice", team.Member)
			assert.Must(t).NoError(err)
			createTeam(t, "dave")

			got, err := sub.Get(t).Service.Teammates(ctx, "alice")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal([]string{"alice", "bob", "carol"}, got)

			got, err = sub.Get(t).Service.Teammates(ctx, "loner")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal([]string{"loner"}, got)
		})
	})
}

func TestParseRole(t *testing.T) {
	r, err := team.ParseRole("")
	assert.NoError(t, err)
	assert.Equal(t, team.Member, r)

	r, err = team.ParseRole(" Admin ")
	assert.NoError(t, err)
	assert.Equal(t, team.Admin, r)

	_, err = team.ParseRole("owner")
	assert.ErrorIs(t, team.ErrInvalidRole, err)
}
