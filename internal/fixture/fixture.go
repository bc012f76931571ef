// Package fixture wires the domain services over in-memory repositories for tests.
package fixture

import (
	"context"
	"sync"

	"plangrid/adapter/memory"
	"plangrid/domain/notification"
	"plangrid/domain/project"
	"plangrid/domain/team"
	"plangrid/port/mail"
)

const FrontendURL = "http://front"

// Directory reports the listed email addresses as registered.
type Directory map[string]bool

func (d Directory) EmailRegistered(ctx context.Context, email string) (bool, error) {
	return d[email], nil
}

// Outbox records every message instead of delivering it.
type Outbox struct {
	m    sync.Mutex
	msgs []mail.Message
}

func (o *Outbox) Send(ctx context.Context, msg mail.Message) error {
	o.m.Lock()
	defer o.m.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *Outbox) Messages() []mail.Message {
	o.m.Lock()
	defer o.m.Unlock()
	return append([]mail.Message(nil), o.msgs...)
}

type Env struct {
	Notifications *memory.Repository[notification.Notification, string]
	Hub           *notification.Hub
	Outbox        *Outbox
	Directory     Directory
	Teams         team.Service
	Projects      project.Service
}

func New() *Env {
	env := &Env{
		Notifications: memory.NewRepository[notification.Notification, string](),
		Hub:           &notification.Hub{},
		Outbox:        &Outbox{},
		Directory:     Directory{},
	}
	env.Teams = team.Service{
		Teams:         memory.NewRepository[team.Team, string](),
		Invitations:   memory.NewRepository[team.Invitation, string](),
		Directory:     env.Directory,
		Notifications: notification.Service{Repository: env.Notifications},
		Hub:           env.Hub,
		Mailer:        env.Outbox,
		FrontendURL:   FrontendURL,
	}
	env.Projects = project.Service{
		Projects: memory.NewRepository[project.Project, string](),
		Teams:    env.Teams,
	}
	return env
}

// Project creates a project for the user and panics on failure.
func (env *Env) Project(ctx context.Context, username string, draft project.Project) project.Project {
	p, err := env.Projects.Create(ctx, username, draft)
	if err != nil {
		panic(err)
	}
	return p
}

// Team creates a team owned by owner with the other users as members.
func (env *Env) Team(ctx context.Context, owner string, members ...string) team.Team {
	t, err := env.Teams.Create(ctx, owner, owner+"'s team", "")
	if err != nil {
		panic(err)
	}
	for _, m := range members {
		if t, err = env.Teams.AddMember(ctx, t.ID, m, team.Member); err != nil {
			panic(err)
		}
	}
	return t
}
