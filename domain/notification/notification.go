// Package notification keeps the per-user notification inbox
// and the realtime update Hub used for team collaboration.
package notification

import (
	"context"
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/iterkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/testcase/clock"
)

type Type string

const (
	TeamCreated         Type = "team_created"
	TeamJoined          Type = "team_joined"
	TeamMemberJoined    Type = "team_member_joined"
	TeamRemoved         Type = "team_removed"
	TeamDeleted         Type = "team_deleted"
	ProjectJoined       Type = "project_joined"
	ProjectMemberJoined Type = "project_member_joined"
)

const ErrNotFound errorkit.Error = "Notification not found"

// InboxLimit caps the number of notifications returned by List.
const InboxLimit = 50

type Notification struct {
	ID        string         `ext:"id" json:"id"`
	UserID    string         `json:"user_id"`
	Type      Type           `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
}

type Repository interface {
	crud.Creator[Notification]
	crud.ByIDFinder[Notification, string]
	crud.Updater[Notification]
	QueryMany(ctx context.Context, filter func(Notification) bool) iter.Seq2[Notification, error]
}

type Service struct {
	Repository Repository
}

// Notify stores a notification for the user.
// Failures are logged and swallowed, a missing notification never fails the triggering operation.
func (s Service) Notify(ctx context.Context, userID string, typ Type, message string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	n := Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Message:   message,
		Data:      data,
		CreatedAt: clock.Now().UTC(),
	}
	if err := s.Repository.Create(ctx, &n); err != nil {
		logger.Warn(ctx, "failed to create notification",
			logging.ErrField(err),
			logging.Field("user_id", userID),
			logging.Field("type", string(typ)))
	}
}

// List returns the user's newest notifications first.
func (s Service) List(ctx context.Context, userID string) ([]Notification, error) {
	ns, err := iterkit.CollectE(s.Repository.QueryMany(ctx, func(n Notification) bool {
		return n.UserID == userID
	}))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ns, func(i, j int) bool {
		return ns[i].CreatedAt.After(ns[j].CreatedAt)
	})
	if len(ns) > InboxLimit {
		ns = ns[:InboxLimit]
	}
	return ns, nil
}

func (s Service) MarkRead(ctx context.Context, userID, id string) error {
	n, found, err := s.Repository.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !found || n.UserID != userID {
		return ErrNotFound
	}
	now := clock.Now().UTC()
	n.Read = true
	n.ReadAt = &now
	return s.Repository.Update(ctx, &n)
}
