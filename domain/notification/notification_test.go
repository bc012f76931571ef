package notification_test

import (
	"context"
	"testing"
	"time"

	"go.llib.dev/testcase"
	"go.llib.dev/testcase/assert"
	"go.llib.dev/testcase/clock/timecop"

	"plangrid/adapter/memory"
	"plangrid/domain/notification"
)

func TestService(t *testing.T) {
	s := testcase.NewSpec(t)

	repo := testcase.Let(s, func(t *testcase.T) *memory.Repository[notification.Notification, string] {
		return memory.NewRepository[notification.Notification, string]()
	})
	service := testcase.Let(s, func(t *testcase.T) notification.Service {
		return notification.Service{Repository: repo.Get(t)}
	})
	ctx := context.Background()

	s.Describe("#List", func(s *testcase.Spec) {
		s.Then("only the user's notifications are listed, newest first", func(t *testcase.T) {
			start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
			timecop.Travel(t, start, timecop.Freeze)
			service.Get(t).Notify(ctx, "alice", notification.TeamCreated, "first", nil)
			timecop.Travel(t, start.Add(time.Minute), timecop.Freeze)
			service.Get(t).Notify(ctx, "bob", notification.TeamJoined, "other", nil)
			timecop.Travel(t, start.Add(2*time.Minute), timecop.Freeze)
			service.Get(t).Notify(ctx, "alice", notification.TeamJoined, "second", map[string]any{"team_id": "T"})

			got, err := service.Get(t).List(ctx, "alice")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(2, len(got))
			assert.Must(t).Equal("second", got[0].Message)
			assert.Must(t).Equal("first", got[1].Message)
			assert.Must(t).False(got[0].Read)
			assert.Must(t).NotNil(got[1].Data)
		})

		s.Then("the inbox is capped", func(t *testcase.T) {
			for range notification.InboxLimit + 5 {
				service.Get(t).Notify(ctx, "alice", notification.TeamCreated, t.Random.String(), nil)
			}
			got, err := service.Get(t).List(ctx, "alice")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(notification.InboxLimit, len(got))
		})
	})

	s.Describe("#MarkRead", func(s *testcase.Spec) {
		s.Then("the notification is marked read", func(t *testcase.T) {
			service.Get(t).Notify(ctx, "alice", notification.TeamCreated, "msg", nil)
			ns, err := service.Get(t).List(ctx, "alice")
			assert.Must(t).NoError(err)

			assert.Must(t).NoError(service.Get(t).MarkRead(ctx, "alice", ns[0].ID))
			got, found, err := repo.Get(t).FindByID(ctx, ns[0].ID)
			assert.Must(t).NoError(err)
			assert.Must(t).True(found)
			assert.Must(t).True(got.Read)
			assert.Must(t).NotNil(got.ReadAt)
		})

		s.Then("notifications of other users are not found", func(t *testcase.T) {
			service.Get(t).Notify(ctx, "bob", notification.TeamCreated, "msg", nil)
			ns, _ := service.Get(t).List(ctx, "bob")
			assert.Must(t).ErrorIs(notification.ErrNotFound, service.Get(t).MarkRead(ctx, "alice", ns[0].ID))
		})
	})
}
