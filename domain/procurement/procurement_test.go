package procurement_test

import (
	"context"
	"math"
	"testing"
	"time"

	"go.llib.dev/testcase"
	"go.llib.dev/testcase/assert"
	"go.llib.dev/testcase/clock/timecop"

	"plangrid/adapter/memory"
	"plangrid/domain/notification"
	"plangrid/domain/procurement"
	"plangrid/domain/project"
	"plangrid/internal/fixture"
)

func cents(v float64) float64 { return math.Round(v*100) / 100 }

func TestUnitPrice(t *testing.T) {
	assert.Equal(t, 45000.0, procurement.UnitPrice("Steel Tower", ""))
	assert.Equal(t, 1000.0, procurement.UnitPrice("Unobtainium", "Local shop"))
	assert.Equal(t, 47250.0, cents(procurement.UnitPrice("Steel Tower", "Power Tech Solutions Pvt")))
	assert.Equal(t, 2744.0, cents(procurement.UnitPrice("Busbar", "Grid Equipment Ltd")))
	assert.Equal(t, 1224.0, cents(procurement.UnitPrice("Insulator", "Electrical Components Co")))
}

func TestDealers(t *testing.T) {
	ds := procurement.Dealers()
	assert.Equal(t, 3, len(ds))
	ds[0].Name = "changed"
	assert.Equal(t, "Power Tech Solutions", procurement.Dealers()[0].Name)
}

type Subject struct {
	Env     *fixture.Env
	Service procurement.Service
}

func LetSubject(s *testcase.Spec) testcase.Var[Subject] {
	return testcase.Let(s, func(t *testcase.T) Subject {
		env := fixture.New()
		return Subject{
			Env: env,
			Service: procurement.Service{
				Orders:   memory.NewRepository[procurement.Order, string](),
				Projects: env.Projects,
				Hub:      env.Hub,
			},
		}
	})
}

func TestService(t *testing.T) {
	s := testcase.NewSpec(t)
	sub := LetSubject(s)
	ctx := context.Background()

	s.Describe("#Create", func(s *testcase.Spec) {
		s.Then("the order is priced and pending", func(t *testcase.T) {
			timecop.Travel(t, time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC), timecop.Freeze)
			o, err := sub.Get(t).Service.Create(ctx, "alice", procurement.Draft{
				Material: "Conductor Cable",
				Dealer:   "Grid Equipment Ltd",
				Quantity: 3,
			})
			assert.Must(t).NoError(err)
			assert.Must(t).Equal("ORD_20250506070809", o.ID)
			assert.Must(t).Equal(procurement.StatusPending, o.Status)
			assert.Must(t).Equal(833.0, o.UnitPrice)
			assert.Must(t).Equal(2499.0, o.TotalPrice)
		})

		s.Then("orders placed in the same second get distinct ids", func(t *testcase.T) {
			timecop.Travel(t, time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC), timecop.Freeze)
			a, err := sub.Get(t).Service.Create(ctx, "alice", procurement.Draft{Material: "Busbar", Quantity: 1})
			assert.Must(t).NoError(err)
			b, err := sub.Get(t).Service.Create(ctx, "alice", procurement.Draft{Material: "Busbar", Quantity: 1})
			assert.Must(t).NoError(err)
			assert.Must(t).NotEqual(a.ID, b.ID)
		})

		s.Then("the project team is told about orders of its project", func(t *testcase.T) {
			env := sub.Get(t).Env
			tm := env.Team(ctx, "alice", "bob")
			p := env.Project(ctx, "alice", project.Project{Name: "Line", TeamID: tm.ID})
			env.Hub.Subscribe(ctx, "bob", tm.ID)
			env.Hub.Poll("bob")

			o, err := sub.Get(t).Service.Create(ctx, "alice", procurement.Draft{ProjectID: p.ID, Material: "Busbar", Quantity: 2})
			assert.Must(t).NoError(err)

			updates := env.Hub.Poll("bob")
			assert.Must(t).Equal(1, len(updates))
			assert.Must(t).Equal(notification.UpdateOrderCreated, updates[0].Type)
			assert.Must(t).Equal(o.ID, updates[0].Data["order_id"])
		})
	})

	s.Describe("#List", func(s *testcase.Spec) {
		s.Then("own orders and orders of accessible projects are listed, newest first", func(t *testcase.T) {
			env := sub.Get(t).Env
			tm := env.Team(ctx, "bob", "alice")
			shared := env.Project(ctx, "bob", project.Project{ID: "PROJ_SHARED", Name: "Shared", TeamID: tm.ID})
			env.Project(ctx, "carol", project.Project{ID: "PROJ_PRIVATE", Name: "Private"})

			timecop.Travel(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), timecop.Freeze)
			own, err := sub.Get(t).Service.Create(ctx, "alice", procurement.Draft{Material: "Busbar"})
			assert.Must(t).NoError(err)
			timecop.Travel(t, time.Minute, timecop.Freeze)
			byID, err := sub.Get(t).Service.Create(ctx, "bob", procurement.Draft{ProjectID: shared.ID})
			assert.Must(t).NoError(err)
			timecop.Travel(t, time.Minute, timecop.Freeze)
			byName, err := sub.Get(t).Service.Create(ctx, "bob", procurement.Draft{Project: "Shared"})
			assert.Must(t).NoError(err)
			timecop.Travel(t, time.Minute, timecop.Freeze)
			_, err = sub.Get(t).Service.Create(ctx, "carol", procurement.Draft{ProjectID: "PROJ_PRIVATE"})
			assert.Must(t).NoError(err)

			got, err := sub.Get(t).Service.List(ctx, "alice")
			assert.Must(t).NoError(err)
			var ids []string
			for _, o := range got {
				ids = append(ids, o.ID)
			}
			assert.Must(t).Equal([]string{byName.ID, byID.ID, own.ID}, ids)

			pos, err := sub.Get(t).Service.PurchaseOrders(ctx, "alice")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(3, len(pos))
			assert.Must(t).Equal(pos[0].ID, pos[0].RequestID)
		})
	})

	s.Describe("#UpdateStatus", func(s *testcase.Spec) {
		s.Then("only the creator can change the status", func(t *testcase.T) {
			o, err := sub.Get(t).Service.Create(ctx, "alice", procurement.Draft{Material: "Busbar", Quantity: 1})
			assert.Must(t).NoError(err)

			assert.Must(t).ErrorIs(procurement.ErrNotFound, sub.Get(t).Service.UpdateStatus(ctx, "bob", o.ID, "SHIPPED"))
			assert.Must(t).ErrorIs(procurement.ErrStatusRequired, sub.Get(t).Service.UpdateStatus(ctx, "alice", o.ID, ""))
			assert.Must(t).NoError(sub.Get(t).Service.UpdateStatus(ctx, "alice", o.ID, "SHIPPED"))

			got, err := sub.Get(t).Service.List(ctx, "alice")
			assert.Must(t).NoError(err)
			assert.Must(t).Equal("SHIPPED", got[0].Status)
			assert.Must(t).Equal("alice", got[0].UpdatedBy)
		})
	})

	s.Describe("#Delete", func(s *testcase.Spec) {
		s.Then("only the creator can delete", func(t *testcase.T) {
			o, err := sub.Get(t).Service.Create(ctx, "alice", procurement.Draft{Material: "Busbar", Quantity: 1})
			assert.Must(t).NoError(err)
			assert.Must(t).ErrorIs(procurement.ErrNotFound, sub.Get(t).Service.Delete(ctx, "bob", o.ID))
			assert.Must(t).NoError(sub.Get(t).Service.Delete(ctx, "alice", o.ID))
			assert.Must(t).ErrorIs(procurement.ErrNotFound, sub.Get(t).Service.Delete(ctx, "alice", o.ID))
		})
	})
}
