package memory_test

import (
	"context"
	"testing"

	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/testcase"
	"go.llib.dev/testcase/assert"

	"plangrid/adapter/memory"
)

type TestEntity struct {
	ID   string `ext:"id"`
	Data string
}

func TestRepository(t *testing.T) {
	s := testcase.NewSpec(t)

	repo := testcase.Let(s, func(t *testcase.T) *memory.Repository[TestEntity, string] {
		return &memory.Repository[TestEntity, string]{}
	})
	ent := testcase.Let(s, func(t *testcase.T) TestEntity {
		return TestEntity{ID: t.Random.UUID(), Data: t.Random.String()}
	})

	s.Describe("#Create", func(s *testcase.Spec) {
		act := func(t *testcase.T) error {
			e := ent.Get(t)
			return repo.Get(t).Create(context.Background(), &e)
		}

		s.Test("stored entity can be found by id", func(t *testcase.T) {
			assert.Must(t).NoError(act(t))
			got, found, err := repo.Get(t).FindByID(context.Background(), ent.Get(t).ID)
			assert.Must(t).NoError(err)
			assert.Must(t).True(found)
			assert.Must(t).Equal(ent.Get(t), got)
		})

		s.Test("duplicate id is rejected", func(t *testcase.T) {
			assert.Must(t).NoError(act(t))
			assert.Must(t).ErrorIs(crud.ErrAlreadyExists, act(t))
		})

		s.Test("entity without id is rejected", func(t *testcase.T) {
			e := TestEntity{Data: "x"}
			assert.Must(t).ErrorIs(memory.ErrMissingID, repo.Get(t).Create(context.Background(), &e))
		})
	})

	s.Describe("#Update", func(s *testcase.Spec) {
		s.Test("missing entity yields not found", func(t *testcase.T) {
			e := ent.Get(t)
			assert.Must(t).ErrorIs(crud.ErrNotFound, repo.Get(t).Update(context.Background(), &e))
		})

		s.Test("existing entity is replaced", func(t *testcase.T) {
			e := ent.Get(t)
			assert.Must(t).NoError(repo.Get(t).Create(context.Background(), &e))
			e.Data = "updated"
			assert.Must(t).NoError(repo.Get(t).Update(context.Background(), &e))
			got, _, _ := repo.Get(t).FindByID(context.Background(), e.ID)
			assert.Must(t).Equal("updated", got.Data)
		})
	})

	s.Describe("#DeleteByID", func(s *testcase.Spec) {
		s.Test("removes the entity and keeps the others in order", func(t *testcase.T) {
			ctx := context.Background()
			a, b, c := TestEntity{ID: "a"}, TestEntity{ID: "b"}, TestEntity{ID: "c"}
			for _, e := range []*TestEntity{&a, &b, &c} {
				assert.Must(t).NoError(repo.Get(t).Create(ctx, e))
			}
			assert.Must(t).NoError(repo.Get(t).DeleteByID(ctx, "b"))
			assert.Must(t).ErrorIs(crud.ErrNotFound, repo.Get(t).DeleteByID(ctx, "b"))

			var ids []string
			for v, err := range repo.Get(t).FindAll(ctx) {
				assert.Must(t).NoError(err)
				ids = append(ids, v.ID)
			}
			assert.Must(t).Equal([]string{"a", "c"}, ids)
		})
	})

	s.Test("#QueryOne returns the first match", func(t *testcase.T) {
		ctx := context.Background()
		a, b := TestEntity{ID: "a", Data: "x"}, TestEntity{ID: "b", Data: "y"}
		assert.Must(t).NoError(repo.Get(t).Create(ctx, &a))
		assert.Must(t).NoError(repo.Get(t).Create(ctx, &b))
		got, found, err := repo.Get(t).QueryOne(ctx, func(v TestEntity) bool { return v.Data == "y" })
		assert.Must(t).NoError(err)
		assert.Must(t).True(found)
		assert.Equal(t, b, got)
	})

	s.Test("#Save creates then updates", func(t *testcase.T) {
		ctx := context.Background()
		e := ent.Get(t)
		assert.Must(t).NoError(repo.Get(t).Save(ctx, &e))
		e.Data = "again"
		assert.Must(t).NoError(repo.Get(t).Save(ctx, &e))
		got, _, _ := repo.Get(t).FindByID(ctx, e.ID)
		assert.Must(t).Equal("again", got.Data)
	})

	s.Test("#Save of the same new entity from concurrent callers stores it once", func(t *testcase.T) {
		var (
			ctx = context.Background()
			r   = repo.Get(t)
			exp = ent.Get(t)
		)
		save := func() {
			e := exp
			assert.Should(t).NoError(r.Save(ctx, &e))
		}
		testcase.Race(save, save, save, save)

		var n int
		for v, err := range r.FindAll(ctx) {
			assert.Must(t).NoError(err)
			assert.Must(t).Equal(exp, v)
			n++
		}
		assert.Must(t).Equal(1, n)
	})

	s.Test("#DeleteAll empties the collection", func(t *testcase.T) {
		ctx := context.Background()
		e := ent.Get(t)
		assert.Must(t).NoError(repo.Get(t).Create(ctx, &e))
		assert.Must(t).NoError(repo.Get(t).DeleteAll(ctx))
		_, found, err := repo.Get(t).FindByID(ctx, e.ID)
		assert.Must(t).NoError(err)
		assert.Must(t).False(found)
	})
}
