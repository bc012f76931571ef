package memory

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/frameless/port/crud/extid"
)

func NewRepository[ENT, ID any]() *Repository[ENT, ID] {
	return &Repository[ENT, ID]{}
}

// Repository is an in-process document collection.
// Entities are identified by their `ext:"id"` field and are kept in insertion order.
// The zero value is ready to use.
type Repository[ENT, ID any] struct {
	m    sync.RWMutex
	keys []string
	ents map[string]ENT
}

const ErrMissingID errorkit.Error = "ErrMissingID"

func (r *Repository[ENT, ID]) Create(ctx context.Context, ptr *ENT) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, ok := extid.Lookup[ID](*ptr)
	if !ok {
		return ErrMissingID
	}
	r.m.Lock()
	defer r.m.Unlock()
	r.init()
	key := r.IDToMemoryKey(id)
	if _, found := r.ents[key]; found {
		return crud.ErrAlreadyExists.F(`%T already exists with id: %v`, *new(ENT), id)
	}
	r.keys = append(r.keys, key)
	r.ents[key] = *ptr
	return nil
}

// Save creates or replaces the entity under a single write lock.
func (r *Repository[ENT, ID]) Save(ctx context.Context, ptr *ENT) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, ok := extid.Lookup[ID](*ptr)
	if !ok {
		return ErrMissingID
	}
	r.m.Lock()
	defer r.m.Unlock()
	r.init()
	key := r.IDToMemoryKey(id)
	if _, found := r.ents[key]; !found {
		r.keys = append(r.keys, key)
	}
	r.ents[key] = *ptr
	return nil
}

func (r *Repository[ENT, ID]) FindByID(ctx context.Context, id ID) (_ent ENT, _found bool, _err error) {
	if err := ctx.Err(); err != nil {
		return _ent, false, err
	}
	r.m.RLock()
	defer r.m.RUnlock()
	ent, ok := r.ents[r.IDToMemoryKey(id)]
	return ent, ok, nil
}

func (r *Repository[ENT, ID]) FindAll(ctx context.Context) iter.Seq2[ENT, error] {
	return r.QueryMany(ctx, func(ENT) bool { return true })
}

func (r *Repository[ENT, ID]) QueryOne(ctx context.Context, filter func(v ENT) bool) (ENT, bool, error) {
	var zero ENT
	for v, err := range r.QueryMany(ctx, filter) {
		if err != nil {
			return zero, false, err
		}
		return v, true, nil
	}
	return zero, false, nil
}

// QueryMany iterates over a snapshot of the collection taken when iteration starts.
func (r *Repository[ENT, ID]) QueryMany(ctx context.Context, filter func(v ENT) bool) iter.Seq2[ENT, error] {
	return func(yield func(ENT, error) bool) {
		if err := ctx.Err(); err != nil {
			var zero ENT
			yield(zero, err)
			return
		}
		for _, v := range r.snapshot() {
			if !filter(v) {
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func (r *Repository[ENT, ID]) Update(ctx context.Context, ptr *ENT) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, ok := extid.Lookup[ID](*ptr)
	if !ok {
		return ErrMissingID
	}
	r.m.Lock()
	defer r.m.Unlock()
	key := r.IDToMemoryKey(id)
	if _, found := r.ents[key]; !found {
		return crud.ErrNotFound.F(`%T entity not found by id: %v`, *ptr, id)
	}
	r.ents[key] = *ptr
	return nil
}

func (r *Repository[ENT, ID]) DeleteByID(ctx context.Context, id ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.Lock()
	defer r.m.Unlock()
	key := r.IDToMemoryKey(id)
	if _, found := r.ents[key]; !found {
		return crud.ErrNotFound.F(`%T entity not found by id: %v`, *new(ENT), id)
	}
	delete(r.ents, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Repository[ENT, ID]) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.m.Lock()
	defer r.m.Unlock()
	r.keys = nil
	r.ents = nil
	return nil
}

func (r *Repository[ENT, ID]) IDToMemoryKey(id any) string {
	return fmt.Sprintf(`%#v`, id)
}

func (r *Repository[ENT, ID]) snapshot() []ENT {
	r.m.RLock()
	defer r.m.RUnlock()
	out := make([]ENT, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, r.ents[k])
	}
	return out
}

func (r *Repository[ENT, ID]) init() {
	if r.ents == nil {
		r.ents = make(map[string]ENT)
	}
}
