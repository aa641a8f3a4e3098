package services

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"moneta/internal/cloud"
	"moneta/internal/cloud/memory"
	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/storage"
)

// fakeLocal is an in-memory LocalStore.
type fakeLocal struct {
	mu         sync.Mutex
	user       *core.User
	categories map[string]core.Category
	order      []string

	createCategoryErr error
	userErr           error
	writes            int
}

func newFakeLocal(cats ...core.Category) *fakeLocal {
	f := &fakeLocal{categories: map[string]core.Category{}}
	for _, c := range cats {
		f.categories[c.ID] = c
		f.order = append(f.order, c.ID)
	}
	return f
}

func (f *fakeLocal) GetUser(context.Context) (core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return core.User{}, f.userErr
	}
	if f.user == nil {
		return core.User{}, storage.ErrNotFound
	}
	return *f.user, nil
}

func (f *fakeLocal) CreateUser(_ context.Context, u core.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user != nil {
		return storage.ErrConflict
	}
	f.user = &u
	f.writes++
	return nil
}

func (f *fakeLocal) UpdateUser(_ context.Context, u core.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.user == nil || f.user.ID != u.ID {
		return storage.ErrNotFound
	}
	f.user = &u
	f.writes++
	return nil
}

func (f *fakeLocal) ListCategories(context.Context) ([]core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Category, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.categories[id])
	}
	return out, nil
}

func (f *fakeLocal) GetCategory(_ context.Context, id string) (core.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[id]
	if !ok {
		return core.Category{}, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeLocal) CreateCategory(_ context.Context, c core.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createCategoryErr != nil {
		return f.createCategoryErr
	}
	if _, ok := f.categories[c.ID]; ok {
		return storage.ErrConflict
	}
	f.categories[c.ID] = c
	f.order = append(f.order, c.ID)
	f.writes++
	return nil
}

func (f *fakeLocal) UpdateCategory(_ context.Context, c core.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.categories[c.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if old.IsDefault {
		return storage.ErrImmutable
	}
	f.categories[c.ID] = c
	f.writes++
	return nil
}

func (f *fakeLocal) DeleteCategory(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[id]
	if !ok {
		return storage.ErrNotFound
	}
	if c.IsDefault {
		return storage.ErrImmutable
	}
	delete(f.categories, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	f.writes++
	return nil
}

func (f *fakeLocal) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := append([]string(nil), f.order...)
	sort.Strings(ids)
	return ids
}

func discardLogger(component string) *log.Logger {
	return log.New(log.Config{Component: component, Output: io.Discard})
}

type testEngine struct {
	*Engine
	store  *memory.Store
	local  *fakeLocal
	sleeps atomic.Int32
}

func newTestEngine(local *fakeLocal, store *memory.Store) *testEngine {
	logger := discardLogger(log.ComponentSync)
	cfg := EngineConfig{
		MaxConvergeAttempts: 5,
		BackoffMin:          time.Millisecond,
		BackoffMax:          4 * time.Millisecond,
		ConvergeTimeout:     time.Second,
	}
	te := &testEngine{store: store, local: local}
	te.Engine = NewEngine(local, cloud.NewGateway(store, logger), cloud.NewRemote(store, store), cfg, logger)
	te.Engine.sleep = func(ctx context.Context, _ time.Duration) error {
		te.sleeps.Add(1)
		return ctx.Err()
	}
	return te
}

func (te *testEngine) writes() int {
	_, w := te.store.Counts()
	return w
}

func category(id, name string, isDefault bool) core.Category {
	c, err := core.NewCategory(id, name, "tag", "#FF8800", isDefault)
	if err != nil {
		panic(err)
	}
	return c
}
