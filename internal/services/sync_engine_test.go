package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moneta/internal/cloud"
	"moneta/internal/cloud/memory"
	"moneta/internal/core"
	"moneta/internal/storage"
)

func remoteCategories(t *testing.T, store *memory.Store) map[string]core.RemoteCategory {
	t.Helper()
	out := map[string]core.RemoteCategory{}
	for _, rec := range store.Records(cloud.RecordCategory) {
		c, err := cloud.DecodeCategory(rec)
		require.NoError(t, err)
		out[c.ID] = c
	}
	return out
}

func remoteUsers(t *testing.T, store *memory.Store) []core.RemoteUser {
	t.Helper()
	var out []core.RemoteUser
	for _, rec := range store.Records(cloud.RecordUser) {
		u, err := cloud.DecodeUser(rec)
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

func TestEngine_CategoryMergeUnion(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	remoteDefault := category("default-food", "Food", true).Remote()
	remoteOnly := category("r1", "Pets", false).Remote()
	shared := category("s1", "Old name", false).Remote()
	for _, c := range []core.RemoteCategory{remoteDefault, remoteOnly, shared} {
		store.Put(cloud.RecordCategory, cloud.EncodeCategory(c))
	}

	localDefault := category("default-home", "Home", true)
	local := newFakeLocal(
		localDefault,
		category("l1", "Books", false),
		category("s1", "New name", false),
	)
	te := newTestEngine(local, store)

	rep, err := te.Run(ctx, ModePull)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Categories.Created)
	assert.Equal(t, 1, rep.Categories.Updated)
	assert.Equal(t, 1, rep.Categories.Pulled)

	remote := remoteCategories(t, store)
	assert.Contains(t, remote, "l1", "local-only category pushed")
	assert.Equal(t, "New name", remote["s1"].Name, "shared id carries local values")
	assert.NotContains(t, remote, "default-home", "local default never pushed")
	assert.Equal(t, remoteDefault, remote["default-food"], "remote default untouched")

	assert.Equal(t, []string{"default-home", "l1", "r1", "s1"}, local.ids())
	got, err := local.GetCategory(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Pets", got.Name)
	assert.False(t, got.IsDefault)
}

func TestEngine_DefaultIDCollisionIsSkipped(t *testing.T) {
	store := memory.New()
	store.Put(cloud.RecordCategory, cloud.EncodeCategory(category("c1", "Remote default", true).Remote()))
	local := newFakeLocal(category("c1", "Mine", false))
	te := newTestEngine(local, store)

	rep, err := te.Run(context.Background(), ModePull)
	require.NoError(t, err)
	assert.Zero(t, rep.Categories.Writes())
	assert.Equal(t, "Remote default", remoteCategories(t, store)["c1"].Name)
}

func TestEngine_Idempotent(t *testing.T) {
	for _, lag := range []int{0, 2} {
		store := memory.New()
		store.SetReadLag(lag)
		store.Put(cloud.RecordCategory, cloud.EncodeCategory(category("r1", "Pets", false).Remote()))

		local := newFakeLocal(category("l1", "Books", false), category("l2", "Games", false))
		u, err := core.NewUser("u1", "Ada", "Lovelace", []byte{1, 2, 3}, core.Money{Cents: 100})
		require.NoError(t, err)
		local.user = &u
		te := newTestEngine(local, store)

		_, err = te.Run(context.Background(), ModePull)
		require.NoError(t, err, "lag %d", lag)
		remoteWrites, localWrites := te.writes(), local.writes
		assert.Equal(t, 3, remoteWrites, "lag %d: two categories and one user created", lag)

		rep, err := te.Run(context.Background(), ModePull)
		require.NoError(t, err, "lag %d", lag)
		assert.Equal(t, remoteWrites, te.writes(), "lag %d: second run writes nothing remotely", lag)
		assert.Equal(t, localWrites, local.writes, "lag %d: second run writes nothing locally", lag)
		assert.Zero(t, rep.Users.Writes()+rep.Categories.Writes())
	}
}

func TestEngine_UserCreatedWhenRemoteAbsent(t *testing.T) {
	store := memory.New()
	local := newFakeLocal()
	u, err := core.NewUser("u1", "Ada", "Lovelace", []byte{7}, core.Money{Cents: 250000})
	require.NoError(t, err)
	local.user = &u
	te := newTestEngine(local, store)

	rep, err := te.Run(context.Background(), ModePull)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Users.Created)

	users := remoteUsers(t, store)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0].ID)
	assert.Equal(t, []byte{7}, users[0].Avatar)
	assert.Equal(t, int64(250000), users[0].Income.Cents)
}

func TestEngine_UserWithoutAvatarIsNotMirrored(t *testing.T) {
	store := memory.New()
	local := newFakeLocal()
	u := core.PlaceholderUser()
	local.user = &u
	te := newTestEngine(local, store)

	rep, err := te.Run(context.Background(), ModePull)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Users.Skipped)
	assert.Empty(t, store.Records(cloud.RecordUser))
}

func TestEngine_PullOverwritesLocalNames(t *testing.T) {
	store := memory.New()
	store.Put(cloud.RecordUser, cloud.EncodeUser(core.RemoteUser{
		ID: "remote-id", FirstName: "Grace", LastName: "Hopper", Avatar: []byte{1}, Income: core.Money{Cents: 5},
	}))
	local := newFakeLocal()
	u, err := core.NewUser("local-id", "Ada", "Lovelace", []byte{9}, core.Money{Cents: 300})
	require.NoError(t, err)
	local.user = &u
	te := newTestEngine(local, store)

	rep, err := te.Run(context.Background(), ModePull)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Users.Pulled)

	got, err := local.GetUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local-id", got.ID, "local id preserved")
	assert.Equal(t, "Grace", got.FirstName)
	assert.Equal(t, "Hopper", got.LastName)
	assert.Equal(t, []byte{1}, got.Avatar)
	assert.Equal(t, int64(300), got.Income.Cents, "income is not pulled onto an existing user")
	assert.Zero(t, te.writes())
}

func TestEngine_PullCreatesLocalUserFromDetachedAvatar(t *testing.T) {
	store := memory.New()
	store.PutAsset("asset-1", []byte{4, 2})
	store.Put(cloud.RecordUser, cloud.Record{ID: "remote-id", Fields: map[string]any{
		cloud.FieldFirstName:   "Grace",
		cloud.FieldLastName:    "Hopper",
		cloud.FieldAvatarAsset: "asset-1",
		cloud.FieldIncome:      int64(900),
	}})
	local := newFakeLocal()
	te := newTestEngine(local, store)

	_, err := te.Run(context.Background(), ModePull)
	require.NoError(t, err)

	got, err := local.GetUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "remote-id", got.ID)
	assert.Equal(t, []byte{4, 2}, got.Avatar)
	assert.Equal(t, int64(900), got.Income.Cents)

	// The detached avatar compares equal on the next run.
	rep, err := te.Run(context.Background(), ModePull)
	require.NoError(t, err)
	assert.Zero(t, rep.Users.Writes())
}

func TestEngine_PushOverwritesRemoteUser(t *testing.T) {
	store := memory.New()
	store.Put(cloud.RecordUser, cloud.EncodeUser(core.RemoteUser{
		ID: "remote-id", FirstName: "Grace", LastName: "Hopper", Avatar: []byte{1},
	}))
	local := newFakeLocal()
	u, err := core.NewUser("local-id", "Ada", "Lovelace", []byte{9}, core.Money{Cents: 300})
	require.NoError(t, err)
	local.user = &u
	te := newTestEngine(local, store)

	rep, err := te.Run(context.Background(), ModePush)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Users.Updated)

	users := remoteUsers(t, store)
	require.Len(t, users, 1)
	assert.Equal(t, "remote-id", users[0].ID)
	assert.Equal(t, "Ada", users[0].FirstName)
	assert.Equal(t, []byte{9}, users[0].Avatar)
	assert.Equal(t, int64(300), users[0].Income.Cents)

	got, _ := local.GetUser(context.Background())
	assert.Equal(t, "Ada", got.FirstName, "push never changes the local user")

	rep, err = te.Run(context.Background(), ModePush)
	require.NoError(t, err)
	assert.Zero(t, rep.Users.Writes())
}

func detachedRemoteUser(store *memory.Store, first, last string, income int64) {
	store.PutAsset("a1", []byte{4, 2})
	store.Put(cloud.RecordUser, cloud.Record{ID: "remote-id", Fields: map[string]any{
		cloud.FieldFirstName:   first,
		cloud.FieldLastName:    last,
		cloud.FieldAvatarAsset: "a1",
		cloud.FieldIncome:      income,
	}})
}

func TestEngine_PushSkipsPlaceholderUser(t *testing.T) {
	store := memory.New()
	detachedRemoteUser(store, "Ada", "Lovelace", 500)
	before := store.Records(cloud.RecordUser)

	local := newFakeLocal()
	u := core.PlaceholderUser()
	local.user = &u
	te := newTestEngine(local, store)

	rep, err := te.Run(context.Background(), ModePush)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Users.Skipped)
	assert.Zero(t, rep.Users.Writes())
	assert.Equal(t, before, store.Records(cloud.RecordUser), "remote profile untouched")

	rep, err = te.Run(context.Background(), ModePush)
	require.NoError(t, err)
	assert.Zero(t, te.writes())
	assert.Equal(t, 1, rep.Users.Skipped)
}

func TestEngine_PushOverDetachedAvatarIsIdempotent(t *testing.T) {
	for _, lag := range []int{0, 2} {
		store := memory.New()
		store.SetReadLag(lag)
		detachedRemoteUser(store, "Grace", "Hopper", 5)

		local := newFakeLocal()
		u, err := core.NewUser("local-id", "Ada", "Lovelace", []byte{9}, core.Money{Cents: 300})
		require.NoError(t, err)
		local.user = &u
		te := newTestEngine(local, store)

		rep, err := te.Run(context.Background(), ModePush)
		require.NoError(t, err, "lag %d", lag)
		assert.Equal(t, 1, rep.Users.Updated, "lag %d", lag)

		users := remoteUsers(t, store)
		require.Len(t, users, 1)
		assert.Equal(t, []byte{9}, users[0].Avatar, "lag %d", lag)
		assert.Empty(t, users[0].AvatarAsset, "lag %d: inline avatar replaces the asset", lag)

		writes := te.writes()
		rep, err = te.Run(context.Background(), ModePush)
		require.NoError(t, err, "lag %d", lag)
		assert.Zero(t, rep.Users.Writes(), "lag %d", lag)
		assert.Equal(t, writes, te.writes(), "lag %d: second push writes nothing", lag)

		cached, primed := te.Cache().Users()
		assert.True(t, primed, "lag %d", lag)
		require.Len(t, cached, 1)
		assert.Equal(t, "Ada", cached[0].FirstName, "lag %d", lag)
		assert.Empty(t, te.Cache().PendingUsers(), "lag %d", lag)
	}
}

func TestEngine_RemoteEditBetweenRunsConverges(t *testing.T) {
	for _, lag := range []int{0, 1} {
		ctx := context.Background()
		store := memory.New()
		store.SetReadLag(lag)
		local := newFakeLocal(category("l1", "Books", false))
		te := newTestEngine(local, store)

		rep, err := te.Run(ctx, ModePull)
		require.NoError(t, err, "lag %d", lag)
		require.Equal(t, 1, rep.Categories.Created, "lag %d", lag)

		// Another device adds a category between the two runs.
		store.Put(cloud.RecordCategory, cloud.EncodeCategory(category("r2", "Pets", false).Remote()))
		writes := te.writes()

		rep, err = te.Run(ctx, ModePull)
		require.NoError(t, err, "lag %d", lag)
		assert.Equal(t, 1, rep.Categories.Pulled, "lag %d", lag)
		assert.Equal(t, writes, te.writes(), "lag %d: nothing written remotely", lag)
		assert.Equal(t, []string{"l1", "r2"}, local.ids(), "lag %d", lag)
		assert.Empty(t, te.Cache().PendingCategories(), "lag %d", lag)
	}
}

func TestEngine_NotConvergedIsBounded(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	// Reads never catch up with a write until Settle.
	store.SetReadLag(100)
	local := newFakeLocal(category("c1", "Food", false))
	te := newTestEngine(local, store)

	rep, err := te.Run(ctx, ModePull)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Categories.Created)
	require.Len(t, te.Cache().PendingCategories(), 1)

	queriesBefore, _ := store.Counts()
	sleepsBefore := te.sleeps.Load()

	rep, err = te.Run(ctx, ModePull)
	require.ErrorIs(t, err, ErrNotConverged)
	require.ErrorIs(t, rep.Categories.Err, ErrNotConverged)
	assert.NoError(t, rep.Users.Err)

	queries, _ := store.Counts()
	// One query for the user branch plus MaxConvergeAttempts for categories.
	assert.Equal(t, 1+te.config.MaxConvergeAttempts, queries-queriesBefore)
	assert.Equal(t, int32(te.config.MaxConvergeAttempts-1), te.sleeps.Load()-sleepsBefore)
	_, primed := te.Cache().Categories()
	assert.False(t, primed)
	assert.Empty(t, te.Cache().PendingCategories())

	// Once reads catch up the next run accepts the current contents.
	store.Settle()
	store.Put(cloud.RecordCategory, cloud.EncodeCategory(category("x1", "Pets", false).Remote()))
	rep, err = te.Run(ctx, ModePull)
	require.NoError(t, err)
	assert.Zero(t, rep.Categories.Created+rep.Categories.Updated)
	assert.Equal(t, 1, rep.Categories.Pulled)
	assert.Equal(t, []string{"c1", "x1"}, local.ids())
}

func TestEngine_EntityFailureContinues(t *testing.T) {
	store := memory.New()
	store.FailWrites("l1", cloud.NewError("create", cloud.KindNetwork, cloud.RecordCategory, "l1", errors.New("timeout")))
	local := newFakeLocal(category("l1", "Books", false), category("l2", "Games", false))
	te := newTestEngine(local, store)

	rep, err := te.Run(context.Background(), ModePull)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Categories.Failed)
	require.Len(t, rep.Categories.Errors, 1)
	assert.ErrorIs(t, rep.Categories.Errors[0], cloud.ErrNetwork)
	assert.Equal(t, 1, rep.Categories.Created)

	remote := remoteCategories(t, store)
	assert.NotContains(t, remote, "l1")
	assert.Contains(t, remote, "l2")

	// Once the remote recovers the skipped category is pushed.
	store.FailWrites("l1", nil)
	rep, err = te.Run(context.Background(), ModePull)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Categories.Created)
}

func TestEngine_CorruptLocalStoreAbortsBranch(t *testing.T) {
	store := memory.New()
	store.Put(cloud.RecordCategory, cloud.EncodeCategory(category("r1", "Pets", false).Remote()))
	store.Put(cloud.RecordCategory, cloud.EncodeCategory(category("r2", "Cars", false).Remote()))
	local := newFakeLocal()
	local.createCategoryErr = storage.ErrCorrupt
	te := newTestEngine(local, store)

	rep, err := te.Run(context.Background(), ModePull)
	require.ErrorIs(t, err, storage.ErrCorrupt)
	assert.ErrorIs(t, rep.Categories.Err, storage.ErrCorrupt)
	assert.Zero(t, rep.Categories.Failed, "the branch stops at the first corrupt write")
}

func TestEngine_LocalReadFailure(t *testing.T) {
	store := memory.New()
	local := newFakeLocal()
	local.userErr = storage.ErrCorrupt
	te := newTestEngine(local, store)

	rep, err := te.Run(context.Background(), ModePull)
	require.Error(t, err)
	assert.ErrorIs(t, rep.Users.Err, storage.ErrCorrupt)
	assert.NoError(t, rep.Categories.Err)
}

func TestConverge(t *testing.T) {
	ctx := context.Background()
	netErr := cloud.NewError("query", cloud.KindNetwork, cloud.RecordUser, "", errors.New("reset"))
	authErr := cloud.NewError("query", cloud.KindAuth, cloud.RecordUser, "", nil)

	tests := []struct {
		name      string
		results   []error // per attempt; nil means a snapshot is returned
		matchAt   int     // attempt whose snapshot is consistent, 0 for never
		wantErr   error
		wantCalls int
	}{
		{name: "first snapshot matches", results: []error{nil}, matchAt: 1, wantCalls: 1},
		{name: "matches after retries", results: []error{nil, nil, nil}, matchAt: 3, wantCalls: 3},
		{name: "network error retried", results: []error{netErr, nil}, matchAt: 2, wantCalls: 2},
		{name: "auth error not retried", results: []error{authErr}, wantErr: cloud.ErrAuth, wantCalls: 1},
		{name: "never matches", results: []error{nil, nil, nil}, wantErr: ErrNotConverged, wantCalls: 3},
		{name: "network error exhausts", results: []error{netErr, netErr, netErr}, wantErr: cloud.ErrNetwork, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := newTestEngine(newFakeLocal(), memory.New())
			te.config.MaxConvergeAttempts = 3

			calls := 0
			fetch := func(context.Context) (int, error) {
				calls++
				if err := tt.results[calls-1]; err != nil {
					return 0, err
				}
				return calls, nil
			}
			consistent := func(_ context.Context, _ *int, attempt int) (bool, error) {
				return attempt == tt.matchAt, nil
			}

			got, err := converge(ctx, te.Engine, "test", fetch, consistent)
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.matchAt, got)
		})
	}
}

func TestConverge_PreviousSnapshot(t *testing.T) {
	te := newTestEngine(newFakeLocal(), memory.New())
	snapshots := []string{"a", "b", "b"}
	var seen []string

	calls := 0
	got, err := converge(context.Background(), te.Engine, "test",
		func(context.Context) (string, error) {
			calls++
			return snapshots[calls-1], nil
		},
		func(_ context.Context, prev *string, fresh string) (bool, error) {
			if prev == nil {
				seen = append(seen, "<nil>")
				return false, nil
			}
			seen = append(seen, *prev)
			return *prev == fresh, nil
		})
	require.NoError(t, err)
	assert.Equal(t, "b", got)
	assert.Equal(t, []string{"<nil>", "a", "b"}, seen)
}

func TestConverge_Backoff(t *testing.T) {
	te := newTestEngine(newFakeLocal(), memory.New())
	te.config = EngineConfig{MaxConvergeAttempts: 6, BackoffMin: 10 * time.Millisecond, BackoffMax: 40 * time.Millisecond, ConvergeTimeout: time.Second}

	var waits []time.Duration
	te.Engine.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	_, err := converge(context.Background(), te.Engine, "test",
		func(context.Context) (struct{}, error) { return struct{}{}, nil },
		func(context.Context, *struct{}, struct{}) (bool, error) { return false, nil })
	require.ErrorIs(t, err, ErrNotConverged)

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{10 * ms, 20 * ms, 40 * ms, 40 * ms, 40 * ms}, waits)
}

func TestConverge_Timeout(t *testing.T) {
	te := newTestEngine(newFakeLocal(), memory.New())
	te.config.ConvergeTimeout = 20 * time.Millisecond
	te.config.MaxConvergeAttempts = 1000
	te.Engine.sleep = sleepWithContext

	start := time.Now()
	_, err := converge(context.Background(), te.Engine, "test",
		func(context.Context) (int, error) { return 0, nil },
		func(context.Context, *int, int) (bool, error) { return false, nil })
	require.ErrorIs(t, err, ErrNotConverged)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("push")
	require.NoError(t, err)
	assert.Equal(t, ModePush, m)

	_, err = ParseMode("sideways")
	assert.ErrorIs(t, err, core.ErrInvalidField)
}
