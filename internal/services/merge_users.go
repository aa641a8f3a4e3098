package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/storage"
)

const (
	entityUser     = "user"
	entityCategory = "category"
)

// step logs one create, update or skip decision of the merge.
func (e *Engine) step(ctx context.Context, op, entity, id, direction string, err error) {
	fields := log.NewFields().WithOperation(op).WithEntity(entity, id, direction)
	if err == nil {
		e.logger.InfoContext(ctx, "Sync step", fields.ToSlice()...)
		return
	}
	fields.WithError(err).WithErrorType(errorType(err))
	e.logger.WarnContext(ctx, "Sync step failed", fields.ToSlice()...)
}

func (e *Engine) syncUser(ctx context.Context, mode Mode) BranchReport {
	var rep BranchReport

	remotes, err := converge(ctx, e, entityUser, e.reader.FetchUsers,
		func(ctx context.Context, prev *[]core.RemoteUser, fresh []core.RemoteUser) (bool, error) {
			pending := e.cache.PendingUsers()
			ok, err := UsersReflect(ctx, fresh, pending, e.writer)
			if err != nil || !ok || prev == nil {
				return ok, err
			}
			return UsersConsistent(ctx, overlayUsers(*prev, pending), fresh, e.writer)
		})
	if err != nil {
		e.cache.InvalidateUsers()
		rep.Err = err
		e.step(ctx, log.OpConverge, entityUser, "", "", err)
		return rep
	}
	e.cache.SetUsers(remotes)

	local, hasLocal, err := e.localUser(ctx)
	if err != nil {
		rep.Err = err
		e.step(ctx, log.OpFetch, entityUser, "", "", err)
		return rep
	}

	if len(remotes) == 0 {
		if !hasLocal {
			return rep
		}
		e.createRemoteUser(ctx, local, &rep)
		return rep
	}
	if len(remotes) > 1 {
		e.logger.WarnContext(ctx, "Multiple remote users, using the first", "count", len(remotes))
	}
	remote := remotes[0]

	if mode == ModePush {
		if hasLocal {
			e.pushUser(ctx, local, remote, &rep)
		}
		return rep
	}
	e.pullUser(ctx, local, hasLocal, remote, &rep)
	return rep
}

// localUser returns the local user, or false when none exists.
func (e *Engine) localUser(ctx context.Context) (core.User, bool, error) {
	u, err := e.local.GetUser(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return core.User{}, false, nil
	}
	if err != nil {
		return core.User{}, false, fmt.Errorf("read local user: %w", err)
	}
	return u, true, nil
}

// createRemoteUser mirrors the local user when it has everything a remote
// record requires.
func (e *Engine) createRemoteUser(ctx context.Context, local core.User, rep *BranchReport) {
	if !local.Syncable() {
		rep.Skipped++
		e.step(ctx, log.OpSkip, entityUser, local.ID, log.DirectionPush,
			fmt.Errorf("%w: local user needs id, names and avatar", core.ErrMissingRequiredField))
		return
	}
	ru := local.Remote()
	if err := e.writer.CreateUser(ctx, ru); err != nil {
		rep.fail(err)
		e.step(ctx, log.OpCreate, entityUser, ru.ID, log.DirectionPush, err)
		return
	}
	e.cache.PutUser(ru)
	rep.Created++
	e.step(ctx, log.OpCreate, entityUser, ru.ID, log.DirectionPush, nil)
}

// pullUser overwrites the local names and avatar with the remote ones. A
// missing local user takes the remote id and income.
func (e *Engine) pullUser(ctx context.Context, local core.User, hasLocal bool, remote core.RemoteUser, rep *BranchReport) {
	avatar, err := e.writer.AvatarBytes(ctx, remote)
	if err != nil {
		rep.fail(err)
		e.step(ctx, log.OpFetch, entityUser, remote.ID, log.DirectionPull, err)
		return
	}

	if !hasLocal {
		u, err := core.NewUser(remote.ID, remote.FirstName, remote.LastName, avatar, remote.Income)
		if err == nil {
			err = e.local.CreateUser(ctx, u)
		}
		if err != nil {
			e.entityFailed(rep, err)
			e.step(ctx, log.OpCreate, entityUser, remote.ID, log.DirectionPull, err)
			return
		}
		rep.Pulled++
		e.step(ctx, log.OpCreate, entityUser, remote.ID, log.DirectionPull, nil)
		return
	}

	if local.FirstName == remote.FirstName && local.LastName == remote.LastName && bytes.Equal(local.Avatar, avatar) {
		return
	}
	local.FirstName = remote.FirstName
	local.LastName = remote.LastName
	local.Avatar = avatar
	if err := e.local.UpdateUser(ctx, local); err != nil {
		e.entityFailed(rep, err)
		e.step(ctx, log.OpUpdate, entityUser, local.ID, log.DirectionPull, err)
		return
	}
	rep.Pulled++
	e.step(ctx, log.OpUpdate, entityUser, local.ID, log.DirectionPull, nil)
}

// pushUser overwrites the remote record with the local profile. The remote
// id is kept.
func (e *Engine) pushUser(ctx context.Context, local core.User, remote core.RemoteUser, rep *BranchReport) {
	if !local.Syncable() {
		rep.Skipped++
		e.step(ctx, log.OpSkip, entityUser, local.ID, log.DirectionPush,
			fmt.Errorf("%w: local user needs id, names and avatar", core.ErrMissingRequiredField))
		return
	}
	current, err := e.writer.AvatarBytes(ctx, remote)
	if err != nil {
		rep.fail(err)
		e.step(ctx, log.OpFetch, entityUser, remote.ID, log.DirectionPush, err)
		return
	}

	want := local.Remote()
	want.ID = remote.ID
	if want.FirstName == remote.FirstName && want.LastName == remote.LastName &&
		want.Income == remote.Income && bytes.Equal(want.Avatar, current) {
		return
	}
	if err := e.writer.UpdateUser(ctx, want); err != nil {
		rep.fail(err)
		e.step(ctx, log.OpUpdate, entityUser, want.ID, log.DirectionPush, err)
		return
	}
	e.cache.PutUser(want)
	rep.Updated++
	e.step(ctx, log.OpUpdate, entityUser, want.ID, log.DirectionPush, nil)
}

// entityFailed records a local write failure. A corrupt store aborts the branch.
func (e *Engine) entityFailed(rep *BranchReport, err error) {
	if fatal(err) {
		rep.Err = err
		return
	}
	rep.fail(err)
}
