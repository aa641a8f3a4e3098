package services

import (
	"context"
	"fmt"

	"moneta/internal/core"
	"moneta/internal/log"
)

// syncCategories reconciles custom categories in two passes. Local values win
// for ids present on both sides; remote-only ids are pulled. Default
// categories are never written on either side.
func (e *Engine) syncCategories(ctx context.Context) BranchReport {
	var rep BranchReport

	remotes, err := converge(ctx, e, entityCategory, e.reader.FetchCategories,
		func(_ context.Context, prev *[]core.RemoteCategory, fresh []core.RemoteCategory) (bool, error) {
			pending := e.cache.PendingCategories()
			if !CategoriesReflect(fresh, pending) {
				return false, nil
			}
			return prev == nil || CategoriesConsistent(overlayCategories(*prev, pending), fresh), nil
		})
	if err != nil {
		e.cache.InvalidateCategories()
		rep.Err = err
		e.step(ctx, log.OpConverge, entityCategory, "", "", err)
		return rep
	}
	e.cache.SetCategories(remotes)

	locals, err := e.local.ListCategories(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("list local categories: %w", err)
		e.step(ctx, log.OpFetch, entityCategory, "", "", rep.Err)
		return rep
	}

	remoteByID := make(map[string]core.RemoteCategory, len(remotes))
	for _, r := range remotes {
		remoteByID[r.ID] = r
	}
	localIDs := make(map[string]struct{}, len(locals))
	for _, l := range locals {
		localIDs[l.ID] = struct{}{}
	}

	for _, l := range locals {
		e.pushCategory(ctx, l, remoteByID, &rep)
	}
	for _, r := range remotes {
		if rep.Err != nil {
			break
		}
		if r.IsDefault {
			rep.Skipped++
			continue
		}
		if _, ok := localIDs[r.ID]; ok {
			continue
		}
		e.pullCategory(ctx, r, &rep)
	}
	return rep
}

func (e *Engine) pushCategory(ctx context.Context, l core.Category, remoteByID map[string]core.RemoteCategory, rep *BranchReport) {
	if l.IsDefault {
		rep.Skipped++
		return
	}

	r, ok := remoteByID[l.ID]
	if !ok {
		want := l.Remote()
		if err := e.writer.CreateCategory(ctx, want); err != nil {
			rep.fail(err)
			e.step(ctx, log.OpCreate, entityCategory, l.ID, log.DirectionPush, err)
			return
		}
		e.cache.PutCategory(want)
		rep.Created++
		e.step(ctx, log.OpCreate, entityCategory, l.ID, log.DirectionPush, nil)
		return
	}

	if r.IsDefault {
		rep.Skipped++
		e.step(ctx, log.OpSkip, entityCategory, l.ID, log.DirectionPush, nil)
		return
	}
	if l.SameFields(r) {
		return
	}

	want := r
	want.Name, want.Icon, want.Color = l.Name, l.Icon, l.Color
	if err := e.writer.UpdateCategory(ctx, want); err != nil {
		rep.fail(err)
		e.step(ctx, log.OpUpdate, entityCategory, l.ID, log.DirectionPush, err)
		return
	}
	e.cache.PutCategory(want)
	rep.Updated++
	e.step(ctx, log.OpUpdate, entityCategory, l.ID, log.DirectionPush, nil)
}

func (e *Engine) pullCategory(ctx context.Context, r core.RemoteCategory, rep *BranchReport) {
	if err := e.local.CreateCategory(ctx, r.Local()); err != nil {
		e.entityFailed(rep, err)
		e.step(ctx, log.OpCreate, entityCategory, r.ID, log.DirectionPull, err)
		return
	}
	rep.Pulled++
	e.step(ctx, log.OpCreate, entityCategory, r.ID, log.DirectionPull, nil)
}
