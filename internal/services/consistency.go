package services

import (
	"bytes"
	"context"

	"moneta/internal/core"
)

// AvatarSource dereferences a remote user's avatar into bytes.
type AvatarSource interface {
	AvatarBytes(ctx context.Context, u core.RemoteUser) ([]byte, error)
}

// UsersConsistent reports whether the cached and fresh user snapshots match:
// both empty, or the same users with equal id, names and avatar bytes. Avatars
// are compared after resolving detached assets.
func UsersConsistent(ctx context.Context, cached, fresh []core.RemoteUser, avatars AvatarSource) (bool, error) {
	if len(cached) != len(fresh) {
		return false, nil
	}
	byID := make(map[string]core.RemoteUser, len(fresh))
	for _, u := range fresh {
		byID[u.ID] = u
	}
	for _, c := range cached {
		f, ok := byID[c.ID]
		if !ok || c.FirstName != f.FirstName || c.LastName != f.LastName {
			return false, nil
		}
		ca, err := avatars.AvatarBytes(ctx, c)
		if err != nil {
			return false, err
		}
		fa, err := avatars.AvatarBytes(ctx, f)
		if err != nil {
			return false, err
		}
		if !bytes.Equal(ca, fa) {
			return false, nil
		}
	}
	return true, nil
}

// CategoriesConsistent reports whether both snapshots have the same size and
// every cached category has a fresh record with identical fields.
func CategoriesConsistent(cached, fresh []core.RemoteCategory) bool {
	if len(cached) != len(fresh) {
		return false
	}
	byID := make(map[string]core.RemoteCategory, len(fresh))
	for _, c := range fresh {
		byID[c.ID] = c
	}
	for _, c := range cached {
		f, ok := byID[c.ID]
		if !ok || !c.Equal(f) {
			return false
		}
	}
	return true
}

// UsersReflect reports whether every pending write is visible in fresh with
// the written names, income and avatar bytes.
func UsersReflect(ctx context.Context, fresh, pending []core.RemoteUser, avatars AvatarSource) (bool, error) {
	byID := make(map[string]core.RemoteUser, len(fresh))
	for _, u := range fresh {
		byID[u.ID] = u
	}
	for _, p := range pending {
		f, ok := byID[p.ID]
		if !ok || f.FirstName != p.FirstName || f.LastName != p.LastName || f.Income != p.Income {
			return false, nil
		}
		pa, err := avatars.AvatarBytes(ctx, p)
		if err != nil {
			return false, err
		}
		fa, err := avatars.AvatarBytes(ctx, f)
		if err != nil {
			return false, err
		}
		if !bytes.Equal(pa, fa) {
			return false, nil
		}
	}
	return true, nil
}

// CategoriesReflect reports whether every pending write is visible in fresh.
func CategoriesReflect(fresh, pending []core.RemoteCategory) bool {
	byID := make(map[string]core.RemoteCategory, len(fresh))
	for _, c := range fresh {
		byID[c.ID] = c
	}
	for _, p := range pending {
		f, ok := byID[p.ID]
		if !ok || !f.Equal(p) {
			return false
		}
	}
	return true
}

// overlayUsers returns base with writes applied by id.
func overlayUsers(base, writes []core.RemoteUser) []core.RemoteUser {
	out := append([]core.RemoteUser(nil), base...)
next:
	for _, w := range writes {
		for i := range out {
			if out[i].ID == w.ID {
				out[i] = w
				continue next
			}
		}
		out = append(out, w)
	}
	return out
}

// overlayCategories returns base with writes applied by id.
func overlayCategories(base, writes []core.RemoteCategory) []core.RemoteCategory {
	out := append([]core.RemoteCategory(nil), base...)
next:
	for _, w := range writes {
		for i := range out {
			if out[i].ID == w.ID {
				out[i] = w
				continue next
			}
		}
		out = append(out, w)
	}
	return out
}
