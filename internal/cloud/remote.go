package cloud

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"moneta/internal/cache"
	"moneta/internal/core"
)

// Remote writes typed entities to the store and resolves detached avatars.
type Remote struct {
	store  Store
	assets AssetFetcher
	cache  *cache.LRUCache[[]byte]
}

// Avatar cache sizing. Assets are immutable per reference.
const (
	avatarCacheSize = 16
	avatarCacheTTL  = time.Hour
)

// NewRemote builds a writer over store. assets may be nil when the backend
// never produces detached avatars.
func NewRemote(store Store, assets AssetFetcher) *Remote {
	return &Remote{
		store:  store,
		assets: assets,
		cache:  cache.NewLRUCache[[]byte](avatarCacheSize, avatarCacheTTL),
	}
}

// AvatarCache exposes the asset cache so it can be registered for cleanup.
func (r *Remote) AvatarCache() *cache.LRUCache[[]byte] {
	return r.cache
}

func (r *Remote) CreateUser(ctx context.Context, u core.RemoteUser) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("create remote user: %w", err)
	}
	if err := r.store.Create(ctx, RecordUser, EncodeUser(u)); err != nil {
		return fmt.Errorf("create remote user %s: %w", u.ID, err)
	}
	return nil
}

// UpdateUser overwrites first name, last name, avatar and income.
func (r *Remote) UpdateUser(ctx context.Context, u core.RemoteUser) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("update remote user: %w", err)
	}
	if err := r.store.Update(ctx, RecordUser, u.ID, UserFields(u)); err != nil {
		return fmt.Errorf("update remote user %s: %w", u.ID, err)
	}
	return nil
}

func (r *Remote) CreateCategory(ctx context.Context, c core.RemoteCategory) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("create remote category: %w", err)
	}
	if err := r.store.Create(ctx, RecordCategory, EncodeCategory(c)); err != nil {
		return fmt.Errorf("create remote category %s: %w", c.ID, err)
	}
	return nil
}

// UpdateCategory overwrites name, icon and color.
func (r *Remote) UpdateCategory(ctx context.Context, c core.RemoteCategory) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("update remote category: %w", err)
	}
	if err := r.store.Update(ctx, RecordCategory, c.ID, CategoryFields(c)); err != nil {
		return fmt.Errorf("update remote category %s: %w", c.ID, err)
	}
	return nil
}

// AvatarBytes returns the user's avatar, fetching a detached asset if needed.
func (r *Remote) AvatarBytes(ctx context.Context, u core.RemoteUser) ([]byte, error) {
	if !u.HasDetachedAvatar() {
		return u.Avatar, nil
	}
	if r.assets == nil {
		return nil, NewError("fetch asset", KindNotFound, RecordUser, u.ID, fmt.Errorf("no asset fetcher for %q", u.AvatarAsset))
	}
	b, err := r.cache.GetOrLoad(ctx, u.AvatarAsset, func(ctx context.Context) ([]byte, error) {
		return r.assets.FetchAsset(ctx, u.AvatarAsset)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch avatar for user %s: %w", u.ID, err)
	}
	return bytes.Clone(b), nil
}

// ResolveAvatar returns u with its avatar bytes inlined.
func (r *Remote) ResolveAvatar(ctx context.Context, u core.RemoteUser) (core.RemoteUser, error) {
	b, err := r.AvatarBytes(ctx, u)
	if err != nil {
		return u, err
	}
	u.Avatar = b
	return u, nil
}
