package services

import (
	"context"

	"moneta/internal/core"
)

// Ports consumed by the sync engine. storage.SQLiteRepository, cloud.Gateway
// and cloud.Remote satisfy them in production.
type (
	LocalStore interface {
		GetUser(ctx context.Context) (core.User, error)
		CreateUser(ctx context.Context, u core.User) error
		UpdateUser(ctx context.Context, u core.User) error

		ListCategories(ctx context.Context) ([]core.Category, error)
		GetCategory(ctx context.Context, id string) (core.Category, error)
		CreateCategory(ctx context.Context, c core.Category) error
		UpdateCategory(ctx context.Context, c core.Category) error
		DeleteCategory(ctx context.Context, id string) error
	}

	// RemoteReader returns typed snapshots of the remote mirror.
	RemoteReader interface {
		FetchUsers(ctx context.Context) ([]core.RemoteUser, error)
		FetchCategories(ctx context.Context) ([]core.RemoteCategory, error)
	}

	RemoteWriter interface {
		CreateUser(ctx context.Context, u core.RemoteUser) error
		UpdateUser(ctx context.Context, u core.RemoteUser) error
		CreateCategory(ctx context.Context, c core.RemoteCategory) error
		UpdateCategory(ctx context.Context, c core.RemoteCategory) error
		// AvatarBytes resolves inline or detached avatar storage.
		AvatarBytes(ctx context.Context, u core.RemoteUser) ([]byte, error)
	}
)
