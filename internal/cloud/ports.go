// Package cloud is the remote side of sync: an untyped key-value record store
// (Store), a typed read gateway (Gateway) and a typed writer (Remote).
package cloud

import "context"

// RecordType names a collection of records in the remote store.
type RecordType string

const (
	RecordUser     RecordType = "User"
	RecordCategory RecordType = "Category"
)

// Field keys used in remote records.
const (
	FieldFirstName   = "firstName"
	FieldLastName    = "lastName"
	FieldAvatar      = "avatar"
	FieldAvatarAsset = "avatarAsset"
	FieldIncome      = "incomeCents"

	FieldName      = "name"
	FieldIcon      = "icon"
	FieldColor     = "color"
	FieldIsDefault = "isDefault"
)

// Record is one remote entry. Field values are string, []byte, int64 or bool.
type Record struct {
	ID     string
	Fields map[string]any
}

// Store is the raw remote record store.
type Store interface {
	// QueryAll returns every record of the given type.
	QueryAll(ctx context.Context, rt RecordType) ([]Record, error)
	// Create adds a record; the id is chosen by the caller.
	Create(ctx context.Context, rt RecordType, rec Record) error
	// Update overwrites only the given fields of an existing record.
	Update(ctx context.Context, rt RecordType, id string, fields map[string]any) error
}

// AssetFetcher dereferences a detached asset pointer into its bytes.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, ref string) ([]byte, error)
}

// Backend is a Store that can also serve detached assets.
type Backend interface {
	Store
	AssetFetcher
}
