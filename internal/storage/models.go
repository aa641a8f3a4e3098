package storage

import "database/sql"

// Row types mirror the tables in migrations/. Timestamps are unix seconds.

type UserRow struct {
	ID          string
	FirstName   string
	LastName    string
	Avatar      []byte
	IncomeCents int64
	UpdatedAt   int64
}

type CategoryRow struct {
	ID        string
	Name      string
	Icon      string
	Color     string
	IsDefault bool
	UpdatedAt int64
}

type ExpenseRow struct {
	ID          string
	AmountCents int64
	SpentAt     int64
	Title       string
	CategoryID  string
	UpdatedAt   int64
}

// ExpenseWithCategoryRow is an expense left-joined to its category; CategoryName
// is NULL when the category was deleted.
type ExpenseWithCategoryRow struct {
	ExpenseRow
	CategoryName sql.NullString
}

type CategorySumRow struct {
	CategoryID   string
	CategoryName sql.NullString
	TotalCents   int64
}

type SyncRequest struct {
	ID          string
	Mode        string
	Status      string
	Attempts    int64
	LastError   sql.NullString
	NextRetryAt sql.NullInt64
	CreatedAt   int64
	ProcessedAt sql.NullInt64
}

type SyncRequestStats struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}

const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)
