package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL statements used by the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Users

const getUser = `SELECT id, first_name, last_name, avatar, income_cents, updated_at FROM users ORDER BY updated_at LIMIT 1`

func (q *Queries) GetUser(ctx context.Context) (UserRow, error) {
	var u UserRow
	err := q.db.QueryRowContext(ctx, getUser).Scan(&u.ID, &u.FirstName, &u.LastName, &u.Avatar, &u.IncomeCents, &u.UpdatedAt)
	return u, err
}

const countUsers = `SELECT COUNT(*) FROM users`

func (q *Queries) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countUsers).Scan(&n)
	return n, err
}

const createUser = `INSERT INTO users (id, first_name, last_name, avatar, income_cents, updated_at) VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateUser(ctx context.Context, u UserRow) error {
	_, err := q.db.ExecContext(ctx, createUser, u.ID, u.FirstName, u.LastName, u.Avatar, u.IncomeCents, u.UpdatedAt)
	return err
}

const updateUser = `UPDATE users SET first_name = ?, last_name = ?, avatar = ?, income_cents = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateUser(ctx context.Context, u UserRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateUser, u.FirstName, u.LastName, u.Avatar, u.IncomeCents, u.UpdatedAt, u.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Categories

const listCategories = `SELECT id, name, icon, color, is_default, updated_at FROM categories ORDER BY is_default DESC, name`

func (q *Queries) ListCategories(ctx context.Context) ([]CategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CategoryRow
	for rows.Next() {
		var c CategoryRow
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &c.IsDefault, &c.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCategory = `SELECT id, name, icon, color, is_default, updated_at FROM categories WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id string) (CategoryRow, error) {
	var c CategoryRow
	err := q.db.QueryRowContext(ctx, getCategory, id).Scan(&c.ID, &c.Name, &c.Icon, &c.Color, &c.IsDefault, &c.UpdatedAt)
	return c, err
}

const createCategory = `INSERT INTO categories (id, name, icon, color, is_default, updated_at) VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateCategory(ctx context.Context, c CategoryRow) error {
	_, err := q.db.ExecContext(ctx, createCategory, c.ID, c.Name, c.Icon, c.Color, c.IsDefault, c.UpdatedAt)
	return err
}

const insertCategoryIfMissing = `INSERT OR IGNORE INTO categories (id, name, icon, color, is_default, updated_at) VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertCategoryIfMissing(ctx context.Context, c CategoryRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertCategoryIfMissing, c.ID, c.Name, c.Icon, c.Color, c.IsDefault, c.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const updateCategory = `UPDATE categories SET name = ?, icon = ?, color = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateCategory(ctx context.Context, c CategoryRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateCategory, c.Name, c.Icon, c.Color, c.UpdatedAt, c.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteCategory = `DELETE FROM categories WHERE id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Expenses

const createExpense = `INSERT INTO expenses (id, amount_cents, spent_at, title, category_id, updated_at) VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateExpense(ctx context.Context, e ExpenseRow) error {
	_, err := q.db.ExecContext(ctx, createExpense, e.ID, e.AmountCents, e.SpentAt, e.Title, e.CategoryID, e.UpdatedAt)
	return err
}

const getExpense = `SELECT id, amount_cents, spent_at, title, category_id, updated_at FROM expenses WHERE id = ?`

func (q *Queries) GetExpense(ctx context.Context, id string) (ExpenseRow, error) {
	var e ExpenseRow
	err := q.db.QueryRowContext(ctx, getExpense, id).Scan(&e.ID, &e.AmountCents, &e.SpentAt, &e.Title, &e.CategoryID, &e.UpdatedAt)
	return e, err
}

const updateExpense = `UPDATE expenses SET amount_cents = ?, spent_at = ?, title = ?, category_id = ?, updated_at = ? WHERE id = ?`

func (q *Queries) UpdateExpense(ctx context.Context, e ExpenseRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExpense, e.AmountCents, e.SpentAt, e.Title, e.CategoryID, e.UpdatedAt, e.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listExpensesBetween = `
SELECT e.id, e.amount_cents, e.spent_at, e.title, e.category_id, e.updated_at, c.name
FROM expenses e
LEFT JOIN categories c ON c.id = e.category_id
WHERE e.spent_at >= ? AND e.spent_at < ?
ORDER BY e.spent_at DESC, e.id`

func (q *Queries) ListExpensesBetween(ctx context.Context, from, to int64) ([]ExpenseWithCategoryRow, error) {
	rows, err := q.db.QueryContext(ctx, listExpensesBetween, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ExpenseWithCategoryRow
	for rows.Next() {
		var e ExpenseWithCategoryRow
		if err := rows.Scan(&e.ID, &e.AmountCents, &e.SpentAt, &e.Title, &e.CategoryID, &e.UpdatedAt, &e.CategoryName); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getTotalBetween = `SELECT COALESCE(SUM(amount_cents), 0) FROM expenses WHERE spent_at >= ? AND spent_at < ?`

func (q *Queries) GetTotalBetween(ctx context.Context, from, to int64) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, getTotalBetween, from, to).Scan(&total)
	return total, err
}

const getCategorySumsBetween = `
SELECT e.category_id, c.name, SUM(e.amount_cents) AS total
FROM expenses e
LEFT JOIN categories c ON c.id = e.category_id
WHERE e.spent_at >= ? AND e.spent_at < ?
GROUP BY e.category_id
ORDER BY total DESC`

func (q *Queries) GetCategorySumsBetween(ctx context.Context, from, to int64) ([]CategorySumRow, error) {
	rows, err := q.db.QueryContext(ctx, getCategorySumsBetween, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CategorySumRow
	for rows.Next() {
		var s CategorySumRow
		if err := rows.Scan(&s.CategoryID, &s.CategoryName, &s.TotalCents); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Preferences

const getPreference = `SELECT value FROM preferences WHERE key = ?`

func (q *Queries) GetPreference(ctx context.Context, key string) (string, error) {
	var v string
	err := q.db.QueryRowContext(ctx, getPreference, key).Scan(&v)
	return v, err
}

const setPreference = `
INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (q *Queries) SetPreference(ctx context.Context, key, value string, now int64) error {
	_, err := q.db.ExecContext(ctx, setPreference, key, value, now)
	return err
}

// Sync requests

const syncRequestColumns = `id, mode, status, attempts, last_error, next_retry_at, created_at, processed_at`

func scanSyncRequest(scan func(...any) error) (SyncRequest, error) {
	var s SyncRequest
	err := scan(&s.ID, &s.Mode, &s.Status, &s.Attempts, &s.LastError, &s.NextRetryAt, &s.CreatedAt, &s.ProcessedAt)
	return s, err
}

const findPendingSyncRequest = `SELECT ` + syncRequestColumns + ` FROM sync_requests WHERE mode = ? AND status = 'pending' ORDER BY created_at LIMIT 1`

func (q *Queries) FindPendingSyncRequest(ctx context.Context, mode string) (SyncRequest, error) {
	return scanSyncRequest(q.db.QueryRowContext(ctx, findPendingSyncRequest, mode).Scan)
}

const getSyncRequest = `SELECT ` + syncRequestColumns + ` FROM sync_requests WHERE id = ?`

func (q *Queries) GetSyncRequest(ctx context.Context, id string) (SyncRequest, error) {
	return scanSyncRequest(q.db.QueryRowContext(ctx, getSyncRequest, id).Scan)
}

const insertSyncRequest = `INSERT INTO sync_requests (id, mode, status, attempts, created_at) VALUES (?, ?, 'pending', 0, ?)`

func (q *Queries) InsertSyncRequest(ctx context.Context, id, mode string, now int64) error {
	_, err := q.db.ExecContext(ctx, insertSyncRequest, id, mode, now)
	return err
}

const dequeueSyncBatch = `SELECT ` + syncRequestColumns + `
FROM sync_requests
WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= ?)
ORDER BY created_at, id
LIMIT ?`

func (q *Queries) DequeueSyncBatch(ctx context.Context, now, limit int64) ([]SyncRequest, error) {
	rows, err := q.db.QueryContext(ctx, dequeueSyncBatch, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SyncRequest
	for rows.Next() {
		s, err := scanSyncRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setSyncStatus = `UPDATE sync_requests SET status = ?, processed_at = ? WHERE id = ?`

func (q *Queries) SetSyncStatus(ctx context.Context, id, status string, processedAt sql.NullInt64) error {
	_, err := q.db.ExecContext(ctx, setSyncStatus, status, processedAt, id)
	return err
}

const markSyncFailed = `UPDATE sync_requests SET status = 'failed', attempts = attempts + 1, last_error = ?, processed_at = ? WHERE id = ?`

func (q *Queries) MarkSyncFailed(ctx context.Context, id, lastError string, now int64) error {
	_, err := q.db.ExecContext(ctx, markSyncFailed, lastError, now, id)
	return err
}

const incrementSyncAttempt = `UPDATE sync_requests SET status = 'pending', attempts = attempts + 1, last_error = ?, next_retry_at = ? WHERE id = ?`

func (q *Queries) IncrementSyncAttempt(ctx context.Context, id, lastError string, nextRetryAt int64) error {
	_, err := q.db.ExecContext(ctx, incrementSyncAttempt, lastError, nextRetryAt, id)
	return err
}

const cleanupCompletedSyncs = `DELETE FROM sync_requests WHERE status = 'completed' AND processed_at < ?`

func (q *Queries) CleanupCompletedSyncs(ctx context.Context, before int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, cleanupCompletedSyncs, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const retryFailedSyncs = `UPDATE sync_requests SET status = 'pending', attempts = 0, next_retry_at = NULL WHERE status = 'failed'`

func (q *Queries) RetryFailedSyncs(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, retryFailedSyncs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resetStaleProcessing = `UPDATE sync_requests SET status = 'pending' WHERE status = 'processing'`

func (q *Queries) ResetStaleProcessing(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetStaleProcessing)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getSyncQueueStats = `
SELECT
    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM sync_requests`

func (q *Queries) GetSyncQueueStats(ctx context.Context) (SyncRequestStats, error) {
	var s SyncRequestStats
	err := q.db.QueryRowContext(ctx, getSyncQueueStats).Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	return s, err
}
