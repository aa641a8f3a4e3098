package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"moneta/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a row with the same identity already exists.
	ErrConflict = errors.New("already exists")
	// ErrImmutable is returned when a seeded default category would be changed.
	ErrImmutable = errors.New("default categories cannot be modified")
	// ErrCorrupt marks an unusable database file. It is the only storage error
	// the sync engine treats as fatal.
	ErrCorrupt = errors.New("database corrupt")
)

const prefSyncEnabled = "sync_enabled"

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	path    string

	// mu serialises writes; SQLite allows a single writer.
	mu  sync.Mutex
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", classify(err))
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", classify(err))
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		path:    dbPath,
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Path returns the database file backing the repository.
func (r *SQLiteRepository) Path() string {
	return r.path
}

// classify maps driver errors onto the package sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		case sqlite3.SQLITE_CONSTRAINT:
			if se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
				return fmt.Errorf("%w: %v", ErrConflict, err)
			}
		}
	}
	return err
}

func affected(n int64, err error) error {
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

// User

func userFromRow(u UserRow) core.User {
	return core.User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
		Income:    core.Money{Cents: u.IncomeCents},
	}
}

func (r *SQLiteRepository) userRow(u core.User) UserRow {
	return UserRow{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Avatar:      u.Avatar,
		IncomeCents: u.Income.Cents,
		UpdatedAt:   r.now().Unix(),
	}
}

// GetUser returns the single local user or ErrNotFound.
func (r *SQLiteRepository) GetUser(ctx context.Context) (core.User, error) {
	row, err := r.queries.GetUser(ctx)
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", classify(err))
	}
	return userFromRow(row), nil
}

// CreateUser inserts the local user. At most one user may exist.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.inTx(ctx, func(q *Queries) error {
		n, err := q.CountUsers(ctx)
		if err != nil {
			return classify(err)
		}
		if n > 0 {
			return ErrConflict
		}
		return classify(q.CreateUser(ctx, r.userRow(u)))
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	slog.InfoContext(ctx, "User created", "user_id", u.ID)
	return nil
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, u core.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := affected(r.queries.UpdateUser(ctx, r.userRow(u))); err != nil {
		return fmt.Errorf("update user %s: %w", u.ID, err)
	}
	return nil
}

// Categories

func categoryFromRow(c CategoryRow) core.Category {
	return core.Category{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color, IsDefault: c.IsDefault}
}

func (r *SQLiteRepository) categoryRow(c core.Category) CategoryRow {
	return CategoryRow{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color, IsDefault: c.IsDefault, UpdatedAt: r.now().Unix()}
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", classify(err))
	}
	out := make([]core.Category, len(rows))
	for i, row := range rows {
		out[i] = categoryFromRow(row)
	}
	return out, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (core.Category, error) {
	row, err := r.queries.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %s: %w", id, classify(err))
	}
	return categoryFromRow(row), nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.queries.CreateCategory(ctx, r.categoryRow(c)); err != nil {
		return fmt.Errorf("create category %s: %w", c.ID, classify(err))
	}
	return nil
}

// UpdateCategory rewrites name, icon and color. Defaults are rejected.
func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.inTx(ctx, func(q *Queries) error {
		existing, err := q.GetCategory(ctx, c.ID)
		if err != nil {
			return classify(err)
		}
		if existing.IsDefault {
			return ErrImmutable
		}
		return affected(q.UpdateCategory(ctx, r.categoryRow(c)))
	})
	if err != nil {
		return fmt.Errorf("update category %s: %w", c.ID, err)
	}
	return nil
}

// DeleteCategory removes a custom category. Expenses referencing it are kept.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.inTx(ctx, func(q *Queries) error {
		existing, err := q.GetCategory(ctx, id)
		if err != nil {
			return classify(err)
		}
		if existing.IsDefault {
			return ErrImmutable
		}
		return affected(q.DeleteCategory(ctx, id))
	})
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	return nil
}

// Expenses

func expenseFromRow(e ExpenseRow) core.Expense {
	return core.Expense{
		ID:         e.ID,
		Amount:     core.Money{Cents: e.AmountCents},
		At:         time.Unix(e.SpentAt, 0).UTC(),
		Title:      e.Title,
		CategoryID: e.CategoryID,
	}
}

func (r *SQLiteRepository) expenseRow(e core.Expense) ExpenseRow {
	return ExpenseRow{
		ID:          e.ID,
		AmountCents: e.Amount.Cents,
		SpentAt:     e.At.Unix(),
		Title:       e.Title,
		CategoryID:  e.CategoryID,
		UpdatedAt:   r.now().Unix(),
	}
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.queries.CreateExpense(ctx, r.expenseRow(e)); err != nil {
		return fmt.Errorf("create expense: %w", classify(err))
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"title", e.Title,
		"amount_cents", e.Amount.Cents,
		"category_id", e.CategoryID)
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %s: %w", id, classify(err))
	}
	return expenseFromRow(row), nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := affected(r.queries.UpdateExpense(ctx, r.expenseRow(e))); err != nil {
		return fmt.Errorf("update expense %s: %w", e.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := affected(r.queries.DeleteExpense(ctx, id)); err != nil {
		return fmt.Errorf("delete expense %s: %w", id, err)
	}
	slog.InfoContext(ctx, "Expense deleted", "id", id)
	return nil
}

func categoryName(n sql.NullString) string {
	if n.Valid {
		return n.String
	}
	return core.UncategorizedName
}

// ListExpenses returns the month's expenses, newest first. Expenses whose
// category no longer exists are named core.UncategorizedName.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, year, month int) ([]core.ExpenseView, error) {
	start, end := core.MonthBounds(year, month)
	rows, err := r.queries.ListExpensesBetween(ctx, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", classify(err))
	}

	out := make([]core.ExpenseView, len(rows))
	for i, row := range rows {
		out[i] = core.ExpenseView{
			Expense:      expenseFromRow(row.ExpenseRow),
			CategoryName: categoryName(row.CategoryName),
		}
	}
	return out, nil
}

func (r *SQLiteRepository) ReadMonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	overview := core.MonthOverview{Year: year, Month: month}
	start, end := core.MonthBounds(year, month)

	total, err := r.queries.GetTotalBetween(ctx, start.Unix(), end.Unix())
	if err != nil {
		return overview, fmt.Errorf("get month total: %w", classify(err))
	}
	overview.Total = core.Money{Cents: total}

	sums, err := r.queries.GetCategorySumsBetween(ctx, start.Unix(), end.Unix())
	if err != nil {
		return overview, fmt.Errorf("get category sums: %w", classify(err))
	}
	for _, s := range sums {
		overview.ByCategory = append(overview.ByCategory, core.CategoryAmount{
			CategoryID: s.CategoryID,
			Name:       categoryName(s.CategoryName),
			Amount:     core.Money{Cents: s.TotalCents},
		})
	}
	return overview, nil
}

// Preferences

// SyncEnabled reports the sync preference; it defaults to false.
func (r *SQLiteRepository) SyncEnabled(ctx context.Context) (bool, error) {
	v, err := r.queries.GetPreference(ctx, prefSyncEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get sync preference: %w", classify(err))
	}
	return v == "true", nil
}

func (r *SQLiteRepository) SetSyncEnabled(ctx context.Context, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := "false"
	if enabled {
		v = "true"
	}
	if err := r.queries.SetPreference(ctx, prefSyncEnabled, v, r.now().Unix()); err != nil {
		return fmt.Errorf("set sync preference: %w", classify(err))
	}
	return nil
}
