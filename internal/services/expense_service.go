package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/storage"
)

// ExpenseStore is the local data the expense service edits.
type ExpenseStore interface {
	LocalStore

	CreateExpense(ctx context.Context, e core.Expense) error
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, id string) error
	ListExpenses(ctx context.Context, year, month int) ([]core.ExpenseView, error)
	ReadMonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error)
}

type (
	// ExpenseInput is an expense as entered by the user. Amount is a decimal string.
	ExpenseInput struct {
		Amount     string
		At         time.Time
		Title      string
		CategoryID string
	}

	CategoryInput struct {
		Name  string
		Icon  string
		Color string
	}

	// ProfileInput edits the local user. Income is a decimal string; empty
	// keeps the current value. A nil Avatar keeps the current avatar.
	ProfileInput struct {
		FirstName string
		LastName  string
		Avatar    []byte
		Income    string
	}
)

// ExpenseService validates user input and applies it to the local store.
// Nothing here talks to the cloud: categories and the profile reach it through
// the sync engine.
type ExpenseService struct {
	storage ExpenseStore
	logger  *log.Logger
}

func NewExpenseService(storage ExpenseStore) *ExpenseService {
	return &ExpenseService{
		storage: storage,
		logger:  log.Default(log.ComponentExpense),
	}
}

func validMonth(year, month int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", core.ErrInvalidField, month)
	}
	if year < 1 {
		return fmt.Errorf("%w: year %d", core.ErrInvalidField, year)
	}
	return nil
}

func (s *ExpenseService) buildExpense(ctx context.Context, id string, in ExpenseInput) (core.Expense, error) {
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	if _, err := s.storage.GetCategory(ctx, in.CategoryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return core.Expense{}, fmt.Errorf("%w: unknown category %q", core.ErrInvalidField, in.CategoryID)
		}
		return core.Expense{}, err
	}
	return core.NewExpense(id, amount, in.At, in.Title, in.CategoryID)
}

// CreateExpense saves a new expense locally
func (s *ExpenseService) CreateExpense(ctx context.Context, in ExpenseInput) (core.Expense, error) {
	e, err := s.buildExpense(ctx, "", in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	if err := s.storage.CreateExpense(ctx, e); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func (s *ExpenseService) UpdateExpense(ctx context.Context, id string, in ExpenseInput) (core.Expense, error) {
	if _, err := s.storage.GetExpense(ctx, id); err != nil {
		return core.Expense{}, err
	}
	e, err := s.buildExpense(ctx, id, in)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	if err := s.storage.UpdateExpense(ctx, e); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) error {
	return s.storage.DeleteExpense(ctx, id)
}

func (s *ExpenseService) ListExpenses(ctx context.Context, year, month int) ([]core.ExpenseView, error) {
	if err := validMonth(year, month); err != nil {
		return nil, err
	}
	return s.storage.ListExpenses(ctx, year, month)
}

func (s *ExpenseService) ReadMonthOverview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	if err := validMonth(year, month); err != nil {
		return core.MonthOverview{}, err
	}
	return s.storage.ReadMonthOverview(ctx, year, month)
}

// Categories

func (s *ExpenseService) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.storage.ListCategories(ctx)
}

// CreateCategory adds a custom category with a fresh id.
func (s *ExpenseService) CreateCategory(ctx context.Context, in CategoryInput) (core.Category, error) {
	c, err := core.NewCategory(core.NewID(), in.Name, in.Icon, in.Color, false)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	if err := s.storage.CreateCategory(ctx, c); err != nil {
		return core.Category{}, err
	}
	s.logger.InfoContext(ctx, "Category created", log.FieldEntityID, c.ID, "name", c.Name)
	return c, nil
}

// UpdateCategory edits a custom category. Defaults are immutable.
func (s *ExpenseService) UpdateCategory(ctx context.Context, id string, in CategoryInput) (core.Category, error) {
	c, err := core.NewCategory(id, in.Name, in.Icon, in.Color, false)
	if err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	if err := s.storage.UpdateCategory(ctx, c); err != nil {
		return core.Category{}, err
	}
	return c, nil
}

func (s *ExpenseService) DeleteCategory(ctx context.Context, id string) error {
	return s.storage.DeleteCategory(ctx, id)
}

// Profile

func (s *ExpenseService) GetUser(ctx context.Context) (core.User, error) {
	return s.storage.GetUser(ctx)
}

func (s *ExpenseService) UpdateProfile(ctx context.Context, in ProfileInput) (core.User, error) {
	current, err := s.storage.GetUser(ctx)
	if err != nil {
		return core.User{}, err
	}
	income := current.Income
	if strings.TrimSpace(in.Income) != "" {
		if income, err = core.ParseAmount(in.Income); err != nil {
			return core.User{}, fmt.Errorf("update profile: %w", err)
		}
	}
	avatar := current.Avatar
	if in.Avatar != nil {
		avatar = in.Avatar
	}
	u, err := core.NewUser(current.ID, in.FirstName, in.LastName, avatar, income)
	if err != nil {
		return core.User{}, fmt.Errorf("update profile: %w", err)
	}
	if err := s.storage.UpdateUser(ctx, u); err != nil {
		return core.User{}, err
	}
	return u, nil
}
