package http

import (
	"time"

	"moneta/internal/core"
	"moneta/internal/services"
	"moneta/internal/storage"
)

const dateLayout = "2006-01-02"

// Amounts are exchanged as decimal strings ("12.50") next to integer cents.

type expenseJSON struct {
	ID           string `json:"id"`
	Amount       string `json:"amount"`
	AmountCents  int64  `json:"amount_cents"`
	Date         string `json:"date"`
	Title        string `json:"title"`
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name,omitempty"`
}

type expenseRequest struct {
	Amount     string `json:"amount"`
	Date       string `json:"date"`
	Title      string `json:"title"`
	CategoryID string `json:"category_id"`
}

type categoryJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	IsDefault bool   `json:"is_default"`
}

type categoryRequest struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// userJSON carries the avatar base64-encoded.
type userJSON struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    []byte `json:"avatar,omitempty"`
	Income    string `json:"income"`
	Syncable  bool   `json:"syncable"`
}

type profileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    []byte `json:"avatar"`
	Income    string `json:"income"`
}

type categoryAmountJSON struct {
	CategoryID  string `json:"category_id"`
	Name        string `json:"name"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
}

type overviewJSON struct {
	Year       int                  `json:"year"`
	Month      int                  `json:"month"`
	Total      string               `json:"total"`
	TotalCents int64                `json:"total_cents"`
	ByCategory []categoryAmountJSON `json:"by_category"`
}

type syncSettingsJSON struct {
	Enabled   bool   `json:"enabled"`
	RequestID string `json:"request_id,omitempty"`
}

type syncSettingsRequest struct {
	Enabled *bool `json:"enabled"`
}

type syncRequest struct {
	Mode string `json:"mode"`
}

type syncQueuedJSON struct {
	RequestID string `json:"request_id"`
	Mode      string `json:"mode"`
}

type branchJSON struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Pulled  int      `json:"pulled"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

type reportJSON struct {
	Mode       string     `json:"mode"`
	StartedAt  time.Time  `json:"started_at"`
	DurationMs int64      `json:"duration_ms"`
	Users      branchJSON `json:"users"`
	Categories branchJSON `json:"categories"`
}

type queueJSON struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

type syncStatusJSON struct {
	Enabled    bool        `json:"enabled"`
	Queue      queueJSON   `json:"queue"`
	LastReport *reportJSON `json:"last_report,omitempty"`
}

func toExpenseJSON(e core.Expense, categoryName string) expenseJSON {
	return expenseJSON{
		ID:           e.ID,
		Amount:       e.Amount.String(),
		AmountCents:  e.Amount.Cents,
		Date:         e.At.UTC().Format(dateLayout),
		Title:        e.Title,
		CategoryID:   e.CategoryID,
		CategoryName: categoryName,
	}
}

func toCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{ID: c.ID, Name: c.Name, Icon: c.Icon, Color: c.Color, IsDefault: c.IsDefault}
}

func toUserJSON(u core.User) userJSON {
	return userJSON{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Avatar:    u.Avatar,
		Income:    u.Income.String(),
		Syncable:  u.Syncable(),
	}
}

func toOverviewJSON(ov core.MonthOverview) overviewJSON {
	out := overviewJSON{
		Year:       ov.Year,
		Month:      ov.Month,
		Total:      ov.Total.String(),
		TotalCents: ov.Total.Cents,
		ByCategory: make([]categoryAmountJSON, 0, len(ov.ByCategory)),
	}
	for _, c := range ov.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryAmountJSON{
			CategoryID:  c.CategoryID,
			Name:        c.Name,
			Amount:      c.Amount.String(),
			AmountCents: c.Amount.Cents,
		})
	}
	return out
}

func toBranchJSON(b services.BranchReport) branchJSON {
	out := branchJSON{
		Created: b.Created,
		Updated: b.Updated,
		Pulled:  b.Pulled,
		Skipped: b.Skipped,
		Failed:  b.Failed,
	}
	if b.Err != nil {
		out.Error = b.Err.Error()
	}
	for _, err := range b.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

func toReportJSON(r services.Report) *reportJSON {
	return &reportJSON{
		Mode:       string(r.Mode),
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
		Users:      toBranchJSON(r.Users),
		Categories: toBranchJSON(r.Categories),
	}
}

func toQueueJSON(s storage.SyncRequestStats) queueJSON {
	return queueJSON{Pending: s.Pending, Processing: s.Processing, Completed: s.Completed, Failed: s.Failed}
}
