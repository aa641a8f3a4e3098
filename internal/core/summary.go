package core

import "time"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	CategoryID string
	Name       string
	Amount     Money
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int
	Month      int // 1-12
	Total      Money
	ByCategory []CategoryAmount
}

// ExpenseView is an expense joined with the name of its category, falling back
// to UncategorizedName when the reference is dangling.
type ExpenseView struct {
	Expense
	CategoryName string
}

// MonthBounds returns the half-open [start, end) interval covering the month in UTC.
func MonthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
