package http

import (
	"net/http"

	"moneta/internal/log"
	"moneta/internal/services"
)

func (s *Server) decodeExpense(w http.ResponseWriter, r *http.Request) (services.ExpenseInput, bool) {
	var req expenseRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return services.ExpenseInput{}, false
	}
	at, err := ParseDate(req.Date)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return services.ExpenseInput{}, false
	}
	return services.ExpenseInput{
		Amount:     req.Amount,
		At:         at,
		Title:      sanitizeInput(req.Title),
		CategoryID: sanitizeInput(req.CategoryID),
	}, true
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	p := ParseMonthParams(r.URL.Query(), s.now())
	items, err := s.expenses.ListExpenses(r.Context(), p.Year, p.Month)
	if err != nil {
		writeServiceError(w, r, "list_expenses", err)
		return
	}

	out := make([]expenseJSON, 0, len(items))
	for _, v := range items {
		out = append(out, toExpenseJSON(v.Expense, v.CategoryName))
	}
	NewJSONResponse().JSON(out).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeExpense(w, r)
	if !ok {
		return
	}
	e, err := s.expenses.CreateExpense(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, "create_expense", err)
		return
	}
	s.invalidateOverview()

	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense created",
		log.FieldEntityID, e.ID,
		"amount_cents", e.Amount.Cents,
		"category_id", e.CategoryID)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+e.ID).
		JSON(toExpenseJSON(e, "")).
		Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeExpense(w, r)
	if !ok {
		return
	}
	e, err := s.expenses.UpdateExpense(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, "update_expense", err)
		return
	}
	s.invalidateOverview()
	NewJSONResponse().JSON(toExpenseJSON(e, "")).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.expenses.DeleteExpense(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete_expense", err)
		return
	}
	s.invalidateOverview()
	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted", log.FieldEntityID, id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleMonthOverview returns totals per category for one month.
func (s *Server) handleMonthOverview(w http.ResponseWriter, r *http.Request) {
	p := ParseMonthParams(r.URL.Query(), s.now())
	ov, err := s.getOverview(r.Context(), p.Year, p.Month)
	if err != nil {
		writeServiceError(w, r, "month_overview", err)
		return
	}
	NewJSONResponse().JSON(toOverviewJSON(ov)).Write(w)
}
