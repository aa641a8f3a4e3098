package http

import (
	"net/http"

	"moneta/internal/log"
	"moneta/internal/services"
)

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.expenses.GetUser(r.Context())
	if err != nil {
		writeServiceError(w, r, "get_user", err)
		return
	}
	NewJSONResponse().JSON(toUserJSON(u)).Write(w)
}

// handleUpdateUser edits the profile. An omitted avatar or income keeps the
// stored value.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	u, err := s.expenses.UpdateProfile(r.Context(), services.ProfileInput{
		FirstName: sanitizeInput(req.FirstName),
		LastName:  sanitizeInput(req.LastName),
		Avatar:    req.Avatar,
		Income:    req.Income,
	})
	if err != nil {
		writeServiceError(w, r, "update_user", err)
		return
	}
	NewJSONResponse().JSON(toUserJSON(u)).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.expenses.ListCategories(r.Context())
	if err != nil {
		writeServiceError(w, r, "list_categories", err)
		return
	}
	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryJSON(c))
	}
	NewJSONResponse().JSON(out).Write(w)
}

func decodeCategory(w http.ResponseWriter, r *http.Request) (services.CategoryInput, bool) {
	var req categoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return services.CategoryInput{}, false
	}
	return services.CategoryInput{
		Name:  sanitizeInput(req.Name),
		Icon:  sanitizeInput(req.Icon),
		Color: sanitizeInput(req.Color),
	}, true
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeCategory(w, r)
	if !ok {
		return
	}
	c, err := s.expenses.CreateCategory(r.Context(), in)
	if err != nil {
		writeServiceError(w, r, "create_category", err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/categories/"+c.ID).
		JSON(toCategoryJSON(c)).
		Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeCategory(w, r)
	if !ok {
		return
	}
	c, err := s.expenses.UpdateCategory(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeServiceError(w, r, "update_category", err)
		return
	}
	s.invalidateOverview()
	NewJSONResponse().JSON(toCategoryJSON(c)).Write(w)
}

// handleDeleteCategory removes a custom category. Its expenses stay and show
// up as uncategorized.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.expenses.DeleteCategory(r.Context(), id); err != nil {
		writeServiceError(w, r, "delete_category", err)
		return
	}
	s.invalidateOverview()
	log.FromContext(r.Context()).InfoContext(r.Context(), "Category deleted", log.FieldEntityID, id)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
