package http

import (
	"errors"
	"net/http"

	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/services"
	"moneta/internal/storage"
)

// writeServiceError maps domain and storage errors to HTTP responses.
// Unexpected errors are logged and reported without details.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidField),
		errors.Is(err, core.ErrMissingRequiredField):
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, storage.ErrNotFound):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, storage.ErrImmutable):
		ConflictError("immutable", err.Error()).Write(w)
	case errors.Is(err, storage.ErrConflict):
		ConflictError("conflict", err.Error()).Write(w)
	case errors.Is(err, services.ErrSyncDisabled):
		ConflictError("sync_disabled", err.Error()).Write(w)
	default:
		ctx := r.Context()
		fields := log.NewFields().WithOperation(op).WithError(err).WithErrorType(errorType(err))
		log.FromContext(ctx).ErrorContext(ctx, "Request failed", fields.ToSlice()...)
		InternalServerError("internal error").Write(w)
	}
}

func errorType(err error) string {
	if errors.Is(err, storage.ErrCorrupt) {
		return log.ErrorTypeDatabase
	}
	return log.ErrorTypeInternal
}
