package http

import (
	"net/http"

	"moneta/internal/log"
	"moneta/internal/services"
)

func (s *Server) handleGetSyncSettings(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.settings.SyncEnabled(r.Context())
	if err != nil {
		writeServiceError(w, r, "get_sync_settings", err)
		return
	}
	NewJSONResponse().JSON(syncSettingsJSON{Enabled: enabled}).Write(w)
}

// handleSetSyncSettings toggles cloud sync. Enabling queues a push whose id
// is returned.
func (s *Server) handleSetSyncSettings(w http.ResponseWriter, r *http.Request) {
	var req syncSettingsRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.Enabled == nil {
		UnprocessableEntityError("enabled is required").Write(w)
		return
	}

	id, err := s.settings.SetSyncEnabled(r.Context(), *req.Enabled)
	if err != nil {
		writeServiceError(w, r, "set_sync_settings", err)
		return
	}
	NewJSONResponse().JSON(syncSettingsJSON{Enabled: *req.Enabled, RequestID: id}).Write(w)
}

// handleRequestSync queues a pull or push. The sync itself runs in the
// background; poll /api/sync/status for the outcome.
func (s *Server) handleRequestSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	mode, err := services.ParseMode(req.Mode)
	if err != nil {
		writeServiceError(w, r, "request_sync", err)
		return
	}

	id, err := s.settings.RequestSync(r.Context(), mode)
	if err != nil {
		writeServiceError(w, r, "request_sync", err)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Sync requested",
		log.FieldRequest, id, log.FieldMode, string(mode))

	NewJSONResponse().
		Status(http.StatusAccepted).
		JSON(syncQueuedJSON{RequestID: id, Mode: string(mode)}).
		Write(w)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enabled, err := s.settings.SyncEnabled(ctx)
	if err != nil {
		writeServiceError(w, r, "sync_status", err)
		return
	}
	stats, err := s.status.Stats(ctx)
	if err != nil {
		writeServiceError(w, r, "sync_status", err)
		return
	}

	out := syncStatusJSON{Enabled: enabled, Queue: toQueueJSON(stats)}
	if rep, ok := s.status.LastReport(); ok {
		out.LastReport = toReportJSON(rep)
	}
	NewJSONResponse().JSON(out).Write(w)
}
