package handlers

import (
	"net/http"

	"github.com/rollcall/rollcall/internal/api"
)

// handleGetResolverSettings handles GET /api/settings/resolver
func (h *APIHandler) handleGetResolverSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.resolverService.GetSettings()
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load resolver settings")
		return
	}
	api.RespondJSON(w, http.StatusOK, settings)
}

// handleUpdateResolverSettings handles PUT /api/settings/resolver.
// Only fields present in the request change; absent fields keep their values.
func (h *APIHandler) handleUpdateResolverSettings(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateResolverSettingsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	settings, err := h.resolverService.GetSettings()
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load resolver settings")
		return
	}

	if req.FuzzyFloor != nil {
		settings.FuzzyFloor = *req.FuzzyFloor
	}
	if req.AutoAttachThreshold != nil {
		settings.AutoAttachThreshold = *req.AutoAttachThreshold
	}
	if req.AmbiguityMargin != nil {
		settings.AmbiguityMargin = *req.AmbiguityMargin
	}
	if req.MaxCandidates != nil {
		settings.MaxCandidates = *req.MaxCandidates
	}
	if req.SweeperEnabled != nil {
		settings.SweeperEnabled = *req.SweeperEnabled
	}
	if req.SweeperIntervalMinutes != nil {
		settings.SweeperIntervalMinutes = *req.SweeperIntervalMinutes
	}
	if req.NotifyReviewQueue != nil {
		settings.NotifyReviewQueue = *req.NotifyReviewQueue
	}

	// The floor must stay below the auto-attach threshold or the
	// low-confidence band collapses.
	if settings.FuzzyFloor >= settings.AutoAttachThreshold {
		api.RespondError(w, http.StatusBadRequest, "fuzzy_floor must be below auto_attach_threshold")
		return
	}

	if err := h.resolverService.UpdateSettings(settings); err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to update resolver settings")
		return
	}

	api.RespondJSON(w, http.StatusOK, settings)
}
