package handlers

import (
	"net/http"

	"github.com/rollcall/rollcall/internal/api"
	"github.com/rollcall/rollcall/internal/middleware"
)

// handleMerge handles POST /api/merge
func (h *APIHandler) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req api.MergeRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	performedBy := middleware.GetUserFromContext(r.Context())
	if performedBy == "" {
		performedBy = "api"
	}

	entry, err := h.mergeService.Merge(req.SourceUUID, req.TargetUUID, req.Reason, performedBy)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	target, err := h.identityService.GetIdentityByUUID(req.TargetUUID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Identities merged successfully",
		"target":  api.IdentityToListItem(*target),
		"entry":   entry,
	})
}

// handleDemerge handles POST /api/demerge
func (h *APIHandler) handleDemerge(w http.ResponseWriter, r *http.Request) {
	var req api.DemergeRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	performedBy := middleware.GetUserFromContext(r.Context())
	if performedBy == "" {
		performedBy = "api"
	}

	target, entry, err := h.mergeService.Demerge(req.IdentityUUID, req.Aliases, req.TargetUUID, req.Reason, performedBy)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Aliases demerged successfully",
		"target":  api.IdentityToListItem(*target),
		"entry":   entry,
	})
}
