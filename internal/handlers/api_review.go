package handlers

import (
	"net/http"
	"strconv"

	"github.com/rollcall/rollcall/internal/api"
	"github.com/rollcall/rollcall/internal/database"
	"github.com/rollcall/rollcall/internal/middleware"
	"github.com/rollcall/rollcall/internal/services"
)

// handleListReviewItems handles GET /api/review.
// Query params: status, candidate (identity UUID), from, to.
func (h *APIHandler) handleListReviewItems(w http.ResponseWriter, r *http.Request) {
	params := api.ParsePagination(r)

	filter := services.ReviewFilter{
		Status:    database.ReviewStatus(r.URL.Query().Get("status")),
		Candidate: r.URL.Query().Get("candidate"),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "Invalid 'from' parameter")
			return
		}
		filter.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseTimeParam(v)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "Invalid 'to' parameter")
			return
		}
		filter.To = t
	}

	items, total, err := h.reviewService.ListItems(filter, params.Offset(), params.PerPage)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list review items")
		return
	}

	api.RespondPage(w, items, params, total)
}

// handleGetReviewItem handles GET /api/review/{id}
func (h *APIHandler) handleGetReviewItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid review item ID")
		return
	}

	item, err := h.reviewService.GetItem(uint(itemID))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, item)
}

// handleResolveReviewItem handles POST /api/review/{id}/resolve
func (h *APIHandler) handleResolveReviewItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid review item ID")
		return
	}

	var req api.ResolveReviewRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	decision := services.ReviewDecision(req.Decision)
	if decision == services.DecisionAttachTo && req.IdentityUUID == "" {
		api.RespondError(w, http.StatusBadRequest, "identity_uuid is required for attach_to")
		return
	}

	performedBy := middleware.GetUserFromContext(r.Context())
	if performedBy == "" {
		performedBy = "api"
	}

	item, resolution, err := h.reviewService.Resolve(uint(itemID), decision, req.IdentityUUID, performedBy)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"item":       item,
		"resolution": resolution,
	})
}
