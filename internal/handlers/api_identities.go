package handlers

import (
	"net/http"

	"github.com/rollcall/rollcall/internal/api"
)

// handleListIdentities handles GET /api/identities
func (h *APIHandler) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	params := api.ParsePagination(r)
	search := r.URL.Query().Get("search")
	includeTombstoned := r.URL.Query().Get("include_tombstoned") == "true"

	identities, total, err := h.identityService.ListIdentities(search, includeTombstoned, params.Offset(), params.PerPage)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to list identities")
		return
	}

	api.RespondPage(w, api.IdentitiesToListItems(identities), params, total)
}

// handleGetIdentity handles GET /api/identities/{uuid}
func (h *APIHandler) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	identityUUID := r.PathValue("uuid")

	identity, err := h.identityService.GetIdentityByUUID(identityUUID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	aliases, err := h.identityService.GetAliases(identity.ID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load aliases")
		return
	}

	api.RespondJSON(w, http.StatusOK, api.IdentityToDetail(*identity, aliases))
}

// handleIdentityHistory handles GET /api/identities/{uuid}/history.
// The response combines the merge log with the identity's attendance ledger,
// so an operator can trace how the identity reached its current shape.
func (h *APIHandler) handleIdentityHistory(w http.ResponseWriter, r *http.Request) {
	identityUUID := r.PathValue("uuid")
	params := api.ParsePagination(r)

	identity, err := h.identityService.GetIdentityByUUID(identityUUID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	entries, err := h.identityService.GetMergeLog(identity.ID)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load merge log")
		return
	}

	records, total, err := h.attendanceService.RecordsForIdentity(identity.ID, params.Offset(), params.PerPage)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "Failed to load attendance records")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"identity":  api.IdentityToListItem(*identity),
		"merge_log": api.MergeLogToItems(entries),
		"attendance": api.PaginatedResponse{
			Data: records,
			Pagination: api.PaginationMeta{
				Page:       params.Page,
				PerPage:    params.PerPage,
				Total:      total,
				TotalPages: params.TotalPages(total),
			},
		},
	})
}
