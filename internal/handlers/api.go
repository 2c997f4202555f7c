package handlers

import (
	"errors"
	"net/http"

	"github.com/rollcall/rollcall/internal/api"
	"github.com/rollcall/rollcall/internal/services"
)

// APIHandler handles API endpoints for the operator UI
type APIHandler struct {
	identityService   *services.IdentityService
	resolverService   *services.ResolverService
	mergeService      *services.MergeService
	reviewService     *services.ReviewService
	attendanceService *services.AttendanceService
	ingestService     *services.IngestService
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	identityService *services.IdentityService,
	resolverService *services.ResolverService,
	mergeService *services.MergeService,
	reviewService *services.ReviewService,
	attendanceService *services.AttendanceService,
	ingestService *services.IngestService,
) *APIHandler {
	return &APIHandler{
		identityService:   identityService,
		resolverService:   resolverService,
		mergeService:      mergeService,
		reviewService:     reviewService,
		attendanceService: attendanceService,
		ingestService:     ingestService,
	}
}

// SetupRoutes sets up all API routes
func (h *APIHandler) SetupRoutes(mux *http.ServeMux) {
	// Identities
	mux.HandleFunc("GET /api/identities", h.handleListIdentities)
	mux.HandleFunc("GET /api/identities/{uuid}", h.handleGetIdentity)
	mux.HandleFunc("GET /api/identities/{uuid}/history", h.handleIdentityHistory)

	// Review queue
	mux.HandleFunc("GET /api/review", h.handleListReviewItems)
	mux.HandleFunc("GET /api/review/{id}", h.handleGetReviewItem)
	mux.HandleFunc("POST /api/review/{id}/resolve", h.handleResolveReviewItem)

	// Merge operations
	mux.HandleFunc("POST /api/merge", h.handleMerge)
	mux.HandleFunc("POST /api/demerge", h.handleDemerge)

	// Attendance reporting
	mux.HandleFunc("GET /api/attendance", h.handleAttendance)

	// Resolver settings
	mux.HandleFunc("GET /api/settings/resolver", h.handleGetResolverSettings)
	mux.HandleFunc("PUT /api/settings/resolver", h.handleUpdateResolverSettings)

	// Ingestion
	mux.HandleFunc("POST /api/ingest", h.handleIngest)
}

// respondServiceError maps service-layer sentinel errors onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrIdentityNotFound):
		api.RespondErrorWithCode(w, http.StatusNotFound, "identity_not_found", "Identity not found")
	case errors.Is(err, services.ErrIdentityTombstoned):
		api.RespondErrorWithCode(w, http.StatusConflict, "identity_tombstoned", "Identity has been merged away")
	case errors.Is(err, services.ErrSelfMerge):
		api.RespondErrorWithCode(w, http.StatusBadRequest, "self_merge", "Source and target identity are the same")
	case errors.Is(err, services.ErrAliasNotOwned):
		api.RespondErrorWithCode(w, http.StatusBadRequest, "alias_not_owned", err.Error())
	case errors.Is(err, services.ErrAliasConflict):
		api.RespondErrorWithCode(w, http.StatusConflict, "alias_conflict", err.Error())
	case errors.Is(err, services.ErrEmptyName):
		api.RespondErrorWithCode(w, http.StatusBadRequest, "empty_name", err.Error())
	case errors.Is(err, services.ErrReviewItemNotFound):
		api.RespondErrorWithCode(w, http.StatusNotFound, "review_item_not_found", "Review item not found")
	case errors.Is(err, services.ErrReviewItemClosed):
		api.RespondErrorWithCode(w, http.StatusConflict, "review_item_closed", "Review item has already been resolved")
	default:
		api.RespondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
