package handlers

import (
	"log"
	"net/http"

	"github.com/rollcall/rollcall/internal/api"
	"github.com/rollcall/rollcall/internal/services"
)

// handleIngest handles POST /api/ingest. The payload carries one or more
// meeting rosters; batches resolve in parallel, rows within a batch in order.
func (h *APIHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req api.IngestRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	batches := make([]services.InstanceBatch, len(req.Batches))
	for i, b := range req.Batches {
		observations := make([]services.Observation, len(b.Observations))
		for j, o := range b.Observations {
			observations[j] = services.Observation{
				MeetingInstanceID: b.MeetingInstanceID,
				RawName:           o.RawName,
				JoinedAt:          o.JoinedAt,
				DurationSeconds:   o.DurationSeconds,
				PlatformUserID:    o.PlatformUserID,
			}
		}
		batches[i] = services.InstanceBatch{
			MeetingInstanceID: b.MeetingInstanceID,
			Observations:      observations,
		}
	}

	results := h.ingestService.IngestBatches(batches)

	log.Printf("Ingested %d batch(es)", len(results))

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}
